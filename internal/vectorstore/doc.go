// Package vectorstore persists index entries and serves similarity queries.
//
// The store is the vector-storage collaborator of the indexing pipeline:
// upsert keyed by chunk identity, deletion by identity or by owning file,
// and cosine-similarity queries with metadata filters. The SQLite
// implementation keeps vectors as little-endian float32 blobs and computes
// similarity in Go over SQL-filtered candidates; building with the
// sqlite_vec tag swaps in the cgo driver for deployments that load the
// sqlite-vec extension.
package vectorstore
