// Package chunker turns parse results into code chunks with stable
// identities.
//
// A chunk's identity is its file path plus the qualified declaration name,
// with an ordinal suffix disambiguating duplicate names in source order.
// Identity never depends on line numbers, so editing one declaration leaves
// every other chunk's identity and digest untouched. The indexer's
// chunk-level diff relies on this to re-embed only what changed.
package chunker
