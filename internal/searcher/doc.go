// Package searcher answers natural-language queries against the vector
// store: it embeds the query text, runs a cosine-similarity lookup, and
// returns ranked chunk results. Responses are cached in a small LRU keyed
// by the full request, with a TTL so a stale cache never outlives more
// than one indexing cycle.
package searcher
