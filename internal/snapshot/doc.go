// Package snapshot persists the committed index baseline between runs.
//
// A snapshot bundles the merkle baseline (file and directory digests), the
// per-file chunk identity/digest index, and run bookkeeping (timestamps,
// counts, last error). It is loaded or created empty on startup, read by
// every incremental run as its comparison point, and atomically replaced
// via write-temp-then-rename only after a run commits successfully. A
// failed run leaves the previous snapshot in place so the next run retries
// the same diff.
package snapshot
