// Package overlay merges many Tank archives into one priority-ordered,
// read-only namespace.
//
// Archives are sorted ascending by priority tier and merged in that order,
// so for every path the highest-priority archive that defines it wins.
// Archives of equal priority are ordered by lower-cased name so the result
// depends only on the set of archives, never on discovery or load order.
//
// A Set is immutable once built. Live holds the current Set for callers
// that add archives at runtime; each addition re-runs the merge and swaps
// the published Set atomically.
package overlay
