// Package conflict detects cross-domain overlap in proposed change sets.
//
// Two domains touching the same path is a conflict. Paths are classified
// by glob patterns into file, schema, and API contract conflicts, and a
// second pattern set decides whether a conflict blocks the automatic
// merge or only warns.
package conflict
