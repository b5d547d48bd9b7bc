// Package gitspace provides git-backed workspace isolation.
//
// Every domain in a run works in its own clone of the source repository
// on a branch keyed by (run, domain), so concurrent domains can never
// see each other's edits. Approved change sets are committed, one commit
// per domain in dependency order, onto the integration branch of a
// dedicated integration clone.
package gitspace
