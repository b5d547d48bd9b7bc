// Package pipeline orchestrates a full run.
//
// A run resolves the manifest into layers, executes every domain
// workflow, detects cross-domain conflicts, passes everything through
// the consensus gate, and on approval commits each domain's change set
// to the integration branch in dependency order.
package pipeline
