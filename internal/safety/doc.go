// Package safety scores change sets before they are eligible for QA.
//
// The scorer starts every change set at 1.0 and subtracts penalties for
// secret findings (Gitleaks default ruleset) and for matches against
// configured deny patterns. Scores are clamped to [0, 1]; the engine
// compares them against its safety floor and the consensus gate against
// the run-wide average threshold.
package safety
