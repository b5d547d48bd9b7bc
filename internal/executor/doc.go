// Package executor schedules domain workflows across the layers of an
// execution plan.
//
// Layers run strictly in order; domains within a layer run concurrently
// under a bounded worker pool. A domain whose upstream dependency ended
// escalated is blocked: it never starts, and its result records the
// blocked escalation so downstream layers and the consensus gate see it.
package executor
