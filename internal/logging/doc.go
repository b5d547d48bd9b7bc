// Package logging wraps Zap with context-aware correlation for crewd.
//
// Log calls take a context.Context and automatically attach correlation
// fields carried in it: the OTEL trace/span IDs, the pipeline run ID, and
// the domain being worked on. A Trace level below Debug exists for
// wire-level detail, and log output can be teed to an OTEL log bridge in
// addition to stdout.
package logging
