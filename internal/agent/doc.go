// Package agent runs external worker programs as collaborators.
//
// A worker is any executable speaking a line-free JSON protocol: the
// request arrives on stdin, the response is the whole of stdout. The
// develop worker receives a task and answers with a change set; the
// validate worker receives a task plus the candidate change set and
// answers with a verdict. A non-zero exit or malformed response is an
// infrastructure failure, never a quality verdict.
//
// All workers share one rate limiter so a wide layer cannot stampede
// the backing model or service.
package agent
