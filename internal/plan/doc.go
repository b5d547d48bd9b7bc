// Package plan turns a set of business domains and their dependency map
// into an execution plan: a cycle-free topological order partitioned into
// layers of mutually independent domains.
//
// Layering uses Kahn's algorithm: the in-degree-zero frontier forms a
// layer, the whole frontier is removed at once, dependents' in-degrees are
// decremented, and the next frontier forms the next layer. Every domain in
// layer i has all of its dependencies in layers 0..i-1, so domains within
// one layer are always safe to run concurrently.
//
// The package also loads the run manifest (crew.yaml) that declares the
// domains, their dependencies, and the task handed to each domain's
// development collaborator.
package plan
