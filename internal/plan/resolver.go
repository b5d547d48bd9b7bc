package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Descriptor describes one domain for a run. Immutable once built from
// caller input.
type Descriptor struct {
	// Name uniquely identifies the domain within the run.
	Name string

	// DependsOn lists domains that must complete before this one starts.
	DependsOn []string

	// Task is the work statement handed to the development collaborator.
	Task string
}

// ExecutionPlan is the resolved execution order for a run. Computed once,
// read-only thereafter.
type ExecutionPlan struct {
	// SortedOrder is a full topological order over all domains.
	SortedOrder []string

	// Layers partitions SortedOrder into mutually independent sets: every
	// domain in Layers[i] has all dependencies in Layers[0..i-1].
	Layers [][]string
}

// CircularDependencyError reports that the dependency map contains a cycle.
// Members lists every domain on or downstream of a cycle, i.e. all domains
// that could not be scheduled.
type CircularDependencyError struct {
	Members []string
}

// Error implements the error interface.
func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency among domains: %s", strings.Join(e.Members, ", "))
}

// Resolve computes the execution plan for the given domains.
//
// deps maps a domain to the domains it depends on; a domain absent from
// deps has no dependencies. Every name referenced in deps must be a member
// of domains. Layers and the sorted order are deterministic: ties break
// alphabetically.
func Resolve(domains []string, deps map[string][]string) (*ExecutionPlan, error) {
	if len(domains) == 0 {
		return nil, fmt.Errorf("no domains to resolve")
	}

	known := make(map[string]bool, len(domains))
	for _, d := range domains {
		if known[d] {
			return nil, fmt.Errorf("duplicate domain %q", d)
		}
		known[d] = true
	}

	// In-degree per domain and the reverse edge list (dep -> dependents).
	indegree := make(map[string]int, len(domains))
	dependents := make(map[string][]string, len(domains))
	for _, d := range domains {
		indegree[d] = 0
	}
	for d, ds := range deps {
		if !known[d] {
			return nil, fmt.Errorf("dependency map references unknown domain %q", d)
		}
		seen := make(map[string]bool, len(ds))
		for _, dep := range ds {
			if !known[dep] {
				return nil, fmt.Errorf("domain %q depends on unknown domain %q", d, dep)
			}
			if dep == d {
				return nil, &CircularDependencyError{Members: []string{d}}
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			indegree[d]++
			dependents[dep] = append(dependents[dep], d)
		}
	}

	frontier := make([]string, 0, len(domains))
	for _, d := range domains {
		if indegree[d] == 0 {
			frontier = append(frontier, d)
		}
	}

	p := &ExecutionPlan{
		SortedOrder: make([]string, 0, len(domains)),
		Layers:      nil,
	}

	scheduled := 0
	for len(frontier) > 0 {
		sort.Strings(frontier)
		layer := frontier
		frontier = nil

		p.Layers = append(p.Layers, layer)
		p.SortedOrder = append(p.SortedOrder, layer...)
		scheduled += len(layer)

		for _, d := range layer {
			for _, next := range dependents[d] {
				indegree[next]--
				if indegree[next] == 0 {
					frontier = append(frontier, next)
				}
			}
		}
	}

	if scheduled != len(domains) {
		// Whatever remains has positive in-degree: cycle members plus
		// everything blocked behind them.
		var members []string
		for d, n := range indegree {
			if n > 0 {
				members = append(members, d)
			}
		}
		sort.Strings(members)
		return nil, &CircularDependencyError{Members: members}
	}

	return p, nil
}

// Layer returns the zero-based layer index of the named domain, or -1 if
// the domain is not part of the plan.
func (p *ExecutionPlan) Layer(domain string) int {
	for i, layer := range p.Layers {
		for _, d := range layer {
			if d == domain {
				return i
			}
		}
	}
	return -1
}
