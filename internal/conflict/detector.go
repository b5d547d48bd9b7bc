package conflict

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Class categorizes what kind of artifact two domains collided on.
type Class string

const (
	// ClassFile is a plain file overlap.
	ClassFile Class = "file"
	// ClassSchema is an overlap on database schema or migration paths.
	ClassSchema Class = "schema"
	// ClassAPI is an overlap on API contract paths.
	ClassAPI Class = "api"
)

// Severity decides how a conflict affects the merge gate.
type Severity string

const (
	// SeverityBlocking vetoes the automatic merge.
	SeverityBlocking Severity = "blocking"
	// SeverityWarning is surfaced but does not veto.
	SeverityWarning Severity = "warning"
)

// Conflict is one path touched by two or more domains.
type Conflict struct {
	Path     string   `json:"path"`
	Domains  []string `json:"domains"`
	Class    Class    `json:"class"`
	Severity Severity `json:"severity"`
}

// Config holds the classification pattern sets. Patterns use doublestar
// glob syntax and match slash-separated paths.
type Config struct {
	SchemaPatterns   []string
	APIPatterns      []string
	BlockingPatterns []string
}

// DefaultConfig returns the stock classification patterns.
func DefaultConfig() Config {
	return Config{
		SchemaPatterns:   []string{"**/migrations/**", "**/schema/**"},
		APIPatterns:      []string{"**/api/**", "**/*.proto", "**/openapi*"},
		BlockingPatterns: []string{"**/migrations/**", "**/*.proto"},
	}
}

// Detector classifies cross-domain path overlap.
type Detector struct {
	cfg Config
}

// New creates a detector, validating every pattern up front.
func New(cfg Config) (*Detector, error) {
	for _, set := range [][]string{cfg.SchemaPatterns, cfg.APIPatterns, cfg.BlockingPatterns} {
		for _, pat := range set {
			if !doublestar.ValidatePattern(pat) {
				return nil, fmt.Errorf("invalid conflict pattern %q", pat)
			}
		}
	}
	return &Detector{cfg: cfg}, nil
}

// Detect returns every path touched by two or more domains, sorted by
// path. touched maps domain name to the file paths its change set wrote.
func (d *Detector) Detect(touched map[string][]string) []Conflict {
	byPath := make(map[string]map[string]bool)
	for domain, paths := range touched {
		for _, p := range paths {
			p = filepath.ToSlash(p)
			if byPath[p] == nil {
				byPath[p] = make(map[string]bool)
			}
			byPath[p][domain] = true
		}
	}

	var conflicts []Conflict
	for path, domains := range byPath {
		if len(domains) < 2 {
			continue
		}
		names := make([]string, 0, len(domains))
		for d := range domains {
			names = append(names, d)
		}
		sort.Strings(names)

		conflicts = append(conflicts, Conflict{
			Path:     path,
			Domains:  names,
			Class:    d.classify(path),
			Severity: d.severity(path),
		})
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
	return conflicts
}

// HasBlocking reports whether any conflict in the set is blocking.
func HasBlocking(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}

func (d *Detector) classify(path string) Class {
	if matchAny(d.cfg.SchemaPatterns, path) {
		return ClassSchema
	}
	if matchAny(d.cfg.APIPatterns, path) {
		return ClassAPI
	}
	return ClassFile
}

func (d *Detector) severity(path string) Severity {
	if matchAny(d.cfg.BlockingPatterns, path) {
		return SeverityBlocking
	}
	return SeverityWarning
}

func matchAny(patterns []string, path string) bool {
	for _, pat := range patterns {
		// Patterns are validated in New; Match cannot fail here.
		if ok, _ := doublestar.Match(pat, path); ok {
			return true
		}
	}
	return false
}
