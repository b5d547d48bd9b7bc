package plan

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxManifestSize = 1024 * 1024 // 1MB

// Manifest is the run declaration loaded from crew.yaml.
type Manifest struct {
	Domains []DomainSpec `koanf:"domains"`
}

// DomainSpec declares one domain in the manifest.
type DomainSpec struct {
	Name      string   `koanf:"name"`
	DependsOn []string `koanf:"depends_on"`
	Task      string   `koanf:"task"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if info.Size() > maxManifestSize {
		return nil, fmt.Errorf("manifest too large: %d bytes (max %d)", info.Size(), maxManifestSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(content)
}

// ParseManifest parses manifest YAML content.
func ParseManifest(content []byte) (*Manifest, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	var m Manifest
	if err := k.Unmarshal("", &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest for structural errors. Cycles are not
// checked here; Resolve reports them with full cycle membership.
func (m *Manifest) Validate() error {
	if len(m.Domains) == 0 {
		return fmt.Errorf("manifest declares no domains")
	}

	names := make(map[string]bool, len(m.Domains))
	for _, d := range m.Domains {
		if d.Name == "" {
			return fmt.Errorf("manifest contains a domain with no name")
		}
		if names[d.Name] {
			return fmt.Errorf("duplicate domain %q in manifest", d.Name)
		}
		names[d.Name] = true
	}

	for _, d := range m.Domains {
		for _, dep := range d.DependsOn {
			if !names[dep] {
				return fmt.Errorf("domain %q depends on undeclared domain %q", d.Name, dep)
			}
		}
	}
	return nil
}

// Names returns the declared domain names in manifest order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Domains))
	for _, d := range m.Domains {
		names = append(names, d.Name)
	}
	return names
}

// DependencyMap returns the domain -> dependencies map for Resolve.
func (m *Manifest) DependencyMap() map[string][]string {
	deps := make(map[string][]string, len(m.Domains))
	for _, d := range m.Domains {
		if len(d.DependsOn) > 0 {
			deps[d.Name] = d.DependsOn
		}
	}
	return deps
}

// Descriptors returns run descriptors in manifest order.
func (m *Manifest) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(m.Domains))
	for _, d := range m.Domains {
		out = append(out, Descriptor{
			Name:      d.Name,
			DependsOn: append([]string(nil), d.DependsOn...),
			Task:      d.Task,
		})
	}
	return out
}
