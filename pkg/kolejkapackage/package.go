// Package kolejkapackage implements the package library spec.md §1 treats
// as an external collaborator: it parses a package directory, enumerates
// its test sets, and owns a per-namespace build cache.
//
// Grounded on original_source/app/broker/builder.py and datamaster.py,
// which assume a Package object exposing .sets(), .build_path(namespace),
// .check_build(namespace), .prepare_build(namespace), and item access for
// package-level limits (cpus, network, source_size).
package kolejkapackage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Test is one test case within a TestSet.
type Test struct {
	Name   string            `yaml:"name"`
	Input  string            `yaml:"input,omitempty"`
	Output string            `yaml:"output,omitempty"`
	// Overrides holds per-test key/value overrides (e.g. time_limit) that
	// are folded into the emitted tests.yaml verbatim.
	Overrides map[string]any `yaml:"overrides,omitempty"`
}

// TestSet is one independently dispatched partition of a submission.
type TestSet struct {
	Name          string         `yaml:"name"`
	TimeLimit     float64        `yaml:"time_limit"`   // seconds
	MemoryLimit   string         `yaml:"memory_limit"` // e.g. "256MB"
	TestGenerator string         `yaml:"test_generator,omitempty"`
	Checker       string         `yaml:"checker,omitempty"`
	Verifier      string         `yaml:"verifier,omitempty"`
	Hinter        string         `yaml:"hinter,omitempty"`
	Points        int            `yaml:"points,omitempty"`
	Weight        float64        `yaml:"weight,omitempty"`
	Tests         []Test         `yaml:"tests"`
	Extra         map[string]any `yaml:"extra,omitempty"`
}

// manifest is the on-disk package.yaml shape.
type manifest struct {
	Name       string    `yaml:"name"`
	CPUs       int       `yaml:"cpus"`
	Network    bool      `yaml:"network"`
	SourceSize string    `yaml:"source_size"`
	Sets       []TestSet `yaml:"sets"`
}

// Package is a loaded, revision-pinned package tree.
type Package struct {
	Path     string
	CommitID string

	name       string
	cpus       int
	network    bool
	sourceSize string
	sets       []TestSet
}

// Load reads package.yaml from path and returns the parsed Package pinned
// to commitID. Revision resolution (e.g. checking out commitID in a VCS
// working tree) is assumed to have already happened upstream of the
// broker; commitID is retained only for identification.
func Load(ctx context.Context, path, commitID string) (*Package, error) {
	raw, err := os.ReadFile(filepath.Join(path, "package.yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading package manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing package manifest: %w", err)
	}
	if len(m.Sets) == 0 {
		return nil, fmt.Errorf("package %q declares no test sets", path)
	}
	return &Package{
		Path:       path,
		CommitID:   commitID,
		name:       m.Name,
		cpus:       m.CPUs,
		network:    m.Network,
		sourceSize: m.SourceSize,
		sets:       m.Sets,
	}, nil
}

func (p *Package) Name() string    { return p.name }
func (p *Package) CPUs() int       { return p.cpus }
func (p *Package) Network() bool   { return p.network }
func (p *Package) SourceSize() string { return p.sourceSize }

// Sets enumerates the package's test sets.
func (p *Package) Sets() []TestSet { return p.sets }

// BuildPath returns where a build for the given namespace lives, whether
// or not it has been created yet.
func (p *Package) BuildPath(namespace string) string {
	return filepath.Join(p.Path, ".build", namespace)
}

// CheckBuild reports whether a build already exists for namespace.
func (p *Package) CheckBuild(namespace string) bool {
	info, err := os.Stat(p.BuildPath(namespace))
	return err == nil && info.IsDir()
}

// PrepareBuild creates (or recreates) the build directory for namespace
// and returns its path. A stale build directory from a previous attempt
// is removed first so Builder always starts from a clean tree.
func (p *Package) PrepareBuild(namespace string) (string, error) {
	dir := p.BuildPath(namespace)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clearing stale build dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating build dir: %w", err)
	}
	return dir, nil
}
