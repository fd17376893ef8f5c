// Package builder implements the build emitter (spec.md §4.6, C6): it
// transforms a loaded package tree into the cluster-task description the
// judge/client tooling reads (a common test.yaml, one test.yaml+tests.yaml
// per test set, and any linked auxiliary programs).
//
// Grounded on original_source/app/broker/builder.py.
package builder

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/baca2/kolejka-broker/pkg/kolejkapackage"
)

// resultProjection maps the high-level result keys the broker reports
// (spec.md §4.6) to the cluster-internal paths the judge writes them to.
// Fixed by the cluster's own conventions, not configurable.
var resultProjection = map[string]string{
	"execute_time_real": "/io/executor/run/real_time",
	"execute_time_cpu":  "/io/executor/run/cpu_time",
	"execute_memory":    "/io/executor/run/memory",
	"compile_log":       "str:/builder/**/stdout,/builder/**/stderr",
	"tool_log":          "str:/io/generator/**/stderr,/io/verifier/**/stdout,/io/verifier/**/stderr,/io/hinter/**/stderr",
	"checker_log":       "str:/io/checker/**/stdout,/io/checker/**/stderr",
	"answer":            "str:/io/executor/run/stdout",
	"logs":              "/logs/logs",
	"debug":             "/debug/debug",
}

// Limits are the fixed per-task resource limits emitted into the common
// test.yaml (spec.md §4.6). Populated from the broker's static
// configuration, not from the package.
type Limits struct {
	Image     string
	Memory    string
	Time      string
	Swap      string
	CPUs      int
	Network   bool
	Storage   string
	Workspace string
}

// Config configures a Build run.
type Config struct {
	Limits   Limits
	Shortcut bool // whether to emit the result projection
}

type commonTestYAML struct {
	Image             string            `yaml:"image"`
	Memory            string            `yaml:"memory"`
	Time              string            `yaml:"time"`
	Swap              string            `yaml:"swap"`
	CPUs              int               `yaml:"cpus"`
	Network           bool              `yaml:"network"`
	Storage           string            `yaml:"storage"`
	Workspace         string            `yaml:"workspace"`
	ResultProjection  map[string]string `yaml:"result,omitempty"`
}

type setTestYAML struct {
	Include   string `yaml:"include"`
	Time      string `yaml:"time,omitempty"` // e.g. "2500ms"
	Memory    string `yaml:"memory,omitempty"`
	Generator string `yaml:"generator,omitempty"`
}

type testEntry struct {
	Input     *File          `yaml:"input,omitempty"`
	Output    *File          `yaml:"output,omitempty"`
	Overrides map[string]any `yaml:"overrides,omitempty"`
}

// Build renders pkg's cluster-task description into dir, which must
// already exist and be empty (pkgmanager.EnsureBuilt calls
// Package.PrepareBuild before invoking Build).
func Build(cfg Config, pkg *kolejkapackage.Package, dir string) error {
	commonDir := filepath.Join(dir, "common")
	if err := os.MkdirAll(commonDir, 0o755); err != nil {
		return fmt.Errorf("creating common dir: %w", err)
	}

	if err := writeCommonTestYAML(cfg, commonDir); err != nil {
		return err
	}

	for _, set := range pkg.Sets() {
		if err := linkAuxPrograms(pkg, set, commonDir); err != nil {
			return fmt.Errorf("linking aux programs for set %q: %w", set.Name, err)
		}
		setDir := filepath.Join(dir, set.Name)
		if err := os.MkdirAll(setDir, 0o755); err != nil {
			return fmt.Errorf("creating set dir %q: %w", set.Name, err)
		}
		if err := writeSetTestYAML(set, commonDir, setDir); err != nil {
			return fmt.Errorf("writing test.yaml for set %q: %w", set.Name, err)
		}
		if err := writeTestsYAML(set, setDir); err != nil {
			return fmt.Errorf("writing tests.yaml for set %q: %w", set.Name, err)
		}
	}
	return nil
}

func writeCommonTestYAML(cfg Config, commonDir string) error {
	doc := commonTestYAML{
		Image:     cfg.Limits.Image,
		Memory:    cfg.Limits.Memory,
		Time:      cfg.Limits.Time,
		Swap:      cfg.Limits.Swap,
		CPUs:      cfg.Limits.CPUs,
		Network:   cfg.Limits.Network,
		Storage:   cfg.Limits.Storage,
		Workspace: cfg.Limits.Workspace,
	}
	if cfg.Shortcut {
		doc.ResultProjection = resultProjection
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshalling common test.yaml: %w", err)
	}
	return os.WriteFile(filepath.Join(commonDir, "test.yaml"), raw, 0o644)
}

// linkAuxPrograms symlinks a set's optional checker/verifier/hinter
// scripts from the package tree into the shared common directory
// (spec.md §4.6). Missing entries are skipped; it is not an error for a
// set to declare none of them.
func linkAuxPrograms(pkg *kolejkapackage.Package, set kolejkapackage.TestSet, commonDir string) error {
	for _, name := range []string{set.Checker, set.Verifier, set.Hinter} {
		if name == "" {
			continue
		}
		src := filepath.Join(pkg.Path, name)
		dst := filepath.Join(commonDir, filepath.Base(name))
		_ = os.Remove(dst)
		if err := os.Symlink(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func writeSetTestYAML(set kolejkapackage.TestSet, commonDir, setDir string) error {
	includePath, err := filepath.Rel(setDir, filepath.Join(commonDir, "test.yaml"))
	if err != nil {
		includePath = filepath.Join(commonDir, "test.yaml")
	}
	doc := setTestYAML{
		Include:   includeTag(includePath).asSentinel(),
		Time:      fmt.Sprintf("%dms", int64(set.TimeLimit*1000)),
		Memory:    set.MemoryLimit,
		Generator: set.TestGenerator,
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshalling set test.yaml: %w", err)
	}
	return rewriteIncludeTags(filepath.Join(setDir, "test.yaml"), raw)
}

func writeTestsYAML(set kolejkapackage.TestSet, setDir string) error {
	doc := make(map[string]testEntry, len(set.Tests))
	for _, t := range set.Tests {
		entry := testEntry{Overrides: t.Overrides}
		if t.Input != "" {
			entry.Input = &File{Path: t.Input}
		}
		if t.Output != "" {
			entry.Output = &File{Path: t.Output}
		}
		doc[t.Name] = entry
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshalling tests.yaml: %w", err)
	}
	return os.WriteFile(filepath.Join(setDir, "tests.yaml"), raw, 0o644)
}
