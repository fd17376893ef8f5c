package builder_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/baca2/kolejka-broker/internal/broker/builder"
	"github.com/baca2/kolejka-broker/pkg/kolejkapackage"
)

func loadPackage(t *testing.T, manifest string) *kolejkapackage.Package {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.yaml"), []byte(manifest), 0o644))
	pkg, err := kolejkapackage.Load(context.Background(), dir, "main")
	require.NoError(t, err)
	return pkg
}

func TestBuildWritesCommonAndPerSetFiles(t *testing.T) {
	pkg := loadPackage(t, `
name: test-pkg
cpus: 1
sets:
  - name: set1
    time_limit: 2.5
    memory_limit: 256MB
    tests:
      - name: t1
        input: in1.txt
        output: out1.txt
`)
	out := t.TempDir()
	cfg := builder.Config{
		Limits: builder.Limits{Image: "img", Memory: "512MB", Time: "10s", CPUs: 1},
	}
	require.NoError(t, builder.Build(cfg, pkg, out))

	commonYAML, err := os.ReadFile(filepath.Join(out, "common", "test.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(commonYAML), "image: img")

	setYAML, err := os.ReadFile(filepath.Join(out, "set1", "test.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(setYAML), "!include ")
	require.NotContains(t, string(setYAML), "0tag::include")
	require.Contains(t, string(setYAML), "time: 2500ms")

	testsYAML, err := os.ReadFile(filepath.Join(out, "set1", "tests.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(testsYAML), "t1:")
	require.Contains(t, string(testsYAML), "!file in1.txt")
	require.Contains(t, string(testsYAML), "!file out1.txt")
}

func TestBuildEmitsResultProjectionWhenShortcutEnabled(t *testing.T) {
	pkg := loadPackage(t, `
name: test-pkg
cpus: 1
sets:
  - name: set1
    tests: []
`)
	out := t.TempDir()
	cfg := builder.Config{
		Limits:   builder.Limits{Image: "img"},
		Shortcut: true,
	}
	require.NoError(t, builder.Build(cfg, pkg, out))

	commonYAML, err := os.ReadFile(filepath.Join(out, "common", "test.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(commonYAML), "/io/executor/run/real_time")
}
