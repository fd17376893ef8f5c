package pkgmanager_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/baca2/kolejka-broker/internal/broker/builder"
	"github.com/baca2/kolejka-broker/internal/broker/pkgmanager"
	"github.com/baca2/kolejka-broker/pkg/kolejkapackage"
)

func loadPackage(t *testing.T, dir string) *kolejkapackage.Package {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.yaml"), []byte(`
name: test-pkg
cpus: 1
sets:
  - name: set1
    tests: []
`), 0o644))
	pkg, err := kolejkapackage.Load(context.Background(), dir, "main")
	require.NoError(t, err)
	return pkg
}

func TestEnsureBuiltBuildsOnceAndCachesSubsequentCalls(t *testing.T) {
	dir := t.TempDir()
	pkg := loadPackage(t, dir)

	m := pkgmanager.New(false, builder.Config{Limits: builder.Limits{Image: "img"}}, nil)

	require.NoError(t, m.EnsureBuilt(context.Background(), pkg, "ns"))
	require.True(t, pkg.CheckBuild("ns"))

	buildDir := pkg.BuildPath("ns")
	marker := filepath.Join(buildDir, "common", "test.yaml")
	info, err := os.Stat(marker)
	require.NoError(t, err)
	firstModTime := info.ModTime()

	// second call should be a cache hit: no rebuild, file untouched.
	require.NoError(t, m.EnsureBuilt(context.Background(), pkg, "ns"))
	info2, err := os.Stat(marker)
	require.NoError(t, err)
	require.Equal(t, firstModTime, info2.ModTime())
}

func TestEnsureBuiltForceRebuildAlwaysRebuilds(t *testing.T) {
	dir := t.TempDir()
	pkg := loadPackage(t, dir)

	m := pkgmanager.New(true, builder.Config{Limits: builder.Limits{Image: "img"}}, nil)
	require.NoError(t, m.EnsureBuilt(context.Background(), pkg, "ns"))
	require.NoError(t, m.EnsureBuilt(context.Background(), pkg, "ns"))
	require.True(t, pkg.CheckBuild("ns"))
}
