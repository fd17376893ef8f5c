// Package cluster implements the cluster adapter (spec.md §4.3): two
// variants sharing one interface, dispatching a SetSubmit to the
// execution cluster and retrieving its results.
//
// Grounded on original_source/app/broker/messenger.py's KolejkaMessenger
// / KolejkaMessengerActiveWait pair.
package cluster

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	logging "github.com/ipfs/go-log/v2"

	"github.com/baca2/kolejka-broker/internal/broker/state"
	"github.com/baca2/kolejka-broker/pkg/kolejkapackage"
)

var log = logging.Logger("broker/cluster")

// Error wraps any dispatch/collect failure (spec.md §7 ClusterError).
// Always causes the owning TaskSubmit to be trashed.
type Error struct {
	Op      string
	Stderr  string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("cluster %s failed: %v (stderr: %s)", e.Op, e.Wrapped, e.Stderr)
	}
	return fmt.Sprintf("cluster %s failed: %v", e.Op, e.Wrapped)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Adapter dispatches a SetSubmit to the cluster and retrieves its results,
// mutating the SetSubmit in place. Exactly one of PassiveAdapter or
// ActiveAdapter is selected at startup (spec.md §4.3).
type Adapter interface {
	// Dispatch prepares the cluster task and submits it. In passive mode it
	// records set.StatusCode() on success. In active mode this call blocks
	// until the cluster task completes and records the result instead; no
	// status code is recorded.
	Dispatch(ctx context.Context, task *state.TaskSubmit, set *state.SetSubmit) error
	// Collect retrieves and parses a previously dispatched set's results.
	// In active mode this is a no-op: the result was already recorded by
	// Dispatch.
	Collect(ctx context.Context, task *state.TaskSubmit, set *state.SetSubmit) error
}

// Paths locates the cluster client binaries and judge driver within a
// built package, matching the `common/` layout emitted by the Builder
// (spec.md §4.6).
type Paths struct {
	BuildNamespace string
}

func (p Paths) commonDir(pkg *kolejkapackage.Package) string {
	return filepath.Join(pkg.BuildPath(p.BuildNamespace), "common")
}

func (p Paths) kolejkaClient(pkg *kolejkapackage.Package) string {
	return filepath.Join(p.commonDir(pkg), "kolejka-client")
}

func (p Paths) kolejkaJudge(pkg *kolejkapackage.Package) string {
	return filepath.Join(p.commonDir(pkg), "kolejka-judge")
}

func (p Paths) judgePy(pkg *kolejkapackage.Package) string {
	return filepath.Join(p.commonDir(pkg), "judge.py")
}

func (p Paths) testsYAML(pkg *kolejkapackage.Package, setName string) string {
	return filepath.Join(pkg.BuildPath(p.BuildNamespace), setName, "tests.yaml")
}

// taskDir is where a set's cluster task tree (submitted source plus
// generated tests.yaml) is assembled before being handed to the client.
func (p Paths) taskDir(pkg *kolejkapackage.Package, setName string) string {
	return filepath.Join(pkg.BuildPath(p.BuildNamespace), setName, "task")
}

// resultDir is where the client writes back a completed task's
// results.yaml (spec.md §4.3).
func (p Paths) resultDir(pkg *kolejkapackage.Package, setName string) string {
	return filepath.Join(pkg.BuildPath(p.BuildNamespace), setName, "result")
}

// pythonInterpreter picks the platform-specific interpreter name the
// cluster's Python-based judge/client tooling is invoked with (spec.md
// §4.3).
func pythonInterpreter() string {
	if runtime.GOOS == "windows" {
		return "py"
	}
	return "python3"
}

// invocation returns the program and leading arguments needed to run a
// cluster-provided script. POSIX judge/client installs are executable
// via their own shebang; Windows has no shebang support, so the
// interpreter is named explicitly there instead.
func invocation(bin string) (string, []string) {
	if runtime.GOOS == "windows" {
		return pythonInterpreter(), []string{bin}
	}
	return bin, nil
}

// callbackURL assembles the callback URL contract of spec.md §4.3:
// "<prefix><"/" if prefix does not end with "/">"<set_submit_id>".
func callbackURL(prefix, setSubmitID string) string {
	sep := ""
	if !strings.HasSuffix(prefix, "/") {
		sep = "/"
	}
	return prefix + sep + setSubmitID
}
