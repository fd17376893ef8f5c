package cluster

import (
	"context"
	"os"

	"github.com/baca2/kolejka-broker/internal/broker/state"
)

// ActiveAdapter dispatches a set by invoking kolejka-client in its
// blocking "execute" mode: the call does not return until the cluster
// task has finished, and the results are available immediately
// afterwards with no callback round trip (spec.md §4.3,
// KolejkaMessengerActiveWait). Used when the broker has no reachable
// callback endpoint of its own, e.g. behind NAT without ingress.
//
// Grounded on original_source/app/broker/messenger.py's
// KolejkaMessengerActiveWait.
type ActiveAdapter struct {
	Runner CommandRunner
	Paths  Paths

	ClusterConf string
}

var _ Adapter = (*ActiveAdapter)(nil)

func (a *ActiveAdapter) Dispatch(ctx context.Context, task *state.TaskSubmit, set *state.SetSubmit) error {
	pkg, err := task.Package()
	if err != nil {
		return &Error{Op: "dispatch", Wrapped: err}
	}

	taskDir := a.Paths.taskDir(pkg, set.SetName)
	resultDir := a.Paths.resultDir(pkg, set.SetName)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return &Error{Op: "dispatch", Wrapped: err}
	}
	if err := os.MkdirAll(resultDir, 0o755); err != nil {
		return &Error{Op: "dispatch", Wrapped: err}
	}

	judgeProg, judgeArgs := invocation(a.Paths.kolejkaJudge(pkg))
	judgeArgs = append(judgeArgs, "task",
		"--library-path", a.Paths.kolejkaJudge(pkg),
		a.Paths.judgePy(pkg),
		a.Paths.testsYAML(pkg, set.SetName),
		task.SolutionPath,
		taskDir,
	)
	_, stderr, err := a.Runner.Run(ctx, judgeProg, judgeArgs...)
	if err != nil {
		return &Error{Op: "judge task", Stderr: string(stderr), Wrapped: err}
	}

	clientProg, clientArgs := invocation(a.Paths.kolejkaClient(pkg))
	clientArgs = append(clientArgs, "--config-file", a.ClusterConf, "execute", taskDir, resultDir)
	_, stderr, err = a.Runner.Run(ctx, clientProg, clientArgs...)
	if err != nil {
		return &Error{Op: "client execute", Stderr: string(stderr), Wrapped: err}
	}

	result, err := parseResults(set.SetName, resultDir)
	if err != nil {
		return &Error{Op: "parse results", Wrapped: err}
	}
	set.SetResult(result)
	log.Infow("active-wait set completed", "set", set.SubmitID)
	return nil
}

// Collect is a no-op in active-wait mode: Dispatch already recorded the
// result synchronously.
func (a *ActiveAdapter) Collect(ctx context.Context, task *state.TaskSubmit, set *state.SetSubmit) error {
	return nil
}
