package cluster

import (
	"context"
	"os"
	"strings"

	"github.com/baca2/kolejka-broker/internal/broker/state"
)

// PassiveAdapter dispatches a set by handing it to kolejka-client, which
// enqueues it on the external cluster and returns a handle; the cluster
// calls back to the broker's HTTP ingress on completion (spec.md §4.3,
// §6 cluster callback endpoint). Collect is invoked from that callback
// handler once the callback has been authenticated and the set located.
//
// Grounded on original_source/app/broker/messenger.py's KolejkaMessenger.
type PassiveAdapter struct {
	Runner CommandRunner
	Paths  Paths

	// ClusterConf is the path to the kolejka-client cluster config file
	// (spec.md §6 config key cluster_conf).
	ClusterConf string
	// CallbackURLPrefix is prefixed to a set submit id to build the URL
	// the cluster POSTs back to (spec.md §6 config key callback_url_prefix).
	CallbackURLPrefix string
}

var _ Adapter = (*PassiveAdapter)(nil)

func (a *PassiveAdapter) Dispatch(ctx context.Context, task *state.TaskSubmit, set *state.SetSubmit) error {
	pkg, err := task.Package()
	if err != nil {
		return &Error{Op: "dispatch", Wrapped: err}
	}

	taskDir := a.Paths.taskDir(pkg, set.SetName)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return &Error{Op: "dispatch", Wrapped: err}
	}

	callback := callbackURL(a.CallbackURLPrefix, set.SubmitID)
	judgeProg, judgeArgs := invocation(a.Paths.kolejkaJudge(pkg))
	judgeArgs = append(judgeArgs, "task",
		"--callback", callback,
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
	clientArgs = append(clientArgs, "--config-file", a.ClusterConf, "task", "put", taskDir)
	stdout, stderr, err := a.Runner.Run(ctx, clientProg, clientArgs...)
	if err != nil {
		return &Error{Op: "client task put", Stderr: string(stderr), Wrapped: err}
	}

	handle := strings.TrimSpace(string(stdout))
	set.SetStatusCode(handle)
	log.Infow("dispatched set to cluster", "set", set.SubmitID, "handle", handle)
	return nil
}

// Collect retrieves a dispatched set's results once the cluster has
// called back. Requires Dispatch to have recorded a status code.
func (a *PassiveAdapter) Collect(ctx context.Context, task *state.TaskSubmit, set *state.SetSubmit) error {
	pkg, err := task.Package()
	if err != nil {
		return &Error{Op: "collect", Wrapped: err}
	}
	handle, ok := set.StatusCode()
	if !ok {
		return &Error{Op: "collect", Wrapped: errNoStatusCode(set.SubmitID)}
	}

	resultDir := a.Paths.resultDir(pkg, set.SetName)
	if err := os.MkdirAll(resultDir, 0o755); err != nil {
		return &Error{Op: "collect", Wrapped: err}
	}

	prog, args := invocation(a.Paths.kolejkaClient(pkg))
	args = append(args, "--config-file", a.ClusterConf, "result", "get", handle, resultDir)
	_, stderr, err := a.Runner.Run(ctx, prog, args...)
	if err != nil {
		return &Error{Op: "client result get", Stderr: string(stderr), Wrapped: err}
	}

	result, err := parseResults(set.SetName, resultDir)
	if err != nil {
		return &Error{Op: "parse results", Wrapped: err}
	}
	set.SetResult(result)
	return nil
}
