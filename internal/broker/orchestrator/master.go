// Package orchestrator sequences the package, cluster, and front-end
// adapters across the broker's two entry points (spec.md §4.7, C7):
// handling a new submission and handling a cluster callback. It owns the
// fan-out/fan-in over a TaskSubmit's children and the trash path that
// guarantees no TaskSubmit is left in a non-terminal state.
//
// Grounded on original_source/app/broker/master.go's BrokerMaster
// equivalent (handle_submission / handle_cluster_callback) and on
// pkg/service/storage/ucan/space_content_retrieve.go's
// errgroup.WithContext fan-out pattern.
package orchestrator

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"

	"github.com/baca2/kolejka-broker/internal/audit"
	"github.com/baca2/kolejka-broker/internal/broker/cluster"
	"github.com/baca2/kolejka-broker/internal/broker/frontend"
	"github.com/baca2/kolejka-broker/internal/broker/pkgmanager"
	"github.com/baca2/kolejka-broker/internal/broker/registry"
	"github.com/baca2/kolejka-broker/internal/broker/state"
	"github.com/baca2/kolejka-broker/pkg/protocol"
)

var log = logging.Logger("broker/orchestrator")

// Master sequences a submission through the package, cluster, and
// front-end adapters.
type Master struct {
	Registry       *registry.Registry
	Cluster        cluster.Adapter
	Frontend       frontend.Messenger
	Packages       *pkgmanager.Manager
	Load           state.PackageLoader
	BuildNamespace string
	ActiveMode     bool

	// SharedSecretBroker signs outgoing BrokerToBaca/BrokerToBacaError
	// messages (spec.md §6 config key shared_secret_broker); the front
	// end recomputes the same hash to authenticate the broker.
	SharedSecretBroker string

	// Audit records submission transitions for the optional, non-
	// authoritative log (spec.md §6 "Persisted state"). A nil *audit.Log
	// is valid; every method on it is a no-op.
	Audit *audit.Log
}

// SubmissionRequest mirrors protocol.SubmissionRequest; kept distinct so
// the orchestrator's entry point signature does not depend on the wire
// DTO shape.
type SubmissionRequest = protocol.SubmissionRequest

// HandleSubmission is entry point 1 (spec.md §4.7). It registers,
// initialises, builds, and dispatches a new TaskSubmit, fully resolving
// it (finalise or trash) before returning in active mode, and leaving it
// awaiting cluster callbacks in passive mode.
func (m *Master) HandleSubmission(ctx context.Context, req SubmissionRequest) {
	task, err := m.Registry.NewTaskSubmit(req.SubmitID, req.PackagePath, req.CommitID, req.SubmitPath)
	if err != nil {
		log.Infow("ignoring submission with colliding id", "submit_id", req.SubmitID, "error", err)
		return
	}

	task.Lock()
	defer task.Unlock()

	m.Audit.Record(task.SubmitID, task.SolutionPath, task.PackagePath, "received")

	if err := task.Initialise(ctx, m.Load, m.Registry.NewSetSubmit); err != nil {
		m.trashLocked(ctx, task, fmt.Sprintf("initialise failed: %v", err))
		return
	}

	pkg, err := task.Package()
	if err != nil {
		m.trashLocked(ctx, task, fmt.Sprintf("package not available: %v", err))
		return
	}
	if err := m.Packages.EnsureBuilt(ctx, pkg, m.BuildNamespace); err != nil {
		m.trashLocked(ctx, task, fmt.Sprintf("build failed: %v", err))
		return
	}

	if err := task.ChangeState(state.TaskAwaitingSets, state.TaskInitial); err != nil {
		m.trashLocked(ctx, task, fmt.Sprintf("illegal state: %v", err))
		return
	}

	if err := m.dispatchAll(ctx, task); err != nil {
		m.trashLocked(ctx, task, fmt.Sprintf("dispatch failed: %v", err))
		return
	}

	if m.ActiveMode {
		if err := m.collectAll(ctx, task); err != nil {
			m.trashLocked(ctx, task, fmt.Sprintf("collect failed: %v", err))
			return
		}
		m.finaliseLocked(ctx, task)
	}
}

// dispatchAll fans the dispatch step out over every child in parallel
// (spec.md §4.7 step 6). A single failing child cancels its siblings;
// each child's own mutex serialises its state transitions.
func (m *Master) dispatchAll(ctx context.Context, task *state.TaskSubmit) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, set := range task.SetSubmits() {
		set := set
		g.Go(func() error {
			set.Lock()
			defer set.Unlock()
			if err := set.ChangeState(state.SetSendingToCluster, state.SetInitial); err != nil {
				return err
			}
			if err := m.Cluster.Dispatch(gctx, task, set); err != nil {
				return err
			}
			return set.ChangeState(state.SetAwaitingCluster, state.SetSendingToCluster)
		})
	}
	return g.Wait()
}

// collectAll is the active-mode immediate collect over every child
// (spec.md §4.7 step 7). Dispatch already recorded the result; this only
// advances state.
func (m *Master) collectAll(ctx context.Context, task *state.TaskSubmit) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, set := range task.SetSubmits() {
		set := set
		g.Go(func() error {
			set.Lock()
			defer set.Unlock()
			if err := set.ChangeState(state.SetWaitingForResults, state.SetAwaitingCluster); err != nil {
				return err
			}
			if err := m.Cluster.Collect(gctx, task, set); err != nil {
				return err
			}
			return set.ChangeState(state.SetDone, state.SetWaitingForResults)
		})
	}
	return g.Wait()
}

// HandleClusterCallback is entry point 2 (spec.md §4.7), passive mode
// only. A stray callback (unknown id) is logged and ignored, never
// trashed.
func (m *Master) HandleClusterCallback(ctx context.Context, setSubmitID string) {
	set, err := m.Registry.GetSetSubmit(setSubmitID)
	if err != nil {
		log.Infow("ignoring callback for unknown set submit", "id", setSubmitID)
		return
	}

	set.Lock()
	if err := set.ChangeState(state.SetWaitingForResults, state.SetAwaitingCluster); err != nil {
		set.Unlock()
		m.trashByTaskID(ctx, set.TaskSubmitID, fmt.Sprintf("illegal set state: %v", err))
		return
	}
	task, err := m.Registry.GetTaskSubmit(set.TaskSubmitID)
	if err != nil {
		set.Unlock()
		log.Errorw("set submit has no parent task submit", "set", setSubmitID, "task", set.TaskSubmitID)
		return
	}
	if err := m.Cluster.Collect(ctx, task, set); err != nil {
		set.Unlock()
		m.trashByTaskID(ctx, set.TaskSubmitID, fmt.Sprintf("collect failed: %v", err))
		return
	}
	if err := set.ChangeState(state.SetDone, state.SetWaitingForResults); err != nil {
		set.Unlock()
		m.trashByTaskID(ctx, set.TaskSubmitID, fmt.Sprintf("illegal set state: %v", err))
		return
	}
	set.Unlock()

	task.Lock()
	defer task.Unlock()
	if task.AllChecked() && task.State() == state.TaskAwaitingSets {
		m.finaliseLocked(ctx, task)
	}
}

// finaliseLocked implements Finalise (spec.md §4.7); the caller must
// already hold task's mutex.
func (m *Master) finaliseLocked(ctx context.Context, task *state.TaskSubmit) {
	if err := task.ChangeState(state.TaskDone, state.TaskAwaitingSets); err != nil {
		m.trashLocked(ctx, task, fmt.Sprintf("illegal state: %v", err))
		return
	}
	results, err := task.Results()
	if err != nil {
		m.trashLocked(ctx, task, fmt.Sprintf("gathering results: %v", err))
		return
	}
	msg := protocol.BrokerToBaca{
		PassHash: frontend.MakeHash(m.SharedSecretBroker, task.SubmitID),
		SubmitID: task.SubmitID,
		Results:  results,
	}
	if err := m.Frontend.SendSuccess(ctx, msg); err != nil {
		m.trashLocked(ctx, task, fmt.Sprintf("notifying front end: %v", err))
		return
	}
	if err := m.Registry.DeleteTaskSubmit(task); err != nil {
		log.Errorw("deleting finalised task submit", "id", task.SubmitID, "error", err)
	}
	m.Audit.Record(task.SubmitID, task.SolutionPath, task.PackagePath, "done")
}

// trashByTaskID looks task up and trashes it; used where the caller does
// not already hold a reference (e.g. after releasing a child's lock).
func (m *Master) trashByTaskID(ctx context.Context, taskSubmitID, message string) {
	task, err := m.Registry.GetTaskSubmit(taskSubmitID)
	if err != nil {
		log.Errorw("trashing unknown task submit", "id", taskSubmitID)
		return
	}
	task.Lock()
	defer task.Unlock()
	m.trashLocked(ctx, task, message)
}

// TrashSilently trashes task without notifying the front end, for the
// janitor's sweep (spec.md §4.8: "no error sent to front-end — the task
// is simply too old"). Implements janitor.Trasher.
func (m *Master) TrashSilently(ctx context.Context, task *state.TaskSubmit) {
	task.Lock()
	defer task.Unlock()
	_ = task.ChangeState(state.TaskError)
	task.ChangeSetStates(state.SetError)
	if err := m.Registry.DeleteTaskSubmit(task); err != nil {
		log.Infow("janitor trash: task submit already removed", "id", task.SubmitID)
	}
	log.Infow("janitor trashed stale task submit", "id", task.SubmitID)
	m.Audit.Record(task.SubmitID, task.SolutionPath, task.PackagePath, "error")
}

// trashLocked implements the trash path (spec.md §4.7); the caller must
// already hold task's mutex.
func (m *Master) trashLocked(ctx context.Context, task *state.TaskSubmit, message string) {
	_ = task.ChangeState(state.TaskError)
	task.ChangeSetStates(state.SetError)
	if err := m.Registry.DeleteTaskSubmit(task); err != nil {
		log.Infow("trash: task submit already removed", "id", task.SubmitID)
	}
	log.Errorw("trashed task submit", "id", task.SubmitID, "reason", message)
	m.Audit.Record(task.SubmitID, task.SolutionPath, task.PackagePath, "error")
	m.Frontend.SendError(ctx, protocol.BrokerToBacaError{
		PassHash:     frontend.MakeHash(m.SharedSecretBroker, task.SubmitID),
		SubmitID:     task.SubmitID,
		ErrorMessage: message,
	})
}
