// Package registry implements the process-wide live set of TaskSubmits
// and SetSubmits (spec.md §4.2, "DataMaster"). Operations are O(1) map
// lookups guarded by a single internal mutex; the registry never blocks
// on external I/O.
package registry

import (
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/baca2/kolejka-broker/internal/broker/state"
)

var log = logging.Logger("broker/registry")

// Error is returned on id collision or lookup miss (spec.md §7
// RegistryError). It is surfaced to the caller and never by itself
// triggers a trash.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func newError(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Registry owns every live TaskSubmit and SetSubmit. Lock order (spec.md
// §5): registry -> TaskSubmit -> SetSubmit, never the reverse; no
// registry method here ever blocks on an entity's own lock for more than
// a map operation.
type Registry struct {
	mu          sync.Mutex
	taskSubmits map[string]*state.TaskSubmit
	setSubmits  map[string]*state.SetSubmit
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		taskSubmits: make(map[string]*state.TaskSubmit),
		setSubmits:  make(map[string]*state.SetSubmit),
	}
}

// NewTaskSubmit materialises a TaskSubmit in TaskInitial and registers it.
// Fails with Error on id collision (spec.md §4.2, R1/scenario 5).
func (r *Registry) NewTaskSubmit(submitID, packagePath, commitID, solutionPath string) (*state.TaskSubmit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.taskSubmits[submitID]; exists {
		return nil, newError("task submit %q already exists", submitID)
	}
	ts := state.NewTaskSubmit(submitID, packagePath, commitID, solutionPath, time.Now())
	r.taskSubmits[submitID] = ts
	return ts, nil
}

// NewSetSubmit registers a child SetSubmit for task. Invoked only from
// TaskSubmit.Initialise via the state.SetCreator callback. Fails on
// derived-id collision (spec.md §4.2, R4).
func (r *Registry) NewSetSubmit(taskSubmitID, setName string) (*state.SetSubmit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	setSubmitID := state.MakeSetSubmitID(taskSubmitID, setName)
	if _, exists := r.setSubmits[setSubmitID]; exists {
		return nil, newError("set submit %q already exists", setSubmitID)
	}
	ss := state.NewSetSubmit(taskSubmitID, setName, setSubmitID, time.Now())
	r.setSubmits[setSubmitID] = ss
	return ss, nil
}

// GetTaskSubmit looks up a TaskSubmit by id. Fails with Error when absent.
func (r *Registry) GetTaskSubmit(submitID string) (*state.TaskSubmit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.taskSubmits[submitID]
	if !ok {
		return nil, newError("task submit %q does not exist", submitID)
	}
	return ts, nil
}

// GetSetSubmit looks up a SetSubmit by id. Fails with Error when absent.
func (r *Registry) GetSetSubmit(setSubmitID string) (*state.SetSubmit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ss, ok := r.setSubmits[setSubmitID]
	if !ok {
		return nil, newError("set submit %q does not exist", setSubmitID)
	}
	return ss, nil
}

// DeleteTaskSubmit removes task and every one of its children. Fails with
// Error if task is already absent (R2); the orchestrator's trash path
// logs this error and carries on.
func (r *Registry) DeleteTaskSubmit(task *state.TaskSubmit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.taskSubmits[task.SubmitID]; !exists {
		return newError("task submit %q does not exist", task.SubmitID)
	}
	for _, s := range task.SetSubmits() {
		delete(r.setSubmits, s.SubmitID)
	}
	delete(r.taskSubmits, task.SubmitID)
	log.Infow("deleted task submit", "id", task.SubmitID)
	return nil
}

// SnapshotTaskSubmits returns a point-in-time copy of every live
// TaskSubmit pointer (not a deep copy of their fields) for use by the
// janitor, which must not hold the registry mutex while trashing (spec.md
// §4.8).
func (r *Registry) SnapshotTaskSubmits() []*state.TaskSubmit {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*state.TaskSubmit, 0, len(r.taskSubmits))
	for _, ts := range r.taskSubmits {
		out = append(out, ts)
	}
	return out
}
