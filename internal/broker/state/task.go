package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/baca2/kolejka-broker/pkg/kolejkapackage"
	"github.com/baca2/kolejka-broker/pkg/protocol"
)

// PackageLoader loads a package at a given revision. Initialise calls it
// synchronously, on the caller's goroutine and under the TaskSubmit's
// mutex; it performs filesystem I/O.
type PackageLoader func(ctx context.Context, packagePath, commitID string) (*kolejkapackage.Package, error)

// SetCreator registers a new SetSubmit with the registry on behalf of a
// TaskSubmit being initialised. Kept as an injected function rather than
// an interface import to avoid a state<->registry import cycle (registry
// already depends on state for the entity types).
type SetCreator func(taskSubmitID, setName string) (*SetSubmit, error)

// TaskSubmit is the broker's in-memory record of one front-end submission
// (spec.md §3). It owns an ordered collection of child SetSubmits, created
// once by Initialise.
type TaskSubmit struct {
	mu sync.Mutex

	SubmitID     string
	PackagePath  string
	CommitID     string
	SolutionPath string

	CreationDate time.Time
	ModDate      time.Time

	state TaskState

	pkg  *kolejkapackage.Package
	sets []*SetSubmit // nil until Initialise succeeds
}

// NewTaskSubmit constructs a TaskSubmit in TaskInitial.
func NewTaskSubmit(submitID, packagePath, commitID, solutionPath string, now time.Time) *TaskSubmit {
	return &TaskSubmit{
		SubmitID:     submitID,
		PackagePath:  packagePath,
		CommitID:     commitID,
		SolutionPath: solutionPath,
		CreationDate: now,
		ModDate:      now,
		state:        TaskInitial,
	}
}

func (t *TaskSubmit) Lock()   { t.mu.Lock() }
func (t *TaskSubmit) Unlock() { t.mu.Unlock() }

func (t *TaskSubmit) State() TaskState { return t.state }

// MakeSetSubmitID derives the stable, injective child id (spec.md §3, R4).
func MakeSetSubmitID(taskSubmitID, setName string) string {
	return fmt.Sprintf("%s_%s", taskSubmitID, setName)
}

// ChangeState performs a guarded transition; the caller must already hold
// t's mutex (spec.md §4.1).
func (t *TaskSubmit) ChangeState(newState TaskState, requiredStates ...TaskState) error {
	if len(requiredStates) > 0 {
		ok := false
		for _, r := range requiredStates {
			if t.state == r {
				ok = true
				break
			}
		}
		if !ok {
			err := &StateError{
				Kind:     "task_submit",
				ID:       t.SubmitID,
				Current:  t.state,
				Target:   newState,
				Required: fmt.Sprint(requiredStates),
			}
			log.Errorw("illegal task_submit transition", "id", t.SubmitID, "error", err)
			return err
		}
	}
	log.Infow("state of task_submit", "id", t.SubmitID, "from", t.state.String(), "to", newState.String())
	t.ModDate = time.Now()
	t.state = newState
	return nil
}

// ChangeSetStates iterates every child and forces the given transition,
// unguarded (requiredStates empty). Used only on the trash path (spec.md
// §4.1, §4.7).
func (t *TaskSubmit) ChangeSetStates(newState SetState, requiredStates ...SetState) {
	for _, s := range t.sets {
		s.Lock()
		_ = s.ChangeState(newState, requiredStates...)
		s.Unlock()
	}
}

// Initialise loads the package and creates one SetSubmit per test set.
// Single-shot: a second call fails (spec.md §3 invariant). The caller must
// already hold t's mutex (mirrors original_source's `async with self.lock`).
func (t *TaskSubmit) Initialise(ctx context.Context, load PackageLoader, newSet SetCreator) error {
	if t.sets != nil {
		return fmt.Errorf("task submit %q already initialised", t.SubmitID)
	}
	pkg, err := load(ctx, t.PackagePath, t.CommitID)
	if err != nil {
		return fmt.Errorf("loading package for %q: %w", t.SubmitID, err)
	}
	testSets := pkg.Sets()
	if len(testSets) == 0 {
		return fmt.Errorf("package %q has no test sets", t.PackagePath)
	}
	sets := make([]*SetSubmit, 0, len(testSets))
	for _, ts := range testSets {
		s, err := newSet(t.SubmitID, ts.Name)
		if err != nil {
			return fmt.Errorf("creating set submit %q/%q: %w", t.SubmitID, ts.Name, err)
		}
		sets = append(sets, s)
	}
	t.pkg = pkg
	t.sets = sets
	return nil
}

// Package returns the loaded package. Panics semantics are avoided in
// favor of an error, unlike the Python ValueError-on-access original.
func (t *TaskSubmit) Package() (*kolejkapackage.Package, error) {
	if t.pkg == nil {
		return nil, fmt.Errorf("package not loaded for %q", t.SubmitID)
	}
	return t.pkg, nil
}

// SetSubmits returns a defensive copy of the child slice.
func (t *TaskSubmit) SetSubmits() []*SetSubmit {
	out := make([]*SetSubmit, len(t.sets))
	copy(out, t.sets)
	return out
}

// AllChecked reports whether every child has reached SetDone (spec.md §3,
// I2).
func (t *TaskSubmit) AllChecked() bool {
	if t.sets == nil {
		return false
	}
	for _, s := range t.sets {
		s.Lock()
		done := s.State() == SetDone
		s.Unlock()
		if !done {
			return false
		}
	}
	return true
}

// Results gathers the per-set results, keyed by set name (spec.md I5).
// Only valid once AllChecked is true.
func (t *TaskSubmit) Results() (map[string]protocol.SetResult, error) {
	if !t.AllChecked() {
		return nil, fmt.Errorf("not all sets checked for %q", t.SubmitID)
	}
	out := make(map[string]protocol.SetResult, len(t.sets))
	for _, s := range t.sets {
		s.Lock()
		res, ok := s.Result()
		s.Unlock()
		if !ok {
			return nil, fmt.Errorf("set %q has no result", s.SubmitID)
		}
		out[s.SetName] = res
	}
	return out, nil
}
