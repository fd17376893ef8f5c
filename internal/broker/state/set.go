package state

import (
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/baca2/kolejka-broker/pkg/protocol"
)

var log = logging.Logger("broker/state")

// SetSubmit is one independent unit of work for a TaskSubmit, corresponding
// to one test set of the package (spec.md §3).
//
// SetSubmit owns its own mutex; callers must hold it across a
// check-then-act sequence (spec.md §4.1, §5).
type SetSubmit struct {
	mu sync.Mutex

	// SetName is unique within the parent TaskSubmit.
	SetName string
	// SubmitID is derived, stable, and injective: f(task_submit_id, set_name).
	SubmitID string
	// TaskSubmitID is a non-owning back-reference to the parent, used only
	// to recompute identity and to look the parent back up through the
	// registry (spec.md §9 "Parent -> child back-reference").
	TaskSubmitID string

	CreationDate time.Time
	ModDate      time.Time

	state SetState

	statusCode *string
	result     *protocol.SetResult
}

// NewSetSubmit constructs a SetSubmit in SetInitial. now is injected so
// callers (tests, the registry) control the clock.
func NewSetSubmit(taskSubmitID, setName, submitID string, now time.Time) *SetSubmit {
	return &SetSubmit{
		SetName:      setName,
		SubmitID:     submitID,
		TaskSubmitID: taskSubmitID,
		CreationDate: now,
		ModDate:      now,
		state:        SetInitial,
	}
}

// Lock/Unlock expose the entity mutex directly; orchestrator code takes it
// for the duration of a dispatch/collect step (spec.md §5).
func (s *SetSubmit) Lock()   { s.mu.Lock() }
func (s *SetSubmit) Unlock() { s.mu.Unlock() }

// State returns the current state. Caller should hold the lock for a
// consistent read relative to a following mutation.
func (s *SetSubmit) State() SetState { return s.state }

// ChangeState performs a guarded transition. requiredStates is nil for an
// unguarded transition (only ever used on the trash path). The caller must
// already hold s's mutex.
func (s *SetSubmit) ChangeState(newState SetState, requiredStates ...SetState) error {
	if len(requiredStates) > 0 {
		ok := false
		for _, r := range requiredStates {
			if s.state == r {
				ok = true
				break
			}
		}
		if !ok {
			err := &StateError{
				Kind:     "set_submit",
				ID:       s.SubmitID,
				Current:  s.state,
				Target:   newState,
				Required: fmt.Sprint(requiredStates),
			}
			log.Errorw("illegal set_submit transition", "id", s.SubmitID, "error", err)
			return err
		}
	}
	log.Infow("state of set_submit", "id", s.SubmitID, "from", s.state.String(), "to", newState.String())
	s.ModDate = time.Now()
	s.state = newState
	return nil
}

// SetStatusCode records the cluster-returned dispatch handle. Must be
// called before leaving SetSendingToCluster (spec.md §3 invariant).
func (s *SetSubmit) SetStatusCode(code string) { s.statusCode = &code }

// StatusCode returns the recorded dispatch handle, or ok=false if unset.
func (s *SetSubmit) StatusCode() (string, bool) {
	if s.statusCode == nil {
		return "", false
	}
	return *s.statusCode, true
}

// SetResult records the per-set verdict. Must be called before entering
// SetDone (spec.md §3 invariant, I1).
func (s *SetSubmit) SetResult(result protocol.SetResult) { s.result = &result }

// Result returns the recorded verdict, or ok=false if unset.
func (s *SetSubmit) Result() (protocol.SetResult, bool) {
	if s.result == nil {
		return protocol.SetResult{}, false
	}
	return *s.result, true
}
