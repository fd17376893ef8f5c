// Package janitor implements the periodic sweep that reclaims stuck
// TaskSubmits (spec.md §4.8, C8): a single long-lived loop that, every
// interval, trashes any TaskSubmit whose age exceeds a timeout. Trashing
// here is silent — no front-end notification, the task is simply too
// old.
//
// Grounded on original_source/app/broker/janitor.py and on
// pkg/pdp/tasks/watcher_eth.go's ticker-driven sweep loop.
package janitor

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/baca2/kolejka-broker/internal/broker/registry"
	"github.com/baca2/kolejka-broker/internal/broker/state"
)

var log = logging.Logger("broker/janitor")

// Trasher trashes a single task, matching
// orchestrator.Master.trashByTaskID's behavior but invoked without a
// front-end notification (the janitor's sweep is silent).
type Trasher interface {
	TrashSilently(ctx context.Context, task *state.TaskSubmit)
}

// Janitor periodically sweeps the registry for stale TaskSubmits.
type Janitor struct {
	Registry *registry.Registry
	Trasher  Trasher
	Interval time.Duration
	Timeout  time.Duration
}

// Run loops until ctx is cancelled, sweeping every j.Interval.
// Cancellation is cooperative: a sweep already in progress finishes
// before Run returns (spec.md §4.8).
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// sweep snapshots the candidate list first and trashes outside the
// registry mutex (spec.md §4.8 ordering caveat: the janitor must not
// hold the registry mutex while invoking trash, which re-enters the
// registry).
func (j *Janitor) sweep(ctx context.Context) {
	now := time.Now()
	candidates := j.Registry.SnapshotTaskSubmits()
	for _, task := range candidates {
		task.Lock()
		age := now.Sub(task.ModDate)
		stale := age > j.Timeout
		task.Unlock()
		if !stale {
			continue
		}
		log.Infow("janitor trashing stale task submit", "id", task.SubmitID, "age", age)
		j.Trasher.TrashSilently(ctx, task)
	}
}
