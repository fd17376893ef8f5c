package janitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/baca2/kolejka-broker/internal/broker/janitor"
	"github.com/baca2/kolejka-broker/internal/broker/registry"
	"github.com/baca2/kolejka-broker/internal/broker/state"
)

type fakeTrasher struct {
	mu     sync.Mutex
	trashed []string
}

func (f *fakeTrasher) TrashSilently(ctx context.Context, task *state.TaskSubmit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trashed = append(f.trashed, task.SubmitID)
}

func (f *fakeTrasher) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trashed))
	copy(out, f.trashed)
	return out
}

func TestJanitorTrashesOnlyTasksOlderThanTimeout(t *testing.T) {
	r := registry.New()
	stale, err := r.NewTaskSubmit("stale", "/pkg", "main", "/submit")
	require.NoError(t, err)
	fresh, err := r.NewTaskSubmit("fresh", "/pkg", "main", "/submit")
	require.NoError(t, err)

	stale.Lock()
	stale.ModDate = time.Now().Add(-time.Hour)
	stale.Unlock()

	fresh.Lock()
	fresh.ModDate = time.Now()
	fresh.Unlock()

	trasher := &fakeTrasher{}
	j := &janitor.Janitor{
		Registry: r,
		Trasher:  trasher,
		Interval: 10 * time.Millisecond,
		Timeout:  time.Minute,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	j.Run(ctx)

	require.Contains(t, trasher.names(), "stale")
	require.NotContains(t, trasher.names(), "fresh")
}
