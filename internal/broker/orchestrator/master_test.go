package orchestrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/baca2/kolejka-broker/internal/broker/builder"
	"github.com/baca2/kolejka-broker/internal/broker/orchestrator"
	"github.com/baca2/kolejka-broker/internal/broker/pkgmanager"
	"github.com/baca2/kolejka-broker/internal/broker/registry"
	"github.com/baca2/kolejka-broker/internal/broker/state"
	"github.com/baca2/kolejka-broker/pkg/kolejkapackage"
	"github.com/baca2/kolejka-broker/pkg/protocol"
)

type fakeCluster struct {
	mu        sync.Mutex
	failOn    string
	dispatched []string
}

func (f *fakeCluster) Dispatch(ctx context.Context, task *state.TaskSubmit, set *state.SetSubmit) error {
	f.mu.Lock()
	f.dispatched = append(f.dispatched, set.SetName)
	f.mu.Unlock()
	if f.failOn == set.SetName {
		return errors.New("dispatch failed")
	}
	set.SetResult(protocol.SetResult{Name: set.SetName})
	return nil
}

func (f *fakeCluster) Collect(ctx context.Context, task *state.TaskSubmit, set *state.SetSubmit) error {
	return nil
}

type fakeFrontend struct {
	mu       sync.Mutex
	success  []protocol.BrokerToBaca
	failures []protocol.BrokerToBacaError
}

func (f *fakeFrontend) SendSuccess(ctx context.Context, msg protocol.BrokerToBaca) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.success = append(f.success, msg)
	return nil
}

func (f *fakeFrontend) SendError(ctx context.Context, msg protocol.BrokerToBacaError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, msg)
}

func setupPackage(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.yaml"), []byte(`
name: test-pkg
cpus: 1
sets:
  - name: set1
    tests: []
  - name: set2
    tests: []
`), 0o644))
	return dir
}

func newMaster(t *testing.T, activeMode bool, cluster *fakeCluster, fe *fakeFrontend) (*orchestrator.Master, string) {
	t.Helper()
	dir := setupPackage(t)
	m := &orchestrator.Master{
		Registry:           registry.New(),
		Cluster:            cluster,
		Frontend:           fe,
		Packages:           pkgmanager.New(false, builder.Config{Limits: builder.Limits{Image: "img"}}, nil),
		Load:               kolejkapackage.Load,
		BuildNamespace:     "ns",
		ActiveMode:         activeMode,
		SharedSecretBroker: "broker-secret",
	}
	return m, dir
}

func TestHandleSubmissionActiveModeHappyPath(t *testing.T) {
	cluster := &fakeCluster{}
	fe := &fakeFrontend{}
	m, dir := newMaster(t, true, cluster, fe)

	m.HandleSubmission(context.Background(), protocol.SubmissionRequest{
		SubmitID:    "sub-1",
		PackagePath: dir,
		CommitID:    "main",
		SubmitPath:  "/submit",
	})

	fe.mu.Lock()
	defer fe.mu.Unlock()
	require.Len(t, fe.success, 1)
	require.Empty(t, fe.failures)
	require.Contains(t, fe.success[0].Results, "set1")
	require.Contains(t, fe.success[0].Results, "set2")

	_, err := m.Registry.GetTaskSubmit("sub-1")
	require.Error(t, err)
}

func TestHandleSubmissionTrashesOnDispatchFailure(t *testing.T) {
	cluster := &fakeCluster{failOn: "set1"}
	fe := &fakeFrontend{}
	m, dir := newMaster(t, true, cluster, fe)

	m.HandleSubmission(context.Background(), protocol.SubmissionRequest{
		SubmitID:    "sub-1",
		PackagePath: dir,
		CommitID:    "main",
		SubmitPath:  "/submit",
	})

	fe.mu.Lock()
	defer fe.mu.Unlock()
	require.Empty(t, fe.success)
	require.Len(t, fe.failures, 1)
	require.Equal(t, "sub-1", fe.failures[0].SubmitID)

	_, err := m.Registry.GetTaskSubmit("sub-1")
	require.Error(t, err)
}

func TestHandleSubmissionIgnoresCollidingSubmitID(t *testing.T) {
	cluster := &fakeCluster{}
	fe := &fakeFrontend{}
	m, dir := newMaster(t, false, cluster, fe)

	req := protocol.SubmissionRequest{SubmitID: "sub-1", PackagePath: dir, CommitID: "main", SubmitPath: "/submit"}
	m.HandleSubmission(context.Background(), req)
	// in passive mode the first task is still registered awaiting callbacks,
	// so the second submission collides with it and is ignored.
	m.HandleSubmission(context.Background(), req)

	m.HandleClusterCallback(context.Background(), state.MakeSetSubmitID("sub-1", "set1"))
	m.HandleClusterCallback(context.Background(), state.MakeSetSubmitID("sub-1", "set2"))

	cluster.mu.Lock()
	require.Len(t, cluster.dispatched, 2)
	cluster.mu.Unlock()

	fe.mu.Lock()
	defer fe.mu.Unlock()
	require.Len(t, fe.success, 1)
	require.Empty(t, fe.failures)
}

func TestHandleClusterCallbackPassiveModeFinalisesOnLastSet(t *testing.T) {
	cluster := &fakeCluster{}
	fe := &fakeFrontend{}
	m, dir := newMaster(t, false, cluster, fe)

	m.HandleSubmission(context.Background(), protocol.SubmissionRequest{
		SubmitID:    "sub-1",
		PackagePath: dir,
		CommitID:    "main",
		SubmitPath:  "/submit",
	})

	// dispatch already ran synchronously inside HandleSubmission in passive
	// mode too; the results were recorded by the fake cluster's Dispatch.
	m.HandleClusterCallback(context.Background(), state.MakeSetSubmitID("sub-1", "set1"))
	m.HandleClusterCallback(context.Background(), state.MakeSetSubmitID("sub-1", "set2"))

	fe.mu.Lock()
	defer fe.mu.Unlock()
	require.Len(t, fe.success, 1)

	_, err := m.Registry.GetTaskSubmit("sub-1")
	require.Error(t, err)
}

func TestHandleClusterCallbackIgnoresUnknownID(t *testing.T) {
	cluster := &fakeCluster{}
	fe := &fakeFrontend{}
	m, _ := newMaster(t, false, cluster, fe)

	require.NotPanics(t, func() {
		m.HandleClusterCallback(context.Background(), "unknown-id")
	})
	fe.mu.Lock()
	defer fe.mu.Unlock()
	require.Empty(t, fe.success)
	require.Empty(t, fe.failures)
}

func TestTrashSilentlyRemovesTaskWithoutNotifyingFrontend(t *testing.T) {
	cluster := &fakeCluster{}
	fe := &fakeFrontend{}
	m, dir := newMaster(t, false, cluster, fe)

	task, err := m.Registry.NewTaskSubmit("sub-1", dir, "main", "/submit")
	require.NoError(t, err)

	m.TrashSilently(context.Background(), task)

	fe.mu.Lock()
	defer fe.mu.Unlock()
	require.Empty(t, fe.success)
	require.Empty(t, fe.failures)

	_, err = m.Registry.GetTaskSubmit("sub-1")
	require.Error(t, err)
}
