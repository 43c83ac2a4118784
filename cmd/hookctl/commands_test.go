package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priya8975/hookrelay/internal/engine"
)

type fakeSweeper struct {
	res   engine.SweepResult
	err   error
	calls int
}

func (f *fakeSweeper) Sweep(context.Context) (engine.SweepResult, error) {
	f.calls++
	return f.res, f.err
}

type fakePruner struct {
	retention time.Duration
}

func (f *fakePruner) Prune(_ context.Context, retention time.Duration) (int64, error) {
	f.retention = retention
	return 4, nil
}

type fakeKeys struct{}

func (fakeKeys) Regenerate(context.Context) (string, error) { return "new-key", nil }

func fakeLoader(svc *services, closed *bool) loader {
	svc.close = func() { *closed = true }
	return func(context.Context) (*services, error) { return svc, nil }
}

func TestProcess_RunsOneSweep(t *testing.T) {
	sw := &fakeSweeper{res: engine.SweepResult{Scanned: 3, Dispatched: 2, Delivered: 1}}
	var closed bool
	var out bytes.Buffer

	root := newRootCommand(fakeLoader(&services{sweeper: sw}, &closed), &out)
	require.NoError(t, root.Execute(context.Background(), []string{"process"}))

	assert.Equal(t, 1, sw.calls)
	assert.True(t, closed)
	assert.Contains(t, out.String(), "Scanned 3, dispatched 2, delivered 1")
}

func TestProcess_ReportsLeaseHeld(t *testing.T) {
	sw := &fakeSweeper{res: engine.SweepResult{LeaseHeld: true}}
	var closed bool
	var out bytes.Buffer

	root := newRootCommand(fakeLoader(&services{sweeper: sw}, &closed), &out)
	require.NoError(t, root.Execute(context.Background(), []string{"process"}))
	assert.Contains(t, out.String(), "Another sweep is running")
}

func TestProcess_PropagatesSweepError(t *testing.T) {
	sw := &fakeSweeper{err: errors.New("db down")}
	var closed bool

	root := newRootCommand(fakeLoader(&services{sweeper: sw}, &closed), &bytes.Buffer{})
	err := root.Execute(context.Background(), []string{"process"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.True(t, closed)
}

func TestCleanLogs_Retention(t *testing.T) {
	pr := &fakePruner{}
	var closed bool
	var out bytes.Buffer
	root := newRootCommand(fakeLoader(&services{pruner: pr, retention: 30 * 24 * time.Hour}, &closed), &out)

	require.NoError(t, root.Execute(context.Background(), []string{"clean-logs"}))
	assert.Equal(t, 30*24*time.Hour, pr.retention)
	assert.Contains(t, out.String(), "Deleted 4")

	require.NoError(t, root.Execute(context.Background(), []string{"clean-logs", "-days", "7"}))
	assert.Equal(t, 7*24*time.Hour, pr.retention)

	assert.Error(t, root.Execute(context.Background(), []string{"clean-logs", "-days", "-1"}))
}

func TestRegenerateKey(t *testing.T) {
	var closed bool
	var out bytes.Buffer
	root := newRootCommand(fakeLoader(&services{keys: fakeKeys{}}, &closed), &out)

	require.NoError(t, root.Execute(context.Background(), []string{"regenerate-key"}))
	assert.Contains(t, out.String(), "New API key: new-key")
}

func TestExecute_UsageAndUnknown(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand(func(context.Context) (*services, error) {
		t.Fatal("usage must not load services")
		return nil, nil
	}, &out)

	require.NoError(t, root.Execute(context.Background(), nil))
	assert.Contains(t, out.String(), "clean-logs")
	assert.Contains(t, out.String(), "regenerate-key")

	err := root.Execute(context.Background(), []string{"explode"})
	assert.EqualError(t, err, "unknown command: explode")
}
