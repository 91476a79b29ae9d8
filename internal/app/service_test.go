package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stamp-next/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	name     string
	startErr error
	block    bool
	stopped  atomic.Bool
	release  chan struct{}
}

func newFakeService(name string, block bool, startErr error) *fakeService {
	return &fakeService{name: name, block: block, startErr: startErr, release: make(chan struct{})}
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(ctx context.Context) error {
	if !s.block {
		return s.startErr
	}
	<-s.release
	return nil
}

func (s *fakeService) Stop(context.Context) error {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.release)
	}
	return nil
}

func TestRunnerStopsAllServicesOnCancel(t *testing.T) {
	api := newFakeService("http", true, nil)
	worker := newFakeService("worker", true, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewRunner(api, worker).Run(ctx, time.Second, nil) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.True(t, api.stopped.Load())
	assert.True(t, worker.stopped.Load())
}

func TestRunnerPropagatesServiceFailure(t *testing.T) {
	api := newFakeService("http", true, nil)
	boom := errors.New("listen failed")
	broken := newFakeService("worker", false, boom)

	err := NewRunner(api, broken).Run(context.Background(), time.Second, nil)
	assert.ErrorIs(t, err, boom)
	assert.True(t, api.stopped.Load())
}

func TestRunnerTreatsEarlyExitAsFailure(t *testing.T) {
	quitter := newFakeService("worker", false, nil)
	err := NewRunner(quitter).Run(context.Background(), time.Second, nil)
	assert.ErrorIs(t, err, errServiceExited)
}

func TestBuildRunnerValidatesInput(t *testing.T) {
	_, err := BuildRunner(nil, ModeAll)
	assert.Error(t, err)

	err = NewRunner().Run(context.Background(), time.Second, nil)
	assert.Error(t, err)
}

func TestNormalizeOptionsUsesConfiguredShutdownTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Server.ShutdownTimeoutSeconds = 3
	opts := normalizeOptions(Options{Config: cfg, Mode: " API "})
	assert.Equal(t, 3*time.Second, opts.ShutdownTimeout)
	assert.Equal(t, ModeAPI, opts.Mode)
	assert.NotNil(t, opts.Logger)

	opts = normalizeOptions(Options{})
	assert.Equal(t, 10*time.Second, opts.ShutdownTimeout)
	assert.Equal(t, ModeAll, opts.Mode)
}

func TestNewHTTPServiceAppliesTimeouts(t *testing.T) {
	svc := NewHTTPService(config.ServerConfig{Host: "127.0.0.1", Port: "0", ReadTimeoutSeconds: 7}, nil)
	assert.Equal(t, "127.0.0.1:0", svc.server.Addr)
	assert.Equal(t, 7*time.Second, svc.server.ReadTimeout)
	assert.Equal(t, 15*time.Second, svc.server.WriteTimeout)
	require.NoError(t, svc.Stop(context.Background()))
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, mode)

	mode, err = ParseMode(" Worker ")
	require.NoError(t, err)
	assert.Equal(t, ModeWorker, mode)

	_, err = ParseMode("cron")
	assert.Error(t, err)

	_, err = BuildRunner(config.Default(), "cron")
	assert.Error(t, err)
}
