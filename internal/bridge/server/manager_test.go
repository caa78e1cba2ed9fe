package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcServer func(ctx context.Context) error

func (f funcServer) Start(ctx context.Context) error { return f(ctx) }

func blocking(stopped chan<- struct{}) funcServer {
	return func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	}
}

func TestManagerStopsOnCancel(t *testing.T) {
	a, b := make(chan struct{}), make(chan struct{})
	m := NewManager(blocking(a), blocking(b))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("manager did not stop")
	}
	<-a
	<-b
}

func TestManagerFailureCancelsSiblings(t *testing.T) {
	stopped := make(chan struct{})
	boom := errors.New("listen failed")
	m := NewManager(
		blocking(stopped),
		funcServer(func(context.Context) error { return boom }),
	)

	err := m.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	<-stopped
}
