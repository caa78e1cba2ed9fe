package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

type recorder struct {
	mu sync.Mutex
	ts []Transition
}

func (r *recorder) record(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ts = append(r.ts, t)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, t := range r.ts {
		out = append(out, t.To)
	}
	return out
}

func newMonitor(t *testing.T) (*Monitor, *clocktesting.FakeClock, *recorder) {
	t.Helper()
	clk := clocktesting.NewFakeClock(time.Unix(1700000000, 0))
	rec := &recorder{}
	m := NewMonitor([]fleet.Identity{{Manufacturer: "SEER", SerialNumber: "AGV-1", Address: "10.0.0.1"}}, Options{
		CheckInterval: 10 * time.Second,
		Timeout:       30 * time.Second,
		Clock:         clk,
		Logger:        log.NewNopLogger(),
		OnTransition:  rec.record,
	})
	return m, clk, rec
}

func TestMonitorTimeoutOnce(t *testing.T) {
	m, clk, rec := newMonitor(t)
	state, ok := m.State("AGV-1")
	require.True(t, ok)
	assert.Equal(t, StateUnknown, state)

	m.Activity("AGV-1")
	assert.Equal(t, []State{StateOnline}, rec.states())

	for i := 0; i < 6; i++ {
		clk.Step(10 * time.Second)
		m.Check()
	}
	assert.Equal(t, []State{StateOnline, StateOffline}, rec.states())

	r, _ := m.Record("AGV-1")
	assert.Equal(t, StateOffline, r.State)
	assert.Equal(t, 5, r.MissedHeartbeats)

	m.Activity("AGV-1")
	assert.Equal(t, []State{StateOnline, StateOffline, StateOnline}, rec.states())
	r, _ = m.Record("AGV-1")
	assert.Zero(t, r.MissedHeartbeats)
}

func TestMonitorActivityKeepsOnline(t *testing.T) {
	m, clk, rec := newMonitor(t)
	m.Activity("AGV-1")
	for i := 0; i < 10; i++ {
		clk.Step(10 * time.Second)
		m.Activity("AGV-1")
		m.Check()
	}
	assert.Equal(t, []State{StateOnline}, rec.states())
}

func TestMonitorBrokenOnlyLeftByConnect(t *testing.T) {
	m, clk, rec := newMonitor(t)
	m.Connected("AGV-1")
	m.Broken("AGV-1", errors.New("connection reset by peer"))

	m.Activity("AGV-1")
	for i := 0; i < 5; i++ {
		clk.Step(10 * time.Second)
		m.Check()
	}
	state, _ := m.State("AGV-1")
	assert.Equal(t, StateConnectionBroken, state)

	m.Connected("AGV-1")
	assert.Equal(t, []State{StateOnline, StateConnectionBroken, StateOnline}, rec.states())
	assert.EqualError(t, rec.ts[1].Cause, "connection reset by peer")
}

func TestMonitorReset(t *testing.T) {
	m, _, rec := newMonitor(t)
	m.Reset("AGV-1")
	assert.Empty(t, rec.states(), "reset from UNKNOWN is not a transition")

	m.Activity("AGV-1")
	m.Reset("AGV-1")
	assert.Equal(t, []State{StateOnline, StateUnknown}, rec.states())
	assert.Equal(t, vda5050.ConnectionOffline, StateUnknown.Published())
	assert.Equal(t, vda5050.ConnectionConnectionBroken, StateConnectionBroken.Published())
}

func TestMonitorUnknownVehicle(t *testing.T) {
	m, _, rec := newMonitor(t)
	m.Activity("AGV-9")
	assert.Empty(t, rec.states())
	_, ok := m.State("AGV-9")
	assert.False(t, ok)
	assert.Len(t, m.Snapshot(), 1)
}

func TestMonitorSnapshotSorted(t *testing.T) {
	m := NewMonitor([]fleet.Identity{
		{Manufacturer: "SEER", SerialNumber: "AGV-3"},
		{Manufacturer: "SEER", SerialNumber: "AGV-1"},
		{Manufacturer: "SEER", SerialNumber: "AGV-2"},
	}, Options{Logger: log.NewNopLogger()})
	m.Activity("AGV-2")

	snap := m.Snapshot()
	require.Len(t, snap, 3)
	var serials []string
	for _, r := range snap {
		serials = append(serials, r.Vehicle.SerialNumber)
	}
	assert.Equal(t, []string{"AGV-1", "AGV-2", "AGV-3"}, serials)
	assert.Equal(t, StateOnline, snap[1].State)
}

func TestMonitorRun(t *testing.T) {
	m, clk, rec := newMonitor(t)
	m.Activity("AGV-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		clk.Step(10 * time.Second)
		return len(rec.states()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
