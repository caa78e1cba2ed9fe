// Package health tracks per-vehicle connection state.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

// State is the connection state of one vehicle.
type State string

const (
	StateUnknown          State = "UNKNOWN"
	StateOnline           State = "ONLINE"
	StateOffline          State = "OFFLINE"
	StateConnectionBroken State = "CONNECTIONBROKEN"
)

// Published maps the state to the VDA5050 connection state. UNKNOWN is
// reported as OFFLINE.
func (s State) Published() vda5050.ConnectionState {
	switch s {
	case StateOnline:
		return vda5050.ConnectionOnline
	case StateConnectionBroken:
		return vda5050.ConnectionConnectionBroken
	}
	return vda5050.ConnectionOffline
}

// Record is the connection record of one vehicle. Records are never
// removed.
type Record struct {
	Vehicle          fleet.Identity `json:"vehicle"`
	State            State          `json:"state"`
	LastActivity     time.Time      `json:"lastActivity"`
	MissedHeartbeats int            `json:"missedHeartbeats"`
	Since            time.Time      `json:"since"`
}

// Transition is emitted once per state change.
type Transition struct {
	Vehicle fleet.Identity
	From    State
	To      State
	At      time.Time
	Cause   error
}

type Options struct {
	CheckInterval time.Duration
	Timeout       time.Duration
	Clock         clock.WithTicker
	Logger        log.Logger
	OnTransition  func(Transition)
}

type entry struct {
	record Record
	fsm    *FiniteStateMachine
	active bool
}

// Monitor owns the connection records. Transitions are delivered to
// OnTransition outside the monitor lock, in the order they happened.
type Monitor struct {
	opts Options
	log  log.Logger

	mu      sync.Mutex
	entries map[string]*entry
	emitMu  sync.Mutex
}

func NewMonitor(vehicles []fleet.Identity, opts Options) *Monitor {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Std()
	}
	if opts.OnTransition == nil {
		opts.OnTransition = func(Transition) {}
	}
	m := &Monitor{opts: opts, log: opts.Logger, entries: make(map[string]*entry, len(vehicles))}
	now := opts.Clock.Now()
	for _, v := range vehicles {
		m.entries[v.SerialNumber] = &entry{
			record: Record{Vehicle: v, State: StateUnknown, Since: now},
			fsm:    NewFiniteStateMachine(StateUnknown),
		}
	}
	return m
}

// Activity records a valid frame or heartbeat.
func (m *Monitor) Activity(serial string) {
	m.apply(serial, EventActivity, nil, func(e *entry, now time.Time) {
		e.record.LastActivity = now
		e.record.MissedHeartbeats = 0
		e.active = true
	})
}

// Connected records a new successful connection.
func (m *Monitor) Connected(serial string) {
	m.apply(serial, EventConnect, nil, func(e *entry, now time.Time) {
		e.record.LastActivity = now
		e.active = true
	})
}

// Broken records a transport error.
func (m *Monitor) Broken(serial string, cause error) {
	m.apply(serial, EventBreak, cause, nil)
}

// Reset records an explicit disconnect.
func (m *Monitor) Reset(serial string) {
	m.apply(serial, EventReset, nil, nil)
}

func (m *Monitor) apply(serial, event string, cause error, update func(*entry, time.Time)) {
	now := m.opts.Clock.Now()
	m.mu.Lock()
	e, ok := m.entries[serial]
	if !ok {
		m.mu.Unlock()
		m.log.Warn("Ignoring health event for unknown vehicle", "vehicle", serial, "event", event)
		return
	}
	if update != nil {
		update(e, now)
	}
	t, changed := m.fire(e, event, cause, now)
	m.mu.Unlock()

	if changed {
		m.emit([]Transition{t})
	}
}

// fire runs event on e. The caller holds m.mu.
func (m *Monitor) fire(e *entry, event string, cause error, now time.Time) (Transition, bool) {
	if !e.fsm.Can(event) {
		return Transition{}, false
	}
	from := e.record.State
	if err := e.fsm.Event(context.Background(), event, &e.record); isFsmRealError(err) {
		m.log.Error(err, "Connection state transition failed", "vehicle", e.record.Vehicle.SerialNumber, "event", event)
		return Transition{}, false
	}
	if e.record.State == from {
		return Transition{}, false
	}
	e.record.Since = now
	return Transition{Vehicle: e.record.Vehicle, From: from, To: e.record.State, At: now, Cause: cause}, true
}

func (m *Monitor) emit(ts []Transition) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	for _, t := range ts {
		m.log.Info("Connection state changed", "vehicle", t.Vehicle.SerialNumber, "from", t.From, "to", t.To)
		m.opts.OnTransition(t)
	}
}

// Check runs one timeout pass. A vehicle without activity during the last
// interval has its missed heartbeat count incremented; an ONLINE vehicle
// silent for Timeout goes OFFLINE.
func (m *Monitor) Check() {
	now := m.opts.Clock.Now()
	var ts []Transition
	m.mu.Lock()
	for _, e := range m.entries {
		if e.active {
			e.active = false
			continue
		}
		if e.record.State == StateOnline || e.record.State == StateOffline {
			e.record.MissedHeartbeats++
		}
		if e.record.State == StateOnline && now.Sub(e.record.LastActivity) >= m.opts.Timeout {
			if t, ok := m.fire(e, EventTimeout, nil, now); ok {
				ts = append(ts, t)
			}
		}
	}
	m.mu.Unlock()
	m.emit(ts)
}

// Run checks every CheckInterval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.opts.Clock.NewTicker(m.opts.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			m.Check()
		}
	}
}

// State returns the current state of serial.
func (m *Monitor) State(serial string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[serial]
	if !ok {
		return "", false
	}
	return e.record.State, true
}

// Record returns a copy of the record of serial.
func (m *Monitor) Record(serial string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[serial]
	if !ok {
		return Record{}, false
	}
	return e.record, true
}

// Snapshot returns copies of all records taken under one lock, sorted by
// serial number.
func (m *Monitor) Snapshot() []Record {
	m.mu.Lock()
	out := make([]Record, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.record)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Vehicle.SerialNumber < out[j].Vehicle.SerialNumber })
	return out
}
