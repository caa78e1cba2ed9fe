package dispatch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
)

type lane struct {
	queue      *Queue
	dispatcher *Dispatcher
}

// Manager owns one queue and dispatcher per vehicle. The vehicle set is
// fixed at construction.
type Manager struct {
	lanes    map[string]*lane
	onResult func(Result)
}

// NewManager creates a lane for each vehicle.
func NewManager(vehicles []fleet.Identity, capacity int, sender Sender, opts Options) *Manager {
	opts.complete()
	m := &Manager{lanes: make(map[string]*lane, len(vehicles)), onResult: opts.OnResult}
	for _, v := range vehicles {
		q := NewQueue(v.SerialNumber, capacity)
		m.lanes[v.SerialNumber] = &lane{queue: q, dispatcher: NewDispatcher(v, q, sender, opts)}
	}
	return m
}

func (m *Manager) lane(serial string) (*lane, error) {
	l, ok := m.lanes[serial]
	if !ok {
		return nil, fmt.Errorf("vehicle %s: %w", serial, bridgeerrors.ErrNotFound)
	}
	return l, nil
}

// Enqueue adds cmd to its vehicle's queue. See Queue.Push for the dropped
// command.
func (m *Manager) Enqueue(cmd *Command) (*Command, error) {
	l, err := m.lane(cmd.Vehicle.SerialNumber)
	if err != nil {
		return nil, err
	}
	return l.queue.Push(cmd)
}

// Purge removes matching queued commands of one vehicle.
func (m *Manager) Purge(serial string, match func(*Command) bool) []*Command {
	l, err := m.lane(serial)
	if err != nil {
		return nil
	}
	return l.queue.Purge(match)
}

func (m *Manager) Ack(serial string, port int, code, sequence uint16) {
	if l, err := m.lane(serial); err == nil {
		l.dispatcher.Ack(port, code, sequence)
	}
}

func (m *Manager) ConnectionLost(serial string, port int) {
	if l, err := m.lane(serial); err == nil {
		l.dispatcher.ConnectionLost(port)
	}
}

func (m *Manager) Suspend(serial string) bool {
	l, err := m.lane(serial)
	return err == nil && l.dispatcher.Suspend()
}

func (m *Manager) Resume(serial string) bool {
	l, err := m.lane(serial)
	return err == nil && l.dispatcher.Resume()
}

func (m *Manager) Suspended(serial string) bool {
	l, err := m.lane(serial)
	return err == nil && l.dispatcher.Suspended()
}

// InFlight returns the HARD command awaiting a response, or nil.
func (m *Manager) InFlight(serial string) *Command {
	l, err := m.lane(serial)
	if err != nil {
		return nil
	}
	return l.dispatcher.InFlight()
}

// Depth returns the number of queued commands of one vehicle.
func (m *Manager) Depth(serial string) int {
	l, err := m.lane(serial)
	if err != nil {
		return 0
	}
	return l.queue.Len()
}

// Run starts every dispatcher and blocks until all have stopped. Commands
// still queued afterwards are reported as dropped.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range m.lanes {
		g.Go(func() error {
			l.dispatcher.Run(ctx)
			return nil
		})
	}
	err := g.Wait()
	for _, l := range m.lanes {
		for _, cmd := range l.queue.Close() {
			m.onResult(Result{Command: cmd, Outcome: OutcomeDropped, Err: bridgeerrors.ErrQueueClosed})
		}
	}
	return err
}
