package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

// ClearErrorsAction lifts a safety suspension once it has been written.
const ClearErrorsAction = "clearErrors"

var errConnectionLost = errors.New("connection lost")

// Sender writes one request frame to a vehicle port and returns the
// sequence number it was stamped with.
type Sender interface {
	Send(ctx context.Context, serial string, port int, messageType uint16, body []byte) (uint16, error)
}

// Options configure every dispatcher of a Manager.
type Options struct {
	// MessageTimeout bounds the wait for a HARD response, including during
	// shutdown.
	MessageTimeout time.Duration
	// MaxRetries bounds resends of a SOFT command after send failures.
	MaxRetries     int
	RetryDelay     time.Duration
	ResponseOffset uint16
	Clock          clock.Clock
	Logger         log.Logger
	OnResult       func(Result)
}

func (o *Options) complete() {
	if o.MessageTimeout <= 0 {
		o.MessageTimeout = 30 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	if o.Logger == nil {
		o.Logger = log.Std()
	}
	if o.OnResult == nil {
		o.OnResult = func(Result) {}
	}
}

type ack struct {
	port     int
	code     uint16
	sequence uint16
}

// Dispatcher drains one vehicle queue. Only one command is on the wire at a
// time; a HARD command holds the vehicle until it is answered, times out or
// its connection is lost.
type Dispatcher struct {
	vehicle fleet.Identity
	queue   *Queue
	sender  Sender
	opts    Options
	log     log.Logger

	acks      chan ack
	lost      chan int
	suspended atomic.Bool
	inflight  atomic.Pointer[Command]

	// owned by the Run goroutine
	attempts map[string]int
}

// NewDispatcher returns a dispatcher for vehicle reading from queue.
func NewDispatcher(vehicle fleet.Identity, queue *Queue, sender Sender, opts Options) *Dispatcher {
	opts.complete()
	return &Dispatcher{
		vehicle:  vehicle,
		queue:    queue,
		sender:   sender,
		opts:     opts,
		log:      opts.Logger.WithValues("vehicle", vehicle.SerialNumber),
		acks:     make(chan ack, 16),
		lost:     make(chan int, 4),
		attempts: map[string]int{},
	}
}

// Run dispatches until ctx is done or the queue is closed.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		cmd, err := d.queue.Pop(ctx, d.eligible)
		if err != nil {
			return
		}
		d.dispatch(ctx, cmd)
	}
}

func (d *Dispatcher) eligible(cmd *Command) bool {
	return !d.suspended.Load() || cmd.Mapping.Safety
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd *Command) {
	d.drain()
	start := d.opts.Clock.Now()
	m := cmd.Mapping
	seq, err := d.sender.Send(ctx, cmd.Vehicle.SerialNumber, m.Port, m.MessageType, cmd.Payload)
	if err != nil {
		d.sendFailed(ctx, cmd, err)
		return
	}
	delete(d.attempts, cmd.CorrelationID)
	if m.Action == ClearErrorsAction && d.Resume() {
		d.log.Info("Safety suspension lifted", "correlationId", cmd.CorrelationID)
	}
	d.report(Result{Command: cmd, Outcome: OutcomeSent})
	if m.BlockingType != vda5050.BlockingHard {
		return
	}

	d.inflight.Store(cmd)
	defer d.inflight.Store(nil)
	want := m.MessageType + d.opts.ResponseOffset
	timer := d.opts.Clock.NewTimer(d.opts.MessageTimeout)
	defer timer.Stop()
	for {
		select {
		case a := <-d.acks:
			if a.port != m.Port || a.code != want || a.sequence != seq {
				continue
			}
			d.report(Result{Command: cmd, Outcome: OutcomeCompleted, Latency: d.opts.Clock.Since(start)})
			return
		case port := <-d.lost:
			if port != m.Port {
				continue
			}
			d.report(Result{Command: cmd, Outcome: OutcomeFailed, Err: &bridgeerrors.ConnectionError{
				Vehicle: cmd.Vehicle.SerialNumber, Port: m.Port, Op: "await response", Err: errConnectionLost,
			}})
			return
		case <-timer.C():
			d.report(Result{Command: cmd, Outcome: OutcomeTimedOut,
				Err: fmt.Errorf("no response %d within %s", want, d.opts.MessageTimeout)})
			return
		}
	}
}

func (d *Dispatcher) sendFailed(ctx context.Context, cmd *Command, err error) {
	id := cmd.CorrelationID
	if cmd.Mapping.BlockingType != vda5050.BlockingSoft || d.attempts[id] >= d.opts.MaxRetries {
		delete(d.attempts, id)
		d.report(Result{Command: cmd, Outcome: OutcomeFailed, Err: err})
		return
	}
	d.attempts[id]++
	d.log.Debug("Resending command", "correlationId", id, "attempt", d.attempts[id], "error", err)

	select {
	case <-ctx.Done():
		delete(d.attempts, id)
		d.report(Result{Command: cmd, Outcome: OutcomeFailed, Err: err})
		return
	case <-d.opts.Clock.After(d.opts.RetryDelay):
	}

	dropped, perr := d.queue.PushFront(cmd)
	switch {
	case dropped != nil:
		delete(d.attempts, dropped.CorrelationID)
		d.report(Result{Command: dropped, Outcome: OutcomeDropped, Err: perr})
	case perr != nil:
		delete(d.attempts, id)
		d.report(Result{Command: cmd, Outcome: OutcomeFailed, Err: perr})
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case <-d.acks:
		case <-d.lost:
		default:
			return
		}
	}
}

func (d *Dispatcher) report(r Result) {
	d.opts.OnResult(r)
}

// Ack records a response frame. The vehicle echoes the request sequence
// number; responses that do not answer the in-flight command, late answers
// to a timed out one included, are discarded.
func (d *Dispatcher) Ack(port int, code, sequence uint16) {
	select {
	case d.acks <- ack{port: port, code: code, sequence: sequence}:
	default:
	}
}

// ConnectionLost fails the in-flight HARD command if it was sent on port.
func (d *Dispatcher) ConnectionLost(port int) {
	select {
	case d.lost <- port:
	default:
	}
}

// Suspend holds back non-safety commands. It reports whether the state changed.
func (d *Dispatcher) Suspend() bool {
	changed := d.suspended.CompareAndSwap(false, true)
	if changed {
		d.queue.Wake()
	}
	return changed
}

// Resume releases a suspension. It reports whether the state changed.
func (d *Dispatcher) Resume() bool {
	changed := d.suspended.CompareAndSwap(true, false)
	if changed {
		d.queue.Wake()
	}
	return changed
}

func (d *Dispatcher) Suspended() bool { return d.suspended.Load() }

// InFlight returns the HARD command awaiting a response.
func (d *Dispatcher) InFlight() *Command { return d.inflight.Load() }
