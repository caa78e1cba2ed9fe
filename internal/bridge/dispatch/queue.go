package dispatch

import (
	"context"
	"sync"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
)

// DefaultCapacity bounds a vehicle queue across all classes.
const DefaultCapacity = 1000

// Queue is a bounded priority queue with strict FIFO order inside each
// class. It has a single consumer.
type Queue struct {
	vehicle  string
	capacity int

	mu      sync.Mutex
	classes [routing.NumPriorities][]*Command
	size    int
	closed  bool
	notify  chan struct{}
}

// NewQueue returns an empty queue for vehicle.
func NewQueue(vehicle string, capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		vehicle:  vehicle,
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push appends cmd to its class. When the queue is full the oldest command
// of the lowest non-empty class is evicted, unless that class ranks above
// cmd, in which case cmd itself is refused. Either way the dropped command is
// returned together with a *QueueSaturationError.
func (q *Queue) Push(cmd *Command) (*Command, error) {
	return q.insert(cmd, false)
}

// PushFront puts cmd at the head of its class, for resends.
func (q *Queue) PushFront(cmd *Command) (*Command, error) {
	return q.insert(cmd, true)
}

func (q *Queue) insert(cmd *Command, front bool) (*Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, bridgeerrors.ErrQueueClosed
	}

	var (
		dropped *Command
		err     error
	)
	if q.size >= q.capacity {
		lowest := q.lowestNonEmpty()
		if lowest > cmd.Priority {
			return cmd, &bridgeerrors.QueueSaturationError{
				Vehicle: q.vehicle, Capacity: q.capacity, Dropped: cmd.CorrelationID, Incoming: true,
			}
		}
		dropped = q.classes[lowest][0]
		q.classes[lowest][0] = nil
		q.classes[lowest] = q.classes[lowest][1:]
		q.size--
		err = &bridgeerrors.QueueSaturationError{Vehicle: q.vehicle, Capacity: q.capacity, Dropped: dropped.CorrelationID}
	}

	c := cmd.Priority
	if front {
		q.classes[c] = append([]*Command{cmd}, q.classes[c]...)
	} else {
		q.classes[c] = append(q.classes[c], cmd)
	}
	q.size++
	q.signal()
	return dropped, err
}

func (q *Queue) lowestNonEmpty() routing.Priority {
	for p := routing.PriorityLow; p < routing.NumPriorities; p++ {
		if len(q.classes[p]) > 0 {
			return p
		}
	}
	return routing.PriorityLow
}

// Pop blocks until a command accepted by eligible is available and removes
// it. Classes are scanned from emergency down; ineligible commands keep
// their position. A nil eligible accepts everything. Once ctx is done Pop
// returns its error and leaves queued commands in place.
func (q *Queue) Pop(ctx context.Context, eligible func(*Command) bool) (*Command, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, bridgeerrors.ErrQueueClosed
		}
		if cmd := q.take(eligible); cmd != nil {
			q.mu.Unlock()
			return cmd, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *Queue) take(eligible func(*Command) bool) *Command {
	for p := routing.NumPriorities - 1; p >= 0; p-- {
		class := q.classes[p]
		for i, cmd := range class {
			if eligible != nil && !eligible(cmd) {
				continue
			}
			copy(class[i:], class[i+1:])
			class[len(class)-1] = nil
			q.classes[p] = class[:len(class)-1]
			q.size--
			return cmd
		}
	}
	return nil
}

// Purge removes and returns every queued command matched by match.
func (q *Queue) Purge(match func(*Command) bool) []*Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	var purged []*Command
	for p := range q.classes {
		kept := q.classes[p][:0]
		for _, cmd := range q.classes[p] {
			if match(cmd) {
				purged = append(purged, cmd)
				continue
			}
			kept = append(kept, cmd)
		}
		for i := len(kept); i < len(q.classes[p]); i++ {
			q.classes[p][i] = nil
		}
		q.classes[p] = kept
	}
	q.size -= len(purged)
	return purged
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Wake makes a blocked Pop re-evaluate eligibility.
func (q *Queue) Wake() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.signal()
}

// Close unblocks Pop and returns the commands still queued.
func (q *Queue) Close() []*Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	var rest []*Command
	for p := routing.NumPriorities - 1; p >= 0; p-- {
		rest = append(rest, q.classes[p]...)
		q.classes[p] = nil
	}
	q.size = 0
	q.signal()
	return rest
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
