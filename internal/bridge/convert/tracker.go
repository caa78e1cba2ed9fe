package convert

import (
	"fmt"
	"sync"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

// maxActionStates bounds the retained action states per vehicle.
const maxActionStates = 100

// OrderContext is the accepted order of one vehicle.
type OrderContext struct {
	OrderID       string
	OrderUpdateID int64
	ZoneSetID     string
	Nodes         []vda5050.NodeState
	Edges         []vda5050.EdgeState
}

type vehicleOrders struct {
	order     OrderContext
	edgeStart map[string]string
	actions   []vda5050.ActionState
	orderOf   map[string]bool
	errors    []vda5050.Error
}

// Tracker keeps the order context, action states and pending errors that
// the bridge merges into published state documents.
type Tracker struct {
	mu       sync.Mutex
	vehicles map[string]*vehicleOrders
}

func NewTracker() *Tracker {
	return &Tracker{vehicles: map[string]*vehicleOrders{}}
}

func (t *Tracker) vehicle(serial string) *vehicleOrders {
	v, ok := t.vehicles[serial]
	if !ok {
		v = &vehicleOrders{orderOf: map[string]bool{}}
		t.vehicles[serial] = v
	}
	return v
}

// Check rejects an orderUpdateId below the accepted one for the same orderId.
func (t *Tracker) Check(serial string, order *vda5050.Order) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.vehicles[serial]
	if !ok || v.order.OrderID != order.OrderID {
		return nil
	}
	if order.OrderUpdateID < v.order.OrderUpdateID {
		return &bridgeerrors.ProtocolViolationError{
			Vehicle: serial,
			Reason: fmt.Sprintf("orderUpdateId regression for %s: %d after %d",
				order.OrderID, order.OrderUpdateID, v.order.OrderUpdateID),
		}
	}
	return nil
}

// Commit records an enqueued order. A new orderId drops the action states
// of the previous order.
func (t *Tracker) Commit(serial string, order *vda5050.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.vehicle(serial)
	if v.order.OrderID != order.OrderID {
		kept := v.actions[:0]
		for _, a := range v.actions {
			if !v.orderOf[a.ActionID] {
				kept = append(kept, a)
			}
		}
		v.actions = kept
		v.orderOf = map[string]bool{}
	}

	ctx := OrderContext{OrderID: order.OrderID, OrderUpdateID: order.OrderUpdateID, ZoneSetID: order.ZoneSetID}
	v.edgeStart = make(map[string]string, len(order.Edges))
	for _, e := range order.Elements() {
		switch {
		case e.Node != nil:
			ctx.Nodes = append(ctx.Nodes, vda5050.NodeState{
				NodeID: e.Node.NodeID, SequenceID: e.Node.SequenceID,
				NodeDescription: e.Node.NodeDescription, NodePosition: e.Node.NodePosition, Released: e.Node.Released,
			})
		case e.Edge != nil:
			v.edgeStart[e.Edge.EdgeID] = e.Edge.StartNodeID
			ctx.Edges = append(ctx.Edges, vda5050.EdgeState{
				EdgeID: e.Edge.EdgeID, SequenceID: e.Edge.SequenceID,
				EdgeDescription: e.Edge.EdgeDescription, Released: e.Edge.Released,
			})
		}
	}
	v.order = ctx

	for _, a := range order.Actions() {
		v.orderOf[a.ActionID] = true
		v.upsert(vda5050.ActionState{
			ActionID: a.ActionID, ActionType: a.ActionType,
			ActionDescription: a.ActionDescription, ActionStatus: vda5050.ActionStatusWaiting,
		})
	}
}

// Traversed drops a completed edge and its start node from the order
// context. Edges of another order are ignored.
func (t *Tracker) Traversed(serial, orderID, edgeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.vehicles[serial]
	if !ok || v.order.OrderID != orderID {
		return
	}
	for i, e := range v.order.Edges {
		if e.EdgeID != edgeID {
			continue
		}
		v.order.Edges = append(v.order.Edges[:i:i], v.order.Edges[i+1:]...)
		start := v.edgeStart[edgeID]
		for j, n := range v.order.Nodes {
			if n.NodeID == start {
				v.order.Nodes = append(v.order.Nodes[:j:j], v.order.Nodes[j+1:]...)
				break
			}
		}
		return
	}
}

// TrackInstant records instant actions as WAITING.
func (t *Tracker) TrackInstant(serial string, actions []vda5050.Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.vehicle(serial)
	for _, a := range actions {
		v.upsert(vda5050.ActionState{
			ActionID: a.ActionID, ActionType: a.ActionType,
			ActionDescription: a.ActionDescription, ActionStatus: vda5050.ActionStatusWaiting,
		})
	}
}

// SetStatus updates a tracked action. Unknown action ids are ignored.
func (t *Tracker) SetStatus(serial, actionID string, status vda5050.ActionStatus, result string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.vehicles[serial]
	if !ok {
		return
	}
	for i := range v.actions {
		if v.actions[i].ActionID == actionID {
			v.actions[i].ActionStatus = status
			v.actions[i].ResultDescription = result
			return
		}
	}
}

// AddError queues an error for the next state document of serial.
func (t *Tracker) AddError(serial string, e vda5050.Error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.vehicle(serial)
	if len(v.errors) < maxActionStates {
		v.errors = append(v.errors, e)
	}
}

// Fill merges the tracked data into st and consumes the pending errors.
// Node and edge states are cleared once every edge is traversed and no order
// action is pending.
func (t *Tracker) Fill(serial string, st *vda5050.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.vehicles[serial]
	if !ok {
		return
	}
	st.OrderID = v.order.OrderID
	st.OrderUpdateID = v.order.OrderUpdateID
	st.ZoneSetID = v.order.ZoneSetID
	if v.orderPending() {
		st.NodeStates = append([]vda5050.NodeState(nil), v.order.Nodes...)
		st.EdgeStates = append([]vda5050.EdgeState(nil), v.order.Edges...)
	}
	st.ActionStates = append(append([]vda5050.ActionState(nil), v.actions...), st.ActionStates...)
	st.Errors = append(st.Errors, v.errors...)
	v.errors = nil
}

// Order returns the accepted order context of serial.
func (t *Tracker) Order(serial string) (OrderContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.vehicles[serial]
	if !ok || v.order.OrderID == "" {
		return OrderContext{}, false
	}
	return v.order, true
}

func (v *vehicleOrders) orderPending() bool {
	if len(v.order.Edges) > 0 {
		return true
	}
	for _, a := range v.actions {
		if v.orderOf[a.ActionID] && !finished(a.ActionStatus) {
			return true
		}
	}
	return false
}

func (v *vehicleOrders) upsert(s vda5050.ActionState) {
	for i := range v.actions {
		if v.actions[i].ActionID == s.ActionID {
			v.actions[i] = s
			return
		}
	}
	v.actions = append(v.actions, s)
	for len(v.actions) > maxActionStates {
		evicted := -1
		for i, a := range v.actions {
			if finished(a.ActionStatus) {
				evicted = i
				break
			}
		}
		if evicted < 0 {
			evicted = 0
		}
		delete(v.orderOf, v.actions[evicted].ActionID)
		v.actions = append(v.actions[:evicted], v.actions[evicted+1:]...)
	}
}

func finished(s vda5050.ActionStatus) bool {
	return s == vda5050.ActionStatusFinished || s == vda5050.ActionStatusFailed
}
