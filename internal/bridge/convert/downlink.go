// Package convert translates between VDA5050 documents and vendor frames.
package convert

import (
	"strconv"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/dispatch"
	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

// Rejection is an action that could not be converted. Err is a
// *RoutingError or an *EncodingError.
type Rejection struct {
	ActionID   string
	ActionType string
	Err        error
}

// Downlink converts order and instantActions documents into commands.
type Downlink struct {
	table *routing.Table
	clock clock.PassiveClock
	newID func() string
}

// NewDownlink returns a converter over table.
func NewDownlink(table *routing.Table, clk clock.PassiveClock) *Downlink {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Downlink{table: table, clock: clk, newID: uuid.NewString}
}

// ConvertOrder walks the order in sequence order. Every node yields its
// actions; every edge yields a path move to its end node followed by the
// edge actions. A structurally invalid order returns a
// *ProtocolViolationError and nothing else. Otherwise every convertible
// action yields a command and every other action a rejection; callers must
// not enqueue a partially converted order.
func (c *Downlink) ConvertOrder(vehicle fleet.Identity, order *vda5050.Order) ([]*dispatch.Command, []Rejection, error) {
	if errs := vda5050.ValidateOrder(order); len(errs) > 0 {
		return nil, nil, &bridgeerrors.ProtocolViolationError{
			Vehicle: vehicle.SerialNumber, Reason: "invalid order " + order.OrderID, Err: errs.ToAggregate(),
		}
	}

	var (
		cmds       []*dispatch.Command
		rejections []Rejection
	)
	next := func() routing.Task {
		return routing.Task{Base: order.OrderID, Index: len(cmds) + len(rejections) + 1}
	}
	for _, e := range order.Elements() {
		if e.Edge != nil {
			task := next()
			task.Source, task.Target = e.Edge.StartNodeID, e.Edge.EndNodeID
			cmd, err := c.path(vehicle, e.Edge, task)
			if err != nil {
				rejections = append(rejections, Rejection{ActionID: e.Edge.EdgeID, ActionType: routing.PathAction, Err: err})
			} else {
				cmd.OrderID = order.OrderID
				cmds = append(cmds, cmd)
			}
		}
		for _, a := range e.Actions() {
			cmd, err := c.convert(vehicle, &a, routing.PriorityNormal, next())
			if err != nil {
				rejections = append(rejections, Rejection{ActionID: a.ActionID, ActionType: a.ActionType, Err: err})
				continue
			}
			cmd.OrderID = order.OrderID
			cmds = append(cmds, cmd)
		}
	}
	return cmds, rejections, nil
}

func (c *Downlink) path(vehicle fleet.Identity, edge *vda5050.Edge, task routing.Task) (*dispatch.Command, error) {
	m, err := c.table.Lookup(routing.PathAction)
	if err != nil {
		return nil, err
	}
	payload, err := routing.Encode(m, nil, task)
	if err != nil {
		return nil, err
	}
	return c.command(vehicle, m, payload, routing.PriorityNormal, edge.EdgeID, routing.PathAction), nil
}

// ConvertInstantActions converts each action independently. Actions in
// routing.LocalActions are skipped; the caller answers them.
func (c *Downlink) ConvertInstantActions(vehicle fleet.Identity, ia *vda5050.InstantActions) ([]*dispatch.Command, []Rejection, error) {
	if errs := vda5050.ValidateInstantActions(ia); len(errs) > 0 {
		return nil, nil, &bridgeerrors.ProtocolViolationError{
			Vehicle: vehicle.SerialNumber, Reason: "invalid instantActions", Err: errs.ToAggregate(),
		}
	}

	base := strconv.FormatUint(uint64(ia.HeaderID), 10)
	var (
		cmds       []*dispatch.Command
		rejections []Rejection
	)
	for i := range ia.Actions {
		a := &ia.Actions[i]
		if routing.LocalActions.Has(a.ActionType) {
			continue
		}
		cmd, err := c.convert(vehicle, a, routing.PriorityEmergency, routing.Task{Base: base, Index: i + 1})
		if err != nil {
			rejections = append(rejections, Rejection{ActionID: a.ActionID, ActionType: a.ActionType, Err: err})
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rejections, nil
}

func (c *Downlink) convert(vehicle fleet.Identity, a *vda5050.Action, p routing.Priority, task routing.Task) (*dispatch.Command, error) {
	if a.ActionType == routing.PathAction {
		return nil, &bridgeerrors.RoutingError{Action: a.ActionType}
	}
	m, err := c.table.Lookup(a.ActionType)
	if err != nil {
		return nil, err
	}
	payload, err := routing.Encode(m, routing.Params(a), task)
	if err != nil {
		return nil, err
	}
	return c.command(vehicle, m, payload, p, a.ActionID, a.ActionType), nil
}

func (c *Downlink) command(vehicle fleet.Identity, m *routing.Mapping, payload []byte, p routing.Priority, actionID, actionType string) *dispatch.Command {
	if override, ok := m.PriorityOverride(); ok {
		p = override
	}
	return &dispatch.Command{
		Vehicle:       vehicle,
		Mapping:       m,
		Payload:       payload,
		Priority:      p,
		CreatedAt:     c.clock.Now(),
		CorrelationID: c.newID(),
		ActionID:      actionID,
		ActionType:    actionType,
	}
}

// RejectionError renders r as a VDA5050 error for the next state document.
func RejectionError(r Rejection, orderID string) vda5050.Error {
	errType := "instantActionError"
	refs := []vda5050.ErrorReference{
		{ReferenceKey: "actionId", ReferenceValue: r.ActionID},
		{ReferenceKey: "actionType", ReferenceValue: r.ActionType},
	}
	if orderID != "" {
		errType = "orderError"
		refs = append([]vda5050.ErrorReference{{ReferenceKey: "orderId", ReferenceValue: orderID}}, refs...)
	}
	return vda5050.Error{
		ErrorType:        errType,
		ErrorReferences:  refs,
		ErrorDescription: r.Err.Error(),
		ErrorLevel:       vda5050.ErrorLevelWarning,
	}
}
