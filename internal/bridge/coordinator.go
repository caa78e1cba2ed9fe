package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/convert"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/dispatch"
	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/health"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/pkg/metrics"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/agvtcp"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/mqtt/topic"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

const publishTimeout = 5 * time.Second

// Notifier publishes uplink documents for a vehicle.
type Notifier interface {
	Notify(ctx context.Context, id fleet.Identity, msg vda5050.Message) error
}

// Dispatcher is the part of dispatch.Manager used by the coordinator.
type Dispatcher interface {
	Enqueue(cmd *dispatch.Command) (*dispatch.Command, error)
	Purge(serial string, match func(*dispatch.Command) bool) []*dispatch.Command
	Ack(serial string, port int, code, sequence uint16)
	ConnectionLost(serial string, port int)
	Suspend(serial string) bool
	Suspended(serial string) bool
	InFlight(serial string) *dispatch.Command
	Depth(serial string) int
}

// Wire describes how inbound frames are classified.
type Wire struct {
	StatusPort           int
	StatusMessageType    uint16
	HeartbeatMessageType uint16
	ResponseOffset       uint16
}

// Coordinator joins the converters, the health monitor, the dispatch queues
// and the publisher. It implements mux.Handler for the vehicle side and the
// ingress handler for the pub/sub side.
type Coordinator struct {
	registry *fleet.Registry
	table    *routing.Table
	wire     Wire
	downlink *convert.Downlink
	tracker  *convert.Tracker
	clock    clock.PassiveClock
	metrics  *metrics.Metrics
	log      log.Logger

	// set once during wiring, before any traffic
	monitor  *health.Monitor
	dispatch Dispatcher
	notifier Notifier

	// orderMu orders tracker writes: an accepted document is committed
	// before results for its commands are applied.
	orderMu sync.Mutex

	factsheetMu   sync.Mutex
	factsheetSent sets.Set[string]
}

// NewCoordinator returns a coordinator. SetMonitor, SetDispatcher and
// SetNotifier must be called before traffic flows.
func NewCoordinator(registry *fleet.Registry, table *routing.Table, wire Wire, clk clock.PassiveClock, m *metrics.Metrics) *Coordinator {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if wire.HeartbeatMessageType == 0 {
		wire.HeartbeatMessageType = agvtcp.TypeHeartbeat
	}
	return &Coordinator{
		registry:      registry,
		table:         table,
		wire:          wire,
		downlink:      convert.NewDownlink(table, clk),
		tracker:       convert.NewTracker(),
		clock:         clk,
		metrics:       m,
		log:           log.WithName("coordinator"),
		factsheetSent: sets.New[string](),
	}
}

func (c *Coordinator) SetMonitor(m *health.Monitor) { c.monitor = m }

func (c *Coordinator) SetDispatcher(d Dispatcher) { c.dispatch = d }

func (c *Coordinator) SetNotifier(n Notifier) { c.notifier = n }

// Vehicles returns the status of every configured vehicle. The connection
// records come from a single monitor snapshot.
func (c *Coordinator) Vehicles() []fleet.Status {
	records := c.monitor.Snapshot()
	out := make([]fleet.Status, 0, len(records))
	for _, rec := range records {
		out = append(out, c.status(rec))
	}
	return out
}

// Vehicle returns the status of one vehicle.
func (c *Coordinator) Vehicle(serial string) (fleet.Status, bool) {
	rec, ok := c.monitor.Record(serial)
	if !ok {
		return fleet.Status{}, false
	}
	return c.status(rec), true
}

func (c *Coordinator) status(rec health.Record) fleet.Status {
	serial := rec.Vehicle.SerialNumber
	st := fleet.Status{
		Identity:         rec.Vehicle,
		ConnectionState:  string(rec.State),
		LastActivity:     rec.LastActivity,
		MissedHeartbeats: rec.MissedHeartbeats,
		QueueDepth:       c.dispatch.Depth(serial),
		Suspended:        c.dispatch.Suspended(serial),
	}
	if cmd := c.dispatch.InFlight(serial); cmd != nil {
		st.InFlight = cmd.ActionType + "/" + cmd.ActionID
	}
	if o, ok := c.tracker.Order(serial); ok {
		st.OrderID, st.OrderUpdateID = o.OrderID, o.OrderUpdateID
	}
	return st
}

func (c *Coordinator) Routes() []routing.Mapping { return c.table.Mappings() }

// Downlink

// HandleOrder validates, converts and enqueues an order. The order is
// enqueued completely or not at all.
func (c *Coordinator) HandleOrder(_ context.Context, addr topic.Address, order *vda5050.Order) error {
	v, err := c.resolve(addr)
	if err != nil {
		return err
	}
	serial := v.SerialNumber

	if err := c.tracker.Check(serial, order); err != nil {
		return c.rejectDocument(serial, order.OrderID, err)
	}
	cmds, rejections, err := c.downlink.ConvertOrder(v.Identity, order)
	if err != nil {
		return c.rejectDocument(serial, order.OrderID, err)
	}
	if len(rejections) > 0 {
		errs := make([]error, 0, len(rejections))
		for _, r := range rejections {
			c.tracker.AddError(serial, convert.RejectionError(r, order.OrderID))
			c.metrics.Rejections.WithLabelValues(bridgeerrors.Kind(r.Err)).Inc()
			errs = append(errs, r.Err)
		}
		c.log.Warn("Rejected order", "vehicle", serial, "orderId", order.OrderID, "rejected", len(rejections))
		return fmt.Errorf("order %s rejected: %w", order.OrderID, utilerrors.NewAggregate(errs))
	}

	c.orderMu.Lock()
	c.tracker.Commit(serial, order)
	dropped := c.enqueue(cmds)
	c.orderMu.Unlock()

	c.reportDropped(dropped)
	c.log.Info("Accepted order", "vehicle", serial, "orderId", order.OrderID,
		"orderUpdateId", order.OrderUpdateID, "commands", len(cmds))
	return nil
}

// HandleInstantActions converts and enqueues each action independently.
func (c *Coordinator) HandleInstantActions(ctx context.Context, addr topic.Address, ia *vda5050.InstantActions) error {
	v, err := c.resolve(addr)
	if err != nil {
		return err
	}
	serial := v.SerialNumber

	cmds, rejections, err := c.downlink.ConvertInstantActions(v.Identity, ia)
	if err != nil {
		return c.rejectDocument(serial, "", err)
	}

	rejected := make(map[string]error, len(rejections))
	for _, r := range rejections {
		rejected[r.ActionID] = r.Err
		c.tracker.AddError(serial, convert.RejectionError(r, ""))
		c.metrics.Rejections.WithLabelValues(bridgeerrors.Kind(r.Err)).Inc()
	}

	c.orderMu.Lock()
	c.tracker.TrackInstant(serial, ia.Actions)
	for id, rerr := range rejected {
		c.tracker.SetStatus(serial, id, vda5050.ActionStatusFailed, rerr.Error())
	}
	var purged, dropped []*dispatch.Command
	for _, cmd := range cmds {
		if cmd.ActionType == "cancelOrder" {
			purged = append(purged, c.dispatch.Purge(serial, func(q *dispatch.Command) bool {
				return q.Priority == routing.PriorityNormal
			})...)
		}
		dropped = append(dropped, c.enqueue([]*dispatch.Command{cmd})...)
	}
	for _, p := range purged {
		c.tracker.SetStatus(serial, p.ActionID, vda5050.ActionStatusFailed, "canceled")
	}
	c.orderMu.Unlock()

	for _, p := range purged {
		c.metrics.ObserveCommand(p.ActionType, string(dispatch.OutcomeDropped), 0)
	}
	c.reportDropped(dropped)

	for i := range ia.Actions {
		a := &ia.Actions[i]
		if !routing.LocalActions.Has(a.ActionType) {
			continue
		}
		status, result := vda5050.ActionStatusFinished, ""
		if err := c.publishFactsheet(ctx, v); err != nil {
			status, result = vda5050.ActionStatusFailed, err.Error()
		}
		c.orderMu.Lock()
		c.tracker.SetStatus(serial, a.ActionID, status, result)
		c.orderMu.Unlock()
	}

	if len(rejections) > 0 {
		return fmt.Errorf("%d of %d instant actions rejected", len(rejections), len(ia.Actions))
	}
	return nil
}

// enqueue pushes cmds in order and returns every command dropped on the way.
// The caller holds orderMu.
func (c *Coordinator) enqueue(cmds []*dispatch.Command) []*dispatch.Command {
	var dropped []*dispatch.Command
	for _, cmd := range cmds {
		d, err := c.dispatch.Enqueue(cmd)
		if d != nil {
			c.tracker.SetStatus(d.Vehicle.SerialNumber, d.ActionID, vda5050.ActionStatusFailed, err.Error())
			dropped = append(dropped, d)
		} else if err != nil {
			c.tracker.SetStatus(cmd.Vehicle.SerialNumber, cmd.ActionID, vda5050.ActionStatusFailed, err.Error())
			c.log.Error(err, "Failed to enqueue command", "vehicle", cmd.Vehicle.SerialNumber, "action", cmd.ActionType)
		}
		c.observeDepth(cmd.Vehicle.SerialNumber)
	}
	return dropped
}

func (c *Coordinator) reportDropped(dropped []*dispatch.Command) {
	for _, d := range dropped {
		serial := d.Vehicle.SerialNumber
		c.metrics.QueueDrops.WithLabelValues(serial).Inc()
		c.metrics.ObserveCommand(d.ActionType, string(dispatch.OutcomeDropped), 0)
		c.log.Warn("Queue saturated, command dropped", "vehicle", serial,
			"action", d.ActionType, "actionId", d.ActionID, "correlationId", d.CorrelationID)
	}
}

// rejectDocument records a document level failure for the next state.
func (c *Coordinator) rejectDocument(serial, orderID string, err error) error {
	c.metrics.Rejections.WithLabelValues(bridgeerrors.Kind(err)).Inc()
	e := vda5050.Error{
		ErrorType:        "validationError",
		ErrorDescription: err.Error(),
		ErrorLevel:       vda5050.ErrorLevelWarning,
	}
	if orderID != "" {
		e.ErrorType = "orderUpdateError"
		e.ErrorReferences = []vda5050.ErrorReference{{ReferenceKey: "orderId", ReferenceValue: orderID}}
	}
	c.tracker.AddError(serial, e)
	return err
}

func (c *Coordinator) resolve(addr topic.Address) (fleet.Vehicle, error) {
	v, ok := c.registry.BySerial(addr.SerialNumber)
	if !ok || v.Manufacturer != addr.Manufacturer {
		c.metrics.Rejections.WithLabelValues("routing").Inc()
		return fleet.Vehicle{}, fmt.Errorf("vehicle %s/%s: %w", addr.Manufacturer, addr.SerialNumber, bridgeerrors.ErrNotFound)
	}
	return v, nil
}

// OnResult applies a dispatch outcome to the tracked action state.
func (c *Coordinator) OnResult(r dispatch.Result) {
	cmd := r.Command
	c.metrics.ObserveCommand(cmd.ActionType, string(r.Outcome), r.Latency)

	status, result := vda5050.ActionStatusFailed, ""
	switch r.Outcome {
	case dispatch.OutcomeSent:
		status = vda5050.ActionStatusFinished
		if !r.Outcome.Final(cmd) {
			status = vda5050.ActionStatusRunning
		}
	case dispatch.OutcomeCompleted:
		status = vda5050.ActionStatusFinished
	}
	if r.Err != nil {
		result = r.Err.Error()
		c.log.Warn("Command failed", "vehicle", cmd.Vehicle.SerialNumber, "action", cmd.ActionType,
			"actionId", cmd.ActionID, "outcome", r.Outcome, "error", r.Err)
	}

	c.orderMu.Lock()
	if cmd.ActionType == routing.PathAction {
		if r.Outcome == dispatch.OutcomeCompleted {
			c.tracker.Traversed(cmd.Vehicle.SerialNumber, cmd.OrderID, cmd.ActionID)
		}
	} else {
		c.tracker.SetStatus(cmd.Vehicle.SerialNumber, cmd.ActionID, status, result)
	}
	c.orderMu.Unlock()
	c.observeDepth(cmd.Vehicle.SerialNumber)
}

func (c *Coordinator) observeDepth(serial string) {
	c.metrics.QueueDepth.WithLabelValues(serial).Set(float64(c.dispatch.Depth(serial)))
}

// Uplink

func (c *Coordinator) OnConnect(vehicle fleet.Identity, port int) {
	c.monitor.Connected(vehicle.SerialNumber)

	c.factsheetMu.Lock()
	first := !c.factsheetSent.Has(vehicle.SerialNumber)
	c.factsheetSent.Insert(vehicle.SerialNumber)
	c.factsheetMu.Unlock()
	if !first {
		return
	}
	v, ok := c.registry.BySerial(vehicle.SerialNumber)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.publishFactsheet(ctx, v); err != nil {
		c.log.Error(err, "Failed to publish factsheet", "vehicle", vehicle.SerialNumber)
	}
}

// OnFrame classifies one inbound frame: status push, command response,
// heartbeat or unknown.
func (c *Coordinator) OnFrame(vehicle fleet.Identity, port int, f *agvtcp.Frame) {
	serial := vehicle.SerialNumber
	switch {
	case f.Type == c.wire.HeartbeatMessageType:
		c.metrics.ObserveFrame(port, metrics.FrameHeartbeat)
		c.monitor.Activity(serial)
	case port == c.wire.StatusPort && f.Type == c.wire.StatusMessageType:
		c.metrics.ObserveFrame(port, metrics.FrameStatus)
		c.monitor.Activity(serial)
		c.handleStatus(vehicle, f)
	case c.table.Responds(port, f.Type, c.wire.ResponseOffset):
		c.metrics.ObserveFrame(port, metrics.FrameResponse)
		c.monitor.Activity(serial)
		c.dispatch.Ack(serial, port, f.Type, f.Sequence)
	default:
		c.metrics.ObserveUnknown(port, f.Type)
		c.log.Debug("Dropping frame with unknown message type", "vehicle", serial, "port", port, "type", f.Type)
	}
}

func (c *Coordinator) handleStatus(vehicle fleet.Identity, f *agvtcp.Frame) {
	serial := vehicle.SerialNumber
	docs, err := convert.ConvertStatus(convert.StatusReport{
		Vehicle:     vehicle,
		MessageType: f.Type,
		Payload:     f.Body,
		ReceivedAt:  c.clock.Now(),
	})
	if err != nil {
		c.metrics.Rejections.WithLabelValues(bridgeerrors.Kind(err)).Inc()
		c.log.Warn("Dropping status report", "vehicle", serial, "error", err)
		return
	}
	for _, w := range docs.Warnings {
		c.log.Warn("Status report warning", "vehicle", serial, "warning", w)
	}

	var safety *bridgeerrors.FatalSafetyError
	if errors.As(docs.Safety, &safety) && c.dispatch.Suspend(serial) {
		c.metrics.Rejections.WithLabelValues(bridgeerrors.Kind(safety)).Inc()
		c.log.Warn("Suspending non-safety commands until clearErrors", "vehicle", serial, "reason", safety.Reason)
	}

	c.orderMu.Lock()
	c.tracker.Fill(serial, docs.State)
	c.orderMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.notifier.Notify(ctx, vehicle, docs.State); err != nil {
		c.log.Error(err, "Failed to publish state", "vehicle", serial)
	}
	if err := c.notifier.Notify(ctx, vehicle, docs.Visualization); err != nil {
		c.log.Error(err, "Failed to publish visualization", "vehicle", serial)
	}
}

// OnDisconnect fails a HARD command waiting on port. A transport error
// breaks the connection; a clean close of the last connection resets it.
func (c *Coordinator) OnDisconnect(vehicle fleet.Identity, port int, err error, last bool) {
	serial := vehicle.SerialNumber
	c.dispatch.ConnectionLost(serial, port)
	switch {
	case err != nil:
		c.monitor.Broken(serial, err)
	case last:
		c.monitor.Reset(serial)
	}
}

// OnReplaced fails a HARD command still waiting on the replaced socket.
func (c *Coordinator) OnReplaced(vehicle fleet.Identity, port int) {
	c.dispatch.ConnectionLost(vehicle.SerialNumber, port)
}

func (c *Coordinator) OnDialError(vehicle fleet.Identity, port int, err error) {
	c.monitor.Broken(vehicle.SerialNumber, err)
}

// OnTransition publishes one connection document per state change.
func (c *Coordinator) OnTransition(t health.Transition) {
	c.metrics.ObserveTransition(t.Vehicle.SerialNumber, string(t.From), string(t.To))
	if t.From.Published() == t.To.Published() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.notifier.Notify(ctx, t.Vehicle, &vda5050.Connection{ConnectionState: t.To.Published()}); err != nil {
		c.log.Error(err, "Failed to publish connection state", "vehicle", t.Vehicle.SerialNumber, "state", t.To)
	}
}

// PublishConnections publishes the current connection state of every
// vehicle. It replaces retained documents left by a previous run.
func (c *Coordinator) PublishConnections(ctx context.Context) {
	for _, id := range c.registry.Identities() {
		state, _ := c.monitor.State(id.SerialNumber)
		if err := c.notifier.Notify(ctx, id, &vda5050.Connection{ConnectionState: state.Published()}); err != nil {
			c.log.Error(err, "Failed to publish connection state", "vehicle", id.SerialNumber)
		}
	}
}

func (c *Coordinator) publishFactsheet(ctx context.Context, v fleet.Vehicle) error {
	return c.notifier.Notify(ctx, v.Identity, c.Factsheet(v))
}

// Factsheet describes v with the routing table's protocol features.
func (c *Coordinator) Factsheet(v fleet.Vehicle) *vda5050.Factsheet {
	return &vda5050.Factsheet{
		TypeSpecification:  v.TypeSpecification,
		PhysicalParameters: v.PhysicalParameters,
		ProtocolLimits:     vda5050.DefaultProtocolLimits(),
		ProtocolFeatures: vda5050.ProtocolFeatures{
			OptionalParameters: []vda5050.OptionalParameter{},
			AGVActions:         c.table.AGVActions(),
		},
	}
}
