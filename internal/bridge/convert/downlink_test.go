package convert

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

var agv = fleet.Identity{Manufacturer: "SEER", SerialNumber: "AGV-1", Address: "10.0.0.1"}

func newDownlink() *Downlink {
	d := NewDownlink(routing.Default(), clocktesting.NewFakePassiveClock(time.Unix(1700000000, 0)))
	n := 0
	d.newID = func() string {
		n++
		return fmt.Sprintf("cmd-%d", n)
	}
	return d
}

func action(id, typ string, params ...vda5050.ActionParameter) vda5050.Action {
	return vda5050.Action{ActionID: id, ActionType: typ, BlockingType: vda5050.BlockingHard, ActionParameters: params}
}

func testOrder() *vda5050.Order {
	return &vda5050.Order{
		Header:        vda5050.Header{HeaderID: 1, Manufacturer: "SEER", SerialNumber: "AGV-1"},
		OrderID:       "order-1",
		OrderUpdateID: 0,
		Nodes: []vda5050.Node{
			{NodeID: "n1", SequenceID: 0, Released: true, Actions: []vda5050.Action{action("a1", "pick")}},
			{NodeID: "n2", SequenceID: 2, Released: true, Actions: []vda5050.Action{
				action("a3", "turn", vda5050.ActionParameter{Key: "angle", Value: 1.57}),
				action("a4", "drop"),
			}},
		},
		Edges: []vda5050.Edge{
			{EdgeID: "e1", SequenceID: 1, Released: true, StartNodeID: "n1", EndNodeID: "n2", Actions: []vda5050.Action{
				action("a2", "translate", vda5050.ActionParameter{Key: "dist", Value: 2.0}),
			}},
		},
	}
}

func TestConvertOrderSequenceOrder(t *testing.T) {
	cmds, rejections, err := newDownlink().ConvertOrder(agv, testOrder())
	require.NoError(t, err)
	assert.Empty(t, rejections)

	var ids []string
	for _, c := range cmds {
		ids = append(ids, c.ActionID)
		assert.Equal(t, routing.PriorityNormal, c.Priority)
		assert.Equal(t, "order-1", c.OrderID)
	}
	assert.Equal(t, []string{"a1", "e1", "a2", "a3", "a4"}, ids)

	var doc struct {
		List []map[string]any `json:"move_task_list"`
	}
	require.NoError(t, json.Unmarshal(cmds[4].Payload, &doc))
	assert.Equal(t, "order-1_5", doc.List[0]["task_id"])
	assert.Equal(t, "JackUnload", doc.List[0]["operation"])

	assert.Equal(t, routing.PathAction, cmds[1].ActionType)
	assert.Equal(t, vda5050.BlockingHard, cmds[1].Mapping.BlockingType)
	doc.List = nil
	require.NoError(t, json.Unmarshal(cmds[1].Payload, &doc))
	assert.Equal(t, map[string]any{"source_id": "n1", "id": "n2", "task_id": "order-1_2"}, doc.List[0])
	assert.Equal(t, "cmd-1", cmds[0].CorrelationID)
	assert.Equal(t, time.Unix(1700000000, 0), cmds[0].CreatedAt)
}

func TestConvertOrderRejectsOneAction(t *testing.T) {
	order := testOrder()
	order.Nodes[1].Actions[0] = action("a3", "fly")

	cmds, rejections, err := newDownlink().ConvertOrder(agv, order)
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, "a3", rejections[0].ActionID)
	var re *bridgeerrors.RoutingError
	assert.ErrorAs(t, rejections[0].Err, &re)

	var ids []string
	for _, c := range cmds {
		ids = append(ids, c.ActionID)
	}
	assert.Equal(t, []string{"a1", "e1", "a2", "a4"}, ids)

	e := RejectionError(rejections[0], order.OrderID)
	assert.Equal(t, "orderError", e.ErrorType)
	assert.Equal(t, vda5050.ErrorLevelWarning, e.ErrorLevel)
	assert.Equal(t, "orderId", e.ErrorReferences[0].ReferenceKey)
}

func TestConvertOrderPathOnly(t *testing.T) {
	order := &vda5050.Order{
		Header:  vda5050.Header{HeaderID: 1, Manufacturer: "SEER", SerialNumber: "AGV-1"},
		OrderID: "order-2",
		Nodes: []vda5050.Node{
			{NodeID: "n1", SequenceID: 0, Released: true},
			{NodeID: "n2", SequenceID: 2, Released: true},
			{NodeID: "n3", SequenceID: 4, Released: true},
		},
		Edges: []vda5050.Edge{
			{EdgeID: "e1", SequenceID: 1, Released: true, StartNodeID: "n1", EndNodeID: "n2"},
			{EdgeID: "e2", SequenceID: 3, Released: true, StartNodeID: "n2", EndNodeID: "n3"},
		},
	}

	cmds, rejections, err := newDownlink().ConvertOrder(agv, order)
	require.NoError(t, err)
	assert.Empty(t, rejections)
	require.Len(t, cmds, 2)

	var doc struct {
		List []map[string]any `json:"move_task_list"`
	}
	for i, want := range []map[string]any{
		{"source_id": "n1", "id": "n2", "task_id": "order-2_1"},
		{"source_id": "n2", "id": "n3", "task_id": "order-2_2"},
	} {
		require.NoError(t, json.Unmarshal(cmds[i].Payload, &doc))
		assert.Equal(t, want, doc.List[0])
		assert.Equal(t, "order-2", cmds[i].OrderID)
	}
}

func TestConvertOrderWithoutPathMapping(t *testing.T) {
	var mappings []routing.Mapping
	for _, m := range routing.DefaultMappings() {
		if m.Action != routing.PathAction {
			mappings = append(mappings, m)
		}
	}
	table, err := routing.NewTable(mappings, nil)
	require.NoError(t, err)

	_, rejections, err := NewDownlink(table, nil).ConvertOrder(agv, testOrder())
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, "e1", rejections[0].ActionID)
	assert.Equal(t, routing.PathAction, rejections[0].ActionType)
	var re *bridgeerrors.RoutingError
	assert.ErrorAs(t, rejections[0].Err, &re)
}

func TestConvertOrderEncodingRejection(t *testing.T) {
	order := testOrder()
	order.Edges[0].Actions[0] = action("a2", "translate")

	_, rejections, err := newDownlink().ConvertOrder(agv, order)
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	var ee *bridgeerrors.EncodingError
	require.ErrorAs(t, rejections[0].Err, &ee)
	assert.Equal(t, "dist", ee.Parameter)
}

func TestConvertOrderProtocolViolation(t *testing.T) {
	order := testOrder()
	order.Edges = nil
	order.Nodes = []vda5050.Node{{NodeID: "n1", SequenceID: 0}, {NodeID: "n2", SequenceID: 1}, {NodeID: "n3", SequenceID: 1}}

	cmds, rejections, err := newDownlink().ConvertOrder(agv, order)
	var pv *bridgeerrors.ProtocolViolationError
	require.ErrorAs(t, err, &pv)
	assert.Nil(t, cmds)
	assert.Nil(t, rejections)
}

func TestConvertInstantActions(t *testing.T) {
	ia := &vda5050.InstantActions{
		Header: vda5050.Header{HeaderID: 42, Manufacturer: "SEER", SerialNumber: "AGV-1"},
		Actions: []vda5050.Action{
			action("i1", "startPause"),
			action("i2", "factsheetRequest"),
			action("i3", "stateRequest"),
			action("i4", "liftUp"),
			action("i5", "softEmc", vda5050.ActionParameter{Key: "status", Value: true}),
			action("i6", routing.PathAction),
		},
	}
	cmds, rejections, err := newDownlink().ConvertInstantActions(agv, ia)
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	assert.Equal(t, "i1", cmds[0].ActionID)
	assert.Equal(t, routing.PriorityEmergency, cmds[0].Priority)
	assert.Equal(t, "i3", cmds[1].ActionID)
	assert.Equal(t, routing.PriorityLow, cmds[1].Priority)
	assert.JSONEq(t, `{"status":true}`, string(cmds[2].Payload))

	require.Len(t, rejections, 2)
	assert.Equal(t, "liftUp", rejections[0].ActionType)
	assert.Equal(t, routing.PathAction, rejections[1].ActionType)
	e := RejectionError(rejections[0], "")
	assert.Equal(t, "instantActionError", e.ErrorType)
}
