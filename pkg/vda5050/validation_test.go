package vda5050

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder(nodeSeqs []int64, edgeSeqs []int64) *Order {
	o := &Order{
		Header:  Header{Manufacturer: "acme", SerialNumber: "AGV-1"},
		OrderID: "order-1",
	}
	for i, s := range nodeSeqs {
		o.Nodes = append(o.Nodes, Node{NodeID: nodeID(i), SequenceID: s})
	}
	for i, s := range edgeSeqs {
		o.Edges = append(o.Edges, Edge{EdgeID: "e" + nodeID(i), SequenceID: s, StartNodeID: nodeID(i), EndNodeID: nodeID(i + 1)})
	}
	return o
}

func nodeID(i int) string { return string(rune('A' + i)) }

func TestValidateOrder(t *testing.T) {
	tests := []struct {
		name    string
		order   *Order
		wantErr bool
	}{
		{"valid interleaved", testOrder([]int64{0, 2, 4}, []int64{1, 3}), false},
		{"valid single node", testOrder([]int64{0}, nil), false},
		{"duplicate node sequence", testOrder([]int64{0, 1, 1}, nil), true},
		{"decreasing node sequence", testOrder([]int64{2, 1}, nil), true},
		{"edge reuses node sequence", testOrder([]int64{0, 2}, []int64{2}), true},
		{"negative sequence", testOrder([]int64{-1}, nil), true},
		{"no nodes", testOrder(nil, nil), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateOrder(tt.order)
			if tt.wantErr {
				assert.NotEmpty(t, errs)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidateOrderFields(t *testing.T) {
	o := testOrder([]int64{0, 2}, []int64{1})
	o.OrderID = ""
	o.OrderUpdateID = -1
	o.Edges[0].EndNodeID = "nowhere"
	o.Nodes[0].Actions = []Action{{ActionType: "pick", ActionID: "a1", BlockingType: "SOMETIMES"}}

	errs := ValidateOrder(o)
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	assert.True(t, fields["orderId"])
	assert.True(t, fields["orderUpdateId"])
	assert.True(t, fields["edges[0].endNodeId"])
	assert.True(t, fields["nodes[0].actions[0].blockingType"])
}

func TestValidateInstantActionsDuplicateIDs(t *testing.T) {
	ia := &InstantActions{
		Header: Header{Manufacturer: "acme", SerialNumber: "AGV-1"},
		Actions: []Action{
			{ActionType: "startPause", ActionID: "x", BlockingType: BlockingHard},
			{ActionType: "stopPause", ActionID: "x", BlockingType: BlockingHard},
		},
	}
	errs := ValidateInstantActions(ia)
	require.Len(t, errs, 1)
	assert.Equal(t, "actions[1].actionId", errs[0].Field)
}

func TestOrderElementsAreSortedBySequence(t *testing.T) {
	o := testOrder([]int64{0, 2, 4}, []int64{1, 3})
	o.Nodes[1].Actions = []Action{{ActionType: "pick", ActionID: "p"}}
	o.Edges[0].Actions = []Action{{ActionType: "turn", ActionID: "t"}}
	o.Nodes[2].Actions = []Action{{ActionType: "drop", ActionID: "d"}}

	var ids []string
	for _, e := range o.Elements() {
		ids = append(ids, e.ID())
	}
	assert.Equal(t, []string{"A", "eA", "B", "eB", "C"}, ids)

	var types []string
	for _, a := range o.Actions() {
		types = append(types, a.ActionType)
	}
	assert.Equal(t, []string{"turn", "pick", "drop"}, types)
}

func TestDecodeSelectsTypeBySubtopic(t *testing.T) {
	msg, err := Decode(SubtopicInstantActions, []byte(`{"headerId":3,"manufacturer":"acme","serialNumber":"AGV-1","actions":[{"actionType":"startPause","actionId":"a","blockingType":"HARD"}]}`))
	require.NoError(t, err)
	ia, ok := msg.(*InstantActions)
	require.True(t, ok)
	assert.EqualValues(t, 3, ia.GetHeader().HeaderID)
	assert.NoError(t, Validate(ia))

	_, err = Decode(Subtopic("telemetry"), []byte(`{}`))
	assert.Error(t, err)

	_, err = Decode(SubtopicOrder, []byte(`{"orderId":`))
	assert.Error(t, err)
}

func TestParseSubtopic(t *testing.T) {
	st, ok := ParseSubtopic("order")
	require.True(t, ok)
	assert.True(t, st.Downlink())

	st, ok = ParseSubtopic("state")
	require.True(t, ok)
	assert.False(t, st.Downlink())

	_, ok = ParseSubtopic("Order")
	assert.False(t, ok)
}

func TestValidateConnection(t *testing.T) {
	c := &Connection{Header: Header{Manufacturer: "acme", SerialNumber: "AGV-1"}, ConnectionState: "MAYBE"}
	assert.Error(t, Validate(c))
	c.ConnectionState = ConnectionOnline
	assert.NoError(t, Validate(c))
}
