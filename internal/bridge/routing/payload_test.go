package routing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	table := Default()
	tests := []struct {
		action string
		params map[string]any
		want   map[string]any
	}{
		{"reloc", map[string]any{"isAuto": "true", "x": 1.5, "y": "2", "angle": 0.25},
			map[string]any{"isAuto": true, "x": 1.5, "y": 2.0, "angle": 0.25}},
		{"cancelReloc", nil, map[string]any{}},
		{"pick", map[string]any{}, map[string]any{}},
		{"translate", map[string]any{"dist": 1.2, "vx": 0.3, "mode": 1.0},
			map[string]any{"dist": 1.2, "vx": 0.3, "mode": int64(1)}},
		{"turn", map[string]any{"angle": "3.14"}, map[string]any{"angle": 3.14}},
		{"rotateLoad", map[string]any{"robot_spin_angle": 90, "spin_direction": "1"},
			map[string]any{"robot_spin_angle": 90.0, "spin_direction": int64(1)}},
		{"clearErrors", map[string]any{"error_codes": "52001, 52002"},
			map[string]any{"error_codes": []any{"52001", "52002"}}},
		{"clearErrors", map[string]any{"error_codes": "[52001]"},
			map[string]any{"error_codes": []any{52001.0}}},
		{"grabAuthority", map[string]any{"nick_name": "fleet"}, map[string]any{"nick_name": "fleet"}},
		{"softEmc", map[string]any{"status": "false"}, map[string]any{"status": false}},
		{"stateRequest", nil, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			m := mustLookup(t, table, tt.action)
			body, err := Encode(m, tt.params, Task{Base: "order-1", Index: 1})
			require.NoError(t, err)
			got, err := Decode(m, body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeMoveTaskList(t *testing.T) {
	m := mustLookup(t, Default(), "drop")
	body, err := Encode(m, nil, Task{Base: "order-7", Index: 3})
	require.NoError(t, err)

	var doc struct {
		List []map[string]any `json:"move_task_list"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))
	require.Len(t, doc.List, 1)
	assert.Equal(t, "SELF_POSITION", doc.List[0]["id"])
	assert.Equal(t, "SELF_POSITION", doc.List[0]["source_id"])
	assert.Equal(t, "order-7_3", doc.List[0]["task_id"])
	assert.Equal(t, "JackUnload", doc.List[0]["operation"])
}

func TestEncodePathMove(t *testing.T) {
	m := mustLookup(t, Default(), PathAction)
	body, err := Encode(m, nil, Task{Base: "order-7", Index: 2, Source: "n1", Target: "n2"})
	require.NoError(t, err)

	var doc struct {
		List []map[string]any `json:"move_task_list"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))
	require.Len(t, doc.List, 1)
	assert.Equal(t, map[string]any{"source_id": "n1", "id": "n2", "task_id": "order-7_2"}, doc.List[0])

	_, err = Encode(m, nil, Task{Base: "order-7", Index: 2})
	var ee *bridgeerrors.EncodingError
	assert.ErrorAs(t, err, &ee)
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		typ  ParamType
		in   any
		want any
	}{
		{TypeBoolean, 1.0, true},
		{TypeBoolean, 0.0, false},
		{TypeBoolean, "1", true},
		{TypeBoolean, " false ", false},
		{TypeNumber, "85", 85.0},
		{TypeInteger, 42.0, int64(42)},
		{TypeInteger, -9.2e18, int64(-9.2e18)},
		{TypeString, 7.0, "7"},
	}
	for _, tt := range tests {
		got, err := Coerce(tt.typ, tt.in)
		require.NoError(t, err, "%s %v", tt.typ, tt.in)
		assert.Equal(t, tt.want, got, "%s %v", tt.typ, tt.in)
	}

	for _, in := range []any{9.3e18, -9.3e18, 1e300, 0.5} {
		_, err := Coerce(TypeInteger, in)
		assert.Error(t, err, "%v", in)
	}
	_, err := Coerce(TypeBoolean, nil)
	assert.Error(t, err)
	_, err = Coerce(TypeBoolean, []any{})
	assert.Error(t, err)
}

func TestEncodePositionData(t *testing.T) {
	m := &Mapping{Action: "goto", Port: 19206, MessageType: 3050, PayloadFormat: FormatPositionData, BlockingType: vda5050.BlockingHard}

	body, err := Encode(m, map[string]any{"x": 1, "y": 2, "theta": 0.5}, Task{})
	require.NoError(t, err)
	got, err := Decode(m, body)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1.0, "y": 2.0, "angle": 0.5}, got)

	body, err = Encode(m, map[string]any{"x": 1, "y": 2}, Task{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1,"y":2,"angle":0}`, string(body))

	_, err = Encode(m, map[string]any{"x": 1}, Task{})
	var ee *bridgeerrors.EncodingError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "y", ee.Parameter)
}

func TestEncodeErrors(t *testing.T) {
	table := Default()
	tests := []struct {
		action string
		params map[string]any
		param  string
	}{
		{"translate", map[string]any{"vx": 1}, "dist"},
		{"turn", map[string]any{"angle": "left"}, "angle"},
		{"translate", map[string]any{"dist": 1, "mode": 1.5}, "mode"},
		{"softEmc", map[string]any{}, "status"},
		{"softEmc", map[string]any{"status": "maybe"}, "status"},
		{"translate", map[string]any{"dist": 1, "mode": 1e19}, "mode"},
		{"translate", map[string]any{"dist": 1, "mode": -1e19}, "mode"},
		{"clearErrors", map[string]any{"error_codes": 5}, "error_codes"},
	}
	for _, tt := range tests {
		t.Run(tt.action+"/"+tt.param, func(t *testing.T) {
			_, err := Encode(mustLookup(t, table, tt.action), tt.params, Task{})
			var ee *bridgeerrors.EncodingError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.action, ee.Action)
			assert.Equal(t, tt.param, ee.Parameter)
		})
	}
}

func TestEmptyFormatHasNoBody(t *testing.T) {
	body, err := Encode(mustLookup(t, Default(), "startPause"), map[string]any{"ignored": 1}, Task{})
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestParams(t *testing.T) {
	a := &vda5050.Action{ActionParameters: []vda5050.ActionParameter{{Key: "dist", Value: 1.0}, {Key: "mode", Value: "1"}}}
	assert.Equal(t, map[string]any{"dist": 1.0, "mode": "1"}, Params(a))
}
