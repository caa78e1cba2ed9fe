package routing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

const moveTaskListKey = "move_task_list"

// selfPosition addresses the vehicle's current position in a task descriptor.
const selfPosition = "SELF_POSITION"

// Task identifies a moveTaskList descriptor. Base is the orderId for order
// actions and the headerId for instant actions; Index starts at 1. Source
// and Target name the nodes of a path move.
type Task struct {
	Base   string
	Index  int
	Source string
	Target string
}

// ID renders the vendor task_id.
func (t Task) ID() string { return fmt.Sprintf("%s_%d", t.Base, t.Index) }

// Params flattens action parameters into a map keyed by parameter key.
func Params(a *vda5050.Action) map[string]any {
	out := make(map[string]any, len(a.ActionParameters))
	for _, p := range a.ActionParameters {
		out[p.Key] = p.Value
	}
	return out
}

// Encode renders params as the frame body for m.
func Encode(m *Mapping, params map[string]any, task Task) ([]byte, error) {
	switch m.PayloadFormat {
	case FormatEmpty:
		return nil, nil
	case FormatSingleField, FormatStatusData:
		obj, err := encodeFields(m, params)
		if err != nil {
			return nil, err
		}
		return marshal(m, obj)
	case FormatBooleanField:
		p := m.Parameters[0]
		v, ok := params[p.Name]
		if !ok {
			if p.Required {
				return nil, missing(m, p.Name)
			}
			v = false
		}
		b, err := Coerce(TypeBoolean, v)
		if err != nil {
			return nil, &bridgeerrors.EncodingError{Action: m.Action, Parameter: p.Name, Err: err}
		}
		return marshal(m, map[string]any{p.FieldName(): b})
	case FormatPositionData:
		obj := make(map[string]any, 3)
		for _, k := range []string{"x", "y"} {
			v, ok := params[k]
			if !ok {
				return nil, missing(m, k)
			}
			f, err := Coerce(TypeNumber, v)
			if err != nil {
				return nil, &bridgeerrors.EncodingError{Action: m.Action, Parameter: k, Err: err}
			}
			obj[k] = f
		}
		obj["angle"] = 0.0
		for _, k := range []string{"angle", "theta"} {
			if v, ok := params[k]; ok {
				f, err := Coerce(TypeNumber, v)
				if err != nil {
					return nil, &bridgeerrors.EncodingError{Action: m.Action, Parameter: k, Err: err}
				}
				obj["angle"] = f
				break
			}
		}
		return marshal(m, obj)
	case FormatMoveTaskList:
		obj, err := encodeFields(m, params)
		if err != nil {
			return nil, err
		}
		obj["id"] = selfPosition
		obj["source_id"] = selfPosition
		obj["task_id"] = task.ID()
		obj["operation"] = m.Operation
		return marshal(m, map[string]any{moveTaskListKey: []any{obj}})
	case FormatPathMove:
		if task.Source == "" || task.Target == "" {
			return nil, &bridgeerrors.EncodingError{Action: m.Action, Err: errors.New("path move needs a source and a target node")}
		}
		obj, err := encodeFields(m, params)
		if err != nil {
			return nil, err
		}
		obj["source_id"] = task.Source
		obj["id"] = task.Target
		obj["task_id"] = task.ID()
		return marshal(m, map[string]any{moveTaskListKey: []any{obj}})
	}
	return nil, &bridgeerrors.EncodingError{Action: m.Action, Err: fmt.Errorf("unsupported payload format %q", m.PayloadFormat)}
}

func encodeFields(m *Mapping, params map[string]any) (map[string]any, error) {
	obj := make(map[string]any, len(m.Parameters))
	for _, p := range m.Parameters {
		v, ok := params[p.Name]
		if !ok {
			if p.Required {
				return nil, missing(m, p.Name)
			}
			continue
		}
		cv, err := Coerce(p.Type, v)
		if err != nil {
			return nil, &bridgeerrors.EncodingError{Action: m.Action, Parameter: p.Name, Err: err}
		}
		obj[p.FieldName()] = cv
	}
	return obj, nil
}

func marshal(m *Mapping, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, &bridgeerrors.EncodingError{Action: m.Action, Err: err}
	}
	return b, nil
}

func missing(m *Mapping, name string) error {
	return &bridgeerrors.EncodingError{Action: m.Action, Parameter: name, Err: errors.New("required parameter missing")}
}

// Decode recovers the coerced parameters from a body produced by Encode.
func Decode(m *Mapping, body []byte) (map[string]any, error) {
	out := map[string]any{}
	if m.PayloadFormat == FormatEmpty {
		if len(body) != 0 {
			return nil, fmt.Errorf("%s: unexpected body for empty payload", m.Action)
		}
		return out, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Action, err)
	}

	switch m.PayloadFormat {
	case FormatPositionData:
		for _, k := range []string{"x", "y", "angle"} {
			f, err := Coerce(TypeNumber, obj[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", m.Action, k, err)
			}
			out[k] = f
		}
		return out, nil
	case FormatMoveTaskList, FormatPathMove:
		list, ok := obj[moveTaskListKey].([]any)
		if !ok || len(list) == 0 {
			return nil, fmt.Errorf("%s: %s missing", m.Action, moveTaskListKey)
		}
		if obj, ok = list[0].(map[string]any); !ok {
			return nil, fmt.Errorf("%s: task descriptor is not an object", m.Action)
		}
	}

	for _, p := range m.Parameters {
		v, ok := obj[p.FieldName()]
		if !ok {
			continue
		}
		cv, err := Coerce(p.Type, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", m.Action, p.Name, err)
		}
		out[p.Name] = cv
	}
	return out, nil
}

// Coerce converts a decoded JSON value to t. Numbers may arrive as strings,
// and booleans as strings or numbers, where any non-zero number is true.
func Coerce(t ParamType, v any) (any, error) {
	switch t {
	case TypeNumber:
		return toFloat(v)
	case TypeInteger:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which is out of range.
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("%v is out of the int64 range", v)
		}
		return int64(f), nil
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(b))
		case nil:
			return nil, errors.New("null is not a boolean")
		}
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%v (%T) is not a boolean", v, v)
		}
		return f != 0, nil
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case nil:
			return nil, errors.New("null is not a string")
		}
		return fmt.Sprint(v), nil
	case TypeList:
		return toList(v)
	}
	return nil, fmt.Errorf("unknown type %q", t)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("%v (%T) is not a number", v, v)
}

func toList(v any) ([]any, error) {
	switch l := v.(type) {
	case []any:
		return l, nil
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, nil
	case string:
		s := strings.TrimSpace(l)
		if strings.HasPrefix(s, "[") {
			var out []any
			if err := json.Unmarshal([]byte(s), &out); err != nil {
				return nil, fmt.Errorf("list: %w", err)
			}
			return out, nil
		}
		out := []any{}
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%v (%T) is not a list", v, v)
}
