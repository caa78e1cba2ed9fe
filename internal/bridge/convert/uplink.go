package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

// HighControllerTemp is the controller temperature above which the
// temperature information is raised to WARNING.
const HighControllerTemp = 70.0

// StatusReport is one status push received from a vehicle.
type StatusReport struct {
	Vehicle     fleet.Identity
	MessageType uint16
	Payload     []byte
	ReceivedAt  time.Time
}

// Text accepts JSON strings and numbers.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*t = Text(n.String())
	return nil
}

// Status is the status push body. Absent fields keep their zero value.
type Status struct {
	X              *float64
	Y              *float64
	Angle          *float64
	CurrentMap     Text
	Confidence     *float64
	Vx             *float64
	Vy             *float64
	W              *float64
	IsStop         *bool
	CurrentStation Text
	TaskStatus     Text
	TaskType       Text
	TargetDist     *float64
	BatteryLevel   float64
	Voltage        *float64
	Charging       bool
	Errors         []any
	Warnings       []any
	Emergency      bool
	SoftEmc        bool
	Blocked        bool
	Fork           json.RawMessage
	Jack           json.RawMessage
	SSID           Text
	RSSI           *float64
	ControllerTemp *float64
	Odo            *float64
	CreateOn       *float64
}

// DecodeStatus reads a status push field by field. A field of the wrong
// type keeps its zero value and adds a warning; only a body that is not a
// JSON object fails.
func DecodeStatus(payload []byte) (*Status, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, nil, err
	}
	d := &statusDecoder{raw: raw}
	s := &Status{
		X:              d.number("x"),
		Y:              d.number("y"),
		Angle:          d.number("angle"),
		CurrentMap:     d.text("current_map"),
		Confidence:     d.number("confidence"),
		Vx:             d.number("vx"),
		Vy:             d.number("vy"),
		W:              d.number("w"),
		IsStop:         d.flag("is_stop"),
		CurrentStation: d.text("current_station"),
		TaskStatus:     d.text("task_status"),
		TaskType:       d.text("task_type"),
		TargetDist:     d.number("target_dist"),
		BatteryLevel:   deref(d.number("battery_level")),
		Voltage:        d.number("voltage"),
		Charging:       derefBool(d.flag("charging")),
		Errors:         d.list("errors"),
		Warnings:       d.list("warnings"),
		Emergency:      derefBool(d.flag("emergency")),
		SoftEmc:        derefBool(d.flag("soft_emc")),
		Blocked:        derefBool(d.flag("blocked")),
		Fork:           raw["fork"],
		Jack:           raw["jack"],
		SSID:           d.text("ssid"),
		RSSI:           d.number("rssi"),
		ControllerTemp: d.number("controller_temp"),
		Odo:            d.number("odo"),
		CreateOn:       d.number("create_on"),
	}
	return s, d.warnings, nil
}

type statusDecoder struct {
	raw      map[string]json.RawMessage
	warnings []string
}

// value returns the decoded field, or false when it is absent or null.
func (d *statusDecoder) value(key string) (any, bool) {
	b, ok := d.raw[key]
	if !ok || !present(b) {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		d.warn(key, err)
		return nil, false
	}
	return v, true
}

func (d *statusDecoder) warn(key string, err error) {
	d.warnings = append(d.warnings, fmt.Sprintf("ignoring field %s: %v", key, err))
}

func (d *statusDecoder) number(key string) *float64 {
	v, ok := d.value(key)
	if !ok {
		return nil
	}
	n, err := routing.Coerce(routing.TypeNumber, v)
	if err != nil {
		d.warn(key, err)
		return nil
	}
	f := n.(float64)
	return &f
}

func (d *statusDecoder) flag(key string) *bool {
	v, ok := d.value(key)
	if !ok {
		return nil
	}
	b, err := routing.Coerce(routing.TypeBoolean, v)
	if err != nil {
		d.warn(key, err)
		return nil
	}
	f := b.(bool)
	return &f
}

func (d *statusDecoder) text(key string) Text {
	b, ok := d.raw[key]
	if !ok {
		return ""
	}
	var t Text
	if err := json.Unmarshal(b, &t); err != nil {
		d.warn(key, err)
		return ""
	}
	return t
}

func (d *statusDecoder) list(key string) []any {
	v, ok := d.value(key)
	if !ok {
		return nil
	}
	switch l := v.(type) {
	case []any:
		return l
	case string:
		if l == "" {
			return nil
		}
	}
	return []any{v}
}

// Documents is the uplink conversion of one status report. Safety is a
// *FatalSafetyError when the report demands a suspension.
type Documents struct {
	State         *vda5050.State
	Visualization *vda5050.Visualization
	Safety        error
	Warnings      []string
}

// ConvertStatus maps a status push to state and visualization documents.
// Headers carry only identity and timestamp.
func ConvertStatus(report StatusReport) (*Documents, error) {
	s, warnings, err := DecodeStatus(report.Payload)
	if err != nil {
		return nil, &bridgeerrors.ProtocolViolationError{
			Vehicle: report.Vehicle.SerialNumber, Reason: "malformed status push", Err: err,
		}
	}

	header := vda5050.Header{
		Timestamp:    report.ReceivedAt.UTC().Format(time.RFC3339Nano),
		Version:      vda5050.Version,
		Manufacturer: report.Vehicle.Manufacturer,
		SerialNumber: report.Vehicle.SerialNumber,
	}
	docs := &Documents{Warnings: warnings}
	st := &vda5050.State{
		Header:        header,
		LastNodeID:    string(s.CurrentStation),
		Driving:       s.IsStop != nil && !*s.IsStop,
		OperatingMode: OperatingMode(s.Emergency, s.Charging, s.SoftEmc),
		NodeStates:    []vda5050.NodeState{},
		EdgeStates:    []vda5050.EdgeState{},
		ActionStates:  []vda5050.ActionState{},
		Errors:        []vda5050.Error{},
		BatteryState: vda5050.BatteryState{
			BatteryCharge:  s.BatteryLevel,
			BatteryVoltage: s.Voltage,
			Charging:       s.Charging,
		},
		DistanceSinceLastNode: s.TargetDist,
		SafetyState:           SafetyState(s.Emergency, s.SoftEmc, s.Blocked),
	}
	if s.CurrentMap != "" {
		st.Maps = []vda5050.Map{{MapID: string(s.CurrentMap), MapVersion: "1.0.0", MapStatus: "ENABLED"}}
	}

	if s.X != nil && s.Y != nil {
		st.AGVPosition = &vda5050.AGVPosition{
			X:                   *s.X,
			Y:                   *s.Y,
			Theta:               deref(s.Angle),
			MapID:               string(s.CurrentMap),
			PositionInitialized: true,
			LocalizationScore:   s.Confidence,
		}
	}
	if s.Vx != nil || s.Vy != nil || s.W != nil {
		st.Velocity = &vda5050.Velocity{Vx: deref(s.Vx), Vy: deref(s.Vy), Omega: deref(s.W)}
	}

	if taskType := strings.TrimSpace(string(s.TaskType)); taskType != "" && !strings.EqualFold(taskType, "NONE") {
		status, known := TaskStatus(string(s.TaskStatus))
		if !known {
			docs.Warnings = append(docs.Warnings, fmt.Sprintf("unknown task_status %q", s.TaskStatus))
		}
		if strings.EqualFold(string(s.TaskStatus), "PAUSED") {
			paused := true
			st.Paused = &paused
		}
		st.ActionStates = append(st.ActionStates, vda5050.ActionState{
			ActionID:          "task-" + strings.ToLower(taskType),
			ActionType:        taskType,
			ActionStatus:      status,
			ResultDescription: string(s.TaskStatus),
		})
	}

	fatal := false
	for _, e := range s.Errors {
		fatal = true
		st.Errors = append(st.Errors, vda5050.Error{
			ErrorType: "DEVICE_ERROR", ErrorDescription: describe(e), ErrorLevel: vda5050.ErrorLevelFatal,
		})
	}
	for _, w := range s.Warnings {
		st.Errors = append(st.Errors, vda5050.Error{
			ErrorType: "DEVICE_WARNING", ErrorDescription: describe(w), ErrorLevel: vda5050.ErrorLevelWarning,
		})
	}
	st.Information = information(s)
	st.Loads = loads(s)

	switch {
	case s.Emergency:
		docs.Safety = &bridgeerrors.FatalSafetyError{Vehicle: report.Vehicle.SerialNumber, Reason: "emergency stop"}
	case fatal:
		docs.Safety = &bridgeerrors.FatalSafetyError{Vehicle: report.Vehicle.SerialNumber, Reason: "fatal device error"}
	}

	docs.State = st
	docs.Visualization = &vda5050.Visualization{Header: header, AGVPosition: st.AGVPosition, Velocity: st.Velocity}
	return docs, nil
}

// OperatingMode applies emergency, charging, soft emergency precedence.
func OperatingMode(emergency, charging, softEmc bool) vda5050.OperatingMode {
	switch {
	case emergency:
		return vda5050.OperatingModeEmergency
	case charging:
		return vda5050.OperatingModeService
	case softEmc:
		return vda5050.OperatingModeSemiautomatic
	}
	return vda5050.OperatingModeAutomatic
}

// TaskStatus maps a vendor task status. Unknown values map to FAILED and
// report false.
func TaskStatus(s string) (vda5050.ActionStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IDLE", "PAUSED":
		return vda5050.ActionStatusWaiting, true
	case "RUNNING":
		return vda5050.ActionStatusRunning, true
	case "COMPLETED":
		return vda5050.ActionStatusFinished, true
	case "FAILED", "CANCELED":
		return vda5050.ActionStatusFailed, true
	}
	return vda5050.ActionStatusFailed, false
}

func SafetyState(emergency, softEmc, blocked bool) vda5050.SafetyState {
	eStop := vda5050.EStopAutoAck
	if emergency || softEmc {
		eStop = vda5050.EStopTriggered
	}
	return vda5050.SafetyState{EStop: eStop, FieldViolation: blocked}
}

func information(s *Status) []vda5050.Information {
	var info []vda5050.Information
	if s.Confidence != nil {
		info = append(info, vda5050.Information{
			InfoType: "LOCALIZATION", InfoLevel: vda5050.InfoLevelInfo,
			InfoDescription: "confidence " + formatFloat(*s.Confidence),
		})
	}
	if s.SSID != "" && s.RSSI != nil {
		info = append(info, vda5050.Information{
			InfoType: "NETWORK", InfoLevel: vda5050.InfoLevelInfo,
			InfoDescription: fmt.Sprintf("wifi %s rssi %sdBm", s.SSID, formatFloat(*s.RSSI)),
		})
	}
	if s.ControllerTemp != nil {
		level := vda5050.InfoLevelInfo
		if *s.ControllerTemp > HighControllerTemp {
			level = vda5050.InfoLevelWarning
		}
		info = append(info, vda5050.Information{
			InfoType: "TEMPERATURE", InfoLevel: level,
			InfoDescription: "controller " + formatFloat(*s.ControllerTemp) + "C",
		})
	}
	if s.Odo != nil {
		info = append(info, vda5050.Information{
			InfoType: "STATISTICS", InfoLevel: vda5050.InfoLevelInfo,
			InfoDescription: "odometer " + formatFloat(*s.Odo) + "m",
		})
	}
	return info
}

func loads(s *Status) []vda5050.Load {
	var out []vda5050.Load
	if present(s.Fork) {
		out = append(out, vda5050.Load{LoadID: "fork_load", LoadType: "PALLET", LoadPosition: "FORK"})
	}
	if present(s.Jack) {
		out = append(out, vda5050.Load{LoadID: "jack_load", LoadType: "RACK", LoadPosition: "JACK"})
	}
	return out
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func describe(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatFloat(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func derefBool(b *bool) bool {
	return b != nil && *b
}
