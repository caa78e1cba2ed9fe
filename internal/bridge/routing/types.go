package routing

import (
	"fmt"

	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

// PayloadFormat selects how action parameters are laid out in a frame body.
type PayloadFormat string

const (
	FormatEmpty        PayloadFormat = "empty"
	FormatSingleField  PayloadFormat = "singleField"
	FormatBooleanField PayloadFormat = "booleanField"
	FormatPositionData PayloadFormat = "positionData"
	FormatMoveTaskList PayloadFormat = "moveTaskList"
	FormatStatusData   PayloadFormat = "statusData"
	// FormatPathMove is a moveTaskList descriptor from one node to the next.
	FormatPathMove PayloadFormat = "pathMove"
)

var payloadFormats = []PayloadFormat{
	FormatEmpty, FormatSingleField, FormatBooleanField,
	FormatPositionData, FormatMoveTaskList, FormatStatusData, FormatPathMove,
}

// ParamType is the vendor-side type a parameter value is coerced to.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeList    ParamType = "list"
)

var paramTypes = []ParamType{TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeList}

// Priority is a dispatch class. Higher values are dequeued first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityEmergency
)

// NumPriorities is the number of dispatch classes.
const NumPriorities = 3

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityEmergency:
		return "emergency"
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// ParsePriority parses the names printed by Priority.String.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "emergency":
		return PriorityEmergency, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// Parameter declares one action parameter and the vendor field it fills.
type Parameter struct {
	Name     string    `json:"name" yaml:"name"`
	Field    string    `json:"field,omitempty" yaml:"field,omitempty"`
	Type     ParamType `json:"type" yaml:"type"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
}

// FieldName is the JSON key used in the frame body.
func (p Parameter) FieldName() string {
	if p.Field != "" {
		return p.Field
	}
	return p.Name
}

// Mapping routes one VDA5050 action type to a vendor command.
type Mapping struct {
	Action        string               `json:"action" yaml:"action"`
	Port          int                  `json:"port" yaml:"port"`
	MessageType   uint16               `json:"messageType" yaml:"messageType"`
	PayloadFormat PayloadFormat        `json:"payloadFormat" yaml:"payloadFormat"`
	BlockingType  vda5050.BlockingType `json:"blockingType" yaml:"blockingType"`
	Operation     string               `json:"operation,omitempty" yaml:"operation,omitempty"`
	Priority      string               `json:"priority,omitempty" yaml:"priority,omitempty"`
	Safety        bool                 `json:"safety,omitempty" yaml:"safety,omitempty"`
	Parameters    []Parameter          `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// PriorityOverride returns the configured priority, if any. The table
// rejects unparsable values at load time.
func (m *Mapping) PriorityOverride() (Priority, bool) {
	if m.Priority == "" {
		return 0, false
	}
	p, err := ParsePriority(m.Priority)
	if err != nil {
		return 0, false
	}
	return p, true
}
