package vda5050

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version stamped on produced documents.
const Version = "2.0.0"

// Subtopic is the last topic level and selects the document type.
type Subtopic string

const (
	SubtopicOrder          Subtopic = "order"
	SubtopicInstantActions Subtopic = "instantActions"
	SubtopicState          Subtopic = "state"
	SubtopicVisualization  Subtopic = "visualization"
	SubtopicConnection     Subtopic = "connection"
	SubtopicFactsheet      Subtopic = "factsheet"
)

var subtopics = []Subtopic{
	SubtopicOrder,
	SubtopicInstantActions,
	SubtopicState,
	SubtopicVisualization,
	SubtopicConnection,
	SubtopicFactsheet,
}

// ParseSubtopic maps a topic level to a Subtopic.
func ParseSubtopic(s string) (Subtopic, bool) {
	for _, st := range subtopics {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s Subtopic) String() string { return string(s) }

// Downlink reports whether the bridge consumes this subtopic.
func (s Subtopic) Downlink() bool {
	return s == SubtopicOrder || s == SubtopicInstantActions
}

// Message is implemented only by the document types of this package.
type Message interface {
	Subtopic() Subtopic
	GetHeader() *Header
	isMessage()
}

var (
	_ Message = (*Order)(nil)
	_ Message = (*InstantActions)(nil)
	_ Message = (*State)(nil)
	_ Message = (*Visualization)(nil)
	_ Message = (*Connection)(nil)
	_ Message = (*Factsheet)(nil)
)

func (*Order) Subtopic() Subtopic          { return SubtopicOrder }
func (*InstantActions) Subtopic() Subtopic { return SubtopicInstantActions }
func (*State) Subtopic() Subtopic          { return SubtopicState }
func (*Visualization) Subtopic() Subtopic  { return SubtopicVisualization }
func (*Connection) Subtopic() Subtopic     { return SubtopicConnection }
func (*Factsheet) Subtopic() Subtopic      { return SubtopicFactsheet }

func (*Order) isMessage()          {}
func (*InstantActions) isMessage() {}
func (*State) isMessage()          {}
func (*Visualization) isMessage()  {}
func (*Connection) isMessage()     {}
func (*Factsheet) isMessage()      {}

// New returns an empty document for st.
func New(st Subtopic) (Message, error) {
	switch st {
	case SubtopicOrder:
		return &Order{}, nil
	case SubtopicInstantActions:
		return &InstantActions{}, nil
	case SubtopicState:
		return &State{}, nil
	case SubtopicVisualization:
		return &Visualization{}, nil
	case SubtopicConnection:
		return &Connection{}, nil
	case SubtopicFactsheet:
		return &Factsheet{}, nil
	}
	return nil, fmt.Errorf("unknown subtopic %q", st)
}

// Decode unmarshals payload into the document type selected by st.
func Decode(st Subtopic, payload []byte) (Message, error) {
	msg, err := New(st)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", st, err)
	}
	return msg, nil
}

// Validate runs the validator of msg's document type.
func Validate(msg Message) error {
	switch m := msg.(type) {
	case *Order:
		return ValidateOrder(m).ToAggregate()
	case *InstantActions:
		return ValidateInstantActions(m).ToAggregate()
	case *State:
		return ValidateState(m).ToAggregate()
	case *Visualization:
		return ValidateVisualization(m).ToAggregate()
	case *Connection:
		return ValidateConnection(m).ToAggregate()
	case *Factsheet:
		return ValidateFactsheet(m).ToAggregate()
	}
	return fmt.Errorf("unsupported document %T", msg)
}
