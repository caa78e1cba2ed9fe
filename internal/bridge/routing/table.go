package routing

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation/field"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

// LocalActions are answered by the bridge itself and need no mapping.
var LocalActions = sets.New("factsheetRequest")

// PathAction routes the traversal of an order edge. It is never accepted as
// a VDA5050 action type.
const PathAction = "traverseEdge"

// Table is the immutable action routing table. Lookups are safe for
// concurrent use.
type Table struct {
	mappings []Mapping
	byAction map[string]*Mapping
	byCode   map[portCode][]*Mapping
	features sets.Set[string]
}

type portCode struct {
	port        int
	messageType uint16
}

// NewTable validates mappings and builds a table. Every action named in
// features must either be mapped or be one of LocalActions. An empty
// features list declares every mapped action.
func NewTable(mappings []Mapping, features []string) (*Table, error) {
	t := &Table{
		mappings: make([]Mapping, len(mappings)),
		byAction: make(map[string]*Mapping, len(mappings)),
		byCode:   make(map[portCode][]*Mapping),
	}
	copy(t.mappings, mappings)

	var errs field.ErrorList
	root := field.NewPath("mappings")
	for i := range t.mappings {
		m := &t.mappings[i]
		p := root.Index(i)
		errs = append(errs, validateMapping(m, p)...)
		if m.Action == "" {
			continue
		}
		if _, dup := t.byAction[m.Action]; dup {
			errs = append(errs, field.Duplicate(p.Child("action"), m.Action))
			continue
		}
		t.byAction[m.Action] = m
		pc := portCode{port: m.Port, messageType: m.MessageType}
		t.byCode[pc] = append(t.byCode[pc], m)
	}

	for pc, group := range t.byCode {
		if len(group) < 2 {
			continue
		}
		seen := sets.New[string]()
		for _, m := range group {
			if seen.Has(m.Operation) {
				errs = append(errs, field.Duplicate(root.Key(m.Action),
					fmt.Sprintf("%d/%d shared without a distinct operation", pc.port, pc.messageType)))
				continue
			}
			seen.Insert(m.Operation)
		}
	}

	t.features = sets.New(features...)
	if t.features.Len() == 0 {
		t.features = sets.KeySet(t.byAction).Delete(PathAction)
	}
	if t.features.Has(PathAction) {
		errs = append(errs, field.Forbidden(field.NewPath("features"), PathAction+" is not a VDA5050 action"))
	}
	for _, name := range sets.List(t.features) {
		if _, ok := t.byAction[name]; !ok && !LocalActions.Has(name) {
			errs = append(errs, field.NotFound(field.NewPath("features"), name))
		}
	}

	if len(errs) > 0 {
		return nil, errs.ToAggregate()
	}
	return t, nil
}

func validateMapping(m *Mapping, p *field.Path) field.ErrorList {
	var errs field.ErrorList
	if m.Action == "" {
		errs = append(errs, field.Required(p.Child("action"), ""))
	}
	if m.Port <= 0 || m.Port > 65535 {
		errs = append(errs, field.Invalid(p.Child("port"), m.Port, "must be a TCP port"))
	}
	if m.MessageType == 0 {
		errs = append(errs, field.Required(p.Child("messageType"), ""))
	}
	if !formatSupported(m.PayloadFormat) {
		errs = append(errs, field.NotSupported(p.Child("payloadFormat"), m.PayloadFormat, payloadFormats))
	}
	if !m.BlockingType.Valid() {
		errs = append(errs, field.NotSupported(p.Child("blockingType"), m.BlockingType,
			[]vda5050.BlockingType{vda5050.BlockingNone, vda5050.BlockingSoft, vda5050.BlockingHard}))
	}
	if m.PayloadFormat == FormatMoveTaskList && m.Operation == "" {
		errs = append(errs, field.Required(p.Child("operation"), "moveTaskList needs an operation"))
	}
	if m.PayloadFormat != FormatMoveTaskList && m.Operation != "" {
		errs = append(errs, field.Forbidden(p.Child("operation"), "only moveTaskList carries an operation"))
	}
	if m.Priority != "" {
		if _, err := ParsePriority(m.Priority); err != nil {
			errs = append(errs, field.NotSupported(p.Child("priority"), m.Priority, []string{"emergency", "normal", "low"}))
		}
	}

	params := p.Child("parameters")
	names := sets.New[string]()
	fields := sets.New[string]()
	for i, prm := range m.Parameters {
		pp := params.Index(i)
		if prm.Name == "" {
			errs = append(errs, field.Required(pp.Child("name"), ""))
		} else if names.Has(prm.Name) {
			errs = append(errs, field.Duplicate(pp.Child("name"), prm.Name))
		}
		names.Insert(prm.Name)
		if fields.Has(prm.FieldName()) {
			errs = append(errs, field.Duplicate(pp.Child("field"), prm.FieldName()))
		}
		fields.Insert(prm.FieldName())
		if !typeSupported(prm.Type) {
			errs = append(errs, field.NotSupported(pp.Child("type"), prm.Type, paramTypes))
		}
	}
	switch m.PayloadFormat {
	case FormatEmpty:
		if len(m.Parameters) > 0 {
			errs = append(errs, field.Forbidden(params, "empty payloads take no parameters"))
		}
	case FormatBooleanField:
		if len(m.Parameters) != 1 || m.Parameters[0].Type != TypeBoolean {
			errs = append(errs, field.Invalid(params, len(m.Parameters), "booleanField needs exactly one boolean parameter"))
		}
	case FormatPositionData:
		if len(m.Parameters) > 0 {
			errs = append(errs, field.Forbidden(params, "positionData uses the fixed x, y and angle fields"))
		}
	}
	return errs
}

func formatSupported(f PayloadFormat) bool {
	for _, v := range payloadFormats {
		if v == f {
			return true
		}
	}
	return false
}

func typeSupported(t ParamType) bool {
	for _, v := range paramTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Lookup returns the mapping for an action type, or a *RoutingError.
func (t *Table) Lookup(action string) (*Mapping, error) {
	m, ok := t.byAction[action]
	if !ok {
		return nil, &bridgeerrors.RoutingError{Action: action}
	}
	return m, nil
}

// Mappings returns the entries in load order.
func (t *Table) Mappings() []Mapping {
	out := make([]Mapping, len(t.mappings))
	copy(out, t.mappings)
	return out
}

// Features returns the declared protocol features, sorted.
func (t *Table) Features() []string {
	return sets.List(t.features)
}

// Ports returns the distinct command ports, sorted.
func (t *Table) Ports() []int {
	ports := sets.New[int]()
	for _, m := range t.mappings {
		ports.Insert(m.Port)
	}
	return sets.List(ports)
}

// Responds reports whether code on port answers a mapped request, that is
// code equals a mapped request code plus offset.
func (t *Table) Responds(port int, code, offset uint16) bool {
	if code < offset {
		return false
	}
	_, ok := t.byCode[portCode{port: port, messageType: code - offset}]
	return ok
}

// AGVActions describes the declared features for a factsheet.
func (t *Table) AGVActions() []vda5050.AGVAction {
	actions := make([]vda5050.AGVAction, 0, t.features.Len())
	for _, name := range sets.List(t.features) {
		a := vda5050.AGVAction{
			ActionType:   name,
			ActionScopes: []string{"INSTANT"},
		}
		if m, ok := t.byAction[name]; ok {
			if m.PayloadFormat == FormatMoveTaskList {
				a.ActionScopes = []string{"NODE"}
			} else if m.BlockingType != vda5050.BlockingNone {
				a.ActionScopes = []string{"INSTANT", "NODE"}
			}
			a.BlockingTypes = []vda5050.BlockingType{m.BlockingType}
			for _, p := range m.Parameters {
				a.ActionParameters = append(a.ActionParameters, vda5050.ActionParameterSpec{
					Key:           p.Name,
					ValueDataType: valueDataType(p.Type),
					IsOptional:    !p.Required,
				})
			}
		}
		actions = append(actions, a)
	}
	return actions
}

func valueDataType(t ParamType) string {
	switch t {
	case TypeNumber:
		return "FLOAT"
	case TypeInteger:
		return "INTEGER"
	case TypeBoolean:
		return "BOOL"
	case TypeList:
		return "ARRAY"
	}
	return "STRING"
}
