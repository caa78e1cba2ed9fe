package vda5050

import (
	"sort"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

func validateHeader(h *Header, fld *field.Path) field.ErrorList {
	var errs field.ErrorList
	if h.Manufacturer == "" {
		errs = append(errs, field.Required(fld.Child("manufacturer"), ""))
	}
	if h.SerialNumber == "" {
		errs = append(errs, field.Required(fld.Child("serialNumber"), ""))
	}
	return errs
}

func validateAction(a *Action, fld *field.Path) field.ErrorList {
	var errs field.ErrorList
	if a.ActionType == "" {
		errs = append(errs, field.Required(fld.Child("actionType"), ""))
	}
	if a.ActionID == "" {
		errs = append(errs, field.Required(fld.Child("actionId"), ""))
	}
	if a.BlockingType != "" && !a.BlockingType.Valid() {
		errs = append(errs, field.NotSupported(fld.Child("blockingType"), a.BlockingType,
			[]BlockingType{BlockingNone, BlockingSoft, BlockingHard}))
	}
	for i, p := range a.ActionParameters {
		if p.Key == "" {
			errs = append(errs, field.Required(fld.Child("actionParameters").Index(i).Child("key"), ""))
		}
	}
	return errs
}

// ValidateOrder checks the structural rules the bridge relies on: identity,
// non-negative update ids, and strictly increasing, unique sequence ids.
func ValidateOrder(o *Order) field.ErrorList {
	errs := validateHeader(&o.Header, field.NewPath("header"))

	if o.OrderID == "" {
		errs = append(errs, field.Required(field.NewPath("orderId"), ""))
	}
	if o.OrderUpdateID < 0 {
		errs = append(errs, field.Invalid(field.NewPath("orderUpdateId"), o.OrderUpdateID, "must be >= 0"))
	}
	if len(o.Nodes) == 0 {
		errs = append(errs, field.Required(field.NewPath("nodes"), "an order needs at least one node"))
	}

	seen := map[int64]*field.Path{}
	nodeIDs := map[string]bool{}

	checkSeq := func(fld *field.Path, seq, prev int64, first bool) {
		switch {
		case seq < 0:
			errs = append(errs, field.Invalid(fld, seq, "must be >= 0"))
		case !first && seq <= prev:
			errs = append(errs, field.Invalid(fld, seq, "sequenceId must be strictly increasing"))
		}
		if _, dup := seen[seq]; dup {
			errs = append(errs, field.Duplicate(fld, seq))
			return
		}
		seen[seq] = fld
	}

	for i := range o.Nodes {
		n := &o.Nodes[i]
		fld := field.NewPath("nodes").Index(i)
		if n.NodeID == "" {
			errs = append(errs, field.Required(fld.Child("nodeId"), ""))
		}
		nodeIDs[n.NodeID] = true
		prev := int64(0)
		if i > 0 {
			prev = o.Nodes[i-1].SequenceID
		}
		checkSeq(fld.Child("sequenceId"), n.SequenceID, prev, i == 0)
		for j := range n.Actions {
			errs = append(errs, validateAction(&n.Actions[j], fld.Child("actions").Index(j))...)
		}
	}

	for i := range o.Edges {
		e := &o.Edges[i]
		fld := field.NewPath("edges").Index(i)
		if e.EdgeID == "" {
			errs = append(errs, field.Required(fld.Child("edgeId"), ""))
		}
		if !nodeIDs[e.StartNodeID] {
			errs = append(errs, field.NotFound(fld.Child("startNodeId"), e.StartNodeID))
		}
		if !nodeIDs[e.EndNodeID] {
			errs = append(errs, field.NotFound(fld.Child("endNodeId"), e.EndNodeID))
		}
		prev := int64(0)
		if i > 0 {
			prev = o.Edges[i-1].SequenceID
		}
		checkSeq(fld.Child("sequenceId"), e.SequenceID, prev, i == 0)
		for j := range e.Actions {
			errs = append(errs, validateAction(&e.Actions[j], fld.Child("actions").Index(j))...)
		}
	}

	errs = append(errs, validateActionIDs(o.Actions(), field.NewPath("actions"))...)
	return errs
}

// ValidateInstantActions checks each action and rejects duplicate action ids.
func ValidateInstantActions(ia *InstantActions) field.ErrorList {
	errs := validateHeader(&ia.Header, field.NewPath("header"))
	for i := range ia.Actions {
		errs = append(errs, validateAction(&ia.Actions[i], field.NewPath("actions").Index(i))...)
	}
	errs = append(errs, validateActionIDs(ia.Actions, field.NewPath("actions"))...)
	return errs
}

func validateActionIDs(actions []Action, fld *field.Path) field.ErrorList {
	var errs field.ErrorList
	seen := map[string]bool{}
	for i, a := range actions {
		if a.ActionID == "" {
			continue
		}
		if seen[a.ActionID] {
			errs = append(errs, field.Duplicate(fld.Index(i).Child("actionId"), a.ActionID))
		}
		seen[a.ActionID] = true
	}
	return errs
}

func ValidateState(s *State) field.ErrorList {
	errs := validateHeader(&s.Header, field.NewPath("header"))
	if s.OperatingMode == "" {
		errs = append(errs, field.Required(field.NewPath("operatingMode"), ""))
	}
	if s.SafetyState.EStop == "" {
		errs = append(errs, field.Required(field.NewPath("safetyState", "eStop"), ""))
	}
	for i, a := range s.ActionStates {
		if a.ActionID == "" {
			errs = append(errs, field.Required(field.NewPath("actionStates").Index(i).Child("actionId"), ""))
		}
	}
	return errs
}

func ValidateVisualization(v *Visualization) field.ErrorList {
	return validateHeader(&v.Header, field.NewPath("header"))
}

func ValidateConnection(c *Connection) field.ErrorList {
	errs := validateHeader(&c.Header, field.NewPath("header"))
	switch c.ConnectionState {
	case ConnectionOnline, ConnectionOffline, ConnectionConnectionBroken:
	default:
		errs = append(errs, field.NotSupported(field.NewPath("connectionState"), c.ConnectionState,
			[]ConnectionState{ConnectionOnline, ConnectionOffline, ConnectionConnectionBroken}))
	}
	return errs
}

func ValidateFactsheet(f *Factsheet) field.ErrorList {
	errs := validateHeader(&f.Header, field.NewPath("header"))
	for i, a := range f.ProtocolFeatures.AGVActions {
		if a.ActionType == "" {
			errs = append(errs, field.Required(field.NewPath("protocolFeatures", "agvActions").Index(i).Child("actionType"), ""))
		}
	}
	return errs
}

// Element is one node or edge of an order, in traversal position.
type Element struct {
	SequenceID int64
	Node       *Node
	Edge       *Edge
}

// Actions returns the element's actions.
func (e Element) Actions() []Action {
	if e.Node != nil {
		return e.Node.Actions
	}
	return e.Edge.Actions
}

// ID returns the nodeId or edgeId.
func (e Element) ID() string {
	if e.Node != nil {
		return e.Node.NodeID
	}
	return e.Edge.EdgeID
}

// Elements returns nodes and edges merged by sequenceId.
func (o *Order) Elements() []Element {
	elems := make([]Element, 0, len(o.Nodes)+len(o.Edges))
	for i := range o.Nodes {
		elems = append(elems, Element{SequenceID: o.Nodes[i].SequenceID, Node: &o.Nodes[i]})
	}
	for i := range o.Edges {
		elems = append(elems, Element{SequenceID: o.Edges[i].SequenceID, Edge: &o.Edges[i]})
	}
	sort.SliceStable(elems, func(i, j int) bool { return elems[i].SequenceID < elems[j].SequenceID })
	return elems
}

// Actions returns every action of the order in traversal order.
func (o *Order) Actions() []Action {
	var out []Action
	for _, e := range o.Elements() {
		out = append(out, e.Actions()...)
	}
	return out
}
