package vda5050

// Order is received on the order subtopic.
type Order struct {
	Header
	OrderID       string `json:"orderId"`
	OrderUpdateID int64  `json:"orderUpdateId"`
	ZoneSetID     string `json:"zoneSetId,omitempty"`
	Nodes         []Node `json:"nodes"`
	Edges         []Edge `json:"edges"`
}

type Node struct {
	NodeID          string        `json:"nodeId"`
	SequenceID      int64         `json:"sequenceId"`
	NodeDescription string        `json:"nodeDescription,omitempty"`
	Released        bool          `json:"released"`
	NodePosition    *NodePosition `json:"nodePosition,omitempty"`
	Actions         []Action      `json:"actions"`
}

type Edge struct {
	EdgeID          string   `json:"edgeId"`
	SequenceID      int64    `json:"sequenceId"`
	EdgeDescription string   `json:"edgeDescription,omitempty"`
	Released        bool     `json:"released"`
	StartNodeID     string   `json:"startNodeId"`
	EndNodeID       string   `json:"endNodeId"`
	MaxSpeed        *float64 `json:"maxSpeed,omitempty"`
	MaxHeight       *float64 `json:"maxHeight,omitempty"`
	MinHeight       *float64 `json:"minHeight,omitempty"`
	Orientation     *float64 `json:"orientation,omitempty"`
	Direction       string   `json:"direction,omitempty"`
	RotationAllowed *bool    `json:"rotationAllowed,omitempty"`
	Length          *float64 `json:"length,omitempty"`
	Actions         []Action `json:"actions"`
}

// InstantActions is received on the instantActions subtopic.
type InstantActions struct {
	Header
	Actions []Action `json:"actions"`
}
