package vda5050

type OperatingMode string

const (
	OperatingModeAutomatic     OperatingMode = "AUTOMATIC"
	OperatingModeSemiautomatic OperatingMode = "SEMIAUTOMATIC"
	OperatingModeManual        OperatingMode = "MANUAL"
	OperatingModeService       OperatingMode = "SERVICE"
	OperatingModeTeachIn       OperatingMode = "TEACHIN"
	OperatingModeEmergency     OperatingMode = "EMERGENCY"
)

type ActionStatus string

const (
	ActionStatusWaiting      ActionStatus = "WAITING"
	ActionStatusInitializing ActionStatus = "INITIALIZING"
	ActionStatusRunning      ActionStatus = "RUNNING"
	ActionStatusPaused       ActionStatus = "PAUSED"
	ActionStatusFinished     ActionStatus = "FINISHED"
	ActionStatusFailed       ActionStatus = "FAILED"
)

type EStop string

const (
	EStopAutoAck   EStop = "AUTOACK"
	EStopManual    EStop = "MANUAL"
	EStopRemote    EStop = "REMOTE"
	EStopNone      EStop = "NONE"
	EStopTriggered EStop = "TRIGGERED"
)

// State is published on the state subtopic.
type State struct {
	Header
	Maps                  []Map         `json:"maps,omitempty"`
	OrderID               string        `json:"orderId"`
	OrderUpdateID         int64         `json:"orderUpdateId"`
	ZoneSetID             string        `json:"zoneSetId,omitempty"`
	LastNodeID            string        `json:"lastNodeId"`
	LastNodeSequenceID    int64         `json:"lastNodeSequenceId"`
	Driving               bool          `json:"driving"`
	Paused                *bool         `json:"paused,omitempty"`
	NewBaseRequest        *bool         `json:"newBaseRequest,omitempty"`
	DistanceSinceLastNode *float64      `json:"distanceSinceLastNode,omitempty"`
	OperatingMode         OperatingMode `json:"operatingMode"`
	NodeStates            []NodeState   `json:"nodeStates"`
	EdgeStates            []EdgeState   `json:"edgeStates"`
	AGVPosition           *AGVPosition  `json:"agvPosition,omitempty"`
	Velocity              *Velocity     `json:"velocity,omitempty"`
	Loads                 []Load        `json:"loads,omitempty"`
	ActionStates          []ActionState `json:"actionStates"`
	BatteryState          BatteryState  `json:"batteryState"`
	Errors                []Error       `json:"errors"`
	Information           []Information `json:"information,omitempty"`
	SafetyState           SafetyState   `json:"safetyState"`
}

type Map struct {
	MapID          string `json:"mapId"`
	MapVersion     string `json:"mapVersion"`
	MapDescription string `json:"mapDescription,omitempty"`
	MapStatus      string `json:"mapStatus"`
}

type NodeState struct {
	NodeID          string        `json:"nodeId"`
	SequenceID      int64         `json:"sequenceId"`
	NodeDescription string        `json:"nodeDescription,omitempty"`
	NodePosition    *NodePosition `json:"nodePosition,omitempty"`
	Released        bool          `json:"released"`
}

type EdgeState struct {
	EdgeID          string `json:"edgeId"`
	SequenceID      int64  `json:"sequenceId"`
	EdgeDescription string `json:"edgeDescription,omitempty"`
	Released        bool   `json:"released"`
}

type AGVPosition struct {
	X                   float64  `json:"x"`
	Y                   float64  `json:"y"`
	Theta               float64  `json:"theta"`
	MapID               string   `json:"mapId"`
	MapDescription      string   `json:"mapDescription,omitempty"`
	PositionInitialized bool     `json:"positionInitialized"`
	LocalizationScore   *float64 `json:"localizationScore,omitempty"`
	DeviationRange      *float64 `json:"deviationRange,omitempty"`
}

type Velocity struct {
	Vx    float64 `json:"vx"`
	Vy    float64 `json:"vy"`
	Omega float64 `json:"omega"`
}

type BoundingBoxReference struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Theta float64 `json:"theta"`
}

type LoadDimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Load struct {
	LoadID               string                `json:"loadId,omitempty"`
	LoadType             string                `json:"loadType,omitempty"`
	LoadPosition         string                `json:"loadPosition,omitempty"`
	BoundingBoxReference *BoundingBoxReference `json:"boundingBoxReference,omitempty"`
	LoadDimensions       *LoadDimensions       `json:"loadDimensions,omitempty"`
	Weight               *float64              `json:"weight,omitempty"`
}

type ActionState struct {
	ActionID          string       `json:"actionId"`
	ActionType        string       `json:"actionType,omitempty"`
	ActionDescription string       `json:"actionDescription,omitempty"`
	ActionStatus      ActionStatus `json:"actionStatus"`
	ResultDescription string       `json:"resultDescription,omitempty"`
}

type BatteryState struct {
	BatteryCharge  float64  `json:"batteryCharge"`
	BatteryVoltage *float64 `json:"batteryVoltage,omitempty"`
	BatteryHealth  *float64 `json:"batteryHealth,omitempty"`
	Charging       bool     `json:"charging"`
	Reach          *float64 `json:"reach,omitempty"`
}

type InfoLevel string

const (
	InfoLevelInfo    InfoLevel = "INFO"
	InfoLevelDebug   InfoLevel = "DEBUG"
	InfoLevelWarning InfoLevel = "WARNING"
)

type InfoReference struct {
	ReferenceKey   string `json:"referenceKey"`
	ReferenceValue string `json:"referenceValue"`
}

type Information struct {
	InfoType        string          `json:"infoType"`
	InfoReferences  []InfoReference `json:"infoReferences,omitempty"`
	InfoDescription string          `json:"infoDescription,omitempty"`
	InfoLevel       InfoLevel       `json:"infoLevel"`
}

type SafetyState struct {
	EStop          EStop `json:"eStop"`
	FieldViolation bool  `json:"fieldViolation"`
}

// Visualization is published on the visualization subtopic.
type Visualization struct {
	Header
	AGVPosition *AGVPosition `json:"agvPosition,omitempty"`
	Velocity    *Velocity    `json:"velocity,omitempty"`
}

type ConnectionState string

const (
	ConnectionOnline           ConnectionState = "ONLINE"
	ConnectionOffline          ConnectionState = "OFFLINE"
	ConnectionConnectionBroken ConnectionState = "CONNECTIONBROKEN"
)

// Connection is published, retained, on the connection subtopic.
type Connection struct {
	Header
	ConnectionState ConnectionState `json:"connectionState"`
}
