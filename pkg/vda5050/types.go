package vda5050

// Header is shared by every document.
type Header struct {
	HeaderID     uint32 `json:"headerId"`
	Timestamp    string `json:"timestamp"`
	Version      string `json:"version"`
	Manufacturer string `json:"manufacturer"`
	SerialNumber string `json:"serialNumber"`
}

// GetHeader is promoted to every document embedding Header.
func (h *Header) GetHeader() *Header { return h }

type BlockingType string

const (
	BlockingNone BlockingType = "NONE"
	BlockingSoft BlockingType = "SOFT"
	BlockingHard BlockingType = "HARD"
)

// Valid reports whether b is one of the three blocking types.
func (b BlockingType) Valid() bool {
	return b == BlockingNone || b == BlockingSoft || b == BlockingHard
}

type Action struct {
	ActionType        string            `json:"actionType"`
	ActionID          string            `json:"actionId"`
	ActionDescription string            `json:"actionDescription,omitempty"`
	BlockingType      BlockingType      `json:"blockingType"`
	ActionParameters  []ActionParameter `json:"actionParameters,omitempty"`
}

// ActionParameter values are JSON scalars, arrays or objects.
type ActionParameter struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Parameter returns the value stored under key.
func (a *Action) Parameter(key string) (any, bool) {
	for _, p := range a.ActionParameters {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

type NodePosition struct {
	X                     float64  `json:"x"`
	Y                     float64  `json:"y"`
	Theta                 *float64 `json:"theta,omitempty"`
	AllowedDeviationXY    *float64 `json:"allowedDeviationXY,omitempty"`
	AllowedDeviationTheta *float64 `json:"allowedDeviationTheta,omitempty"`
	MapID                 string   `json:"mapId"`
	MapDescription        string   `json:"mapDescription,omitempty"`
}

type ErrorLevel string

const (
	ErrorLevelWarning ErrorLevel = "WARNING"
	ErrorLevelFatal   ErrorLevel = "FATAL"
)

type ErrorReference struct {
	ReferenceKey   string `json:"referenceKey"`
	ReferenceValue string `json:"referenceValue"`
}

type Error struct {
	ErrorType        string           `json:"errorType"`
	ErrorReferences  []ErrorReference `json:"errorReferences,omitempty"`
	ErrorDescription string           `json:"errorDescription,omitempty"`
	ErrorLevel       ErrorLevel       `json:"errorLevel"`
}
