package fleet

import "time"

// Status is the point-in-time view of one vehicle served by the diagnostics
// API and printed by the vehicles command.
type Status struct {
	Identity
	ConnectionState  string    `json:"connectionState"`
	LastActivity     time.Time `json:"lastActivity,omitempty"`
	MissedHeartbeats int       `json:"missedHeartbeats"`
	QueueDepth       int       `json:"queueDepth"`
	Suspended        bool      `json:"suspended"`
	InFlight         string    `json:"inFlight,omitempty"`
	OrderID          string    `json:"orderId,omitempty"`
	OrderUpdateID    int64     `json:"orderUpdateId"`
}
