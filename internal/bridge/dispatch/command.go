// Package dispatch serializes outbound commands onto vehicle sockets.
package dispatch

import (
	"time"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

// Command is one encoded vendor request. It is never modified after
// creation and is consumed by exactly one dispatcher.
type Command struct {
	Vehicle       fleet.Identity
	Mapping       *routing.Mapping
	Payload       []byte
	Priority      routing.Priority
	CreatedAt     time.Time
	CorrelationID string

	// Source action. OrderID is empty for instant actions.
	ActionID   string
	ActionType string
	OrderID    string
}

// Outcome is the terminal or intermediate result of dispatching a command.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeDropped   Outcome = "dropped"
)

// Final reports whether no further result follows for the command.
func (o Outcome) Final(cmd *Command) bool {
	if o == OutcomeSent {
		return cmd.Mapping.BlockingType != vda5050.BlockingHard
	}
	return true
}

// Result is reported once per outcome.
type Result struct {
	Command *Command
	Outcome Outcome
	Err     error
	Latency time.Duration
}
