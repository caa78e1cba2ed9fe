package health

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	fsmutil "github.com/lakasli/TCP-VDA5050-bridge-server/internal/pkg/util/fsm"
)

const (
	// EventActivity is a valid frame or heartbeat.
	EventActivity = "event_activity"
	// EventConnect is a new successful TCP connection.
	EventConnect = "event_connect"
	// EventTimeout fires when no activity arrived within the timeout.
	EventTimeout = "event_timeout"
	// EventBreak is a transport error.
	EventBreak = "event_break"
	// EventReset is an explicit disconnect.
	EventReset = "event_reset"
)

type FiniteStateMachine struct {
	*fsm.FSM
}

func NewFiniteStateMachine(initial State) *FiniteStateMachine {
	f := &FiniteStateMachine{}

	unknown, online, offline, broken := string(StateUnknown), string(StateOnline), string(StateOffline), string(StateConnectionBroken)
	events := fsm.Events{
		{Name: EventActivity, Src: []string{unknown, offline}, Dst: online},
		{Name: EventConnect, Src: []string{unknown, offline, broken}, Dst: online},
		{Name: EventTimeout, Src: []string{online}, Dst: offline},
		{Name: EventBreak, Src: []string{unknown, online, offline}, Dst: broken},
		{Name: EventReset, Src: []string{online, offline, broken}, Dst: unknown},
	}

	callbacks := fsm.Callbacks{
		"enter_" + online:  fsmutil.WrapEvent(f.ActionEnterOnline),
		"enter_" + unknown: fsmutil.WrapEvent(f.ActionEnterUnknown),
		"enter_state":      fsmutil.WrapEvent(f.ActionRecordTransition),
	}

	f.FSM = fsm.NewFSM(string(initial), events, callbacks)
	return f
}

// ActionEnterOnline clears the missed heartbeat count.
func (f *FiniteStateMachine) ActionEnterOnline(ctx context.Context, e *fsm.Event) error {
	r := e.Args[0].(*Record)
	r.MissedHeartbeats = 0
	return nil
}

// ActionEnterUnknown forgets the activity of the closed session.
func (f *FiniteStateMachine) ActionEnterUnknown(ctx context.Context, e *fsm.Event) error {
	r := e.Args[0].(*Record)
	r.MissedHeartbeats = 0
	return nil
}

// ActionRecordTransition stores the new state on the record.
func (f *FiniteStateMachine) ActionRecordTransition(ctx context.Context, e *fsm.Event) error {
	r := e.Args[0].(*Record)
	r.State = State(e.Dst)
	return nil
}

func isFsmRealError(err error) bool {
	if err == nil {
		return false
	}

	var noTransition fsm.NoTransitionError
	var canceled fsm.CanceledError
	var invalid fsm.InvalidEventError

	if errors.As(err, &noTransition) || errors.As(err, &canceled) || errors.As(err, &invalid) {
		return false
	}

	return true
}
