package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

var testVehicle = fleet.Identity{Manufacturer: "SEER", SerialNumber: "AGV-1", Address: "127.0.0.1"}

func newCommand(id string, p routing.Priority, m *routing.Mapping) *Command {
	if m == nil {
		m = &routing.Mapping{Action: "stopPause", Port: 19206, MessageType: 3002, PayloadFormat: routing.FormatEmpty, BlockingType: vda5050.BlockingNone}
	}
	return &Command{Vehicle: testVehicle, Mapping: m, Priority: p, CorrelationID: id, ActionType: m.Action}
}

func popAll(t *testing.T, q *Queue) []string {
	t.Helper()
	var ids []string
	for q.Len() > 0 {
		cmd, err := q.Pop(context.Background(), nil)
		require.NoError(t, err)
		ids = append(ids, cmd.CorrelationID)
	}
	return ids
}

func TestQueuePriorityOrder(t *testing.T) {
	q := NewQueue("AGV-1", 10)
	for _, c := range []*Command{
		newCommand("low", routing.PriorityLow, nil),
		newCommand("normal-1", routing.PriorityNormal, nil),
		newCommand("emergency", routing.PriorityEmergency, nil),
		newCommand("normal-2", routing.PriorityNormal, nil),
	} {
		_, err := q.Push(c)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"emergency", "normal-1", "normal-2", "low"}, popAll(t, q))
}

func TestQueueEvictsOldestLowest(t *testing.T) {
	q := NewQueue("AGV-1", 2)
	_, err := q.Push(newCommand("c1", routing.PriorityLow, nil))
	require.NoError(t, err)
	_, err = q.Push(newCommand("c2", routing.PriorityLow, nil))
	require.NoError(t, err)

	dropped, err := q.Push(newCommand("c3", routing.PriorityLow, nil))
	var qs *bridgeerrors.QueueSaturationError
	require.ErrorAs(t, err, &qs)
	assert.Equal(t, "c1", qs.Dropped)
	assert.False(t, qs.Incoming)
	require.NotNil(t, dropped)
	assert.Equal(t, "c1", dropped.CorrelationID)
	assert.Equal(t, []string{"c2", "c3"}, popAll(t, q))
}

func TestQueueRefusesLowerIncoming(t *testing.T) {
	q := NewQueue("AGV-1", 1)
	_, err := q.Push(newCommand("e1", routing.PriorityEmergency, nil))
	require.NoError(t, err)

	dropped, err := q.Push(newCommand("n1", routing.PriorityNormal, nil))
	var qs *bridgeerrors.QueueSaturationError
	require.ErrorAs(t, err, &qs)
	assert.True(t, qs.Incoming)
	assert.Equal(t, "n1", dropped.CorrelationID)

	dropped, err = q.Push(newCommand("e2", routing.PriorityEmergency, nil))
	require.Error(t, err)
	assert.Equal(t, "e1", dropped.CorrelationID)
	assert.Equal(t, []string{"e2"}, popAll(t, q))
}

func TestQueuePushFrontAndPurge(t *testing.T) {
	q := NewQueue("AGV-1", 10)
	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Push(newCommand(id, routing.PriorityNormal, nil))
		require.NoError(t, err)
	}
	_, err := q.Push(newCommand("x", routing.PriorityEmergency, nil))
	require.NoError(t, err)
	_, err = q.PushFront(newCommand("retry", routing.PriorityNormal, nil))
	require.NoError(t, err)

	purged := q.Purge(func(c *Command) bool { return c.CorrelationID == "b" || c.CorrelationID == "x" })
	assert.Len(t, purged, 2)
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"retry", "a", "c"}, popAll(t, q))
}

func TestQueuePopEligible(t *testing.T) {
	q := NewQueue("AGV-1", 10)
	safety := &routing.Mapping{Action: "softEmc", Port: 19210, MessageType: 6004, Safety: true, BlockingType: vda5050.BlockingNone}
	_, _ = q.Push(newCommand("n", routing.PriorityEmergency, nil))
	_, _ = q.Push(newCommand("s", routing.PriorityEmergency, safety))

	onlySafety := func(c *Command) bool { return c.Mapping.Safety }
	cmd, err := q.Pop(context.Background(), onlySafety)
	require.NoError(t, err)
	assert.Equal(t, "s", cmd.CorrelationID)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Pop(ctx, onlySafety)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestQueuePopStopsWhenCanceled(t *testing.T) {
	q := NewQueue("AGV-1", 10)
	_, _ = q.Push(newCommand("a", routing.PriorityEmergency, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Pop(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, q.Len())
}

func TestQueueClose(t *testing.T) {
	q := NewQueue("AGV-1", 10)
	_, _ = q.Push(newCommand("a", routing.PriorityLow, nil))

	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background(), func(*Command) bool { return false })
		done <- err
	}()
	rest := q.Close()
	require.Len(t, rest, 1)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, bridgeerrors.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}
	_, err := q.Push(newCommand("b", routing.PriorityLow, nil))
	assert.ErrorIs(t, err, bridgeerrors.ErrQueueClosed)
}
