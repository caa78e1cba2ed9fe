package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveUnknownCountsFrameAndCode(t *testing.T) {
	m := New()

	m.ObserveUnknown(19206, 7777)
	m.ObserveUnknown(19206, 7777)
	m.ObserveFrame(19301, FrameStatus)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UnknownCodes.WithLabelValues("19206", "7777")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("19206", FrameUnknown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("19301", FrameStatus)))
}

func TestObserveTransitionMovesStateGauge(t *testing.T) {
	m := New()

	m.ObserveTransition("AGV-01", "", "ONLINE")
	m.ObserveTransition("AGV-01", "ONLINE", "OFFLINE")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ConnectionState.WithLabelValues("AGV-01", "ONLINE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionState.WithLabelValues("AGV-01", "OFFLINE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionTransitions.WithLabelValues("AGV-01", "ONLINE", "OFFLINE")))
}

func TestObserveCommandAndPublish(t *testing.T) {
	m := New()

	m.ObserveCommand("pick", "completed", 250*time.Millisecond)
	m.ObserveCommand("pick", "dropped", 0)
	m.ObservePublish("state", nil)
	m.ObservePublish("state", errors.New("broker down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("pick", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("pick", "dropped")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CommandLatency))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsPublished.WithLabelValues("state", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsPublished.WithLabelValues("state", "failure")))
}

func TestHandlerExposesPrivateRegistry(t *testing.T) {
	a, b := New(), New()
	a.QueueDrops.WithLabelValues("AGV-01").Inc()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `vda5050_bridge_queue_drops_total{vehicle="AGV-01"} 1`))

	assert.Equal(t, 0, testutil.CollectAndCount(b.QueueDrops))
}
