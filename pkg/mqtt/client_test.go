package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicsMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"uagv/v2/+/+/order", "uagv/v2/acme/AGV-1/order", true},
		{"uagv/v2/+/+/order", "uagv/v2/acme/AGV-1/instantActions", false},
		{"uagv/v2/+/+/order", "uagv/v2/acme/order", false},
		{"uagv/v2/#", "uagv/v2/acme/AGV-1/state", true},
		{"uagv/v2/acme/AGV-1/state", "uagv/v2/acme/AGV-1/state", true},
		{"uagv/v2/acme/AGV-1/state", "uagv/v2/acme/AGV-2/state", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"|"+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, topicsMatch(tt.filter, tt.topic))
		})
	}
}

func TestTopicFilterStripsSharePrefix(t *testing.T) {
	assert.Equal(t, "uagv/v2/+/+/order", topicFilter("$share/bridge/uagv/v2/+/+/order"))
	assert.Equal(t, "uagv/v2/+/+/order", topicFilter("uagv/v2/+/+/order"))
}

func TestNewClientDefaultsAndValidation(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)

	_, err = NewClient(&ClientConfig{BrokerURL: "not a url"})
	require.Error(t, err)

	cfg := &ClientConfig{BrokerURL: "tcp://127.0.0.1:1883", ClientID: "bridge"}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	assert.False(t, c.IsConnected())
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
	assert.EqualValues(t, 60, cfg.KeepAlive)

	_, err = NewClient(&ClientConfig{BrokerURL: "tcp://127.0.0.1:1883", WillTopic: "x", WillQoS: 3})
	require.Error(t, err)
}
