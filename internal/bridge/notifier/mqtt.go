package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"k8s.io/utils/clock"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/pkg/metrics"
	pkgmqtt "github.com/lakasli/TCP-VDA5050-bridge-server/pkg/mqtt"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/mqtt/topic"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

// TimestampLayout is RFC 3339 with millisecond precision. Timestamps are always UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Delivery returns the QoS and retain flag used for an uplink subtopic.
func Delivery(st vda5050.Subtopic) (qos int, retain bool, err error) {
	switch st {
	case vda5050.SubtopicState, vda5050.SubtopicVisualization:
		return 0, false, nil
	case vda5050.SubtopicConnection, vda5050.SubtopicFactsheet:
		return 1, true, nil
	}
	return 0, false, fmt.Errorf("subtopic %s is not published by the bridge", st)
}

type headerKey struct {
	serial   string
	subtopic vda5050.Subtopic
}

// MQTTNotifier publishes uplink documents on behalf of vehicles.
type MQTTNotifier struct {
	client  pkgmqtt.Client
	topics  *topic.Builder
	clock   clock.PassiveClock
	metrics *metrics.Metrics

	mu      sync.Mutex
	headers map[headerKey]uint32
}

// NewMQTTNotifier uses client for egress. The client lifecycle belongs to the caller.
func NewMQTTNotifier(client pkgmqtt.Client, topics *topic.Builder, clk clock.PassiveClock, m *metrics.Metrics) *MQTTNotifier {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MQTTNotifier{
		client:  client,
		topics:  topics,
		clock:   clk,
		metrics: m,
		headers: make(map[headerKey]uint32),
	}
}

// Notify stamps the header of msg for vehicle id and publishes it. The
// headerId sequence is kept per vehicle and subtopic and starts at 0.
func (n *MQTTNotifier) Notify(ctx context.Context, id fleet.Identity, msg vda5050.Message) error {
	st := msg.Subtopic()
	qos, retain, err := Delivery(st)
	if err != nil {
		return err
	}

	h := msg.GetHeader()
	h.HeaderID = n.nextHeaderID(id.SerialNumber, st)
	h.Timestamp = n.clock.Now().UTC().Format(TimestampLayout)
	h.Version = vda5050.Version
	h.Manufacturer = id.Manufacturer
	h.SerialNumber = id.SerialNumber

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", st, err)
	}

	err = n.client.Publish(ctx, n.topics.Build(id.Manufacturer, id.SerialNumber, st.String()), qos, retain, payload)
	if n.metrics != nil {
		n.metrics.ObservePublish(st.String(), err)
	}
	return err
}

func (n *MQTTNotifier) nextHeaderID(serial string, st vda5050.Subtopic) uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	k := headerKey{serial: serial, subtopic: st}
	id := n.headers[k]
	n.headers[k] = id + 1
	return id
}
