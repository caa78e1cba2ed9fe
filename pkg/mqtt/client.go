package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
)

var errNotStarted = errors.New("mqtt client not started")

type pahoClient struct {
	cfg    *ClientConfig
	cm     *autopaho.ConnectionManager
	logger log.Logger

	connected atomic.Bool

	// subscriptions maps topic filter -> subscriptionEntry and is replayed on reconnect.
	subscriptions sync.Map
}

type subscriptionEntry struct {
	topic   string
	qos     int
	handler MessageHandler
}

// NewClient validates cfg and returns an unstarted Client.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt config is required")
	}

	setDefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &pahoClient{
		cfg:    cfg,
		logger: log.WithName("mqtt"),
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL)

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(c.cfg.ReconnectDelay),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg: &tls.Config{
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		},
		WillMessage: c.willMessage(),
		Debug:       pahoLogger{l: c.logger},
		Errors:      pahoLogger{l: c.logger, error: true},
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.router,
			},
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: c.onConnectError,
	}

	c.logger.Info("Starting MQTT client", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID)

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return err
	}
	c.cm = cm
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		c.logger.Warn("MQTT disconnect did not complete cleanly", "err", err)
	}
	c.connected.Store(false)
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return errNotStarted
	}

	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	return err
}

func (c *pahoClient) Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return errNotStarted
	}

	c.subscriptions.Store(topic, subscriptionEntry{topic: topic, qos: qos, handler: handler})

	// If the link is down onConnectionUp replays the subscription.
	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: byte(qos)}},
	}); err != nil {
		return fmt.Errorf("failed to send subscription packet: %w", err)
	}

	c.logger.Info("Subscribed to topic", "topic", topic, "qos", qos)
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, topic string) error {
	if c.cm == nil {
		return errNotStarted
	}

	c.subscriptions.Delete(topic)
	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{topic}})
	return err
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return errNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.connected.Store(true)
	c.logger.Info("MQTT connection established")

	c.subscriptions.Range(func(_, value any) bool {
		entry := value.(subscriptionEntry)
		if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: entry.topic, QoS: byte(entry.qos)}},
		}); err != nil {
			c.logger.Error(err, "Failed to re-subscribe", "topic", entry.topic)
		}
		return true
	})
}

func (c *pahoClient) onConnectError(err error) {
	c.connected.Store(false)
	c.logger.Error(err, "MQTT connection failed, retrying")
}

func (c *pahoClient) onClientError(err error) {
	c.connected.Store(false)
	c.logger.Error(err, "MQTT client error")
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	c.connected.Store(false)
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	c.logger.Warn("MQTT server requested disconnect", "code", d.ReasonCode, "reason", reason)
}

// router fans a publication out to every matching subscription. Handlers run
// on their own goroutine so a slow handler never stalls the paho reader.
func (c *pahoClient) router(p paho.PublishReceived) (bool, error) {
	matched := false
	c.subscriptions.Range(func(_, value any) bool {
		entry := value.(subscriptionEntry)
		if topicsMatch(topicFilter(entry.topic), p.Packet.Topic) {
			matched = true
			go entry.handler(context.Background(), p.Packet.Topic, p.Packet.Payload)
		}
		return true
	})

	if !matched {
		c.logger.Debug("Received message on unhandled topic", "topic", p.Packet.Topic)
	}
	return true, nil
}

func (c *pahoClient) willMessage() *paho.WillMessage {
	if c.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.WillTopic,
		Payload: c.cfg.WillPayload,
		QoS:     c.cfg.WillQoS,
		Retain:  c.cfg.WillRetain,
	}
}

// topicsMatch reports whether topic matches filter, honouring + and #.
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}

// topicFilter strips a $share/<group>/ prefix.
func topicFilter(filter string) string {
	if strings.HasPrefix(filter, "$share/") {
		if parts := strings.SplitN(filter, "/", 3); len(parts) == 3 {
			return parts[2]
		}
	}
	return filter
}
