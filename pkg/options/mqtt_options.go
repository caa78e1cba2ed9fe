package options

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for MQTT client and topics.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// If true, TLS accepts any certificate presented by the server and any host name in that certificate.
	// In this mode, TLS is susceptible to man-in-the-middle attacks. This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// TopicRoot is the VDA5050 interface prefix: {TopicRoot}/{manufacturer}/{serialNumber}/{subtopic}.
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`

	// ShareGroup, when set, turns the downlink subscriptions into MQTT v5
	// shared subscriptions so several bridge replicas split the load.
	ShareGroup string `json:"share-group" mapstructure:"share-group"`

	// Last will of the bridge itself.
	WillTopic   string `json:"will-topic" mapstructure:"will-topic"`
	WillPayload string `json:"will-payload" mapstructure:"will-payload"`
	WillQoS     int    `json:"will-qos" mapstructure:"will-qos"`
	WillRetain  bool   `json:"will-retain" mapstructure:"will-retain"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:         "tcp://127.0.0.1:1883",
		ClientID:       "vda5050-bridge",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 5 * time.Second,
		SessionExpiry:  60,
		CleanStart:     true,
		TopicRoot:      "uagv/v2",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if u, err := url.Parse(o.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Errorf("mqtt.broker: %q must look like scheme://host:port", o.Broker))
	}
	if strings.Trim(o.TopicRoot, "/") == "" {
		errors = append(errors, fmt.Errorf("mqtt.topic-root must not be empty"))
	}
	if strings.ContainsAny(o.TopicRoot, "+#") {
		errors = append(errors, fmt.Errorf("mqtt.topic-root %q must not contain wildcards", o.TopicRoot))
	}
	if strings.ContainsAny(o.ShareGroup, "/+#") {
		errors = append(errors, fmt.Errorf("mqtt.share-group %q must be a single topic level", o.ShareGroup))
	}
	if o.WillQoS < 0 || o.WillQoS > 2 {
		errors = append(errors, fmt.Errorf("mqtt.will-qos must be 0, 1 or 2"))
	}
	if o.KeepAlive < time.Second || o.KeepAlive.Seconds() > 65535 {
		errors = append(errors, fmt.Errorf("mqtt.keep-alive must be between 1s and 65535s"))
	}

	return errors
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "MQTT client id of the bridge.")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.Uint32Var(&o.SessionExpiry, "mqtt.session-expiry", o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Start a clean MQTT session on the first connection.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")

	// Topics
	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "VDA5050 interface prefix, e.g. uagv/v2.")
	fs.StringVar(&o.ShareGroup, "mqtt.share-group", o.ShareGroup, "Shared subscription group for order and instantActions (empty disables sharing).")

	fs.StringVar(&o.WillTopic, "mqtt.will-topic", o.WillTopic, "Topic of the bridge last-will message (empty disables it).")
	fs.StringVar(&o.WillPayload, "mqtt.will-payload", o.WillPayload, "Payload of the bridge last-will message.")
	fs.IntVar(&o.WillQoS, "mqtt.will-qos", o.WillQoS, "QoS of the bridge last-will message.")
	fs.BoolVar(&o.WillRetain, "mqtt.will-retain", o.WillRetain, "Retain the bridge last-will message.")
}

func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	cfg := &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
	if o.WillTopic != "" {
		cfg.WillTopic = o.WillTopic
		cfg.WillPayload = []byte(o.WillPayload)
		cfg.WillQoS = byte(o.WillQoS)
		cfg.WillRetain = o.WillRetain
	}
	return cfg
}
