package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ClientConfig holds everything needed to build a Client.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// ConnectTimeout bounds each connection attempt. Default is 5s.
	ConnectTimeout time.Duration

	// ReconnectDelay is the constant delay between reconnection attempts. Default is 3s.
	ReconnectDelay time.Duration

	// SessionExpiry in seconds, sent on CONNECT.
	SessionExpiry uint32

	CleanStart bool

	// InsecureSkipVerify disables TLS certificate verification for tls/ssl/wss brokers.
	InsecureSkipVerify bool

	// Will message, published by the broker if the bridge disappears. Empty topic disables it.
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool
}

func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}
}

// Validate checks the broker URL and will settings.
func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("broker url %q must look like scheme://host:port", c.BrokerURL)
	}
	if c.WillQoS > 2 {
		return fmt.Errorf("will qos %d out of range", c.WillQoS)
	}
	return nil
}
