package options

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/util/sets"
)

var _ IOptions = (*TCPOptions)(nil)

// TCPPorts assigns a port to each vendor port category.
type TCPPorts struct {
	Relocation int `json:"relocation" mapstructure:"relocation"`
	Movement   int `json:"movement" mapstructure:"movement"`
	Authority  int `json:"authority" mapstructure:"authority"`
	Safety     int `json:"safety" mapstructure:"safety"`
	Status     int `json:"status" mapstructure:"status"`
}

// TCPOptions configures the vehicle side of the bridge.
type TCPOptions struct {
	// Mode is "listen" (vehicles connect to the bridge) or "dial" (the
	// bridge connects to every vehicle port).
	Mode     string   `json:"mode" mapstructure:"mode"`
	BindHost string   `json:"bind-host" mapstructure:"bind-host"`
	Ports    TCPPorts `json:"ports" mapstructure:"ports"`

	StatusMessageType    uint16 `json:"status-message-type" mapstructure:"status-message-type"`
	HeartbeatMessageType uint16 `json:"heartbeat-message-type" mapstructure:"heartbeat-message-type"`

	// ResponseOffset is added to a request code to get its response code.
	ResponseOffset uint16 `json:"response-offset" mapstructure:"response-offset"`

	// HeartbeatInterval enables outbound heartbeat frames on command ports. 0 disables them.
	HeartbeatInterval time.Duration `json:"heartbeat-interval" mapstructure:"heartbeat-interval"`
	MaxBodyLength     int           `json:"max-body-length" mapstructure:"max-body-length"`

	DialTimeout           time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
	InitialReconnectDelay time.Duration `json:"initial-reconnect-delay" mapstructure:"initial-reconnect-delay"`
	MaxReconnectDelay     time.Duration `json:"max-reconnect-delay" mapstructure:"max-reconnect-delay"`
	ReconnectMultiplier   float64       `json:"reconnect-multiplier" mapstructure:"reconnect-multiplier"`
}

func NewTCPOptions() *TCPOptions {
	return &TCPOptions{
		Mode:     "listen",
		BindHost: "0.0.0.0",
		Ports: TCPPorts{
			Relocation: 19205,
			Movement:   19206,
			Authority:  19207,
			Safety:     19210,
			Status:     19301,
		},
		StatusMessageType:     9300,
		HeartbeatMessageType:  25940,
		ResponseOffset:        1000,
		MaxBodyLength:         100000,
		DialTimeout:           5 * time.Second,
		InitialReconnectDelay: time.Second,
		MaxReconnectDelay:     30 * time.Second,
		ReconnectMultiplier:   2.0,
	}
}

func (o *TCPOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Mode != "listen" && o.Mode != "dial" {
		errors = append(errors, fmt.Errorf("tcp.mode must be listen or dial, got %q", o.Mode))
	}
	if o.BindHost != "" && net.ParseIP(o.BindHost) == nil {
		errors = append(errors, fmt.Errorf("tcp.bind-host %q is not an IP address", o.BindHost))
	}

	seen := sets.New[int]()
	for _, p := range []struct {
		name string
		port int
	}{
		{"relocation", o.Ports.Relocation},
		{"movement", o.Ports.Movement},
		{"authority", o.Ports.Authority},
		{"safety", o.Ports.Safety},
		{"status", o.Ports.Status},
	} {
		name, port := p.name, p.port
		if port < 1 || port > 65535 {
			errors = append(errors, fmt.Errorf("tcp.ports.%s: invalid port %d", name, port))
			continue
		}
		if seen.Has(port) {
			errors = append(errors, fmt.Errorf("tcp.ports.%s: port %d is used by another category", name, port))
		}
		seen.Insert(port)
	}

	if o.MaxBodyLength <= 0 {
		errors = append(errors, fmt.Errorf("tcp.max-body-length must be positive"))
	}
	if o.HeartbeatInterval < 0 {
		errors = append(errors, fmt.Errorf("tcp.heartbeat-interval must not be negative"))
	}
	if o.InitialReconnectDelay <= 0 || o.MaxReconnectDelay < o.InitialReconnectDelay {
		errors = append(errors, fmt.Errorf("tcp.initial-reconnect-delay must be positive and not above tcp.max-reconnect-delay"))
	}
	if o.ReconnectMultiplier < 1 {
		errors = append(errors, fmt.Errorf("tcp.reconnect-multiplier must be at least 1"))
	}

	return errors
}

func (o *TCPOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Mode, "tcp.mode", o.Mode, "Connection mode: listen (vehicles connect in) or dial (the bridge connects out).")
	fs.StringVar(&o.BindHost, "tcp.bind-host", o.BindHost, "Host the TCP listeners bind to in listen mode.")
	fs.IntVar(&o.Ports.Relocation, "tcp.ports.relocation", o.Ports.Relocation, "Relocation port.")
	fs.IntVar(&o.Ports.Movement, "tcp.ports.movement", o.Ports.Movement, "Movement and action port.")
	fs.IntVar(&o.Ports.Authority, "tcp.ports.authority", o.Ports.Authority, "Authority and error clearing port.")
	fs.IntVar(&o.Ports.Safety, "tcp.ports.safety", o.Ports.Safety, "Safety port.")
	fs.IntVar(&o.Ports.Status, "tcp.ports.status", o.Ports.Status, "Status push port.")
	fs.Uint16Var(&o.StatusMessageType, "tcp.status-message-type", o.StatusMessageType, "Message type of status pushes.")
	fs.Uint16Var(&o.HeartbeatMessageType, "tcp.heartbeat-message-type", o.HeartbeatMessageType, "Message type of heartbeat frames.")
	fs.Uint16Var(&o.ResponseOffset, "tcp.response-offset", o.ResponseOffset, "Offset between a request code and its response code.")
	fs.DurationVar(&o.HeartbeatInterval, "tcp.heartbeat-interval", o.HeartbeatInterval, "Interval of outbound heartbeat frames (0 disables them).")
	fs.IntVar(&o.MaxBodyLength, "tcp.max-body-length", o.MaxBodyLength, "Largest accepted frame body; longer declarations trigger a resync.")
	fs.DurationVar(&o.DialTimeout, "tcp.dial-timeout", o.DialTimeout, "Timeout of one connection attempt in dial mode.")
	fs.DurationVar(&o.InitialReconnectDelay, "tcp.initial-reconnect-delay", o.InitialReconnectDelay, "First reconnect delay in dial mode.")
	fs.DurationVar(&o.MaxReconnectDelay, "tcp.max-reconnect-delay", o.MaxReconnectDelay, "Reconnect delay cap in dial mode.")
	fs.Float64Var(&o.ReconnectMultiplier, "tcp.reconnect-multiplier", o.ReconnectMultiplier, "Reconnect delay growth factor in dial mode.")
}
