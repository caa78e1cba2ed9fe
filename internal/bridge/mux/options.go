package mux

import (
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/agvtcp"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
)

// Mode selects who opens the TCP connections.
type Mode string

const (
	// ModeListen accepts vehicle connections on every port.
	ModeListen Mode = "listen"
	// ModeDial connects to every vehicle port and reconnects with backoff.
	ModeDial Mode = "dial"
)

type Options struct {
	Mode     Mode
	BindHost string
	Ports    []int
	// StatusPort carries status pushes and gets no heartbeat writer.
	StatusPort           int
	MaxBodyLength        int
	HeartbeatInterval    time.Duration
	HeartbeatMessageType uint16
	DialTimeout          time.Duration
	Backoff              wait.Backoff
	WriteTimeout         time.Duration
	Logger               log.Logger
}

func (o *Options) complete() {
	if o.Mode == "" {
		o.Mode = ModeListen
	}
	if o.MaxBodyLength <= 0 {
		o.MaxBodyLength = agvtcp.DefaultMaxBodyLength
	}
	if o.HeartbeatMessageType == 0 {
		o.HeartbeatMessageType = agvtcp.TypeHeartbeat
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.Backoff.Duration <= 0 {
		o.Backoff = wait.Backoff{Duration: time.Second, Factor: 2, Steps: 1 << 30, Cap: 30 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = log.Std()
	}
}
