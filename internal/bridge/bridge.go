package bridge

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/dispatch"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/health"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/mux"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/server"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
	pkgmqtt "github.com/lakasli/TCP-VDA5050-bridge-server/pkg/mqtt"
)

var errBrokerDisconnected = errors.New("mqtt broker not connected")

// Bridge is the main application struct.
type Bridge struct {
	mqttClient    pkgmqtt.Client
	coordinator   *Coordinator
	monitor       *health.Monitor
	dispatcher    *dispatch.Manager
	mux           *mux.Multiplexer
	serverManager *server.Manager

	// grace bounds the wait for in-flight HARD commands on shutdown.
	grace time.Duration
}

// Run starts every component and blocks until ctx is done or one of them
// fails. On shutdown the dispatchers drain before the vehicle connections
// close, and the broker connection is closed last.
func (b *Bridge) Run(ctx context.Context) error {
	log.Info("Starting VDA5050 bridge...")

	// The broker connection outlives ctx so the final documents still go out.
	mqttCtx, cancelMQTT := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelMQTT()
	if err := b.mqttClient.Start(mqttCtx); err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.mqttClient.Disconnect(dctx)
		log.Info("MQTT client disconnected")
	}()

	muxCtx, stopMux := context.WithCancel(context.WithoutCancel(ctx))
	defer stopMux()
	var muxErr error
	muxDone := make(chan struct{})
	go func() {
		defer close(muxDone)
		muxErr = b.mux.Run(muxCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.monitor.Run(gctx) })
	g.Go(func() error { return b.serverManager.Start(gctx) })
	g.Go(func() error {
		if err := b.mqttClient.AwaitConnection(gctx); err != nil {
			return nil
		}
		b.coordinator.PublishConnections(gctx)
		return nil
	})
	g.Go(func() error {
		select {
		case <-muxDone:
			if muxCtx.Err() == nil {
				return muxErr
			}
			return nil
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		defer stopMux()
		return b.dispatcher.Run(gctx)
	})

	err := g.Wait()
	stopMux()

	select {
	case <-muxDone:
	case <-time.After(b.grace):
		log.Warn("Vehicle connections did not close in time")
	}

	log.Info("VDA5050 bridge stopped")
	return err
}

// Ready reports whether the broker connection is up.
func (b *Bridge) Ready() error {
	if !b.mqttClient.IsConnected() {
		return errBrokerDisconnected
	}
	return nil
}

func (b *Bridge) Vehicles() []fleet.Status { return b.coordinator.Vehicles() }

func (b *Bridge) Vehicle(serial string) (fleet.Status, bool) { return b.coordinator.Vehicle(serial) }

func (b *Bridge) Routes() []routing.Mapping { return b.coordinator.Routes() }
