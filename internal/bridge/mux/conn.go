package mux

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/agvtcp"
)

// conn is one vehicle socket on one port.
type conn struct {
	vehicle fleet.Identity
	port    int
	nc      net.Conn
	w       *agvtcp.Writer

	closeOnce sync.Once
}

func newConn(vehicle fleet.Identity, port int, nc net.Conn) *conn {
	return &conn{vehicle: vehicle, port: port, nc: nc, w: agvtcp.NewWriter(nc)}
}

func (c *conn) close() {
	c.closeOnce.Do(func() { _ = c.nc.Close() })
}

func (c *conn) write(messageType uint16, body []byte, timeout time.Duration) (uint16, error) {
	if timeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.w.WriteFrame(messageType, body)
}

// serve owns c until its socket is closed. The handler is told about the
// disconnect unless c was replaced or the bridge is shutting down.
func (m *Multiplexer) serve(parent context.Context, c *conn) {
	logger := m.log.Logr().WithValues("vehicle", c.vehicle.SerialNumber, "port", c.port, "peer", c.nc.RemoteAddr().String())
	ctx, cancel := context.WithCancel(logr.NewContext(parent, logger))
	defer cancel()

	m.register(c)
	logger.Info("Vehicle connected")
	m.handler.OnConnect(c.vehicle, c.port)

	go func() {
		<-ctx.Done()
		c.close()
	}()
	if m.opts.HeartbeatInterval > 0 && c.port != m.opts.StatusPort {
		go wait.UntilWithContext(ctx, func(ctx context.Context) { m.heartbeat(ctx, c) }, m.opts.HeartbeatInterval)
	}

	err := m.readLoop(ctx, c)
	c.close()
	last, current := m.unregister(c)
	if !current || parent.Err() != nil {
		return
	}
	if err != nil {
		logger.Error(err, "Vehicle connection failed")
	} else {
		logger.Info("Vehicle disconnected")
	}
	m.handler.OnDisconnect(c.vehicle, c.port, err, last)
}

func (m *Multiplexer) readLoop(ctx context.Context, c *conn) error {
	logger := logr.FromContextOrDiscard(ctx)
	r := agvtcp.NewReader(c.nc, m.opts.MaxBodyLength)
	var skipped uint64
	for {
		f, err := r.ReadFrame()
		if r.Skipped > skipped {
			logger.V(1).Info("Discarded bytes while resynchronizing", "bytes", r.Skipped-skipped)
			skipped = r.Skipped
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		m.handler.OnFrame(c.vehicle, c.port, f)
	}
}

func (m *Multiplexer) heartbeat(ctx context.Context, c *conn) {
	if _, err := c.write(m.opts.HeartbeatMessageType, nil, m.opts.WriteTimeout); err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "Heartbeat write failed")
		c.close()
	}
}
