package mux

import (
	"context"
	"net"
	"strconv"
	"time"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
)

// dialLoop keeps one connection to vehicle on port open. Failed attempts
// back off exponentially up to the cap; a successful connection resets the
// backoff.
func (m *Multiplexer) dialLoop(ctx context.Context, vehicle fleet.Identity, port int) {
	addr := net.JoinHostPort(vehicle.Address, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: m.opts.DialTimeout}
	backoff := m.opts.Backoff

	for ctx.Err() == nil {
		nc, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := backoff.Step()
			m.log.Debug("Dial failed", "vehicle", vehicle.SerialNumber, "addr", addr, "retryIn", delay, "error", err)
			m.handler.OnDialError(vehicle, port, &bridgeerrors.ConnectionError{
				Vehicle: vehicle.SerialNumber, Port: port, Op: "dial", Err: err,
			})
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		backoff = m.opts.Backoff
		m.serve(ctx, newConn(vehicle, port, nc))
		if !sleep(ctx, backoff.Duration) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
