// Package mux owns the vehicle TCP connections. It delimits frames and hands
// them to a Handler; it does not interpret message codes.
package mux

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/agvtcp"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
)

var errNotConnected = errors.New("not connected")

// Handler receives connection events. Calls for one connection are made
// from one goroutine, in order.
type Handler interface {
	OnConnect(vehicle fleet.Identity, port int)
	OnFrame(vehicle fleet.Identity, port int, f *agvtcp.Frame)
	// OnDisconnect reports a closed connection. err is nil for a clean end
	// of stream; last is set when the vehicle has no other open connection.
	OnDisconnect(vehicle fleet.Identity, port int, err error, last bool)
	// OnDialError reports a failed connection attempt in dial mode.
	OnDialError(vehicle fleet.Identity, port int, err error)
	// OnReplaced reports a connection closed in favor of a newer one on the
	// same port. No OnDisconnect follows for it.
	OnReplaced(vehicle fleet.Identity, port int)
}

type connKey struct {
	serial string
	port   int
}

type Multiplexer struct {
	opts     Options
	log      log.Logger
	registry *fleet.Registry
	handler  Handler

	mu    sync.Mutex
	conns map[connKey]*conn
}

func New(registry *fleet.Registry, handler Handler, opts Options) *Multiplexer {
	opts.complete()
	return &Multiplexer{
		opts:     opts,
		log:      opts.Logger.WithName("mux"),
		registry: registry,
		handler:  handler,
		conns:    map[connKey]*conn{},
	}
}

// Run opens the configured listeners or dial loops and blocks until ctx is
// done or a listener fails.
func (m *Multiplexer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	switch m.opts.Mode {
	case ModeListen:
		var (
			lc        net.ListenConfig
			listeners []net.Listener
		)
		for _, port := range m.opts.Ports {
			addr := net.JoinHostPort(m.opts.BindHost, strconv.Itoa(port))
			ln, err := lc.Listen(ctx, "tcp", addr)
			if err != nil {
				for _, l := range listeners {
					_ = l.Close()
				}
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			listeners = append(listeners, ln)
		}
		for i, ln := range listeners {
			port := m.opts.Ports[i]
			m.log.Info("Listening for vehicles", "addr", ln.Addr().String(), "port", port)
			g.Go(func() error { return m.ServeListener(ctx, ln, port) })
		}
	case ModeDial:
		for _, id := range m.registry.Identities() {
			for _, port := range m.opts.Ports {
				g.Go(func() error {
					m.dialLoop(ctx, id, port)
					return nil
				})
			}
		}
	default:
		return fmt.Errorf("unknown tcp mode %q", m.opts.Mode)
	}
	return g.Wait()
}

// ServeListener accepts connections from ln as the given port category
// until ctx is done.
func (m *Multiplexer) ServeListener(ctx context.Context, ln net.Listener, port int) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept on %d: %w", port, err)
		}

		vehicle, ok := m.registry.ByRemoteAddr(nc.RemoteAddr().String())
		if !ok {
			m.log.Warn("Rejecting connection from unknown peer", "peer", nc.RemoteAddr().String(), "port", port)
			_ = nc.Close()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.serve(ctx, newConn(vehicle.Identity, port, nc))
		}()
	}
}

func (m *Multiplexer) register(c *conn) {
	key := connKey{serial: c.vehicle.SerialNumber, port: c.port}
	m.mu.Lock()
	old := m.conns[key]
	m.conns[key] = c
	m.mu.Unlock()
	if old != nil {
		m.log.Info("Replacing vehicle connection", "vehicle", key.serial, "port", key.port)
		old.close()
		m.handler.OnReplaced(old.vehicle, old.port)
	}
}

// unregister removes c. current is false when c had already been replaced;
// last reports whether the vehicle has no open connection left.
func (m *Multiplexer) unregister(c *conn) (last, current bool) {
	key := connKey{serial: c.vehicle.SerialNumber, port: c.port}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns[key] != c {
		return false, false
	}
	delete(m.conns, key)
	for k := range m.conns {
		if k.serial == key.serial {
			return false, true
		}
	}
	return true, true
}

// Send writes one frame to the vehicle's connection on port and returns
// its sequence number.
func (m *Multiplexer) Send(_ context.Context, serial string, port int, messageType uint16, body []byte) (uint16, error) {
	m.mu.Lock()
	c := m.conns[connKey{serial: serial, port: port}]
	m.mu.Unlock()
	if c == nil {
		return 0, &bridgeerrors.ConnectionError{Vehicle: serial, Port: port, Op: "write", Err: errNotConnected}
	}
	seq, err := c.write(messageType, body, m.opts.WriteTimeout)
	if err != nil {
		c.close()
		return 0, &bridgeerrors.ConnectionError{Vehicle: serial, Port: port, Op: "write", Err: err}
	}
	return seq, nil
}

// Ports returns the ports with an open connection for serial.
func (m *Multiplexer) Ports(serial string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ports []int
	for k := range m.conns {
		if k.serial == serial {
			ports = append(ports, k.port)
		}
	}
	sort.Ints(ports)
	return ports
}
