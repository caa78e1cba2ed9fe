package bridge

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/dispatch"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/health"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/mux"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/server"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/pkg/metrics"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/agvtcp"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
	pkgmqtt "github.com/lakasli/TCP-VDA5050-bridge-server/pkg/mqtt"
)

// timeline records events from several goroutines in the order they happen.
type timeline struct {
	mu     sync.Mutex
	events []string
}

func (tl *timeline) add(format string, args ...any) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.events = append(tl.events, fmt.Sprintf(format, args...))
}

func (tl *timeline) snapshot() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return slices.Clone(tl.events)
}

func (tl *timeline) index(event string) int {
	return slices.Index(tl.snapshot(), event)
}

type fakeBroker struct {
	timeline *timeline
}

var _ pkgmqtt.Client = (*fakeBroker)(nil)

func (b *fakeBroker) Start(context.Context) error { return nil }

func (b *fakeBroker) Disconnect(context.Context) { b.timeline.add("mqtt disconnected") }

func (b *fakeBroker) Publish(context.Context, string, int, bool, []byte) error { return nil }

func (b *fakeBroker) Subscribe(context.Context, string, int, pkgmqtt.MessageHandler) error {
	return nil
}

func (b *fakeBroker) Unsubscribe(context.Context, string) error { return nil }

func (b *fakeBroker) AwaitConnection(context.Context) error { return nil }

func (b *fakeBroker) IsConnected() bool { return true }

type received struct {
	port  int
	frame *agvtcp.Frame
}

// startVehicle opens n loopback ports that accept the bridge's connections
// and never answer. Every non-heartbeat frame is passed to the returned
// channel; a closed connection is recorded on tl.
func startVehicle(t *testing.T, tl *timeline, n int) ([]int, <-chan received) {
	t.Helper()
	frames := make(chan received, 32)
	ports := make([]int, 0, n)
	var wg sync.WaitGroup
	// Registered first so it runs after the listeners are closed.
	t.Cleanup(wg.Wait)
	for range n {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := ln.Addr().(*net.TCPAddr).Port
		ports = append(ports, port)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				nc, err := ln.Accept()
				if err != nil {
					return
				}
				r := agvtcp.NewReader(nc, 0)
				for {
					f, err := r.ReadFrame()
					if err != nil {
						tl.add("closed %d", port)
						_ = nc.Close()
						break
					}
					if f.Type != agvtcp.TypeHeartbeat {
						frames <- received{port: port, frame: f}
					}
				}
			}
		}()
		t.Cleanup(func() { _ = ln.Close() })
	}
	return ports, frames
}

type bridgeFixture struct {
	bridge   *Bridge
	coord    *Coordinator
	mux      *mux.Multiplexer
	ports    routing.Ports
	timeline *timeline
	frames   <-chan received
}

func newBridgeFixture(t *testing.T, timeout time.Duration) *bridgeFixture {
	t.Helper()
	tl := &timeline{}
	open, frames := startVehicle(t, tl, 5)
	p := routing.Ports{Relocation: open[0], Movement: open[1], Authority: open[2], Safety: open[3], Status: open[4]}
	table, err := routing.NewTable(routing.DefaultMappingsFor(p), routing.DefaultFeatures())
	require.NoError(t, err)
	registry, err := fleet.New([]fleet.Vehicle{{Identity: fleet.Identity{
		Manufacturer: "SEER", SerialNumber: "AGV-1", Address: "127.0.0.1",
	}}})
	require.NoError(t, err)

	coord := NewCoordinator(registry, table, Wire{
		StatusPort:        p.Status,
		StatusMessageType: routing.StatusMessageType,
		ResponseOffset:    1000,
	}, nil, metrics.New())
	coord.SetNotifier(&fakeNotifier{})

	monitor := health.NewMonitor(registry.Identities(), health.Options{
		Logger:       log.NewNopLogger(),
		OnTransition: coord.OnTransition,
	})
	coord.SetMonitor(monitor)

	multiplexer := mux.New(registry, coord, mux.Options{
		Mode:       mux.ModeDial,
		Ports:      open,
		StatusPort: p.Status,
		Backoff:    wait.Backoff{Duration: 10 * time.Millisecond, Factor: 1, Steps: 1 << 30},
		Logger:     log.NewNopLogger(),
	})
	dispatcher := dispatch.NewManager(registry.Identities(), 8, multiplexer, dispatch.Options{
		MessageTimeout: timeout,
		ResponseOffset: 1000,
		Logger:         log.NewNopLogger(),
		OnResult: func(r dispatch.Result) {
			tl.add("%s %s", r.Command.ActionID, r.Outcome)
			coord.OnResult(r)
		},
	})
	coord.SetDispatcher(dispatcher)

	return &bridgeFixture{
		bridge: &Bridge{
			mqttClient:    &fakeBroker{timeline: tl},
			coordinator:   coord,
			monitor:       monitor,
			dispatcher:    dispatcher,
			mux:           multiplexer,
			serverManager: server.NewManager(),
			grace:         timeout,
		},
		coord:    coord,
		mux:      multiplexer,
		ports:    p,
		timeline: tl,
		frames:   frames,
	}
}

func (f *bridgeFixture) nextFrame(t *testing.T) received {
	t.Helper()
	select {
	case r := <-f.frames:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	return received{}
}

func TestRunStopsDispatchBeforeClosingVehicles(t *testing.T) {
	const timeout = 200 * time.Millisecond
	f := newBridgeFixture(t, timeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.bridge.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.mux.Ports("AGV-1")) == 5 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, f.coord.HandleOrder(ctx, addr, testOrder(0)))

	first := f.nextFrame(t)
	assert.Equal(t, f.ports.Movement, first.port)
	assert.Equal(t, uint16(3066), first.frame.Type)
	assert.Contains(t, string(first.frame.Body), "JackLoad")

	stopped := time.Now()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Less(t, time.Since(stopped), 2*timeout+time.Second)

	closed := fmt.Sprintf("closed %d", f.ports.Movement)
	require.Eventually(t, func() bool { return f.timeline.index(closed) >= 0 }, time.Second, 5*time.Millisecond)
	select {
	case r := <-f.frames:
		t.Fatalf("frame %s sent on %d after shutdown", r.frame, r.port)
	default:
	}

	events := f.timeline.snapshot()
	var dropped []string
	for _, e := range events {
		if id, ok := strings.CutSuffix(e, " "+string(dispatch.OutcomeDropped)); ok {
			dropped = append(dropped, id)
		}
	}
	assert.ElementsMatch(t, []string{"e1", "a2", "a3"}, dropped)
	assert.Contains(t, events, "a1 "+string(dispatch.OutcomeTimedOut))

	disconnected := slices.Index(events, "mqtt disconnected")
	require.GreaterOrEqual(t, disconnected, 0)
	for i, e := range events {
		if strings.HasPrefix(e, "a") || strings.HasPrefix(e, "e1") {
			assert.Less(t, i, slices.Index(events, closed), "%s is reported before the vehicle is disconnected", e)
			assert.Less(t, i, disconnected, "%s is reported before the broker is disconnected", e)
		}
	}
}

func TestRunFailsWhenListenerCannotBind(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	f := newBridgeFixture(t, 100*time.Millisecond)
	registry, err := fleet.New([]fleet.Vehicle{{Identity: fleet.Identity{
		Manufacturer: "SEER", SerialNumber: "AGV-1", Address: "127.0.0.1",
	}}})
	require.NoError(t, err)
	f.bridge.mux = mux.New(registry, f.coord, mux.Options{
		Mode:     mux.ModeListen,
		BindHost: "127.0.0.1",
		Ports:    []int{port},
		Logger:   log.NewNopLogger(),
	})

	done := make(chan error, 1)
	go func() { done <- f.bridge.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.ErrorContains(t, err, fmt.Sprintf("listen 127.0.0.1:%d", port))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, []string{"mqtt disconnected"}, f.timeline.snapshot())
}
