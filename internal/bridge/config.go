package bridge

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/dispatch"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/health"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/mux"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/notifier"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/server"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/server/http"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/server/mqtt"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/pkg/metrics"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
	pkgmqtt "github.com/lakasli/TCP-VDA5050-bridge-server/pkg/mqtt"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/mqtt/topic"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/options"
)

// Config is the completed, validated configuration of one bridge process.
// It is not modified after NewBridge.
type Config struct {
	MqttOptions     *options.MqttOptions
	HttpOptions     *options.HttpOptions
	TCPOptions      *options.TCPOptions
	HealthOptions   *options.HealthOptions
	DispatchOptions *options.DispatchOptions

	Registry *fleet.Registry
	Routing  *routing.Table
}

// NewBridge wires every component of the bridge. Nothing is started.
func (cfg *Config) NewBridge() (*Bridge, error) {
	if cfg.Registry == nil || cfg.Registry.Len() == 0 {
		return nil, fmt.Errorf("no vehicles configured")
	}
	if cfg.Routing == nil {
		return nil, fmt.Errorf("no routing table configured")
	}

	m := metrics.New()

	mqttClient, err := pkgmqtt.NewClient(cfg.MqttOptions.ToClientConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to init mqtt client: %w", err)
	}
	topicBuilder := topic.NewBuilder(cfg.MqttOptions.TopicRoot)

	tcp := cfg.TCPOptions
	coord := NewCoordinator(cfg.Registry, cfg.Routing, Wire{
		StatusPort:           tcp.Ports.Status,
		StatusMessageType:    tcp.StatusMessageType,
		HeartbeatMessageType: tcp.HeartbeatMessageType,
		ResponseOffset:       tcp.ResponseOffset,
	}, nil, m)
	coord.SetNotifier(notifier.NewMQTTNotifier(mqttClient, topicBuilder, nil, m))

	ids := cfg.Registry.Identities()
	monitor := health.NewMonitor(ids, health.Options{
		CheckInterval: cfg.HealthOptions.CheckInterval,
		Timeout:       cfg.HealthOptions.Timeout,
		Logger:        log.WithName("health"),
		OnTransition:  coord.OnTransition,
	})
	coord.SetMonitor(monitor)

	ports := sets.New(cfg.Routing.Ports()...).Insert(tcp.Ports.Status)
	multiplexer := mux.New(cfg.Registry, coord, mux.Options{
		Mode:                 mux.Mode(tcp.Mode),
		BindHost:             tcp.BindHost,
		Ports:                sets.List(ports),
		StatusPort:           tcp.Ports.Status,
		MaxBodyLength:        tcp.MaxBodyLength,
		HeartbeatInterval:    tcp.HeartbeatInterval,
		HeartbeatMessageType: tcp.HeartbeatMessageType,
		DialTimeout:          tcp.DialTimeout,
		Backoff: wait.Backoff{
			Duration: tcp.InitialReconnectDelay,
			Factor:   tcp.ReconnectMultiplier,
			Steps:    1 << 30,
			Cap:      tcp.MaxReconnectDelay,
		},
		Logger: log.WithName("mux"),
	})

	dispatcher := dispatch.NewManager(ids, cfg.DispatchOptions.QueueCapacity, multiplexer, dispatch.Options{
		MessageTimeout: cfg.DispatchOptions.MessageTimeout,
		MaxRetries:     cfg.DispatchOptions.MaxRetries,
		RetryDelay:     cfg.DispatchOptions.RetryDelay,
		ResponseOffset: tcp.ResponseOffset,
		Logger:         log.WithName("dispatch"),
		OnResult:       coord.OnResult,
	})
	coord.SetDispatcher(dispatcher)

	b := &Bridge{
		mqttClient:  mqttClient,
		coordinator: coord,
		monitor:     monitor,
		dispatcher:  dispatcher,
		mux:         multiplexer,
		grace:       cfg.DispatchOptions.MessageTimeout,
	}

	mqttServer := mqtt.NewServer(mqttClient, topicBuilder, cfg.MqttOptions.ShareGroup, coord, func(error) {
		m.Rejections.WithLabelValues("decode").Inc()
	})
	httpServer := http.NewServer(cfg.HttpOptions, b, m.Handler())
	b.serverManager = server.NewManager(mqttServer, httpServer)

	return b, nil
}
