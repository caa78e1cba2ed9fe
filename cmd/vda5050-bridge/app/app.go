package app

import (
	"fmt"

	"go.uber.org/automaxprocs/maxprocs"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/lakasli/TCP-VDA5050-bridge-server/cmd/vda5050-bridge/app/options"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/app"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
)

const (
	commandName = "vda5050-bridge"
	commandDesc = `The VDA5050 bridge connects a VDA5050 master control over MQTT to
vehicles that speak the vendor TCP protocol.

It converts order and instantActions documents into vendor commands, queues
them per vehicle, and publishes state, visualization, connection and
factsheet documents for every configured vehicle.`
)

// NewApp creates the vda5050-bridge command.
func NewApp() *app.App {
	opts := options.NewBridgeOptions()
	application := app.NewApp(
		commandName,
		"Launch the VDA5050 to vendor TCP bridge",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithWatchConfig(),
		app.WithRunFunc(run(opts)),
		app.WithSubcommands(newRoutesCommand(), newVehiclesCommand()),
	)
	return application
}

func run(opts *options.BridgeOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer func() { _ = log.Sync() }()

		undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
			log.Info(fmt.Sprintf(format, args...))
		}))
		if err != nil {
			log.Warn("Failed to set GOMAXPROCS", "err", err)
		}
		defer undo()

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		b, err := cfg.NewBridge()
		if err != nil {
			return fmt.Errorf("failed to create bridge: %w", err)
		}

		return b.Run(ctx)
	}
}
