package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/app"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/options"
)

type BridgeOptions struct {
	MqttOptions     *options.MqttOptions     `json:"mqtt" mapstructure:"mqtt"`
	HttpOptions     *options.HttpOptions     `json:"http" mapstructure:"http"`
	TCPOptions      *options.TCPOptions      `json:"tcp" mapstructure:"tcp"`
	HealthOptions   *options.HealthOptions   `json:"health" mapstructure:"health"`
	DispatchOptions *options.DispatchOptions `json:"dispatch" mapstructure:"dispatch"`
	FleetOptions    *options.FleetOptions    `json:"fleet" mapstructure:"fleet"`
	RoutingOptions  *options.RoutingOptions  `json:"routing" mapstructure:"routing"`
	Log             *log.Options             `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*BridgeOptions)(nil)

func NewBridgeOptions() *BridgeOptions {
	return &BridgeOptions{
		MqttOptions:     options.NewMqttOptions(),
		HttpOptions:     options.NewHttpOptions(),
		TCPOptions:      options.NewTCPOptions(),
		HealthOptions:   options.NewHealthOptions(),
		DispatchOptions: options.NewDispatchOptions(),
		FleetOptions:    options.NewFleetOptions(),
		RoutingOptions:  options.NewRoutingOptions(),
		Log:             log.NewOptions(),
	}
}

func (o *BridgeOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.TCPOptions.AddFlags(fss.FlagSet("tcp"))
	o.HealthOptions.AddFlags(fss.FlagSet("health"))
	o.DispatchOptions.AddFlags(fss.FlagSet("dispatch"))
	o.FleetOptions.AddFlags(fss.FlagSet("fleet"))
	o.RoutingOptions.AddFlags(fss.FlagSet("routing"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *BridgeOptions) Complete() error {
	o.FleetOptions.Complete()
	return nil
}

func (o *BridgeOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.TCPOptions.Validate()...)
	errs = append(errs, o.HealthOptions.Validate()...)
	errs = append(errs, o.DispatchOptions.Validate()...)
	errs = append(errs, o.FleetOptions.Validate()...)
	errs = append(errs, o.RoutingOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

// Config builds the immutable bridge configuration: the vehicle registry
// and the routing table.
func (o *BridgeOptions) Config() (*bridge.Config, error) {
	registry, err := o.Registry()
	if err != nil {
		return nil, err
	}
	table, err := o.RoutingTable()
	if err != nil {
		return nil, err
	}

	return &bridge.Config{
		MqttOptions:     o.MqttOptions,
		HttpOptions:     o.HttpOptions,
		TCPOptions:      o.TCPOptions,
		HealthOptions:   o.HealthOptions,
		DispatchOptions: o.DispatchOptions,
		Registry:        registry,
		Routing:         table,
	}, nil
}

// Registry builds the vehicle registry from fleet.vehicles.
func (o *BridgeOptions) Registry() (*fleet.Registry, error) {
	vehicles := make([]fleet.Vehicle, 0, len(o.FleetOptions.Vehicles))
	for _, v := range o.FleetOptions.Vehicles {
		vehicles = append(vehicles, fleet.Vehicle{
			Identity: fleet.Identity{
				Manufacturer: v.Manufacturer,
				SerialNumber: v.SerialNumber,
				Address:      v.Address,
			},
			TypeSpecification:  v.Factsheet.TypeSpecification,
			PhysicalParameters: v.Factsheet.PhysicalParameters,
		})
	}
	registry, err := fleet.New(vehicles)
	if err != nil {
		return nil, fmt.Errorf("fleet: %w", err)
	}
	return registry, nil
}

// RoutingTable loads routing.file, or the built-in table moved onto the
// tcp.ports.* ports when no file is given.
func (o *BridgeOptions) RoutingTable() (*routing.Table, error) {
	features := o.RoutingOptions.Features

	if o.RoutingOptions.File == "" {
		p := o.TCPOptions.Ports
		mappings := routing.DefaultMappingsFor(routing.Ports{
			Relocation: p.Relocation,
			Movement:   p.Movement,
			Authority:  p.Authority,
			Safety:     p.Safety,
			Status:     p.Status,
		})
		if len(features) == 0 {
			features = routing.DefaultFeatures()
		}
		return routing.NewTable(mappings, features)
	}

	table, err := routing.LoadFile(o.RoutingOptions.File)
	if err != nil {
		return nil, fmt.Errorf("routing: %w", err)
	}
	if len(features) == 0 {
		return table, nil
	}
	return routing.NewTable(table.Mappings(), features)
}
