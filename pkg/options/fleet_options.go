package options

import (
	"fmt"
	"net"

	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

var _ IOptions = (*FleetOptions)(nil)

// FactsheetOptions holds the vehicle specific factsheet sections.
type FactsheetOptions struct {
	TypeSpecification  vda5050.TypeSpecification  `json:"type-specification" mapstructure:"type-specification"`
	PhysicalParameters vda5050.PhysicalParameters `json:"physical-parameters" mapstructure:"physical-parameters"`
}

// VehicleOptions describes one vehicle. Address is the vehicle host; a port,
// if present, is ignored.
type VehicleOptions struct {
	Manufacturer string           `json:"manufacturer" mapstructure:"manufacturer"`
	SerialNumber string           `json:"serial-number" mapstructure:"serial-number"`
	Address      string           `json:"address" mapstructure:"address"`
	Factsheet    FactsheetOptions `json:"factsheet" mapstructure:"factsheet"`
}

// FleetOptions lists the vehicles served by the bridge. Vehicles are only
// read from the config file.
type FleetOptions struct {
	// DefaultManufacturer fills vehicles without a manufacturer.
	DefaultManufacturer string           `json:"default-manufacturer" mapstructure:"default-manufacturer"`
	Vehicles            []VehicleOptions `json:"vehicles" mapstructure:"vehicles"`
}

func NewFleetOptions() *FleetOptions {
	return &FleetOptions{}
}

// Complete fills the default manufacturer.
func (o *FleetOptions) Complete() {
	for i := range o.Vehicles {
		if o.Vehicles[i].Manufacturer == "" {
			o.Vehicles[i].Manufacturer = o.DefaultManufacturer
		}
	}
}

func (o *FleetOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if len(o.Vehicles) == 0 {
		errors = append(errors, fmt.Errorf("fleet.vehicles: at least one vehicle is required"))
	}

	serials := sets.New[string]()
	for i, v := range o.Vehicles {
		prefix := fmt.Sprintf("fleet.vehicles[%d]", i)
		if v.SerialNumber == "" {
			errors = append(errors, fmt.Errorf("%s.serial-number is required", prefix))
		} else if serials.Has(v.SerialNumber) {
			errors = append(errors, fmt.Errorf("%s.serial-number %q is duplicated", prefix, v.SerialNumber))
		}
		serials.Insert(v.SerialNumber)

		if v.Manufacturer == "" && o.DefaultManufacturer == "" {
			errors = append(errors, fmt.Errorf("%s.manufacturer is required", prefix))
		}
		if v.Address == "" {
			errors = append(errors, fmt.Errorf("%s.address is required", prefix))
		} else if host, _, err := net.SplitHostPort(v.Address); err == nil && host == "" {
			errors = append(errors, fmt.Errorf("%s.address %q has no host", prefix, v.Address))
		}
	}

	return errors
}

func (o *FleetOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.DefaultManufacturer, "fleet.default-manufacturer", o.DefaultManufacturer, "Manufacturer used for vehicles that do not name one. Vehicles are listed under fleet.vehicles in the config file.")
}
