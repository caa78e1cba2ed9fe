package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HealthOptions)(nil)

// HealthOptions configures the connection health monitor.
type HealthOptions struct {
	// CheckInterval is the cadence of the timeout check.
	CheckInterval time.Duration `json:"check-interval" mapstructure:"check-interval"`

	// Timeout is the silence after which an ONLINE vehicle goes OFFLINE.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

func NewHealthOptions() *HealthOptions {
	return &HealthOptions{
		CheckInterval: 10 * time.Second,
		Timeout:       30 * time.Second,
	}
}

func (o *HealthOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.CheckInterval <= 0 {
		errors = append(errors, fmt.Errorf("health.check-interval must be positive"))
	}
	if o.Timeout < o.CheckInterval {
		errors = append(errors, fmt.Errorf("health.timeout (%s) must not be shorter than health.check-interval (%s)", o.Timeout, o.CheckInterval))
	}

	return errors
}

func (o *HealthOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.CheckInterval, "health.check-interval", o.CheckInterval, "How often vehicle activity is checked.")
	fs.DurationVar(&o.Timeout, "health.timeout", o.Timeout, "Silence after which an ONLINE vehicle is reported OFFLINE.")
}
