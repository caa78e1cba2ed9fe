package options

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

var _ IOptions = (*RoutingOptions)(nil)

// RoutingOptions selects the action routing table.
type RoutingOptions struct {
	// File is a YAML routing table. The built-in table is used when empty.
	File string `json:"file" mapstructure:"file"`

	// Features overrides the declared protocol features. Every listed
	// action must have a mapping.
	Features []string `json:"features" mapstructure:"features"`
}

func NewRoutingOptions() *RoutingOptions {
	return &RoutingOptions{}
}

func (o *RoutingOptions) Validate() []error {
	if o == nil || o.File == "" {
		return nil
	}

	errors := []error{}

	if _, err := os.Stat(o.File); err != nil {
		errors = append(errors, fmt.Errorf("routing.file: %w", err))
	}

	return errors
}

func (o *RoutingOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.File, "routing.file", o.File, "YAML routing table (the built-in table is used when empty).")
	fs.StringSliceVar(&o.Features, "routing.features", o.Features, "Protocol features to declare (defaults to every mapped action).")
}
