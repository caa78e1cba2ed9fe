// Package options holds reusable, flag-bindable option groups.
package options

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group.
type IOptions interface {
	// Validate returns every problem found, not only the first.
	Validate() []error

	// AddFlags binds the group to fs.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks a host:port pair. The host may be empty.
func ValidateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%q is not a valid address: %w", addr, err)
	}
	if err := ValidatePort(port); err != nil {
		return fmt.Errorf("%q: %w", addr, err)
	}
	return nil
}

// ValidatePort accepts a decimal port in 1..65535.
func ValidatePort(port string) error {
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
