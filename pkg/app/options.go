package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// CliOptions abstracts configuration options for reading parameters from the
// command line.
type CliOptions interface {
	// Flags returns the flag sets of the options, grouped by section.
	Flags() cliflag.NamedFlagSets

	// Validate checks the options after flags and the config file are applied.
	Validate() error
}

// NamedFlagSetOptions is implemented by the options struct of a command.
type NamedFlagSetOptions interface {
	CliOptions

	// Complete fills in defaults derived from other fields.
	Complete() error
}
