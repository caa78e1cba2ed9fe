package log

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures the process logger.
type Options struct {
	// Name is prepended to every logger name.
	Name string `json:"name,omitempty" mapstructure:"name"`

	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" mapstructure:"level"`

	// Format is json or console.
	Format string `json:"format,omitempty" mapstructure:"format"`

	EnableColor   bool `json:"enable-color,omitempty" mapstructure:"enable-color"`
	DisableCaller bool `json:"disable-caller,omitempty" mapstructure:"disable-caller"`

	// CallerSkip is tuned for calls through the package-level helpers.
	CallerSkip int `json:"caller-skip,omitempty" mapstructure:"caller-skip"`

	// OutputPaths accepts "stdout", "stderr" or file paths.
	OutputPaths []string `json:"output-paths,omitempty" mapstructure:"output-paths"`
}

// NewOptions returns the defaults used by the bridge binary.
func NewOptions() *Options {
	return &Options{
		Name:        "bridge",
		Level:       zapcore.InfoLevel.String(),
		Format:      FormatConsole,
		EnableColor: true,
		CallerSkip:  2,
		OutputPaths: []string{"stdout"},
	}
}

// Validate checks level and format.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(o.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if !slices.Contains([]string{FormatConsole, FormatJSON}, o.Format) {
		errs = append(errs, fmt.Errorf("log.format: unsupported format %q", o.Format))
	}
	if o.CallerSkip < 0 {
		errs = append(errs, fmt.Errorf("log.caller-skip: must not be negative"))
	}

	return errs
}

// AddFlags binds the log.* flags.
func (o *Options) AddFlags(fs *pflag.FlagSet, _ ...string) {
	fs.StringVar(&o.Name, "log.name", o.Name, "Name prepended to every logger.")
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum log level: debug, info, warn or error.")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log encoding: console or json.")
	fs.BoolVar(&o.EnableColor, "log.enable-color", o.EnableColor, "Colorize levels in console format.")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Omit the caller file and line.")
	fs.IntVar(&o.CallerSkip, "log.caller-skip", o.CallerSkip, "Number of caller frames to skip.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Log sinks, e.g. stdout or /var/log/bridge.log.")
}
