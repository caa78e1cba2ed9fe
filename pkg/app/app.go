package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/term"
)

// RunFunc is the entry point of the application, called after flags and
// configuration are parsed, completed and validated.
type RunFunc func() error

// Option customizes an App.
type Option func(*App)

// App is the command line application skeleton shared by the binaries.
type App struct {
	name        string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	noConfig    bool
	watchConfig bool
	args        cobra.PositionalArgs
	commands    []*cobra.Command
	cmd         *cobra.Command
}

func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithNoConfig disables the --config flag.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithWatchConfig logs a warning whenever the config file changes.
func WithWatchConfig() Option {
	return func(a *App) { a.watchConfig = true }
}

func WithValidArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

// WithDefaultValidArgs rejects any positional argument.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// WithSubcommands adds auxiliary commands under the root command.
func WithSubcommands(cmds ...*cobra.Command) Option {
	return func(a *App) { a.commands = append(a.commands, cmds...) }
}

// NewApp creates an application with the given name and options.
func NewApp(name string, shortDesc string, opts ...Option) *App {
	a := &App{name: name, shortDesc: shortDesc}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true
	cmd.AddCommand(a.commands...)

	if a.runFunc != nil {
		cmd.RunE = a.runCommand
	}

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
	}
	if !a.noConfig {
		addConfigFlag(a.name, fss.FlagSet("global"), a.watchConfig)
	}
	fss.FlagSet("global").BoolP("help", "h", false, fmt.Sprintf("Help for %s.", a.name))

	fs := cmd.Flags()
	for _, f := range fss.FlagSets {
		fs.AddFlagSet(f)
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	a.cmd = cmd
}

// Run executes the root command and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v %v\n", "Error:", err)
		os.Exit(1)
	}
}

// Command returns the root command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

func (a *App) runCommand(cmd *cobra.Command, args []string) error {
	if a.options != nil {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := viper.Unmarshal(a.options); err != nil {
			return err
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}
	return a.runFunc()
}
