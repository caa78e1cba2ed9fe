package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
)

const configFlagName = "config"

var cfgFile string

func init() {
	pflag.StringVarP(&cfgFile, configFlagName, "c", cfgFile, "Read configuration from specified `FILE`, "+
		"support JSON, TOML, YAML, HCL, or Java properties formats.")
}

// addConfigFlag registers --config on fs and arranges for the config file
// and the environment to be read into viper before the command runs.
func addConfigFlag(basename string, fs *pflag.FlagSet, watch bool) {
	fs.AddFlag(pflag.Lookup(configFlagName))

	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix(basename))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(".")
			viper.AddConfigPath("configs")
			if home, err := os.UserHomeDir(); err == nil {
				viper.AddConfigPath(filepath.Join(home, "."+basename))
			}
			viper.AddConfigPath(filepath.Join("/etc", basename))
			viper.SetConfigName(basename)
			viper.SetConfigType("yaml")
		}

		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if cfgFile == "" && errors.As(err, &notFound) {
				return
			}
			_, _ = fmt.Fprintf(os.Stderr, "Error: failed to read configuration file(%s): %v\n", cfgFile, err)
			os.Exit(1)
		}

		if watch {
			viper.OnConfigChange(func(e fsnotify.Event) {
				log.Warn("Config file changed, restart to apply it", "file", e.Name, "op", e.Op.String())
			})
			viper.WatchConfig()
		}
	})
}

func envPrefix(basename string) string {
	return strings.ToUpper(strings.ReplaceAll(basename, "-", "_"))
}
