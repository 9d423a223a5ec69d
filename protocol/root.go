package protocol

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/pkg/flushworkers"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/datazip-inc/olake-cdc/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPath            string
	destinationConfigPath string
	statePath             string
	noSave                bool

	sourceConfig      *types.SourceConfig
	destinationConfig *types.WriterConfig
	state             *types.State

	commands = []*cobra.Command{}

	// at most one capture run per process
	captureGate = cdc.NewSlotGate(1)

	metricsRegistry = prometheus.NewRegistry()
	metricsOnce     sync.Once
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "olake-cdc",
	Short: "change data capture connector",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if !noSave && configPath != "" {
			viper.Set("CONFIG_FOLDER", filepath.Dir(configPath))
		}
		// logger uses CONFIG_FOLDER
		logger.Init()
		initMetrics()
		if port := viper.GetInt("http-port"); port > 0 {
			StartHTTPServer(port, metricsRegistry)
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}

		if ok := utils.IsValidSubcommand(commands, args[0]); !ok {
			return fmt.Errorf("'%s' is an invalid command. Use 'olake-cdc --help' to display usage guide", args[0])
		}

		return nil
	},
}

func initMetrics() {
	metricsOnce.Do(func() {
		metricsRegistry.MustRegister(collectors.NewGoCollector())
		cdc.InitMetrics(metricsRegistry)
		flushworkers.InitMetrics(metricsRegistry)
	})
}

// CreateRootCommand wires sub-commands and flags into the root command
func CreateRootCommand() *cobra.Command {
	cobra.EnableTraverseRunHooks = true
	commands = append(commands, checkCmd, syncCmd)
	RootCmd.AddCommand(commands...)

	flags := RootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "", "", "(Required) Source config for connector")
	flags.StringVarP(&destinationConfigPath, "destination", "", "", "(Required) Destination config for connector")
	flags.StringVarP(&statePath, "state", "", "", "(Optional) State for connector")
	flags.BoolVarP(&noSave, "no-save", "", false, "(Optional) Flag to skip logging artifacts in file")
	flags.Int("http-port", 0, "(Optional) Port serving pprof and metrics; disabled when 0")
	flags.String("log-level", "info", "(Optional) Log level")
	bindFlags(flags.Lookup("http-port"), flags.Lookup("log-level"))

	// Disable Cobra CLI's built-in usage and error handling
	RootCmd.SilenceUsage = true
	RootCmd.SilenceErrors = true

	viper.SetEnvPrefix("OLAKE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	return RootCmd
}
