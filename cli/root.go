package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/halcyonlabs/vdisweep/pkg/log"
)

var (
	configPath string
	devLogging bool
)

var rootCmd = &cobra.Command{
	Use:   "vdisweep",
	Short: "Sweep a virtual desktop fleet onto a target disk-image version",
	Long: `vdisweep classifies every available machine and user session in a VDI
fleet against a target disk-image version and drives a bounded set of
remedial actions (user notification or forced restart) to completion.`,
	SilenceUsage: true,
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&devLogging, "dev-logging", false, "Use the human-readable development log encoder")
}

// setupLogger builds the root logger for a command invocation.
func setupLogger() logr.Logger {
	return log.Setup(devLogging)
}

// initViper loads the optional config file and wires environment overrides.
// Environment keys use the VDISWEEP_ prefix with underscores, e.g.
// VDISWEEP_MAX_RESTARTS.
func initViper() error {
	_ = godotenv.Load()

	viper.SetEnvPrefix("vdisweep")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if configPath == "" {
		return nil
	}
	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", configPath, err)
	}
	return nil
}
