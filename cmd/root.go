// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/procfilter/internal/config"
	"github.com/xkilldash9x/procfilter/internal/observability"
)

var cfgFile string

// newRootCmd builds the base command. Subcommands read the configuration and
// logger the persistent pre-run installs.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "procfilter",
		Short:         "Procfilter applies procedural cosmetic filters to HTML documents.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 1. Initialize configuration loading (Viper)
			if err := initializeConfig(viper.GetViper()); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// 2. Load the configuration singleton
			if err := config.Load(viper.GetViper()); err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger)
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg := config.Get()

			// 3. Validate the configuration
			if err := cfg.Validate(); err != nil {
				observability.InitializeLogger(cfg.Logger)
				return fmt.Errorf("invalid configuration: %w", err)
			}

			// 4. Start logging
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting procfilter", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the root command with a context passed from main for
// graceful shutdown.
func Execute(ctx context.Context) error {
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	defer observability.Sync()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	observability.GetLogger().Error("Command execution failed", zap.Error(err))
	fmt.Fprintln(os.Stderr, "Error:", err)
	return err
}

// initializeConfig reads in the config file and environment variables.
func initializeConfig(v *viper.Viper) error {
	// Defaults let the tool run without any config file.
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// PROCFILTER_FILTER_DEFERRED_MODE overrides filter.deferred_mode.
	v.SetEnvPrefix("PROCFILTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
