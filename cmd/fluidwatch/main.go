package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chrissnell/fluidwatch/internal/app"
	"github.com/chrissnell/fluidwatch/internal/log"
	"github.com/chrissnell/fluidwatch/pkg/config"
	"github.com/spf13/cobra"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

// globalFlags are shared by every subcommand
type globalFlags struct {
	cfgFile    string
	cfgBackend string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "fluidwatch",
		Short:         "Fluid output monitor for a bedside volume sensor",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := log.Init(flags.debug); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			log.Sync()
		},
	}
	root.PersistentFlags().StringVar(&flags.cfgFile, "config", "config.yaml", "Path to configuration source (config.yaml or config.db)")
	root.PersistentFlags().StringVar(&flags.cfgBackend, "config-backend", "yaml", "Configuration backend type: 'yaml' or 'sqlite'")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Turn on debugging output")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newViewCmd(flags))
	root.AddCommand(newDeviceCmd(flags))
	root.AddCommand(newConfigCmd(flags))
	root.AddCommand(newVersionCmd())
	return root
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, err := openProvider(flags.cfgFile, flags.cfgBackend)
			if err != nil {
				return err
			}
			defer provider.Close()

			application := app.New(provider, log.Named("fluidwatch"))
			return application.Run(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fluidwatch %s\n", version)
		},
	}
}

func openProvider(cfgFile, cfgBackend string) (config.ConfigProvider, error) {
	filename, _ := filepath.Abs(cfgFile)

	switch cfgBackend {
	case "yaml":
		return config.NewYAMLProvider(filename), nil
	case "sqlite":
		provider, err := config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
	}
}

func loadConfig(flags *globalFlags) (*config.ConfigData, error) {
	provider, err := openProvider(flags.cfgFile, flags.cfgBackend)
	if err != nil {
		return nil, err
	}
	defer provider.Close()

	cfg, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config. Did you pass the --config flag? Run with -h for help: %w", err)
	}
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
