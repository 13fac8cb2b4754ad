package main

import (
	"fmt"
	"os"

	"github.com/chrissnell/fluidwatch/pkg/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or convert the configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			out, err := config.MarshalYAML(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	var (
		sqlitePath string
		force      bool
	)
	convert := &cobra.Command{
		Use:   "convert",
		Short: "Copy a YAML configuration into a SQLite configuration database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.cfgBackend != "yaml" {
				return fmt.Errorf("convert reads a YAML configuration; got --config-backend %s", flags.cfgBackend)
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			if _, err := os.Stat(sqlitePath); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", sqlitePath)
			}

			provider, err := config.NewSQLiteProvider(sqlitePath)
			if err != nil {
				return err
			}
			defer provider.Close()

			if err := provider.SaveConfig(cfg); err != nil {
				return fmt.Errorf("could not save configuration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", sqlitePath)
			return nil
		},
	}
	convert.Flags().StringVar(&sqlitePath, "sqlite", "config.db", "Destination SQLite database")
	convert.Flags().BoolVar(&force, "force", false, "Overwrite the existing configuration in the database")

	cmd.AddCommand(show, convert)
	return cmd
}
