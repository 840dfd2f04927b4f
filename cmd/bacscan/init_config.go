package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tturner/bacscan/internal/config"
)

type initConfigFlags struct {
	path  string
	force bool
}

func newInitConfigCmd() *cobra.Command {
	flags := &initConfigFlags{}

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a default configuration file",
		Long: `Write a configuration file populated with the default network and
discovery settings, ready to edit.`,
		Example: `  # Create bacscan.yaml in the current directory
  bacscan init-config

  # Create at a specific path, replacing an existing file
  bacscan init-config --path /etc/bacscan.yaml --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitConfig(flags)
		},
	}

	cmd.Flags().StringVar(&flags.path, "path", "bacscan.yaml", "Where to write the config file")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing file")

	return cmd
}

func runInitConfig(flags *initConfigFlags) error {
	if !flags.force {
		if _, err := os.Stat(flags.path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", flags.path)
		}
	}
	if err := config.WriteDefaultConfig(flags.path); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Config written: %s\n", flags.path)
	return nil
}
