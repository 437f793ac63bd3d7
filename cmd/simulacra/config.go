package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/faanross/simulacra_lsb/internal/configs"
	"github.com/faanross/simulacra_lsb/internal/ui"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or display the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(a), newConfigShowCmd(a))
	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if _, err := os.Stat(a.configPath); err == nil && !force {
				fmt.Fprintf(w, "%s Config already exists at %s\n", color.YellowString("!"), ui.Path.Sprint(a.configPath))
				fmt.Fprintf(w, "%s Use %s to overwrite it\n", color.CyanString("→"), ui.Code.Sprint("--force"))
				return nil
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if err := configs.Save(a.configPath, configs.Default(a.settings)); err != nil {
				return err
			}
			fmt.Fprintf(w, "%s Wrote %s\n", color.GreenString("✓"), ui.Path.Sprint(a.configPath))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "# %s\n", a.configPath)
			return toml.NewEncoder(w).Encode(a.cfg)
		},
	}
}
