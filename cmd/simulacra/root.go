package main

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"

	"github.com/faanross/simulacra_lsb/internal/configs"
	"github.com/faanross/simulacra_lsb/internal/logging"
)

// app carries the state every subcommand shares once the root pre-run has
// resolved flags, paths and configuration.
type app struct {
	verbose    bool
	debug      bool
	configPath string

	log      logging.Logger
	settings *configs.Settings
	cfg      *configs.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "simulacra",
		Short: "Hide text inside lossless images and relay them over DNS",
		Long: `Simulacra hides a text message in the least significant bits of an
image's color channels and recovers it again. A password scrambles the
hidden bytes, or seals them with authenticated encryption.

Stego images can be relayed through a DNS TXT channel with the relay
commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), figure.NewFigure("simulacra", "small", true).String())
			fmt.Fprintln(cmd.OutOrStdout())
			_ = cmd.Help()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "enable debug output")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/simulacra/config.toml)")

	root.AddCommand(
		newEncodeCmd(a),
		newDecodeCmd(a),
		newCapacityCmd(a),
		newAnalyzeCmd(a),
		newTryPassCmd(a),
		newHistoryCmd(a),
		newUserCmd(a),
		newConfigCmd(a),
		newRelayCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	a.log = logging.Logger{
		Verbose: a.verbose,
		Debug:   a.debug,
		Out:     cmd.ErrOrStderr(),
		Err:     cmd.ErrOrStderr(),
	}
	a.log.Debugf("running %q with verbose=%t, debug=%t", cmd.CommandPath(), a.verbose, a.debug)

	settings, err := configs.ResolveSettings()
	if err != nil {
		return err
	}
	a.settings = settings
	if a.configPath == "" {
		a.configPath = settings.ConfigPath()
	}

	cfg, err := configs.Load(a.configPath, settings)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log.Debugf("config loaded from %s", a.configPath)
	return nil
}
