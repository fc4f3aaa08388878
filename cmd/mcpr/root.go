package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/reallyoldfogie/mcpr-studio/internal/logging"
	"github.com/reallyoldfogie/mcpr-studio/studio"
)

var (
	configFile string
	v          = studio.NewViper()
	cfg        *studio.Config
	logger     zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mcpr",
	Short: "Work with ReplayMod .mcpr recordings",
	Long: `mcpr creates, validates, inspects and converts ReplayMod recordings.

Settings come from flags, MCPR_* environment variables and an optional
config file, in that order of precedence.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file (toml, yaml or json)")
	pf.String("data", "", "protocol data file (toml or yaml)")
	pf.String("log-level", "info", "log level")
	pf.String("log-format", "console", "log format: console or json")
	_ = v.BindPFlag("protocol", pf.Lookup("data"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log.format", pf.Lookup("log-format"))

	rootCmd.AddCommand(createCmd, validateCmd, inspectCmd, convertCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	c, err := studio.ReadConfig(v)
	if err != nil {
		return err
	}
	cfg = c
	logger, err = logging.New("mcpr", logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    cmd.ErrOrStderr(),
	})
	return err
}
