package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"vectort/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration as TOML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.File != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", cfg.File)
		}
		return toml.NewEncoder(cmd.OutOrStdout()).Encode(redact(cfg))
	},
}

func redact(cfg config.Config) config.Config {
	if cfg.Backend.Token != "" {
		cfg.Backend.Token = "********"
	}
	if cfg.Deepgram.APIKey != "" {
		cfg.Deepgram.APIKey = "********"
	}
	return cfg
}
