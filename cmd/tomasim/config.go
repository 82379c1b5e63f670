package main

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/archsim/tomasulo/timing/latency"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect timing configuration",
	}
	cmd.AddCommand(newConfigDumpCmd())
	return cmd
}

func newConfigDumpCmd() *cobra.Command {
	var asTOML bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the default latency config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := latency.Default()
			if asTOML {
				data, err := toml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("encoding config as toml: %w", err)
				}
				fmt.Print(string(data))
				return nil
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding config as json: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asTOML, "toml", false, "print as TOML instead of JSON")
	return cmd
}
