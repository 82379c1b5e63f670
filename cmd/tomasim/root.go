// Package main provides tomasim, the command-line driver for the
// Tomasulo dynamic-scheduling simulator (SPEC_FULL.md §6.1).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tomasim",
		Short: "A cycle-accurate Tomasulo dynamic-scheduling simulator",
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newConfigCmd())
	return root
}
