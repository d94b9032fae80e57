// Command vhdctl inspects, creates, and drives VHD files and the shared
// ring transport described by this module, one subcommand per file in the
// style of a small operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "vhdctl",
	Short:         "Inspect and drive VHD disks and the paravirtualized block ring",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vhdctl:", err)
		os.Exit(1)
	}
}
