package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fpsim",
	Short: "fpsim is a simulated fingerprint sensor service",
	Long: `A simulated fingerprint sensor: enrollment, authentication, lockout and
challenge handling driven through a REST API or the command line.
Complete documentation is available at https://github.com/jmcleod/fpsim`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
