package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "campusd",
	Short: "campusd is the student portal account service",
	Long: `The account and session service behind the student portal.
It handles registration, login throttling, and session lifetimes.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to TOML config file")
}
