package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "attendancesys",
	Short: "Face recognition attendance tracking",
	Long: `attendancesys watches one or more cameras, recognizes registered people
and records their daily arrival and departure times.

Configuration is read from the environment (a .env file is loaded when
present) and, optionally, from the YAML file named by CONFIG_FILE.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
