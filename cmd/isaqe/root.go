package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "isaqe",
	Short: "ISAQE answers natural-language questions against a PostgreSQL database",
	Long:  `ISAQE synthesizes SQL from natural-language questions, validates and sandboxes it, executes it, and synthesizes a plain-language answer from the result.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/isaqe.yaml)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	Execute()
}
