// Package main provides the judgectl CLI tool entry point.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "judgectl",
		Short: "judge service CLI",
		Long:  `Command-line interface for the sandboxed code judge service`,
	}

	rootCmd.PersistentFlags().StringP("server", "s", "http://localhost:8080", "Judge service URL")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newRunCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
