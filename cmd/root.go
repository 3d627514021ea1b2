package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rawburt/chatd/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "chatd",
	Short: "chatd is a line-oriented chat server and client",
	Long: `chatd is a line-oriented chat server and client.

Usage
	chatd server
	chatd client

`,
}

func init() {
	RootCmd.AddCommand(ServerCmd)
	RootCmd.AddCommand(ClientCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
