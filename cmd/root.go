package cmd

import (
	"fmt"
	"os"

	"github.com/gridkv/gridkv/cmd/kv"
	"github.com/gridkv/gridkv/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "gridkv",
		Short: "multi-protocol key-value store",
		Long: fmt.Sprintf(`gridKV (v%s)

A key-value store with a connection-pooled RPC client, written in Go.
Every server speaks its protocols on dedicated ports; clients pick a
protocol per request from an ordered preference list.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of gridKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gridKV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
