package kv

import (
	"github.com/gridkv/gridkv/cmd/util"
	"github.com/gridkv/gridkv/rpc/client"
	"github.com/gridkv/gridkv/rpc/common"
	"github.com/spf13/cobra"
)

var (
	rpcStore client.Store

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value store operations",
		PersistentPreRunE: setupKVClient,
		PersistentPostRun: teardownKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add the node connection flags to the KV command
	util.SetupNodeFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
}

// setupKVClient initializes the RPC store client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the node configuration
	config, err := util.GetNodeConfig()
	if err != nil {
		return err
	}

	// Initialize logging before the node starts
	common.InitLoggers(config.LogLevel)

	// Create the KV store client
	rpcStore, err = client.NewStore(*config)
	return err
}

// teardownKVClient shuts the client's node down after the command ran
func teardownKVClient(_ *cobra.Command, _ []string) {
	if rpcStore != nil {
		_ = rpcStore.Close()
	}
}
