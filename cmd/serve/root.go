package serve

import (
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/gridkv/gridkv/cmd/util"
	"github.com/gridkv/gridkv/rpc/common"
	"github.com/gridkv/gridkv/rpc/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the gridKV server",
		Long:    `Start the gridKV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is GRIDKV_<flag> (e.g. GRIDKV_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "bind"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0", cmdUtil.WrapString("The address on which the server will listen, without a port. Ports are configured per protocol"))

	key = "binary-port"
	ServeCmd.PersistentFlags().Int(key, 5000, cmdUtil.WrapString("Port to serve the binary protocol on (0 disables the protocol)"))

	key = "json-port"
	ServeCmd.PersistentFlags().Int(key, 5001, cmdUtil.WrapString("Port to serve the JSON protocol on (0 disables the protocol)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int(key, 30, cmdUtil.WrapString("Timeout in seconds for a single read or write on a connection (0 disables)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	cmdUtil.SetupSocketFlags(ServeCmd)
}

// processConfig reads the configuration from the command line flags and
// environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.BindAddress = viper.GetString("bind")
	serveCmdConfig.Listeners = cmdUtil.GetProtocolPorts()
	serveCmdConfig.Socket = cmdUtil.GetSocketConfig()
	serveCmdConfig.TimeoutSecond = viper.GetInt("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return nil
}

// run starts the gridKV server and blocks until it is interrupted
func run(_ *cobra.Command, _ []string) error {
	common.InitLoggers(serveCmdConfig.LogLevel)

	serv := server.NewServer(*serveCmdConfig, server.NewMemoryKeyspace())

	// Stop on SIGINT / SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		serv.Stop()
	}()

	return serv.Serve()
}

// initConfig reads in the env files and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("gridkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
