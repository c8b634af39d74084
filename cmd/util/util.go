package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/gridkv/gridkv/rpc/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupSocketFlags adds the TCP socket tuning flags shared between client
// and server commands.
func SetupSocketFlags(cmd *cobra.Command) {
	key := "write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB)"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The TCP keepalive interval (in seconds, 0 disables)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The TCP linger time (in seconds)"))
}

// SetupNodeFlags adds the flags describing a remote gridKV node to a
// command.
func SetupNodeFlags(cmd *cobra.Command) {
	key := "host"
	cmd.PersistentFlags().String(key, "localhost", WrapString("The host of the gridKV server, without a port. Ports are configured per protocol"))

	key = "binary-port"
	cmd.PersistentFlags().Int(key, 5000, WrapString("Port the server speaks the binary protocol on (0 disables the protocol)"))

	key = "json-port"
	cmd.PersistentFlags().Int(key, 0, WrapString("Port the server speaks the JSON protocol on (0 disables the protocol)"))

	key = "min-conns"
	cmd.PersistentFlags().Int(key, 1, WrapString("Connections dialed per protocol at startup and kept open"))

	key = "max-conns"
	cmd.PersistentFlags().Int(key, 8, WrapString("Maximum simultaneous connections per protocol"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds for a single request"))

	key = "read-timeout"
	cmd.PersistentFlags().Int(key, 0, WrapString("How long to wait in seconds for a response after a request was written (0 waits indefinitely)"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry a request when the node has no connection available"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("The level at which logs will be output (debug, info, warn, error)"))

	SetupSocketFlags(cmd)
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("gridkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetSocketConfig reads the socket tuning flags from viper
func GetSocketConfig() common.SocketConfig {
	return common.SocketConfig{
		WriteBufferSize: viper.GetInt("write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		TCPNoDelay:      viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("tcp-linger"),
	}
}

// GetProtocolPorts reads the per-protocol port flags from viper. A port of
// zero disables the protocol.
func GetProtocolPorts() map[common.Protocol]int {
	ports := make(map[common.Protocol]int)
	if p := viper.GetInt("binary-port"); p > 0 {
		ports[common.ProtocolBinary] = p
	}
	if p := viper.GetInt("json-port"); p > 0 {
		ports[common.ProtocolJSON] = p
	}
	return ports
}

// GetNodeConfig reads the node configuration from viper
func GetNodeConfig() (*common.NodeConfig, error) {
	ports := GetProtocolPorts()
	if len(ports) == 0 {
		return nil, fmt.Errorf("no protocol enabled, set at least one of --binary-port or --json-port")
	}

	pools := make(map[common.Protocol]common.PoolConfig, len(ports))
	for p, port := range ports {
		pools[p] = common.PoolConfig{
			Port:           port,
			MinConnections: viper.GetInt("min-conns"),
			MaxConnections: viper.GetInt("max-conns"),
		}
	}

	return &common.NodeConfig{
		RemoteAddress: viper.GetString("host"),
		ReadTimeout:   time.Duration(viper.GetInt("read-timeout")) * time.Second,
		Pools:         pools,
		Socket:        GetSocketConfig(),
		TimeoutSecond: viper.GetInt("timeout"),
		RetryCount:    viper.GetInt("retries"),
		LogLevel:      viper.GetString("log-level"),
	}, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
