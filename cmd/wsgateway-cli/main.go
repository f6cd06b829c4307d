// Command wsgateway-cli is the operator CLI for the WebSocket gateway.
// It can publish messages through a gateway, tail what a subscription
// pattern receives, mint access tokens and probe gateway health.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL string
	clientID  string
	token     string
	timeout   time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wsgateway-cli",
		Short: "WebSocket gateway command line interface",
		Long: `wsgateway-cli talks to a running WebSocket gateway. It can publish
messages onto the shared broker channel through a gateway connection,
tail the messages a subscription pattern receives, mint client access
tokens and probe gateway health.`,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Gateway server URL")
	rootCmd.PersistentFlags().StringVar(&clientID, "client-id", "", "Connection id (defaults to a generated one)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "JWT access token")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	rootCmd.AddCommand(newPublishCommand())
	rootCmd.AddCommand(newTailCommand())
	rootCmd.AddCommand(newTokenCommand())
	rootCmd.AddCommand(newHealthCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
