package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newTailCommand() *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the messages a subscription pattern receives",
		Long: `Connects to the gateway subscribed to a topic pattern and prints every
delivered message until interrupted. Messages are delivered when the
pattern matches the gateway's broker channel name; the default # pattern
matches everything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newGatewayClient(pattern)
			if err != nil {
				return err
			}

			if err := c.Connect(cmd.Context()); err != nil {
				return err
			}
			defer c.Close()

			fmt.Fprintf(os.Stderr, "listening (pattern %q), Ctrl-C to stop\n", pattern)
			encoder := json.NewEncoder(os.Stdout)
			for {
				msg, err := c.Receive(cmd.Context())
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return fmt.Errorf("receiving: %w", err)
				}
				if err := encoder.Encode(msg); err != nil {
					return err
				}
			}
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "#", "Topic pattern to subscribe with")
	return cmd
}
