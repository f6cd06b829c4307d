package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Daovouslabs/wsgateway-go/pkg/client"
)

func newPublishCommand() *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "publish [payload-json]",
		Short: "Publish a message through the gateway",
		Long: `Connects to the gateway and publishes one JSON payload. With --topic
the payload is tagged as a directed send carrying that topic; without it
the payload is tagged as a broadcast. Either way the message goes out on
the shared broker channel and echoes to every matching subscriber of
every gateway instance.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload map[string]any
			if err := json.Unmarshal([]byte(args[0]), &payload); err != nil {
				return fmt.Errorf("payload must be a JSON object: %w", err)
			}

			c, err := newGatewayClient("")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := c.Connect(ctx); err != nil {
				return err
			}
			defer c.Close()

			if err := c.Send(payload, topic); err != nil {
				return fmt.Errorf("publishing: %w", err)
			}
			if topic != "" {
				fmt.Printf("published to topic %q\n", topic)
			} else {
				fmt.Println("broadcast published")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Topic for a directed send (empty broadcasts)")
	return cmd
}

// newGatewayClient builds a pkg/client.Client from the global flags.
func newGatewayClient(pattern string) (*client.Client, error) {
	id := clientID
	if id == "" {
		id = "cli-" + uuid.NewString()[:8]
	}
	return client.NewClient(client.Config{
		ServerURL: serverURL,
		ClientID:  id,
		Topic:     pattern,
		Token:     token,
		Timeout:   timeout,
	})
}
