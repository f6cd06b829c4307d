package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe gateway health",
		RunE: func(cmd *cobra.Command, args []string) error {
			httpClient := &http.Client{Timeout: timeout}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, serverURL+"/healthz", nil)
			if err != nil {
				return err
			}

			resp, err := httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("gateway unreachable: %w", err)
			}
			defer resp.Body.Close()

			var health map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
				return fmt.Errorf("decoding health response: %w", err)
			}

			fmt.Printf("status: %d\n", resp.StatusCode)
			fmt.Printf("state: %v\n", health["state"])
			fmt.Printf("connections: %v\n", health["connections"])
			return nil
		},
	}
}
