package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Daovouslabs/wsgateway-go/internal/httpapi"
)

func newTokenCommand() *cobra.Command {
	var secretKey string

	cmd := &cobra.Command{
		Use:   "token [client-id]",
		Short: "Mint a client access token",
		Long: `Mints a JWT access token for a client id, signed with the gateway's
secret key. The token authorizes connections on the /ws endpoint.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secretKey == "" {
				return fmt.Errorf("--secret-key is required")
			}

			auth := httpapi.NewJWTAuth(secretKey)
			tokenString, expiresAt, err := auth.GenerateToken(args[0])
			if err != nil {
				return fmt.Errorf("minting token: %w", err)
			}

			fmt.Println(tokenString)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires: %s\n", expiresAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	cmd.Flags().StringVar(&secretKey, "secret-key", "", "Gateway JWT signing key")
	return cmd
}
