package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the sandbox and print a bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("STOREFRONT_PASSWORD")
			}
			if password == "" {
				return errors.New("--password or STOREFRONT_PASSWORD is required")
			}
			env, err := opts.clientEnv(cmd, false)
			if err != nil {
				return err
			}

			token, err := env.api.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			id, err := env.session.SignIn(token)
			if err != nil {
				return err
			}
			env.logger.Info("signed in", "user_id", id.UserID, "role", id.Role, "expires_at", id.ExpiresAt)
			printf(cmd, "%s\n", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (default $STOREFRONT_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
