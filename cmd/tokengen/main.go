package main

import (
	"fmt"
	"os"
	"time"

	"course-agenda-server/internal/config"
	"course-agenda-server/pkg/jwt"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
		secret string
	)

	cmd := &cobra.Command{
		Use:   "tokengen",
		Short: "Mint a bearer token for local development",
		Long: `Mint an HS256 bearer token accepted by the agenda server.

The secret defaults to JWT_SECRET from the environment or .env, so the token
matches a server started from the same directory.

Examples:
  tokengen --user alice --role editor
  tokengen --user bob --role viewer --ttl 1h`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := jwt.ParseRole(role)
			if err != nil {
				return err
			}

			if secret == "" || ttl == 0 {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("load configuration: %w", err)
				}
				if secret == "" {
					secret = cfg.JWT.Secret
				}
				if ttl == 0 {
					ttl = cfg.JWT.Expiration
				}
			}

			token, err := jwt.GenerateToken(userID, r, ttl, secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id carried by the token")
	cmd.Flags().StringVar(&role, "role", string(jwt.RoleEditor), "editor or viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_EXPIRATION)")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	cmd.MarkFlagRequired("user")

	return cmd
}
