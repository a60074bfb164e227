package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"frameworks/herald/internal/access"
	"frameworks/herald/pkg/auth"
)

// newTokenCmd mints development tokens signed with the server's JWT secret.
func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{Use: "token", Short: "Development tokens"}

	var (
		userID, email, role, secret string
		ttl                         time.Duration
	)
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint a signed JWT for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := access.ParseRole(role); err != nil {
				return err
			}
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			token, err := auth.GenerateJWTWithTTL(userID, email, role, ttl, []byte(secret))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	mint.Flags().StringVar(&userID, "user", "", "user id placed in the user_id claim")
	mint.Flags().StringVar(&email, "email", "", "email claim")
	mint.Flags().StringVar(&role, "role", "admin", "admin, reviewer or client")
	mint.Flags().StringVar(&secret, "secret", "", "HMAC secret (default $JWT_SECRET)")
	mint.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "token lifetime")
	tokenCmd.AddCommand(mint)
	return tokenCmd
}
