package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/foxseedlab/tasktimer/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a development token",
		Long: `Mint a bearer token for local development. The secret must match the
server's JWT_SECRET; production tokens come from the identity provider.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			issuer, _ := cmd.Flags().GetString("issuer")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			token, err := auth.GenerateToken(secret, issuer, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("secret", "", "signing secret (defaults to JWT_SECRET)")
	cmd.Flags().String("issuer", "tasktimer", "token issuer")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}
