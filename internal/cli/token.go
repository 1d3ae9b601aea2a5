package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/domain"
)

// TokenCmd mints a bearer token, mainly for an external scheduler calling
// the sweep endpoint.
func TokenCmd() *cobra.Command {
	var subject, role string
	var ttlMinutes int

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttlMinutes <= 0 {
				ttlMinutes = cfg.Auth.AccessTokenTTLMinutes
			}
			tm := auth.NewTokenManager(cfg.Auth.JWTSecret, ttlMinutes)
			token, expiresAt, err := tm.GenerateToken(subject, domain.Role(strings.ToUpper(role)))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "scheduler", "support user id, or a service name for SCHEDULER")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleScheduler), "AGENT, ADMIN or SCHEDULER")
	cmd.Flags().IntVar(&ttlMinutes, "ttl", 0, "lifetime in minutes (defaults to AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	return cmd
}
