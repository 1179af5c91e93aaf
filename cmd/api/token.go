package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	appMiddleware "github.com/easyshare/service/internal/middleware"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token",
		Long: `Sign a JWT for the /admin endpoints with ADMIN_JWT_SECRET and print it.

Example:
  curl -X POST -H "Authorization: Bearer $(easyshare token)" localhost:8080/admin/sweep`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _ := loadConfig()
			token, err := appMiddleware.NewAdminToken(cfg.AdminJWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "subject claim recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
