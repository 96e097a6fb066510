package main

import (
	"fmt"

	"github.com/blox-verify/internal/config"
	"github.com/blox-verify/internal/domain"
	jwtinfra "github.com/blox-verify/internal/infrastructure/jwt"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var userID, name, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			p, err := jwtinfra.NewProvider(cfg)
			if err != nil {
				return fmt.Errorf("load JWT keys: %w", err)
			}
			tok, err := p.Sign(userID, name, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Discord id of the staff member")
	cmd.Flags().StringVar(&name, "name", "", "display name recorded on decisions")
	cmd.Flags().StringVar(&role, "role", domain.RoleStaff, "role claim")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
