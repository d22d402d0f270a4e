package main

import (
	"errors"
	"fmt"
	"time"

	httpadapter "github.com/aretw0/patchbay/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.HTTP.JWTSecret == "" {
			return errors.New("http.jwt_secret is not configured")
		}
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		tok, err := httpadapter.IssueToken([]byte(cfg.HTTP.JWTSecret), subject, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("subject", "patchbay-cli", "Token subject")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}
