package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examgen/internal/handler"
	"github.com/pavelanni/examgen/internal/model"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed actor token for the HTTP API",
		RunE:  runToken,
	}
	f := cmd.Flags()
	f.String("sub", "", "Actor ID placed in the token subject (required)")
	f.String("email", "", "Actor email used for exam sharing")
	f.Duration("ttl", 0, "Token lifetime (default 8h)")
	f.String("jwt-secret", "", "HMAC secret for actor tokens (or set EXAMGEN_JWT_SECRET)")
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func runToken(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	auth, err := handler.NewAuth(v.GetString("jwt-secret"))
	if err != nil {
		return err
	}
	ttl := v.GetDuration("ttl")
	if ttl <= 0 {
		ttl = handler.DefaultTokenTTL
	}
	tok, err := auth.IssueToken(model.Actor{ID: v.GetString("sub"), Email: v.GetString("email")}, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
