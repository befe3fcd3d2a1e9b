package main

import (
	"fmt"
	"time"

	"ChatRelay/global/config"
	"ChatRelay/tools/security"

	"github.com/spf13/cobra"
)

// newTokenCmd mints a development token with the relay's own secret.
func newTokenCmd() *cobra.Command {
	var (
		user string
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed client token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts := security.DefaultOptions([]byte(cfg.JWTSecret))
			opts.Alg = cfg.JWTAlgorithm
			opts.TTL = ttl
			extra := map[string]any{}
			if name != "" {
				extra["username"] = name
			}
			tok, exp, err := security.Generate(opts, user, extra)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (sub claim)")
	cmd.Flags().StringVar(&name, "name", "", "display name (username claim)")
	cmd.Flags().DurationVar(&ttl, "ttl", 2*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
