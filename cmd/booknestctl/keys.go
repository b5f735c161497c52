package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/repository"
	"github.com/booknest/booknest/internal/service"
)

type bootstrapOutput struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email"`
	KeyID     string   `json:"key_id"`
	Key       string   `json:"key"`
	KeyPrefix string   `json:"key_prefix"`
	Scopes    []string `json:"scopes"`
}

func newBootstrapKeyCmd(opts *globalOptions) *cobra.Command {
	var (
		email  string
		name   string
		scopes string
		tier   string
		env    string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap-key",
		Short: "Create a user if needed and issue them an API key",
		Long: "Finds or creates the user for --email and issues a new API key. " +
			"The plaintext key is printed once and cannot be recovered.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireValue("--database-url", opts.databaseURL); err != nil {
				return err
			}
			parsed, err := parseScopes(scopes, model.ScopeAdmin)
			if err != nil {
				return err
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()

			repo, err := repository.New(ctx, opts.databaseURL, repository.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer repo.Close()

			keys := service.NewKeyService(repo, nil, env, opts.logger(cmd))
			user, issued, err := keys.Bootstrap(ctx, email, service.IssueKeyInput{
				Name:   name,
				Scopes: parsed,
				Tier:   tier,
			})
			if err != nil {
				return err
			}

			return opts.print(cmd, issued.Plaintext, bootstrapOutput{
				UserID:    user.ID,
				Email:     user.Email,
				KeyID:     issued.Key.ID,
				Key:       issued.Plaintext,
				KeyPrefix: issued.Key.KeyPrefix,
				Scopes:    issued.Key.Scopes,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&email, "email", "librarian@booknest.local", "Owner email")
	flags.StringVar(&name, "name", "bootstrap", "Key name")
	flags.StringVar(&scopes, "scopes", model.ScopeAdmin, "Comma-separated scopes (read,write,admin)")
	flags.StringVar(&tier, "tier", model.TierUnlimited, "Rate limit tier")
	flags.StringVar(&env, "env", auth.EnvLive, "Key environment: live or test")
	return cmd
}

type tokenOutput struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newIssueTokenCmd(opts *globalOptions) *cobra.Command {
	var (
		email  string
		scopes string
		secret string
		issuer string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Mint a signed bearer token for a borrower",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireValue("--email", email); err != nil {
				return err
			}
			parsed, err := parseScopes(scopes, model.ScopeRead, model.ScopeWrite)
			if err != nil {
				return err
			}

			tokens, err := auth.NewTokens(secret, issuer, ttl)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(email, parsed)
			if err != nil {
				return err
			}

			return opts.print(cmd, token, tokenOutput{
				Token:     token,
				Email:     email,
				Scopes:    parsed,
				ExpiresAt: time.Now().UTC().Add(ttl).Truncate(time.Second),
			})
		},
	}

	issuerDefault := os.Getenv("JWT_ISSUER")
	if issuerDefault == "" {
		issuerDefault = "booknest"
	}

	flags := cmd.Flags()
	flags.StringVar(&email, "email", "", "Borrower email the token is bound to")
	flags.StringVar(&scopes, "scopes", "", "Comma-separated scopes (default read,write)")
	flags.StringVar(&secret, "jwt-secret", os.Getenv("JWT_SECRET"), "HMAC secret shared with the API server")
	flags.StringVar(&issuer, "issuer", issuerDefault, "Token issuer")
	flags.DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
