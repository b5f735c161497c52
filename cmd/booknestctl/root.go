package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/booknest/booknest/internal/model"
)

type globalOptions struct {
	databaseURL string
	redisURL    string
	timeout     time.Duration
	format      string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "booknestctl",
		Short:         "Operator tooling for BookNest",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flags.StringVar(&opts.redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis connection string")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall deadline for the command")
	flags.StringVar(&opts.format, "format", "plain", "Output format: plain or json")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress to stderr")

	root.AddCommand(
		newBootstrapKeyCmd(opts),
		newIssueTokenCmd(opts),
		newReconcileCmd(opts),
	)
	return root
}

func (o *globalOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func (o *globalOptions) logger(cmd *cobra.Command) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// print writes plain in plain mode and v as indented JSON otherwise.
func (o *globalOptions) print(cmd *cobra.Command, plain string, v any) error {
	switch strings.ToLower(o.format) {
	case "plain":
		_, err := fmt.Fprintln(cmd.OutOrStdout(), plain)
		return err
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("invalid format %q; use plain or json", o.format)
	}
}

func requireValue(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

// parseScopes splits a comma list, falling back to fallback when empty.
func parseScopes(input string, fallback ...string) ([]string, error) {
	scopes := make([]string, 0, len(model.ValidScopes))
	for _, part := range strings.Split(input, ",") {
		scope := strings.ToLower(strings.TrimSpace(part))
		if scope == "" {
			continue
		}
		if !isValidScope(scope) {
			return nil, fmt.Errorf("invalid scope: %s", scope)
		}
		scopes = append(scopes, scope)
	}
	if len(scopes) == 0 {
		return fallback, nil
	}
	return scopes, nil
}

func isValidScope(scope string) bool {
	for _, allowed := range model.ValidScopes {
		if scope == allowed {
			return true
		}
	}
	return false
}
