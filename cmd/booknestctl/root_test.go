package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIssueToken_Plain(t *testing.T) {
	out, err := execute(t, "issue-token", "--email", " Alice@Example.com ", "--jwt-secret", testSecret, "--issuer", "booknest")
	require.NoError(t, err)

	tokens, err := auth.NewTokens(testSecret, "booknest", time.Hour)
	require.NoError(t, err)

	authCtx, err := tokens.Verify(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", authCtx.Email)
	assert.Equal(t, []string{model.ScopeRead, model.ScopeWrite}, authCtx.Scopes)
}

func TestIssueToken_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "issue-token",
		"--email", "bob@example.com", "--scopes", "read", "--jwt-secret", testSecret, "--ttl", "10m")
	require.NoError(t, err)

	var got tokenOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{model.ScopeRead}, got.Scopes)
	assert.NotEmpty(t, got.Token)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), got.ExpiresAt, 5*time.Second)
}

func TestIssueToken_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing email", []string{"issue-token", "--jwt-secret", testSecret}, "--email is required"},
		{"short secret", []string{"issue-token", "--email", "a@b.c", "--jwt-secret", "short"}, "jwt secret"},
		{"bad scope", []string{"issue-token", "--email", "a@b.c", "--jwt-secret", testSecret, "--scopes", "read,root"}, "invalid scope: root"},
		{"bad format", []string{"--format", "xml", "issue-token", "--email", "a@b.c", "--jwt-secret", testSecret}, "invalid format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCommandsRequireConnectionStrings(t *testing.T) {
	_, err := execute(t, "bootstrap-key", "--database-url", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--database-url is required")

	_, err = execute(t, "reconcile", "--database-url", "postgres://localhost/booknest", "--redis-url", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--redis-url is required")
}

func TestParseScopes(t *testing.T) {
	got, err := parseScopes(" Read , write,, ", model.ScopeAdmin)
	require.NoError(t, err)
	assert.Equal(t, []string{model.ScopeRead, model.ScopeWrite}, got)

	got, err = parseScopes("", model.ScopeAdmin)
	require.NoError(t, err)
	assert.Equal(t, []string{model.ScopeAdmin}, got)

	_, err = parseScopes("owner")
	assert.Error(t, err)
}
