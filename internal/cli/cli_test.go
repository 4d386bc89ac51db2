package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/auth"
	"github.com/xraph/tally/config"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/member"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "token", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestVersion(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "tally dev\n", out.String())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tally.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestTokenIssuesVerifiableToken(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: cli-secret\n")
	user := id.NewMemberID().String()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "-c", path, "--tenant", "acme", "--user", user, "--role", "admin"})
	require.NoError(t, cmd.Execute())

	am, err := auth.NewManager("cli-secret")
	require.NoError(t, err)
	claims, err := am.Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, user, claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestTokenRejectsBadInput(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: cli-secret\n")

	tests := []struct {
		name string
		args []string
	}{
		{"bad user", []string{"--tenant", "acme", "--user", "nope"}},
		{"bad role", []string{"--tenant", "acme", "--user", id.NewMemberID().String(), "--role", "owner"}},
		{"missing tenant", []string{"--user", id.NewMemberID().String()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCommand()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(append([]string{"token", "-c", path}, tt.args...))
			assert.Error(t, cmd.Execute())
		})
	}
}

func TestNewServerRequiresSecret(t *testing.T) {
	_, err := newServer(context.Background(), config.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestNewServerServesSeededMembers(t *testing.T) {
	adminID := id.NewMemberID()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "serve-secret"
	cfg.Engine.OverdueSweep = ""
	cfg.Members = []config.MemberSeed{
		{ID: adminID.String(), TenantID: "acme", Name: "Ada", Role: member.RoleAdmin},
	}

	srv, err := newServer(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.engine.Stop() })

	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)

	am, err := auth.NewManager("serve-secret")
	require.NoError(t, err)
	token, err := am.Issue("acme", adminID.String(), "admin")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/members/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"name":"Ada"`)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
