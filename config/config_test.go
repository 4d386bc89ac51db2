package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/store/memory"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
  read_timeout: 5s
auth:
  jwt_secret: s3cret
  token_ttl: 1h
tally:
  overdue_sweep: "@hourly"
  daily_score_limit: 500
  due_days: 60
log:
  level: debug
  format: text
members:
  - tenant_id: acme
    name: Ada
    role: admin
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "@hourly", cfg.Engine.OverdueSweep)
	assert.Equal(t, int64(500), cfg.Engine.DailyScoreLimit)
	assert.Equal(t, 60, cfg.Engine.DueDays)
	assert.Equal(t, "eur", cfg.Engine.Currency)
	require.Len(t, cfg.Members, 1)
	assert.Equal(t, member.RoleAdmin, cfg.Members[0].Role)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TALLY_HTTP_ADDR":         ":7000",
		"TALLY_JWT_SECRET":        "from-env",
		"TALLY_DAILY_SCORE_LIMIT": "100",
		"TALLY_DUE_DAYS":          "15",
		"TALLY_TOKEN_TTL":         "30m",
		"TALLY_LOG_FORMAT":        "text",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, int64(100), cfg.Engine.DailyScoreLimit)
	assert.Equal(t, 15, cfg.Engine.DueDays)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, "text", cfg.Log.Format)

	env["TALLY_DUE_DAYS"] = "soon"
	assert.Error(t, Default().applyEnv(lookup))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"database driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"member without tenant", func(c *Config) { c.Members = []MemberSeed{{Name: "Ada"}} }},
		{"member with foreign id", func(c *Config) {
			c.Members = []MemberSeed{{ID: id.NewInvoiceID().String(), TenantID: "acme", Name: "Ada"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestSeedMembers(t *testing.T) {
	ctx := context.Background()
	fixed := id.NewMemberID()

	cfg := Default()
	cfg.Members = []MemberSeed{
		{ID: fixed.String(), TenantID: "acme", Name: "Ada", Role: member.RoleAdmin},
		{TenantID: "acme", Name: "Alice", Role: member.RoleEmployee},
	}

	engine := tally.New(memory.New(), cfg.EngineOptions()...)
	require.NoError(t, cfg.SeedMembers(ctx, engine))

	m, err := engine.GetMember(tally.WithScope(ctx, tally.Scope{TenantID: "acme", UserID: fixed.String()}), fixed)
	require.NoError(t, err)
	assert.Equal(t, "Ada", m.Name)
}
