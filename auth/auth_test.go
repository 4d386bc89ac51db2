package auth_test

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/auth"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestIssueVerify(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m, err := auth.NewManager("s3cret", auth.WithClock(fixedClock(now)))
	require.NoError(t, err)

	tok, err := m.Issue("acme", "mbr_01h", "admin")
	require.NoError(t, err)

	claims, err := m.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "mbr_01h", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, now.Add(auth.DefaultTTL).Unix(), claims.ExpiresAt.Unix())
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m, err := auth.NewManager("s3cret", auth.WithClock(fixedClock(now)), auth.WithTTL(time.Hour))
	require.NoError(t, err)
	tok, err := m.Issue("acme", "mbr_01h", "")
	require.NoError(t, err)

	other, err := auth.NewManager("other", auth.WithClock(fixedClock(now)))
	require.NoError(t, err)
	later, err := auth.NewManager("s3cret", auth.WithClock(fixedClock(now.Add(2*time.Hour))))
	require.NoError(t, err)
	foreign, err := auth.NewManager("s3cret", auth.WithClock(fixedClock(now)), auth.WithIssuer("someone-else"))
	require.NoError(t, err)

	tests := []struct {
		name string
		m    *auth.Manager
		tok  string
	}{
		{"wrong secret", other, tok},
		{"expired", later, tok},
		{"wrong issuer", foreign, tok},
		{"garbage", m, "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.m.Verify(tt.tok)
			require.Error(t, err)
			assert.True(t, errors.Is(err, auth.ErrInvalidToken))
		})
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := auth.NewManager("")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, ok := auth.BearerToken(r)
	assert.False(t, ok)

	r.Header.Set("Authorization", "Basic abc")
	_, ok = auth.BearerToken(r)
	assert.False(t, ok)

	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	tok, ok := auth.BearerToken(r)
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", tok)
}
