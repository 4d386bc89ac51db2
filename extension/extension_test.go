package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{DueDays: 60})
	assert.Equal(t, 60, cfg.DueDays)
	assert.Equal(t, "/tally", cfg.BasePath)
	assert.Equal(t, "0 8 * * *", cfg.OverdueSweep)
	assert.Equal(t, int64(2000), cfg.DailyScoreLimit)
	assert.Equal(t, "eur", cfg.Currency)
}

func TestMergeConfigurations(t *testing.T) {
	file := Config{BasePath: "/billing", DailyScoreLimit: 500}
	prog := Config{
		BasePath:       "/ignored",
		JWTSecret:      "s3cret",
		DisableMigrate: true,
		DueDays:        45,
	}

	cfg := mergeConfigurations(file, prog)
	assert.Equal(t, "/billing", cfg.BasePath)
	assert.Equal(t, int64(500), cfg.DailyScoreLimit)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 45, cfg.DueDays)
	assert.True(t, cfg.DisableMigrate)
	assert.False(t, cfg.DisableRoutes)
	assert.Equal(t, "eur", cfg.Currency)
}

func TestOptions(t *testing.T) {
	s := memory.New()
	e := New(
		WithStore(s),
		WithBasePath("/rewards"),
		WithJWTSecret("k"),
		WithDisableRoutes(),
		WithOverdueSweep(""),
		WithDailyScoreLimit(10),
	)
	assert.Equal(t, ExtensionName, e.Name())
	assert.Same(t, s, e.store)
	assert.Equal(t, "/rewards", e.config.BasePath)
	assert.Equal(t, "k", e.config.JWTSecret)
	assert.True(t, e.config.DisableRoutes)
	assert.Equal(t, int64(10), e.config.DailyScoreLimit)
	assert.Nil(t, e.Engine())
	assert.Nil(t, e.Handler())
	assert.Len(t, e.buildTallyOpts(), 5)
}

func TestBuildStoreDefaultsToMemory(t *testing.T) {
	e := New()
	s, err := e.buildStore()
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)
}
