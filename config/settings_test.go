package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadSettingsDefaults(t *testing.T) {
	for _, key := range []string{"API_PORT_2", "PORT", "STORE_BACKEND", "DISPATCH_MODE", "RECURRING_TICK_INTERVAL", "CORS_ALLOWED_ORIGINS", "GO_ENV"} {
		t.Setenv(key, "")
	}
	s := LoadSettings()
	assert.Equal(t, "8080", s.Port)
	assert.Equal(t, StoreBackendMemory, s.StoreBackend)
	assert.Equal(t, DispatchModeLog, s.DispatchMode)
	assert.Equal(t, time.Minute, s.TickInterval)
	assert.True(t, s.AutoSendEnabled)
	assert.False(t, s.CatchUpMissed)
	assert.Nil(t, s.CORSAllowedOrigins)
	assert.False(t, s.IsProduction())
}

func TestLoadSettingsOverrides(t *testing.T) {
	t.Setenv("API_PORT_2", "")
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "MySQL")
	t.Setenv("RECURRING_TICK_INTERVAL", "90")
	t.Setenv("RECURRING_WINDOW_TOLERANCE", "2m")
	t.Setenv("RECURRING_CATCH_UP_MISSED", "yes")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, ,https://b.test")
	t.Setenv("GO_ENV", "Production")
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "not-a-number")

	s := LoadSettings()
	assert.Equal(t, "9090", s.Port)
	assert.Equal(t, StoreBackendMySQL, s.StoreBackend)
	assert.Equal(t, 90*time.Second, s.TickInterval)
	assert.Equal(t, 2*time.Minute, s.WindowTolerance)
	assert.True(t, s.CatchUpMissed)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, s.CORSAllowedOrigins)
	assert.True(t, s.IsProduction())
	assert.Equal(t, 3, s.DispatchMaxAttempts)
}

func TestBackoffIsCapped(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 30*time.Second, backoff(10))
}
