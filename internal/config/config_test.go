package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sportorg/internal/engine"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, engine.DefaultUnresolvedRetention, cfg.Retention)
	assert.False(t, cfg.HasZeroTime)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"SPORTORG_DB":          "/var/lib/sportorg/event.db",
		"SPORTORG_LOG_LEVEL":   "debug",
		"SPORTORG_LISTEN":      "127.0.0.1:9000",
		"SPORTORG_HTTP":        ":9090",
		"SPORTORG_MQTT_BROKER": "tcp://broker:1883",
		"SPORTORG_NATS_URL":    "nats://nats:4222",
		"SPORTORG_RETENTION":   "30m",
		"SPORTORG_TICK":        "500ms",
		"SPORTORG_ZERO_TIME":   "10:30:00",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/sportorg/event.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
	assert.Equal(t, "nats://nats:4222", cfg.NATSURL)
	assert.Equal(t, 30*time.Minute, cfg.Retention)
	assert.Equal(t, 500*time.Millisecond, cfg.Tick)
	assert.True(t, cfg.HasZeroTime)
	assert.Equal(t, 10*time.Hour+30*time.Minute, cfg.ZeroTime)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SPORTORG_RETENTION", "ten minutes"},
		{"SPORTORG_RETENTION", "-1m"},
		{"SPORTORG_TICK", "0s"},
		{"SPORTORG_ZERO_TIME", "noon"},
		{"SPORTORG_ZERO_TIME", "25:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			_, err := FromEnv(envOf(map[string]string{tt.key: tt.value}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestEngineConfig(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	now := time.Date(2026, 5, 1, 9, 12, 0, 0, loc)

	cfg := Defaults()
	ec := cfg.EngineConfig(now)
	assert.True(t, ec.ZeroTime.IsZero())
	assert.Equal(t, cfg.Retention, ec.UnresolvedRetention)
	assert.Equal(t, cfg.Tick, ec.TickInterval)

	cfg.ZeroTime, cfg.HasZeroTime = 10*time.Hour, true
	ec = cfg.EngineConfig(now)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, loc), ec.ZeroTime)
}
