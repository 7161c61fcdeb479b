package xtrack

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_MethodDefaults(t *testing.T) {
	get := Config{Method: MethodGet}.Resolved()
	assert.Equal(t, DefaultGetBufferSize, get.BufferSize)
	assert.Equal(t, 1, get.BufferSize)
	assert.Equal(t, DefaultGetPath, get.Path)

	post := Config{Method: "POST"}.Resolved()
	assert.Equal(t, MethodPost, post.Method)
	assert.Equal(t, 10, post.BufferSize)
	assert.Equal(t, DefaultPostPath, post.Path)

	zero := Config{}.Resolved()
	assert.Equal(t, MethodGet, zero.Method)
	assert.Equal(t, ProtocolHTTP, zero.Protocol)
	assert.Equal(t, 1, zero.ThreadCount)
	require.NoError(t, zero.Validate())
}

func TestConfig_CollectorURI(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{}, "http://c.example.com/i"},
		{Config{Method: MethodPost, Protocol: ProtocolHTTPS, Port: 8080}, "https://c.example.com:8080/com.snowplowanalytics.snowplow/tp2"},
		{Config{Path: "/custom"}, "http://c.example.com/custom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cfg.Resolved().CollectorURI("c.example.com"))
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		key  string
	}{
		{"protocol", Config{Protocol: "ftp"}, "protocol"},
		{"method", Config{Method: "put"}, "method"},
		{"port", Config{Port: 70000}, "port"},
		{"buffer", Config{BufferSize: -1}, "buffer_size"},
		{"threads", Config{ThreadCount: -2}, "thread_count"},
		{"path", Config{Path: "i"}, "path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Resolved().Validate()
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.key, ce.Key)
		})
	}
}

// TestConfigFromMap_UnknownKey tests that unrecognized options fail fast.
func TestConfigFromMap_UnknownKey(t *testing.T) {
	_, err := ConfigFromMap(map[string]any{"method": "post", "bufer_size": 3})
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "bufer_size", ce.Key)
	assert.Contains(t, ce.Error(), "unknown option")
}

func TestConfigFromMap_Values(t *testing.T) {
	var successes int
	cfg, err := ConfigFromMap(map[string]any{
		"method":       "post",
		"protocol":     "https",
		"port":         8443,
		"buffer_size":  float64(5),
		"thread_count": int64(4),
		"path":         "/tp2",
		"on_success":   func(n int) { successes += n },
	})
	require.NoError(t, err)
	assert.Equal(t, MethodPost, cfg.Method)
	assert.Equal(t, ProtocolHTTPS, cfg.Protocol)
	assert.Equal(t, 8443, cfg.Port)
	assert.Equal(t, 5, cfg.BufferSize)
	assert.Equal(t, 4, cfg.ThreadCount)
	assert.Equal(t, "/tp2", cfg.Path)
	require.NotNil(t, cfg.OnSuccess)
	cfg.OnSuccess(2)
	assert.Equal(t, 2, successes)
}

func TestConfigFromMap_WrongTypes(t *testing.T) {
	tests := []map[string]any{
		{"method": 1},
		{"buffer_size": "10"},
		{"buffer_size": 2.5},
		{"buffer_size": 0},
		{"on_success": "yes"},
		{"on_failure": func(int) {}},
	}
	for _, m := range tests {
		_, err := ConfigFromMap(m)
		var ce *ConfigError
		assert.True(t, errors.As(err, &ce), "ConfigFromMap(%v) = %v", m, err)
	}
}

func TestConfigFromMap_Empty(t *testing.T) {
	cfg, err := ConfigFromMap(nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}
