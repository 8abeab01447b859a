package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvWithDefault(t *testing.T) {
	const key = "TEST_APP_PORT"

	// 环境变量未设置时，应该返回默认值
	t.Setenv(key, "")
	if got := getEnv(key, "9000"); got != "9000" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "9000")
	}

	// 环境变量设置后，应优先返回环境变量
	t.Setenv(key, "8080")
	if got := getEnv(key, "9000"); got != "8080" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "8080")
	}
}

func TestParseIntervalMinutes(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		invalid bool
	}{
		{in: "5", want: 5 * time.Minute},
		{in: " 15 ", want: 15 * time.Minute},
		{in: "", want: time.Minute, invalid: true},
		{in: "abc", want: time.Minute, invalid: true},
		{in: "1.5", want: time.Minute, invalid: true},
		{in: "0", want: time.Minute, invalid: true},
		{in: "-3", want: time.Minute, invalid: true},
	}
	for _, tc := range cases {
		got, err := ParseIntervalMinutes(tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
		if tc.invalid {
			assert.ErrorIs(t, err, ErrInvalidInterval, "input %q", tc.in)
		} else {
			assert.NoError(t, err, "input %q", tc.in)
		}
	}
}

func TestLoadReadsAuthAndPorts(t *testing.T) {
	t.Setenv("APP_PORT", "1234")
	t.Setenv("APP_BASIC_USER", "user")
	t.Setenv("APP_BASIC_PASS", "pass")
	t.Setenv("POLL_INTERVAL_MINUTES", "abc")
	t.Setenv("WATERMARK_BACKEND", "")
	t.Setenv("SOURCES_FILE", "")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "1234", cfg.AppPort)
	assert.Equal(t, "user", cfg.BasicAuthUser)
	assert.Equal(t, "pass", cfg.BasicAuthPass)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, BackendFile, cfg.WatermarkBackend)
	require.Len(t, cfg.Sources, len(DefaultSourceURLs))
	assert.Equal(t, "3", cfg.Sources[0].ID)
	assert.Equal(t, "9", cfg.Sources[4].ID)
}

func TestLoadRejectsBackendWithoutConnection(t *testing.T) {
	t.Setenv("WATERMARK_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "")
	_, err := Load(nil)
	assert.Error(t, err)

	t.Setenv("WATERMARK_BACKEND", "etcd")
	_, err = Load(nil)
	assert.Error(t, err)
}

func TestLoadSourcesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `sources:
  - name: Earnings
    url: https://kabutan.jp/news/marketnews/?category=3
  - id: custom
    url: https://example.com/news/
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sources, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "3", sources[0].ID)
	assert.Equal(t, "Earnings", sources[0].Name)
	assert.Equal(t, "custom", sources[1].ID)
	assert.Equal(t, "custom", sources[1].Name)
}

func TestLoadSourcesRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `sources:
  - url: https://kabutan.jp/news/marketnews/?category=3
  - url: https://kabutan.jp/news/marketnews/?category=3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadSources(path)
	assert.Error(t, err)

	_, err = LoadSources(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
