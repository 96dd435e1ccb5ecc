package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yaml != "" {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	require.Equal(t, 3, cfg.Fetch.MaxRetries)
	require.Equal(t, time.Second, cfg.Fetch.MinRequestDelay)
	require.Equal(t, 5, cfg.Fetch.RecycleAfter)
	require.True(t, cfg.Fetch.Headless)
	require.Equal(t, 60*time.Second, cfg.Fetch.Timeout)
	require.Equal(t, 0.5, cfg.Similarity.Weights.Token)
	require.Equal(t, float64(65), cfg.Similarity.Threshold)
	require.Equal(t, 4, cfg.Workers)
	require.Contains(t, cfg.Fetch.DetectionKeywords, "captcha")
}

func TestLoad_FileOverrides(t *testing.T) {
	cfg, err := Load(newViper(t, `
fetch:
  max_retries: 5
  min_request_delay: 250ms
  detection_keywords: ["blocat"]
similarity:
  threshold: 80
workers: 8
`))
	require.NoError(t, err)

	require.Equal(t, 5, cfg.Fetch.MaxRetries)
	require.Equal(t, 250*time.Millisecond, cfg.Fetch.MinRequestDelay)
	require.Equal(t, []string{"blocat"}, cfg.Fetch.DetectionKeywords)
	require.Equal(t, float64(80), cfg.Similarity.Threshold)
	require.Equal(t, 8, cfg.Workers)
	// untouched defaults survive
	require.Equal(t, 5, cfg.Fetch.RecycleAfter)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := []string{
		"fetch:\n  max_retries: 0\n",
		"fetch:\n  max_retries: 99\n",
		"similarity:\n  threshold: 150\n",
		"workers: 0\n",
	}
	for _, yaml := range cases {
		_, err := Load(newViper(t, yaml))
		require.Error(t, err, "config %q must be rejected", yaml)
	}
}

func TestFetchConfig(t *testing.T) {
	cfg, err := Load(newViper(t, "fetch:\n  min_content_length: 50\n"))
	require.NoError(t, err)

	fc := cfg.FetchConfig()
	require.Equal(t, 50, fc.MinContentLength)
	require.Equal(t, cfg.Fetch.DetectionKeywords, fc.DetectionKeywords)
	require.Equal(t, cfg.Fetch.Timeout, fc.Timeout)
}
