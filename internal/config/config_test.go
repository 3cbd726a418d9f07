package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Server.Addr())
	assert.Equal(t, int64(10*1024*1024), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{
		"http://localhost:5173",
		"http://localhost:3000",
		"http://127.0.0.1:5173",
		"http://localhost:8080",
		"http://192.168.1.174:8080",
	}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "models/garbage_pothole_streetlight.onnx", cfg.Model.Path)
	assert.Equal(t, 222, cfg.Pipeline.ImageSize)
	assert.Equal(t, []string{"garbage", "pothole", "streetlight"}, cfg.Pipeline.Labels)
	assert.Equal(t, "bicubic", cfg.Pipeline.Interpolation)
	assert.Equal(t, int64(89_478_485), cfg.Pipeline.MaxPixels)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "prediction.json", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SHEHARFIX_SERVER_PORT", "9090")
	t.Setenv("SHEHARFIX_PIPELINE_LABELS", "litter,crack,lamp")
	t.Setenv("SHEHARFIX_PIPELINE_INTERPOLATION", "Lanczos3")
	t.Setenv("SHEHARFIX_STORE_S3_BUCKET", "civic")
	t.Setenv("SHEHARFIX_PIPELINE_MAX_PIXELS", "1000000")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"litter", "crack", "lamp"}, cfg.Pipeline.Labels)
	assert.Equal(t, "lanczos3", cfg.Pipeline.Interpolation)
	assert.Equal(t, "civic", cfg.Store.S3.Bucket)
	assert.Equal(t, int64(1_000_000), cfg.Pipeline.MaxPixels)
}

func TestLoadFlagsAndConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  port: 7000
pipeline:
  image_size: 128
store:
  path: /tmp/latest.json
`), 0o644))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", file, "--port", "7100", "--model-path", "m.onnx"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.Port, "flag beats file")
	assert.Equal(t, 128, cfg.Pipeline.ImageSize)
	assert.Equal(t, "/tmp/latest.json", cfg.Store.Path)
	assert.Equal(t, "m.onnx", cfg.Model.Path)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "unset flags keep defaults")
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("SHEHARFIX_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load(nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(nil)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "two labels", mutate: func(c *Config) { c.Pipeline.Labels = []string{"a", "b"} }},
		{name: "four labels", mutate: func(c *Config) { c.Pipeline.Labels = []string{"a", "b", "c", "d"} }},
		{name: "duplicate label", mutate: func(c *Config) { c.Pipeline.Labels = []string{"a", "a", "b"} }},
		{name: "zero image size", mutate: func(c *Config) { c.Pipeline.ImageSize = 0 }},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "negative max pixels", mutate: func(c *Config) { c.Pipeline.MaxPixels = -1 }},
		{name: "bad backend", mutate: func(c *Config) { c.Store.Backend = "redis" }},
		{name: "s3 without bucket", mutate: func(c *Config) {
			c.Store.Backend = "s3"
			c.Store.S3.Bucket = ""
		}},
		{name: "empty model path", mutate: func(c *Config) { c.Model.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, valid().Validate())
}
