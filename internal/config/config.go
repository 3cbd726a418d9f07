package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SHEHARFIX"

type Config struct {
	Server   ServerConfig
	Model    ModelConfig
	Pipeline PipelineConfig
	Store    StoreConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ModelConfig struct {
	Path               string
	MetadataPath       string
	OnnxRuntimeLibrary string
	IntraOpThreads     int
}

type PipelineConfig struct {
	ImageSize     int
	Labels        []string
	Interpolation string
	MaxPixels     int64
}

type StoreConfig struct {
	Backend string
	Path    string
	S3      S3Config
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Key             string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

type LogConfig struct {
	Level     string
	File      string
	MaxSizeMB int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.max_upload_bytes", 10*1024*1024) // 10MB
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost:5173",
		"http://localhost:3000",
		"http://127.0.0.1:5173",
		"http://localhost:8080",
		"http://192.168.1.174:8080",
	})

	v.SetDefault("model.path", "models/garbage_pothole_streetlight.onnx")
	v.SetDefault("model.metadata_path", "")
	v.SetDefault("model.onnxruntime_library", "")
	v.SetDefault("model.intra_op_threads", 0)

	v.SetDefault("pipeline.image_size", 222)
	v.SetDefault("pipeline.labels", []string{"garbage", "pothole", "streetlight"})
	v.SetDefault("pipeline.interpolation", "bicubic")
	v.SetDefault("pipeline.max_pixels", 89_478_485)

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.path", "prediction.json")
	v.SetDefault("store.s3.endpoint", "")
	v.SetDefault("store.s3.region", "us-east-1")
	v.SetDefault("store.s3.bucket", "predictions")
	v.SetDefault("store.s3.key", "latest/prediction.json")
	v.SetDefault("store.s3.access_key_id", "")
	v.SetDefault("store.s3.secret_access_key", "")
	v.SetDefault("store.s3.use_path_style", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
}

// RegisterFlags adds the command line overrides understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("host", "", "address to bind")
	fs.Int("port", 0, "port to listen on")
	fs.String("model-path", "", "path to the ONNX model artifact")
	fs.String("log-level", "", "log level: debug|info|warn|error")
}

var flagKeys = map[string]string{
	"config":     "config",
	"host":       "server.host",
	"port":       "server.port",
	"model-path": "model.path",
	"log-level":  "log.level",
}

// Load resolves configuration from defaults, an optional config file,
// SHEHARFIX_* environment variables and flags, in increasing precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			MaxUploadBytes: v.GetInt64("server.max_upload_bytes"),
			ReadTimeout:    v.GetDuration("server.read_timeout"),
			WriteTimeout:   v.GetDuration("server.write_timeout"),
			AllowedOrigins: splitList(v.GetStringSlice("server.allowed_origins")),
		},
		Model: ModelConfig{
			Path:               v.GetString("model.path"),
			MetadataPath:       v.GetString("model.metadata_path"),
			OnnxRuntimeLibrary: v.GetString("model.onnxruntime_library"),
			IntraOpThreads:     v.GetInt("model.intra_op_threads"),
		},
		Pipeline: PipelineConfig{
			ImageSize:     v.GetInt("pipeline.image_size"),
			Labels:        splitList(v.GetStringSlice("pipeline.labels")),
			Interpolation: strings.ToLower(v.GetString("pipeline.interpolation")),
			MaxPixels:     v.GetInt64("pipeline.max_pixels"),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(v.GetString("store.backend")),
			Path:    v.GetString("store.path"),
			S3: S3Config{
				Endpoint:        v.GetString("store.s3.endpoint"),
				Region:          v.GetString("store.s3.region"),
				Bucket:          v.GetString("store.s3.bucket"),
				Key:             v.GetString("store.s3.key"),
				AccessKeyID:     v.GetString("store.s3.access_key_id"),
				SecretAccessKey: v.GetString("store.s3.secret_access_key"),
				UsePathStyle:    v.GetBool("store.s3.use_path_style"),
			},
		},
		Log: LogConfig{
			Level:     v.GetString("log.level"),
			File:      v.GetString("log.file"),
			MaxSizeMB: v.GetInt("log.max_size_mb"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes))
	}
	if c.Model.Path == "" {
		errs = append(errs, errors.New("model.path is required"))
	}
	if c.Pipeline.ImageSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.image_size must be positive, got %d", c.Pipeline.ImageSize))
	}
	if err := validateLabels(c.Pipeline.Labels); err != nil {
		errs = append(errs, err)
	}
	if c.Pipeline.MaxPixels < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_pixels must not be negative, got %d", c.Pipeline.MaxPixels))
	}
	switch c.Store.Backend {
	case "file":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file backend"))
		}
	case "s3":
		if c.Store.S3.Bucket == "" || c.Store.S3.Key == "" {
			errs = append(errs, errors.New("store.s3.bucket and store.s3.key are required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be file or s3, got %q", c.Store.Backend))
	}

	return errors.Join(errs...)
}

// The taxonomy is fixed at three classes.
func validateLabels(labels []string) error {
	if len(labels) != 3 {
		return fmt.Errorf("pipeline.labels must have exactly 3 entries, got %d", len(labels))
	}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l == "" {
			return errors.New("pipeline.labels must not contain empty labels")
		}
		if seen[l] {
			return fmt.Errorf("pipeline.labels contains duplicate %q", l)
		}
		seen[l] = true
	}
	return nil
}

// splitList accepts both real lists and comma separated strings from env.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
