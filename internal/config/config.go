// Package config loads runjs CLI settings from the environment.
//
// Settings come from RUNJS_* variables, optionally seeded from a .env file.
// Command line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/caffeineduck/runjs/executor"
	"github.com/caffeineduck/runjs/hostfunc"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultEnvFile is read when no env file is named explicitly. A missing
// default file is not an error.
const DefaultEnvFile = ".env"

var validate = validator.New()

// Config holds every setting the CLI passes to the executor.
type Config struct {
	Timeout      time.Duration `env:"RUNJS_TIMEOUT" envDefault:"30s" validate:"gte=0"`
	DrainTimeout time.Duration `env:"RUNJS_DRAIN_TIMEOUT" validate:"gte=0"`
	Workers      int           `env:"RUNJS_WORKERS" envDefault:"8" validate:"gte=1,lte=1024"`

	AllowedHosts []string `env:"RUNJS_ALLOW_HOSTS" envSeparator:"," validate:"dive,required"`
	AllowNet     bool     `env:"RUNJS_ALLOW_NET"`
	Mounts       []string `env:"RUNJS_MOUNTS" envSeparator:"," envDefault:"/:.:rwc" validate:"dive,required"`

	HTTPMaxURLLength int           `env:"RUNJS_HTTP_MAX_URL" envDefault:"8192" validate:"gte=1"`
	HTTPMaxBodySize  int64         `env:"RUNJS_HTTP_MAX_BODY" envDefault:"1048576" validate:"gte=1"`
	HTTPTimeout      time.Duration `env:"RUNJS_HTTP_TIMEOUT" envDefault:"30s" validate:"gte=0"`

	FSMaxFileSize   int64 `env:"RUNJS_FS_MAX_FILE" envDefault:"10485760" validate:"gte=1"`
	FSMaxWriteSize  int64 `env:"RUNJS_FS_MAX_WRITE" envDefault:"10485760" validate:"gte=1"`
	FSMaxPathLength int   `env:"RUNJS_FS_MAX_PATH" envDefault:"4096" validate:"gte=1"`

	LogLevel string `env:"RUNJS_LOG_LEVEL" envDefault:"warn" validate:"oneof=debug info warn error"`
	Addr     string `env:"RUNJS_ADDR" envDefault:":8080" validate:"required"`
}

// Load reads envFile, when it exists, into the process environment and
// parses the RUNJS_* variables. Variables already set take precedence over
// the file. An empty envFile means DefaultEnvFile.
func Load(envFile string) (Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	return Parse()
}

// Parse reads the RUNJS_* variables from the process environment without
// touching any env file.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the value ranges and mount specifications.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, m := range c.Mounts {
		if _, err := hostfunc.ParseMount(m); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}

// Hosts returns the fetch allowlist, widened to every host with AllowNet.
func (c Config) Hosts() []string {
	if c.AllowNet {
		return []string{hostfunc.AnyHost}
	}
	return c.AllowedHosts
}

// ExecutorOptions translates the config into executor options.
func (c Config) ExecutorOptions(logger *zap.Logger) ([]executor.ExecutorOption, error) {
	opts := []executor.ExecutorOption{
		executor.WithLogger(logger),
		executor.WithWorkers(c.Workers),
		executor.WithAllowedHosts(c.Hosts()),
		executor.WithHTTPMaxURLLength(c.HTTPMaxURLLength),
		executor.WithHTTPMaxBodySize(c.HTTPMaxBodySize),
		executor.WithHTTPTimeout(c.HTTPTimeout),
		executor.WithFSMaxFileSize(c.FSMaxFileSize),
		executor.WithFSMaxWriteSize(c.FSMaxWriteSize),
		executor.WithFSMaxPathLength(c.FSMaxPathLength),
	}
	for _, spec := range c.Mounts {
		m, err := hostfunc.ParseMount(spec)
		if err != nil {
			return nil, err
		}
		opts = append(opts, executor.WithMount(m.VirtualPath, m.HostPath, m.Mode))
	}
	return opts, nil
}

// SessionOptions returns the per-session bounds.
func (c Config) SessionOptions() []executor.SessionOption {
	return []executor.SessionOption{
		executor.WithTimeout(c.Timeout),
		executor.WithDrainTimeout(c.DrainTimeout),
	}
}

// Logger builds a console logger on stderr at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.DisableStacktrace = true
	return zc.Build()
}

