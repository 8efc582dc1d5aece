// Package config loads runtime configuration from an optional YAML file
// under ~/.config/inframe, INFRAME_* environment overrides, and typed
// defaults, in that order of increasing precedence for the first two.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/inframehq/inframe/pkg/errors"
	"github.com/inframehq/inframe/pkg/types"
)

const (
	configName = "config"
	configType = "yaml"
	configDir  = "inframe"
	envPrefix  = "INFRAME"

	// DefaultModel is the OpenAI model used when none is configured.
	DefaultModel = "gpt-4o"
	// DefaultQueryInterval is the polling cadence for queries.
	DefaultQueryInterval = 3 * time.Second
	// DefaultListenAddr is where the MCP HTTP transport listens.
	DefaultListenAddr = ":8080"
	// DefaultTokenBudget bounds the integrated context before compaction.
	DefaultTokenBudget = 8000
)

// Config is the resolved runtime configuration.
type Config struct {
	// CacheRoot is where day-keyed context snapshots are written. Empty
	// means ~/.cache/inframe, resolved by the cache store.
	CacheRoot string `mapstructure:"cache_root"`

	// Model names the OpenAI model for frame analysis and queries.
	Model string `mapstructure:"model"`
	// BaseURL overrides the OpenAI API endpoint when set.
	BaseURL string `mapstructure:"base_url"`
	// APIKey authenticates OpenAI calls. Empty falls back to the
	// OPENAI_API_KEY environment variable.
	APIKey string `mapstructure:"api_key"`

	// ChunkDuration is the default length of one recorded clip.
	ChunkDuration time.Duration `mapstructure:"chunk_duration"`
	// BufferDuration is the default rolling-buffer length.
	BufferDuration time.Duration `mapstructure:"buffer_duration"`
	// MaxClips caps how many clips the buffer retains.
	MaxClips int `mapstructure:"max_clips"`
	// VisualTask is the default frame-analysis prompt.
	VisualTask string `mapstructure:"visual_task"`

	// QueryInterval is the default polling interval for queries.
	QueryInterval time.Duration `mapstructure:"query_interval"`

	// ListenAddr is the MCP streamable-HTTP listen address.
	ListenAddr string `mapstructure:"listen_addr"`

	// TokenBudget bounds the integrated context size in tokens.
	TokenBudget int `mapstructure:"token_budget"`
}

// Load resolves the configuration on the given viper instance. Pass nil
// for a fresh one. A missing config file is fine; a malformed one is not.
func Load(cfg *viper.Viper) (Config, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	if homeDir, err := os.UserHomeDir(); err == nil {
		cfg.AddConfigPath(filepath.Join(homeDir, ".config", configDir))
		cfg.SetDefault("cache_root", filepath.Join(homeDir, ".cache", configDir))
	}

	cfg.SetDefault("model", DefaultModel)
	cfg.SetDefault("base_url", "")
	cfg.SetDefault("api_key", "")
	cfg.SetDefault("chunk_duration", types.DefaultChunkDuration)
	cfg.SetDefault("buffer_duration", types.DefaultBufferDuration)
	cfg.SetDefault("max_clips", types.DefaultMaxClips)
	cfg.SetDefault("visual_task", types.DefaultVisualTask)
	cfg.SetDefault("query_interval", DefaultQueryInterval)
	cfg.SetDefault("listen_addr", DefaultListenAddr)
	cfg.SetDefault("token_budget", DefaultTokenBudget)

	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	if err := cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, apperrors.New(apperrors.ErrCodeInvalidConfig, "failed to read config file", err)
		}
	}

	var config Config
	if err := cfg.Unmarshal(&config); err != nil {
		return Config{}, apperrors.New(apperrors.ErrCodeInvalidConfig, "failed to parse configuration", err)
	}

	if config.APIKey == "" {
		config.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if config.BaseURL == "" {
		config.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate rejects values no component could run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "model must not be empty")
	}
	if c.ChunkDuration <= 0 {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "chunk duration must be positive, got %s", c.ChunkDuration)
	}
	if c.BufferDuration <= 0 {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "buffer duration must be positive, got %s", c.BufferDuration)
	}
	if c.ChunkDuration > c.BufferDuration {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "chunk duration %s exceeds buffer duration %s", c.ChunkDuration, c.BufferDuration)
	}
	if c.MaxClips < 1 {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "max clips must be at least 1, got %d", c.MaxClips)
	}
	if c.QueryInterval <= 0 {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "query interval must be positive, got %s", c.QueryInterval)
	}
	if c.TokenBudget < 1 {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "token budget must be at least 1, got %d", c.TokenBudget)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "listen address must not be empty")
	}
	return nil
}

// SessionParams shapes the capture defaults into session parameters.
func (c Config) SessionParams() types.SessionParams {
	return types.SessionParams{
		ChunkDuration:  c.ChunkDuration,
		BufferDuration: c.BufferDuration,
		MaxClips:       c.MaxClips,
		VisualTask:     c.VisualTask,
	}
}
