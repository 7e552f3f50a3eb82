// Package config loads layered TOML configuration for openclaw-memory.
//
// Precedence, lowest to highest: built-in defaults, the global
// ~/.openclaw_memory/config.toml, the project .openclaw_memory.toml, and
// OPENCLAW_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	memerr "github.com/openclaw/openclaw-memory/internal/errors"
)

// Directory and file names shared across the module.
const (
	GlobalDirName     = ".openclaw_memory"
	ProjectDirName    = ".openclaw_memory"
	GlobalConfigName  = "config.toml"
	ProjectConfigName = ".openclaw_memory.toml"
	IndexDirName      = "index"
	PrimerFileName    = "PRIMER.md"
	TasksFileName     = "TASKS.md"
)

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider       string `mapstructure:"provider"`
	Model          string `mapstructure:"model"`
	Dimension      int    `mapstructure:"dimension"`
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PrivacyConfig controls the write-path privacy filter.
// Patterns, when set, replace the defaults entirely.
type PrivacyConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Patterns []string `mapstructure:"patterns"`
}

// SearchConfig tunes retrieval.
type SearchConfig struct {
	DefaultMaxTokens    int     `mapstructure:"default_max_tokens"`
	RecencyHalfLifeDays float64 `mapstructure:"recency_half_life_days"`
	DefaultTopK         int     `mapstructure:"default_top_k"`
}

// ProjectConfig describes the current project for the primer.
type ProjectConfig struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// LoggingConfig tunes file logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the merged configuration for both scopes.
type Config struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Privacy   PrivacyConfig   `mapstructure:"privacy"`
	Search    SearchConfig    `mapstructure:"search"`
	Project   ProjectConfig   `mapstructure:"project"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DefaultPrivacyPatterns are applied when the config lists none.
var DefaultPrivacyPatterns = []string{
	`sk-[a-zA-Z0-9]{20,}`,
	`ghp_[a-zA-Z0-9]{36}`,
	`password\s*[:=]\s*\S+`,
	`secret\s*[:=]\s*\S+`,
	`192\.168\.\d+\.\d+`,
	`10\.\d+\.\d+\.\d+`,
	`localhost:\d+`,
}

// providerDefaults maps each provider to its default model and dimension.
var providerDefaults = map[string]struct {
	model     string
	dimension int
}{
	"openai": {"text-embedding-3-small", 1536},
	"ollama": {"nomic-embed-text", 768},
	"local":  {"hash-v1", 384},
}

// envKeys are the scalar settings overridable via OPENCLAW_<SECTION>_<FIELD>.
var envKeys = []string{
	"embedding.provider",
	"embedding.model",
	"embedding.dimension",
	"embedding.api_key",
	"embedding.base_url",
	"embedding.timeout_seconds",
	"privacy.enabled",
	"search.default_max_tokens",
	"search.recency_half_life_days",
	"search.default_top_k",
	"project.name",
	"project.description",
	"logging.level",
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:       "local",
			TimeoutSeconds: 30,
		},
		Privacy: PrivacyConfig{Enabled: true},
		Search: SearchConfig{
			DefaultMaxTokens:    1500,
			RecencyHalfLifeDays: 30,
			DefaultTopK:         10,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the merged configuration for a project root.
// Missing config files are not errors; malformed ones are.
func Load(projectRoot string) (*Config, error) {
	return load(projectRoot, GlobalDir())
}

// load is the testable core of Load with an explicit global directory.
func load(projectRoot, globalDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	globalPath := filepath.Join(globalDir, GlobalConfigName)
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, memerr.ConfigError(fmt.Sprintf("failed to read %s", globalPath), err)
		}
	}

	if projectRoot != "" {
		projectPath := filepath.Join(projectRoot, ProjectConfigName)
		if fileExists(projectPath) {
			v.SetConfigFile(projectPath)
			if err := v.MergeInConfig(); err != nil {
				return nil, memerr.ConfigError(fmt.Sprintf("failed to read %s", projectPath), err)
			}
		}
	}

	v.SetEnvPrefix("OPENCLAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	cfg := New()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, memerr.ConfigError("failed to parse configuration", err)
	}

	applyProviderDefaults(cfg)
	if len(cfg.Privacy.Patterns) == 0 {
		cfg.Privacy.Patterns = append([]string(nil), DefaultPrivacyPatterns...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers built-in defaults so viper merge layers stack on top.
func setDefaults(v *viper.Viper) {
	def := New()
	v.SetDefault("embedding.provider", def.Embedding.Provider)
	v.SetDefault("embedding.timeout_seconds", def.Embedding.TimeoutSeconds)
	v.SetDefault("privacy.enabled", def.Privacy.Enabled)
	v.SetDefault("search.default_max_tokens", def.Search.DefaultMaxTokens)
	v.SetDefault("search.recency_half_life_days", def.Search.RecencyHalfLifeDays)
	v.SetDefault("search.default_top_k", def.Search.DefaultTopK)
	v.SetDefault("logging.level", def.Logging.Level)
}

// applyProviderDefaults fills model and dimension from the provider table
// when the config leaves them unset.
func applyProviderDefaults(cfg *Config) {
	pd, ok := providerDefaults[cfg.Embedding.Provider]
	if !ok {
		return
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = pd.model
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = pd.dimension
	}
}

// Validate checks the merged configuration for unusable values.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai", "ollama", "local":
	default:
		return memerr.ConfigError(
			fmt.Sprintf("unknown embedding provider %q (use openai, ollama, or local)", c.Embedding.Provider), nil)
	}
	if c.Embedding.Dimension <= 0 {
		return memerr.ConfigError("embedding.dimension must be positive", nil)
	}
	if c.Search.DefaultMaxTokens <= 0 {
		return memerr.ConfigError("search.default_max_tokens must be positive", nil)
	}
	if c.Search.RecencyHalfLifeDays <= 0 {
		return memerr.ConfigError("search.recency_half_life_days must be positive", nil)
	}
	if c.Search.DefaultTopK <= 0 {
		return memerr.ConfigError("search.default_top_k must be positive", nil)
	}
	return nil
}

// GlobalDir returns the global scope directory (~/.openclaw_memory).
// Falls back to the temp directory when the home directory is unavailable.
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), GlobalDirName)
	}
	return filepath.Join(home, GlobalDirName)
}

// ProjectDir returns the project scope directory for a project root.
func ProjectDir(projectRoot string) string {
	return filepath.Join(projectRoot, ProjectDirName)
}

// FindProjectRoot walks up from start looking for a project marker:
// first .openclaw_memory.toml, then a .git directory. Returns start
// (absolute) when neither is found.
func FindProjectRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", memerr.ConfigError("failed to resolve working directory", err)
	}

	for dir := abs; ; dir = filepath.Dir(dir) {
		if fileExists(filepath.Join(dir, ProjectConfigName)) {
			return dir, nil
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir, nil
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}
	return abs, nil
}

// EnsureScopeDirs creates the Markdown layout for a scope directory.
// Global scopes get user/; project scopes get journal/ and agent/.
func EnsureScopeDirs(scopeDir string, global bool) error {
	subdirs := []string{IndexDirName}
	if global {
		subdirs = append(subdirs, "user")
	} else {
		subdirs = append(subdirs, "journal", "agent")
	}
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(scopeDir, sub), 0o755); err != nil {
			return memerr.StorageError(fmt.Sprintf("failed to create %s", sub), err)
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
