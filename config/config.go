package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research engine.
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Search     SearchConfig     `mapstructure:"search"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains the generation provider configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key required")
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model required")
	}
	return nil
}

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // brave or serper
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// APIKey returns the key for the selected provider.
func (s SearchConfig) APIKey() string {
	switch s.Provider {
	case "serper":
		return s.SerperAPIKey
	default:
		return s.BraveAPIKey
	}
}

// FetchConfig contains page fetch/extraction settings
type FetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxChars int           `mapstructure:"max_chars"`
}

// Normalize applies defaults for unset fetch values.
func (f FetchConfig) Normalize() FetchConfig {
	if f.Timeout <= 0 {
		f.Timeout = 30 * time.Second
	}
	if f.MaxChars <= 0 {
		f.MaxChars = 8000
	}
	return f
}

// GuardrailsConfig caps what a single research job may consume.
type GuardrailsConfig struct {
	MaxSteps            int           `mapstructure:"max_steps"`
	MaxURLs             int           `mapstructure:"max_urls"`
	MaxCrawlConcurrency int           `mapstructure:"max_crawl_concurrency"`
	NodeTimeout         time.Duration `mapstructure:"node_timeout"`
	JobTimeout          time.Duration `mapstructure:"job_timeout"`
	SkeletonRetries     int           `mapstructure:"skeleton_retries"`
	CellRetries         int           `mapstructure:"cell_retries"`
	CellMaxRunes        int           `mapstructure:"cell_max_runes"`
}

// Normalize applies defaults for unset guardrail values.
func (g GuardrailsConfig) Normalize() GuardrailsConfig {
	if g.MaxSteps <= 0 {
		g.MaxSteps = 20
	}
	if g.MaxURLs <= 0 {
		g.MaxURLs = 10
	}
	if g.MaxCrawlConcurrency <= 0 {
		g.MaxCrawlConcurrency = 3
	}
	if g.NodeTimeout <= 0 {
		g.NodeTimeout = 60 * time.Second
	}
	if g.JobTimeout <= 0 {
		g.JobTimeout = 10 * time.Minute
	}
	if g.SkeletonRetries <= 0 {
		g.SkeletonRetries = 3
	}
	if g.CellRetries <= 0 {
		g.CellRetries = 2
	}
	if g.CellMaxRunes <= 0 {
		g.CellMaxRunes = 20
	}
	return g
}

func (g GuardrailsConfig) Validate() error {
	if g.JobTimeout > 0 && g.NodeTimeout > g.JobTimeout {
		return fmt.Errorf("guardrails.node_timeout cannot exceed guardrails.job_timeout")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port, or "" when redis is not configured.
func (r RedisConfig) Addr() string {
	if strings.TrimSpace(r.Host) == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads config from a JSON file, with SCOUT_* env overrides.
// An absent file is fine (env-only operation); a broken one is not.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.timeout", "90s")
	viper.SetDefault("search.provider", "brave")
	viper.SetDefault("search.timeout", "20s")
	viper.SetDefault("fetch.timeout", "30s")
	viper.SetDefault("fetch.max_chars", 8000)
	viper.SetDefault("guardrails.max_steps", 20)
	viper.SetDefault("guardrails.max_urls", 10)
	viper.SetDefault("guardrails.max_crawl_concurrency", 3)
	viper.SetDefault("guardrails.node_timeout", "60s")
	viper.SetDefault("guardrails.job_timeout", "10m")
	viper.SetDefault("guardrails.skeleton_retries", 3)
	viper.SetDefault("guardrails.cell_retries", 2)
	viper.SetDefault("guardrails.cell_max_runes", 20)
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SCOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("fatal error config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("fatal error config file: %w", err)
	}
	config.Guardrails = config.Guardrails.Normalize()
	config.Fetch = config.Fetch.Normalize()

	if err := config.Guardrails.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
