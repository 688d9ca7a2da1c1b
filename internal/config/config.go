package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Provider ProviderConfig `json:"provider"`
	Chat     ChatConfig     `json:"chat"`
	Memory   MemoryConfig   `json:"memory"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type DatabaseConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	User                string `json:"user"`
	Password            string `json:"password"`
	Database            string `json:"database"`
	SSLMode             string `json:"sslmode"`
	MaxOpenConns        int    `json:"max_open_conns"`
	MaxIdleConns        int    `json:"max_idle_conns"`
	ConnLifetimeMinutes int    `json:"conn_lifetime_minutes"`
}

type ProviderConfig struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	BaseURL      string `json:"base_url,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	DefaultModel string `json:"default_model"`
}

// ChatConfig bounds context assembly for generation calls.
type ChatConfig struct {
	TokenBudget     int    `json:"token_budget"`
	MaxRecentTurns  int    `json:"max_recent_turns"`
	IncludeMemories bool   `json:"include_memories"`
	ContextPolicy   string `json:"context_policy"` // "simple" or "smart"
}

// MemoryConfig tunes the summarization subsystem.
type MemoryConfig struct {
	SummaryThreshold int `json:"summary_threshold"`
	MaxPerSummary    int `json:"max_per_summary"`
	CleanupKeepCount int `json:"cleanup_keep_count"`
	SummaryTimeoutS  int `json:"summary_timeout_s"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	homeDir, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".fable"))
	}

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "fable")
	viper.SetDefault("database.database", "fable")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_lifetime_minutes", 5)
	viper.SetDefault("provider.type", "openai")
	viper.SetDefault("provider.name", "OpenAI")
	viper.SetDefault("provider.default_model", "gpt-4o-mini")
	viper.SetDefault("chat.token_budget", 4096)
	viper.SetDefault("chat.max_recent_turns", 10)
	viper.SetDefault("chat.include_memories", true)
	viper.SetDefault("chat.context_policy", "smart")
	viper.SetDefault("memory.summary_threshold", 20)
	viper.SetDefault("memory.max_per_summary", 20)
	viper.SetDefault("memory.cleanup_keep_count", 10)
	viper.SetDefault("memory.summary_timeout_s", 30)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No config file: run on defaults plus env overrides.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvOverrides(&cfg)

	return &cfg, nil
}

func loadEnvOverrides(cfg *Config) {
	if port := os.Getenv("FABLE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("FABLE_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}

	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}
}
