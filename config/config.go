package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Providers  []ProviderConfig `yaml:"providers"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Cache      CacheConfig      `yaml:"cache"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Storage    StorageConfig    `yaml:"storage"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Auth       AuthConfig       `yaml:"auth"`
	Users      []User           `yaml:"users"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProviderConfig describes one inference provider. Providers are tried in
// the order they appear in the config file.
type ProviderConfig struct {
	ID         string `yaml:"id"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	DailyQuota int    `yaml:"daily_quota"`
}

type ExtractionConfig struct {
	BatchSize          int `yaml:"batch_size"`
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
	MaxAttempts        int `yaml:"max_attempts"` // provider attempts per batch
	FailureThreshold   int `yaml:"failure_threshold"`
	BackoffBaseSeconds int `yaml:"backoff_base_seconds"`
}

type CacheConfig struct {
	TTLHours int `yaml:"ttl_hours"`
}

type JobsConfig struct {
	RetentionMinutes      int `yaml:"retention_minutes"` // eviction window after a job turns terminal
	OverallTimeoutMinutes int `yaml:"overall_timeout_minutes"`
	MaxJobs               int `yaml:"max_jobs"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"` // memory, redis
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("config: at least one provider must be configured")
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Extraction.BatchSize == 0 {
		cfg.Extraction.BatchSize = 3
	}
	if cfg.Extraction.CallTimeoutSeconds == 0 {
		cfg.Extraction.CallTimeoutSeconds = 90
	}
	if cfg.Extraction.MaxAttempts == 0 {
		cfg.Extraction.MaxAttempts = 6
	}
	if cfg.Extraction.FailureThreshold == 0 {
		cfg.Extraction.FailureThreshold = 3
	}
	if cfg.Extraction.BackoffBaseSeconds == 0 {
		cfg.Extraction.BackoffBaseSeconds = 30
	}
	if cfg.Cache.TTLHours == 0 {
		cfg.Cache.TTLHours = 24
	}
	if cfg.Jobs.RetentionMinutes == 0 {
		cfg.Jobs.RetentionMinutes = 60
	}
	if cfg.Jobs.OverallTimeoutMinutes == 0 {
		cfg.Jobs.OverallTimeoutMinutes = 30
	}
	if cfg.Jobs.MaxJobs == 0 {
		cfg.Jobs.MaxJobs = 100
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}
	for i := range cfg.Providers {
		if cfg.Providers[i].DailyQuota == 0 {
			cfg.Providers[i].DailyQuota = 1500
		}
		if cfg.Providers[i].BaseURL == "" {
			cfg.Providers[i].BaseURL = "https://generativelanguage.googleapis.com/v1beta"
		}
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
