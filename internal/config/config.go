package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port       int    `yaml:"port"`
		APIKey     string `yaml:"api_key"`
		CreateRate int    `yaml:"create_rate"`  // payment-create requests per second
		CreateBurst int   `yaml:"create_burst"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Gateway struct {
		BaseURL        string `yaml:"base_url"`
		SecretKey      string `yaml:"secret_key"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		ReturnURL      string `yaml:"return_url"`
	} `yaml:"gateway"`

	Telegram struct {
		BotToken      string  `yaml:"bot_token"`
		OperatorChats []int64 `yaml:"operator_chats"`
	} `yaml:"telegram"`

	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		StoragePath   string `yaml:"storage_path"`
		IntervalHours int    `yaml:"interval_hours"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Booking struct {
		Currency           string `yaml:"currency"`
		OpeningTime        string `yaml:"opening_time"`  // HH:MM
		ClosingTime        string `yaml:"closing_time"`  // HH:MM
		SlotMinutes        int    `yaml:"slot_minutes"`
		IntentTTLMinutes   int    `yaml:"intent_ttl_minutes"`
		SweepIntervalMin   int    `yaml:"sweep_interval_minutes"`
	} `yaml:"booking"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/citysoccer.db"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Booking.Currency == "" {
		cfg.Booking.Currency = "CLP"
	}
	if cfg.Booking.OpeningTime == "" {
		cfg.Booking.OpeningTime = "09:00"
	}
	if cfg.Booking.ClosingTime == "" {
		cfg.Booking.ClosingTime = "23:00"
	}
	if cfg.Booking.SlotMinutes <= 0 {
		cfg.Booking.SlotMinutes = 60
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings without which the engine cannot run.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if c.Gateway.SecretKey == "" {
		return fmt.Errorf("gateway.secret_key is required")
	}
	return nil
}

func (c *Config) GatewayTimeout() time.Duration {
	if c.Gateway.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) IntentTTL() time.Duration {
	if c.Booking.IntentTTLMinutes <= 0 {
		return 45 * time.Minute
	}
	return time.Duration(c.Booking.IntentTTLMinutes) * time.Minute
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) SweepInterval() time.Duration {
	if c.Booking.SweepIntervalMin <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Booking.SweepIntervalMin) * time.Minute
}
