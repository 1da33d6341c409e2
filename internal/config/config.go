// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port         int    `yaml:"port"`
	CallbackPath string `yaml:"callback_path"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GatewayConfig struct {
	PublicKey  string `yaml:"public_key"`
	PrivateKey string `yaml:"private_key"` // secret; never logged
	APIBaseURL string `yaml:"api_base_url"`
}

type RedirectConfig struct {
	SuccessURL string `yaml:"success_url"`
	ErrorURL   string `yaml:"error_url"`
}

type PlanConfig struct {
	// Periods maps plan code -> entitlement duration granted per paid order.
	Periods map[string]time.Duration `yaml:"periods"`
}

type SchedulerConfig struct {
	ExpiryInterval    time.Duration `yaml:"expiry_interval"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	PendingOrderTTL   time.Duration `yaml:"pending_order_ttl"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Redirects RedirectConfig  `yaml:"redirects"`
	Plans     PlanConfig      `yaml:"plans"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Auth      AuthConfig      `yaml:"auth"`

	Runtime RuntimeConfig `yaml:"-"`
}

const defaultPlanPeriod = 365 * 24 * time.Hour

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.CallbackPath == "" {
		cfg.Server.CallbackPath = "/api/payment/callback"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Gateway.APIBaseURL == "" {
		cfg.Gateway.APIBaseURL = "https://epoint.az/api/1"
	}
	if cfg.Scheduler.ExpiryInterval <= 0 {
		cfg.Scheduler.ExpiryInterval = time.Hour
	}
	if cfg.Scheduler.ReconcileInterval <= 0 {
		cfg.Scheduler.ReconcileInterval = 15 * time.Minute
	}
	if cfg.Scheduler.PendingOrderTTL <= 0 {
		cfg.Scheduler.PendingOrderTTL = 24 * time.Hour
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 30 * time.Minute
	}
	if cfg.Plans.Periods == nil {
		cfg.Plans.Periods = map[string]time.Duration{}
	}

	// Minimal validation. Gateway keys are fatal here so a misconfigured
	// service never reaches the request path.
	if cfg.Gateway.PublicKey == "" || cfg.Gateway.PrivateKey == "" {
		return nil, errors.New("gateway.public_key and gateway.private_key are required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// PlanPeriod returns the configured entitlement duration for a plan code,
// defaulting to one year.
func (c *Config) PlanPeriod(plan string) time.Duration {
	if d, ok := c.Plans.Periods[plan]; ok && d > 0 {
		return d
	}
	return defaultPlanPeriod
}
