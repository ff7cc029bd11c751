package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the daemon's YAML configuration. Engine-level knobs not
// listed here keep their defaults.
type fileConfig struct {
	Listen       string `yaml:"listen"`
	DatabasePath string `yaml:"database_path"`
	SigningKey   string `yaml:"signing_key"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Lockout struct {
		Threshold     int `yaml:"threshold"`
		WindowMinutes int `yaml:"window_minutes"`
	} `yaml:"lockout"`

	Session struct {
		AccessTTLMinutes int `yaml:"access_ttl_minutes"`
		RefreshTTLDays   int `yaml:"refresh_ttl_days"`
		RememberTTLDays  int `yaml:"remember_ttl_days"`
	} `yaml:"session"`

	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &fileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "authd.db"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "auth"
	}
	if cfg.ShutdownGraceSeconds <= 0 {
		cfg.ShutdownGraceSeconds = 10
	}
	if len(cfg.SigningKey) < 32 {
		return nil, errors.New("signing_key must be at least 32 bytes")
	}
	return cfg, nil
}

func (c *fileConfig) shutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}
