// Package config loads server configuration from a YAML file with
// environment-variable overrides. Credentials (Redis, Supabase) come from
// the environment only and are never written to the config file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Chat      ChatConfig      `yaml:"chat"`
	Name      NameConfig      `yaml:"name"`
	TTL       TTLConfig       `yaml:"ttl"`
	CORS      CORSConfig      `yaml:"cors"`
}

type ServerConfig struct {
	Port    string `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

type BroadcastConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

type ChatConfig struct {
	MaxMessages int `yaml:"max_messages"`
	MaxLength   int `yaml:"max_length"`
}

type NameConfig struct {
	MaxLength int `yaml:"max_length"`
}

type TTLConfig struct {
	SessionHours    int `yaml:"session_hours"`
	PostRevealHours int `yaml:"post_reveal_hours"`
}

type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Port: "8080", BaseURL: "https://revealtogether.com"},
		Broadcast: BroadcastConfig{IntervalMs: 500},
		Chat:      ChatConfig{MaxMessages: 500, MaxLength: 280},
		Name:      NameConfig{MaxLength: 50},
		TTL:       TTLConfig{SessionHours: 24, PostRevealHours: 1},
	}
}

// Load reads the YAML config at path, fills in defaults for zero fields, and
// applies environment overrides. A missing file is not an error; defaults and
// environment apply alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("open config: %w", err)
			}
		} else {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	cfg.clamp()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Server.Port == "" {
		c.Server.Port = d.Server.Port
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = d.Server.BaseURL
	}
	if c.Broadcast.IntervalMs == 0 {
		c.Broadcast.IntervalMs = d.Broadcast.IntervalMs
	}
	if c.Chat.MaxMessages == 0 {
		c.Chat.MaxMessages = d.Chat.MaxMessages
	}
	if c.Chat.MaxLength == 0 {
		c.Chat.MaxLength = d.Chat.MaxLength
	}
	if c.Name.MaxLength == 0 {
		c.Name.MaxLength = d.Name.MaxLength
	}
	if c.TTL.SessionHours == 0 {
		c.TTL.SessionHours = d.TTL.SessionHours
	}
	if c.TTL.PostRevealHours == 0 {
		c.TTL.PostRevealHours = d.TTL.PostRevealHours
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("BROADCAST_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Broadcast.IntervalMs = n
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.CORS.AllowedOrigins = v
	}
}

// clamp keeps the broadcast interval inside the supported 200..2000ms range.
func (c *Config) clamp() {
	if c.Broadcast.IntervalMs < 200 {
		c.Broadcast.IntervalMs = 200
	}
	if c.Broadcast.IntervalMs > 2000 {
		c.Broadcast.IntervalMs = 2000
	}
}
