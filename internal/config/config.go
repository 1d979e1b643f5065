// Package config loads server settings from defaults, an optional YAML file
// and environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr        string              `yaml:"http_addr"`
	OxiDBHost       string              `yaml:"oxidb_host"`
	OxiDBPort       int                 `yaml:"oxidb_port"`
	PoolSize        int                 `yaml:"pool_size"`
	DBTimeout       time.Duration       `yaml:"db_timeout"`
	JWTSecret       string              `yaml:"jwt_secret"`
	AdminEmail      string              `yaml:"admin_email"`
	AdminPass       string              `yaml:"admin_pass"`
	GelfAddr        string              `yaml:"gelf_addr"`
	SectionBackend  string              `yaml:"section_backend"` // oxidb | sqlite
	SQLitePath      string              `yaml:"sqlite_path"`
	TemplatesDir    string              `yaml:"templates_dir"`
	MaxUploadMB     int                 `yaml:"max_upload_mb"`
	AcceptedTypes   []string            `yaml:"accepted_types"`
	StrictIDs       bool                `yaml:"strict_ids"`
	AutosaveTimeout time.Duration       `yaml:"autosave_timeout"`
	CrossSections   map[string][]string `yaml:"cross_sections"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		OxiDBHost:       "127.0.0.1",
		OxiDBPort:       4444,
		PoolSize:        3,
		DBTimeout:       30 * time.Second,
		JWTSecret:       "oxiaudit-dev-secret-change-me",
		AdminEmail:      "admin@oxiaudit.local",
		AdminPass:       "admin123",
		SectionBackend:  "oxidb",
		SQLitePath:      "oxiaudit.db",
		TemplatesDir:    "templates",
		MaxUploadMB:     50,
		AutosaveTimeout: 10 * time.Second,
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the effective configuration. path may be empty, in which case
// OXIAUDIT_CONFIG names the file, if any.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("OXIAUDIT_CONFIG")
	}
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("OXIAUDIT_ADDR", c.HTTPAddr)
	c.OxiDBHost = getEnv("OXIDB_HOST", c.OxiDBHost)
	c.OxiDBPort = getEnvInt("OXIDB_PORT", c.OxiDBPort)
	c.PoolSize = getEnvInt("OXIAUDIT_POOL_SIZE", c.PoolSize)
	c.DBTimeout = getEnvDuration("OXIAUDIT_DB_TIMEOUT", c.DBTimeout)
	c.JWTSecret = getEnv("OXIAUDIT_JWT_SECRET", c.JWTSecret)
	c.AdminEmail = getEnv("OXIAUDIT_ADMIN_EMAIL", c.AdminEmail)
	c.AdminPass = getEnv("OXIAUDIT_ADMIN_PASS", c.AdminPass)
	c.GelfAddr = getEnv("GELF_ADDR", c.GelfAddr)
	c.SectionBackend = getEnv("OXIAUDIT_SECTION_BACKEND", c.SectionBackend)
	c.SQLitePath = getEnv("OXIAUDIT_SQLITE_PATH", c.SQLitePath)
	c.TemplatesDir = getEnv("OXIAUDIT_TEMPLATES_DIR", c.TemplatesDir)
	c.MaxUploadMB = getEnvInt("OXIAUDIT_MAX_UPLOAD_MB", c.MaxUploadMB)
	c.StrictIDs = getEnvBool("OXIAUDIT_STRICT_IDS", c.StrictIDs)
	c.AutosaveTimeout = getEnvDuration("OXIAUDIT_AUTOSAVE_TIMEOUT", c.AutosaveTimeout)
	if v := os.Getenv("OXIAUDIT_ACCEPTED_TYPES"); v != "" {
		c.AcceptedTypes = nil
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.AcceptedTypes = append(c.AcceptedTypes, t)
			}
		}
	}
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be > 0")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	switch c.SectionBackend {
	case "oxidb":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite section backend")
		}
	default:
		return fmt.Errorf("unsupported section_backend %q (use oxidb or sqlite)", c.SectionBackend)
	}
	return nil
}

// OxiDBAddr is the host:port of the OxiDB server.
func (c *Config) OxiDBAddr() string { return fmt.Sprintf("%s:%d", c.OxiDBHost, c.OxiDBPort) }

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}
