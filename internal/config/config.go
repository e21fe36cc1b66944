// Package config loads application configuration from the environment and
// the subjects catalogue. All variables use the PRACTICE_ prefix.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ibpractice/backend/internal/database"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Cache        CacheConfig
	Auth         AuthConfig
	Log          LogConfig
	HistoryLimit int
	SubjectsFile string
	Subjects     []Subject
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
}

// DatabaseConfig points at the progress store.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// CacheConfig holds the optional Redis URL for progress counts.
type CacheConfig struct {
	URL string
	TTL time.Duration
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// LogConfig selects the zap preset.
type LogConfig struct {
	Mode string
}

// Subject is one entry of the subjects catalogue.
type Subject struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
	Bank string `yaml:"bank"`
}

type subjectsFile struct {
	Subjects []Subject `yaml:"subjects"`
}

// DefaultSubjects are the banks used when no subjects file is configured.
var DefaultSubjects = []Subject{
	{Key: "chemistry", Name: "Chemistry", Bank: "ChemQuestionsDatabase.db"},
	{Key: "physics", Name: "Physics", Bank: "PhysicsQuestionsDataBase.db"},
}

// Load reads a .env file when present, then the environment and the
// subjects catalogue.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PRACTICE_SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Driver: envStr("PRACTICE_DATABASE_DRIVER", database.DriverSQLite),
			DSN:    envStr("PRACTICE_DATABASE_DSN", "questions_game.db"),
		},
		Cache: CacheConfig{
			URL: envStr("PRACTICE_CACHE_URL", ""),
			TTL: time.Duration(envInt("PRACTICE_CACHE_TTL_MINUTES", 10)) * time.Minute,
		},
		Auth: AuthConfig{
			JWTSecret: envStr("PRACTICE_AUTH_JWT_SECRET", ""),
			TokenTTL:  time.Duration(envInt("PRACTICE_AUTH_TOKEN_TTL_HOURS", 72)) * time.Hour,
		},
		Log: LogConfig{
			Mode: envStr("PRACTICE_LOG_MODE", "dev"),
		},
		HistoryLimit: envInt("PRACTICE_HISTORY_LIMIT", 30),
		SubjectsFile: envStr("PRACTICE_SUBJECTS_FILE", "subjects.yaml"),
	}

	subjects, err := LoadSubjects(cfg.SubjectsFile)
	if err != nil {
		return nil, err
	}
	cfg.Subjects = subjects

	return cfg, nil
}

// LoadSubjects parses the YAML catalogue at path. A missing file yields the
// default subjects.
func LoadSubjects(path string) ([]Subject, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		out := make([]Subject, len(DefaultSubjects))
		copy(out, DefaultSubjects)
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read subjects file: %w", err)
	}
	return ParseSubjects(data)
}

// ParseSubjects decodes a subjects catalogue.
func ParseSubjects(data []byte) ([]Subject, error) {
	var f subjectsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse subjects file: %w", err)
	}
	for i := range f.Subjects {
		s := &f.Subjects[i]
		s.Key = strings.ToLower(strings.TrimSpace(s.Key))
		if s.Name == "" {
			s.Name = s.Key
		}
	}
	return f.Subjects, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Database.Driver != database.DriverSQLite && c.Database.Driver != database.DriverPostgres {
		return fmt.Errorf("PRACTICE_DATABASE_DRIVER must be %q or %q, got %q",
			database.DriverSQLite, database.DriverPostgres, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("PRACTICE_DATABASE_DSN is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("PRACTICE_AUTH_JWT_SECRET is required")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("PRACTICE_HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if len(c.Subjects) == 0 {
		return fmt.Errorf("at least one subject must be configured")
	}

	seen := make(map[string]bool, len(c.Subjects))
	for _, s := range c.Subjects {
		if s.Key == "" {
			return fmt.Errorf("subject with empty key")
		}
		if s.Bank == "" {
			return fmt.Errorf("subject %q has no question bank", s.Key)
		}
		if seen[s.Key] {
			return fmt.Errorf("duplicate subject %q", s.Key)
		}
		seen[s.Key] = true
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
