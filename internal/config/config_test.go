package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func unsetEnv(t *testing.T, key string) {
	t.Setenv(key, "")
	os.Unsetenv(key)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	unsetEnv(t, "PRACTICE_AUTH_JWT_SECRET")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "sqlite3", cfg.Database.Driver)
	require.Equal(t, "questions_game.db", cfg.Database.DSN)
	require.Equal(t, 72*time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, 30, cfg.HistoryLimit)
	require.Empty(t, cfg.Cache.URL)
	require.Equal(t, DefaultSubjects, cfg.Subjects)
	require.Empty(t, cfg.Auth.JWTSecret)
	require.ErrorContains(t, cfg.Validate(), "PRACTICE_AUTH_JWT_SECRET")

	t.Setenv("PRACTICE_AUTH_JWT_SECRET", "0123456789abcdef")
	cfg, err = Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PRACTICE_SERVER_PORT", "9090")
	t.Setenv("PRACTICE_DATABASE_DRIVER", "postgres")
	t.Setenv("PRACTICE_DATABASE_DSN", "postgres://u:p@localhost/practice?sslmode=disable")
	t.Setenv("PRACTICE_CACHE_URL", "redis://localhost:6379/1")
	t.Setenv("PRACTICE_HISTORY_LIMIT", "50")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "redis://localhost:6379/1", cfg.Cache.URL)
	require.Equal(t, 50, cfg.HistoryLimit)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PRACTICE_SERVER_PORT=7070\n"), 0o644))
	unsetEnv(t, "PRACTICE_SERVER_PORT")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadSubjects_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subjects.yaml")
	data := `
subjects:
  - key: " Biology "
    name: Biology
    bank: bio.db
  - key: maths
    bank: maths.db
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	subjects, err := LoadSubjects(path)
	require.NoError(t, err)
	require.Equal(t, []Subject{
		{Key: "biology", Name: "Biology", Bank: "bio.db"},
		{Key: "maths", Name: "maths", Bank: "maths.db"},
	}, subjects)
}

func TestParseSubjects_Invalid(t *testing.T) {
	_, err := ParseSubjects([]byte("subjects: [oops"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:     DatabaseConfig{Driver: "sqlite3", DSN: "x.db"},
			Auth:         AuthConfig{JWTSecret: "s"},
			HistoryLimit: 30,
			Subjects:     []Subject{{Key: "chemistry", Bank: "c.db"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad-driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"empty-dsn", func(c *Config) { c.Database.DSN = "" }, true},
		{"empty-secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"zero-history", func(c *Config) { c.HistoryLimit = 0 }, true},
		{"no-subjects", func(c *Config) { c.Subjects = nil }, true},
		{"duplicate-subject", func(c *Config) {
			c.Subjects = append(c.Subjects, Subject{Key: "chemistry", Bank: "d.db"})
		}, true},
		{"no-bank", func(c *Config) { c.Subjects[0].Bank = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
