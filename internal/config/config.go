package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

type Config struct {
	API          APIConfig
	Session      SessionConfig
	AuditLogFile string
	LogLevel     string
	DevServer    DevServerConfig
	// File is the YAML file the values were layered over, if any.
	File string
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type SessionConfig struct {
	Storage         string
	StateFile       string
	DatabaseURL     string
	Profile         string
	SQLitePath      string
	AgeIdentityFile string
}

type DevServerConfig struct {
	Addr            string
	JWTSecret       string
	TokenTTL        time.Duration
	StateFile       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// fileConfig is the optional YAML file named by TASKCTL_CONFIG. Environment
// variables take precedence over it.
type fileConfig struct {
	API struct {
		BaseURL    string `yaml:"base_url"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"api"`
	Session struct {
		Storage         string `yaml:"storage"`
		StateFile       string `yaml:"state_file"`
		DatabaseURL     string `yaml:"database_url"`
		Profile         string `yaml:"profile"`
		SQLitePath      string `yaml:"sqlite_path"`
		AgeIdentityFile string `yaml:"age_identity_file"`
	} `yaml:"session"`
	AuditLogFile string `yaml:"audit_log_file"`
	LogLevel     string `yaml:"log_level"`
	DevServer    struct {
		Addr               string `yaml:"addr"`
		JWTSecret          string `yaml:"jwt_secret"`
		TokenTTLSec        int    `yaml:"token_ttl_sec"`
		StateFile          string `yaml:"state_file"`
		ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
	} `yaml:"dev_server"`
}

// Load reads the environment, layered over the YAML file named by
// TASKCTL_CONFIG when set.
func Load() (Config, error) {
	return LoadFile(getEnv("TASKCTL_CONFIG", ""))
}

// LoadFile is Load with an explicit YAML path. An empty path means
// environment and defaults only.
func LoadFile(path string) (Config, error) {
	var fc fileConfig
	if path != "" {
		var err error
		fc, err = readFile(path)
		if err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		API: APIConfig{
			BaseURL: getEnv("TASKS_API_BASE_URL", or(fc.API.BaseURL, "http://localhost:8080")),
			Timeout: time.Duration(getEnvInt("TASKS_API_TIMEOUT_SEC", orInt(fc.API.TimeoutSec, 15))) * time.Second,
		},
		Session: SessionConfig{
			Storage:         strings.ToLower(getEnv("SESSION_STORAGE", or(fc.Session.Storage, StorageFile))),
			StateFile:       getEnv("SESSION_STATE_FILE", or(fc.Session.StateFile, "./data/session_state.json")),
			DatabaseURL:     getEnv("DATABASE_URL", fc.Session.DatabaseURL),
			Profile:         getEnv("SESSION_PROFILE", or(fc.Session.Profile, "default")),
			SQLitePath:      getEnv("SESSION_SQLITE_PATH", or(fc.Session.SQLitePath, "./data/session_state.db")),
			AgeIdentityFile: getEnv("SESSION_AGE_IDENTITY_FILE", fc.Session.AgeIdentityFile),
		},
		AuditLogFile: getEnv("AUDIT_LOG_FILE", or(fc.AuditLogFile, "./data/audit.log")),
		LogLevel:     getEnv("LOG_LEVEL", or(fc.LogLevel, "warn")),
		DevServer: DevServerConfig{
			Addr:            getEnv("DEV_SERVER_ADDR", or(fc.DevServer.Addr, ":8080")),
			JWTSecret:       getEnv("DEV_SERVER_JWT_SECRET", fc.DevServer.JWTSecret),
			TokenTTL:        time.Duration(getEnvInt("DEV_SERVER_TOKEN_TTL_SEC", orInt(fc.DevServer.TokenTTLSec, 86400))) * time.Second,
			StateFile:       getEnv("DEV_SERVER_STATE_FILE", or(fc.DevServer.StateFile, "./data/dev_backend.json")),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("DEV_SERVER_SHUTDOWN_TIMEOUT_SEC", orInt(fc.DevServer.ShutdownTimeoutSec, 10))) * time.Second,
		},
		File: path,
	}

	if cfg.API.BaseURL == "" {
		return Config{}, fmt.Errorf("TASKS_API_BASE_URL must not be empty")
	}
	if cfg.API.Timeout <= 0 {
		return Config{}, fmt.Errorf("TASKS_API_TIMEOUT_SEC must be > 0")
	}
	switch cfg.Session.Storage {
	case StorageFile:
		if cfg.Session.StateFile == "" {
			return Config{}, fmt.Errorf("SESSION_STATE_FILE must not be empty")
		}
	case StoragePostgres:
		if cfg.Session.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when SESSION_STORAGE=postgres")
		}
	case StorageSQLite:
		if cfg.Session.SQLitePath == "" {
			return Config{}, fmt.Errorf("SESSION_SQLITE_PATH must not be empty")
		}
	default:
		return Config{}, fmt.Errorf("SESSION_STORAGE must be one of file, postgres, sqlite; got %q", cfg.Session.Storage)
	}
	if cfg.DevServer.Addr == "" {
		return Config{}, fmt.Errorf("DEV_SERVER_ADDR must not be empty")
	}
	if cfg.DevServer.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("DEV_SERVER_TOKEN_TTL_SEC must be > 0")
	}
	if cfg.DevServer.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("DEV_SERVER_SHUTDOWN_TIMEOUT_SEC must be > 0")
	}

	return cfg, nil
}

func readFile(path string) (fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func or(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

func orInt(val, fallback int) int {
	if val == 0 {
		return fallback
	}
	return val
}
