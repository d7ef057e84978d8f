// Package config carga la configuración del toolkit: YAML con defaults
// sanos y overrides por variables de entorno (prefijo AUTHKIT_).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Broker struct {
		AuthEndpoint  string   `yaml:"auth_endpoint"`
		TokenEndpoint string   `yaml:"token_endpoint"`
		ClientID      string   `yaml:"client_id"`
		Scopes        []string `yaml:"scopes"`
		ListenAddr    string   `yaml:"listen_addr"`
		// Página de login hosteada; fallback estático de los guards.
		SignInURL string `yaml:"sign_in_url"`
	} `yaml:"broker"`

	Backend struct {
		// BaseURL del backend de la aplicación (endpoint de perfil).
		BaseURL string `yaml:"base_url"`
	} `yaml:"backend"`

	Session struct {
		WarnThreshold time.Duration `yaml:"warn_threshold"`
		PollInterval  time.Duration `yaml:"poll_interval"`
		LogoutDelay   time.Duration `yaml:"logout_delay"`
		SignInPath    string        `yaml:"sign_in_path"`
	} `yaml:"session"`

	Storage struct {
		// memory | file | redis
		Kind string `yaml:"kind"`
		File struct {
			Path string `yaml:"path"`
		} `yaml:"file"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"storage"`
}

func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if len(c.Broker.Scopes) == 0 {
		c.Broker.Scopes = []string{"openid", "profile", "email", "offline_access"}
	}
	if c.Broker.ListenAddr == "" {
		c.Broker.ListenAddr = "127.0.0.1:8910"
	}
	if c.Session.WarnThreshold == 0 {
		c.Session.WarnThreshold = 5 * time.Minute
	}
	if c.Session.PollInterval == 0 {
		c.Session.PollInterval = time.Minute
	}
	if c.Session.LogoutDelay == 0 {
		c.Session.LogoutDelay = time.Second
	}
	if c.Session.SignInPath == "" {
		c.Session.SignInPath = "/login"
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = "memory"
	}
	if c.Storage.Redis.Prefix == "" {
		c.Storage.Redis.Prefix = "authkit:"
	}

	applyEnv(&c)
	return &c, nil
}

// applyEnv pisa la config con variables AUTHKIT_* si están presentes.
func applyEnv(c *Config) {
	if v, ok := getEnvStr("AUTHKIT_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("AUTHKIT_LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}
	if v, ok := getEnvStr("AUTHKIT_BROKER_AUTH_ENDPOINT"); ok {
		c.Broker.AuthEndpoint = v
	}
	if v, ok := getEnvStr("AUTHKIT_BROKER_TOKEN_ENDPOINT"); ok {
		c.Broker.TokenEndpoint = v
	}
	if v, ok := getEnvStr("AUTHKIT_BROKER_CLIENT_ID"); ok {
		c.Broker.ClientID = v
	}
	if v, ok := getEnvCSV("AUTHKIT_BROKER_SCOPES"); ok {
		c.Broker.Scopes = v
	}
	if v, ok := getEnvStr("AUTHKIT_BROKER_LISTEN_ADDR"); ok {
		c.Broker.ListenAddr = v
	}
	if v, ok := getEnvStr("AUTHKIT_BROKER_SIGN_IN_URL"); ok {
		c.Broker.SignInURL = v
	}
	if v, ok := getEnvStr("AUTHKIT_BACKEND_BASE_URL"); ok {
		c.Backend.BaseURL = v
	}
	if v, ok := getEnvDur("AUTHKIT_SESSION_WARN_THRESHOLD"); ok {
		c.Session.WarnThreshold = v
	}
	if v, ok := getEnvDur("AUTHKIT_SESSION_POLL_INTERVAL"); ok {
		c.Session.PollInterval = v
	}
	if v, ok := getEnvStr("AUTHKIT_STORAGE_KIND"); ok {
		c.Storage.Kind = v
	}
	if v, ok := getEnvStr("AUTHKIT_STORAGE_FILE_PATH"); ok {
		c.Storage.File.Path = v
	}
	if v, ok := getEnvStr("AUTHKIT_STORAGE_REDIS_ADDR"); ok {
		c.Storage.Redis.Addr = v
	}
	if v, ok := getEnvInt("AUTHKIT_STORAGE_REDIS_DB"); ok {
		c.Storage.Redis.DB = v
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}
