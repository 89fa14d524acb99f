// Package config loads settings from defaults, an optional YAML file, a .env
// file and ZALOGA_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ZALOGA_SMTP_HOST.
const EnvPrefix = "ZALOGA"

// Config is the full application configuration.
type Config struct {
	App struct {
		Name string `mapstructure:"name"`
		Env  string `mapstructure:"env"`
	} `mapstructure:"app"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Auth struct {
		JWTSecret    string        `mapstructure:"jwt_secret"`
		TokenTTL     time.Duration `mapstructure:"token_ttl"`
		SecureCookie bool          `mapstructure:"secure_cookie"`
	} `mapstructure:"auth"`

	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
		TLS      string `mapstructure:"tls"`
	} `mapstructure:"smtp"`

	Alerts struct {
		LowStockSchedule string `mapstructure:"low_stock_schedule"`
	} `mapstructure:"alerts"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`

	Log struct {
		Path  string `mapstructure:"path"`
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Import struct {
		MaxUploadMB int64 `mapstructure:"max_upload_mb"`
	} `mapstructure:"import"`
}

var defaults = map[string]any{
	"app.name":                  "Zaloga",
	"app.env":                   "development",
	"http.addr":                 ":8080",
	"db.path":                   "zaloga.sqlite3",
	"auth.jwt_secret":           "",
	"auth.token_ttl":            "8h",
	"auth.secure_cookie":        false,
	"smtp.host":                 "",
	"smtp.port":                 587,
	"smtp.username":             "",
	"smtp.password":             "",
	"smtp.from":                 "",
	"smtp.tls":                  "opportunistic",
	"alerts.low_stock_schedule": "0 7 * * *",
	"metrics.enabled":           true,
	"log.path":                  "",
	"log.level":                 "info",
	"import.max_upload_mb":      16,
}

// Load reads configuration. path names an optional YAML file; an empty path
// or a missing file leaves defaults and environment in charge.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env")
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
			slog.Debug("config file not found, using defaults", "path", path)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr is empty")
	}
	if c.DB.Path == "" {
		return errors.New("config: db.path is empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config: auth.token_ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return errors.New("config: smtp.from is required when smtp.host is set")
	}
	switch c.SMTP.TLS {
	case "mandatory", "opportunistic", "none":
	default:
		return fmt.Errorf("config: smtp.tls must be mandatory, opportunistic or none, got %q", c.SMTP.TLS)
	}
	if c.Import.MaxUploadMB <= 0 {
		return errors.New("config: import.max_upload_mb must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Production reports whether app.env is "production".
func (c *Config) Production() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// MailEnabled reports whether an SMTP host is configured.
func (c *Config) MailEnabled() bool {
	return c.SMTP.Host != ""
}

// ParseLevel maps a log level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
	return l, nil
}
