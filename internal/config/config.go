package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "SPORTLOG_"

// Config defines sportlog configuration.
type Config struct {
	DB       DBConfig     `yaml:"db"`
	Server   ServerConfig `yaml:"server"`
	Log      LogConfig    `yaml:"log"`
	Strava   StravaConfig `yaml:"strava"`
	User     string       `yaml:"user"`
	Locale   string       `yaml:"locale"`
	Lookback int          `yaml:"lookback"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	// Port 0 serves MCP over stdio
	Port        int    `yaml:"port"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type LogConfig struct {
	Format string `yaml:"format"`
}

type StravaConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	BaseURL      string `yaml:"base_url"`
	Schedule     string `yaml:"schedule"`
}

// Enabled reports whether a Strava API application is configured. The
// refresh token is optional here: 'sportlog auth strava' stores one in the
// database.
func (s StravaConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// Default returns the configuration used when nothing else is set
func Default() Config {
	return Config{
		DB: DBConfig{
			Path: "sportlog.db",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Format: "console",
		},
		Strava: StravaConfig{
			Schedule: "@every 15m",
		},
		User:     "default",
		Locale:   "en",
		Lookback: 10,
	}
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional dotenv file and SPORTLOG_* environment variables, in that order.
// An empty path falls back to SPORTLOG_CONFIG_PATH; an empty envFile to ".env".
// Missing dotenv files are ignored.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG_PATH")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first unusable setting
func (c Config) Validate() error {
	if strings.TrimSpace(c.DB.Path) == "" {
		return errors.New("db path is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if strings.TrimSpace(c.User) == "" {
		return errors.New("user is required")
	}
	switch strings.ToLower(c.Locale) {
	case "en", "fr":
	default:
		return fmt.Errorf("unsupported locale %q (want en or fr)", c.Locale)
	}
	if c.Lookback < 0 {
		return fmt.Errorf("invalid lookback %d", c.Lookback)
	}
	if _, err := cron.ParseStandard(c.Strava.Schedule); err != nil {
		return fmt.Errorf("invalid strava schedule %q: %w", c.Strava.Schedule, err)
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"DB_PATH":              &cfg.DB.Path,
		"METRICS_ADDR":         &cfg.Server.MetricsAddr,
		"LOG_FORMAT":           &cfg.Log.Format,
		"USER":                 &cfg.User,
		"LOCALE":               &cfg.Locale,
		"STRAVA_CLIENT_ID":     &cfg.Strava.ClientID,
		"STRAVA_CLIENT_SECRET": &cfg.Strava.ClientSecret,
		"STRAVA_REFRESH_TOKEN": &cfg.Strava.RefreshToken,
		"STRAVA_BASE_URL":      &cfg.Strava.BaseURL,
		"STRAVA_SCHEDULE":      &cfg.Strava.Schedule,
	}
	for name, dst := range strs {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":     &cfg.Server.Port,
		"LOOKBACK": &cfg.Lookback,
	}
	for name, dst := range ints {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}
	return nil
}
