// Package config loads application configuration.
//
// Sources, later ones winning: built-in defaults, an optional YAML file,
// the conventional DATABASE_URL and VAPID_* variables, and PUSHGARDEN_*
// variables where "__" separates nesting levels (PUSHGARDEN_SERVER__PORT).
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes application environment variables.
const EnvPrefix = "PUSHGARDEN_"

// aliases maps well known variable names to config keys.
var aliases = map[string]string{
	"DATABASE_URL":      "database.url",
	"VAPID_PUBLIC_KEY":  "push.vapid_public_key",
	"VAPID_PRIVATE_KEY": "push.vapid_private_key",
	"VAPID_SUBJECT":     "push.vapid_subject",
	"REDIS_ADDR":        "redis.addr",
	"JWT_SECRET":        "jwt.secret_key",
}

// Config is the application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	JWT      JWTConfig      `koanf:"jwt"`
	CORS     CORSConfig     `koanf:"cors"`
	Push     PushConfig     `koanf:"push"`
	Redis    RedisConfig    `koanf:"redis"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

// JWTConfig contains bearer token validation settings.
type JWTConfig struct {
	SecretKey string        `koanf:"secret_key"`
	Issuer    string        `koanf:"issuer"`
	Leeway    time.Duration `koanf:"leeway"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// PushConfig contains Web Push settings. Push is disabled unless both VAPID
// keys are set.
type PushConfig struct {
	VAPIDPublicKey       string        `koanf:"vapid_public_key"`
	VAPIDPrivateKey      string        `koanf:"vapid_private_key"`
	VAPIDSubject         string        `koanf:"vapid_subject"`
	TTL                  int           `koanf:"ttl"`
	Urgency              string        `koanf:"urgency"`
	SendTimeout          time.Duration `koanf:"send_timeout"`
	BroadcastConcurrency int           `koanf:"broadcast_concurrency"`
	GoneStatuses         []int         `koanf:"gone_statuses"`
	RateLimit            float64       `koanf:"rate_limit"`

	DefaultTitle string `koanf:"default_title"`
	DefaultBody  string `koanf:"default_body"`
	DefaultIcon  string `koanf:"default_icon"`
	DefaultBadge string `koanf:"default_badge"`
	DefaultTag   string `koanf:"default_tag"`
	DefaultURL   string `koanf:"default_url"`
}

// Enabled reports whether both VAPID keys are configured.
func (c PushConfig) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// RedisConfig contains subscription cache settings.
type RedisConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	TTL      time.Duration `koanf:"ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Push: PushConfig{
			VAPIDSubject:         "mailto:admin@localhost",
			TTL:                  60,
			Urgency:              "normal",
			SendTimeout:          10 * time.Second,
			BroadcastConcurrency: 8,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  5 * time.Minute,
		},
	}
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(name string) string {
		return aliases[name]
	}), nil); err != nil {
		return nil, fmt.Errorf("load env aliases: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				splitListHook,
			),
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyListDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns PUSHGARDEN_SERVER__METRICS_PORT into server.metrics_port.
func envKey(name string) string {
	key := strings.TrimPrefix(name, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

// splitListHook decodes comma separated strings from the environment into
// slices of any element type.
func splitListHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice {
		return data, nil
	}
	raw, _ := data.(string)
	if raw == "" {
		return []string{}, nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

// Slices are defaulted after decoding, a decoded list must replace the
// default rather than merge into it.
func (c *Config) applyListDefaults() {
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.Push.GoneStatuses) == 0 {
		c.Push.GoneStatuses = []int{410}
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}

	if c.Push.BroadcastConcurrency < 0 {
		errs = append(errs, errors.New("push.broadcast_concurrency must not be negative"))
	}
	for _, code := range c.Push.GoneStatuses {
		if code < 400 || code > 499 {
			errs = append(errs, fmt.Errorf("push.gone_statuses: %d is not a 4xx status", code))
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// FileFromEnv returns the config file path set in PUSHGARDEN_CONFIG, if any.
func FileFromEnv() string {
	return os.Getenv(EnvPrefix + "CONFIG")
}
