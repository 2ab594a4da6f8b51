package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. DNSP_POSTGRES_HOST.
const EnvPrefix = "DNSP"

// FileLoader loads configuration from YAML files and environment variables.
type FileLoader struct {
	configPath string
	validator  *Validator
}

// NewFileLoader creates a new file loader. An empty path searches
// ./config/config.yaml and ./config.yaml; a missing file is not an error then.
func NewFileLoader(configPath string) *FileLoader {
	return &FileLoader{
		configPath: configPath,
		validator:  NewValidator(),
	}
}

// Load loads configuration from file and environment variables.
func (l *FileLoader) Load() (*Config, error) {
	v := newViper()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode(v)
}

// LoadFromEnv loads configuration from defaults and environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewFileLoader("").decode(newViper())
}

func (l *FileLoader) decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := l.validator.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.instance_id", "")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(200<<20))
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.ws_max_connections", 10000)
	v.SetDefault("server.ws_max_per_user", 5)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.database", "dnspotify")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 25)
	v.SetDefault("postgres.min_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_timeout", 4*time.Second)

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.bucket", "dnspotify")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.public_base_url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "dnspotify")
	v.SetDefault("auth.token_expiry", 24*time.Hour)
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.sign_in_limit", 10)
	v.SetDefault("auth.sign_in_window", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	v.SetDefault("telemetry.service_name", "dnspotify")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sample_rate", 1.0)

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.reconcile_spec", "*/15 * * * *")
	v.SetDefault("cron.cleanup_spec", "0 3 * * *")
	v.SetDefault("cron.sweep_spec", "*/10 * * * *")
	v.SetDefault("cron.notification_retention", 90*24*time.Hour)
}
