package config

import (
	"fmt"
	"net/url"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	if err := v.ValidateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := v.ValidatePostgres(&cfg.Postgres); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := v.ValidateRedis(&cfg.Redis); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := v.ValidateStorage(&cfg.Storage); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := v.ValidateAuth(&cfg.Auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := v.ValidateCron(&cfg.Cron); err != nil {
		return fmt.Errorf("cron: %w", err)
	}
	return nil
}

// ValidateServer validates server configuration.
func (v *Validator) ValidateServer(cfg *ServerConfig) error {
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", cfg.HTTPPort)
	}

	if cfg.GRPCPort > 0 {
		if cfg.GRPCPort > 65535 {
			return fmt.Errorf("invalid grpc_port: %d", cfg.GRPCPort)
		}
		if cfg.GRPCPort == cfg.HTTPPort {
			return fmt.Errorf("grpc_port cannot be the same as http_port")
		}
	}

	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 || cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}

	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings cannot be negative")
	}

	return nil
}

// ValidatePostgres validates PostgreSQL configuration.
func (v *Validator) ValidatePostgres(cfg *PostgresConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.User == "" {
		return fmt.Errorf("user is required")
	}
	if cfg.Database == "" {
		return fmt.Errorf("database is required")
	}
	if cfg.MaxConns < 0 || cfg.MinConns < 0 {
		return fmt.Errorf("pool sizes cannot be negative")
	}
	if cfg.MinConns > cfg.MaxConns && cfg.MaxConns > 0 {
		return fmt.Errorf("min_conns cannot exceed max_conns")
	}
	return nil
}

// ValidateRedis validates Redis configuration.
func (v *Validator) ValidateRedis(cfg *RedisConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.PoolSize < 0 {
		return fmt.Errorf("pool_size cannot be negative")
	}
	if cfg.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns cannot be negative")
	}
	if cfg.MinIdleConns > cfg.PoolSize && cfg.PoolSize > 0 {
		return fmt.Errorf("min_idle_conns cannot exceed pool_size")
	}
	return nil
}

// ValidateStorage validates object storage configuration.
func (v *Validator) ValidateStorage(cfg *StorageConfig) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if cfg.PublicBaseURL != "" {
		u, err := url.Parse(cfg.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid public_base_url: %q", cfg.PublicBaseURL)
		}
	}
	return nil
}

// ValidateAuth validates token and session settings.
func (v *Validator) ValidateAuth(cfg *AuthConfig) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 characters")
	}
	if cfg.TokenExpiry <= 0 {
		return fmt.Errorf("token_expiry must be positive")
	}
	if cfg.SessionTTL < cfg.TokenExpiry {
		return fmt.Errorf("session_ttl must not be shorter than token_expiry")
	}
	if cfg.SignInLimit <= 0 || cfg.SignInWindow <= 0 {
		return fmt.Errorf("sign_in_limit and sign_in_window must be positive")
	}
	return nil
}

// ValidateCron validates schedule expressions.
func (v *Validator) ValidateCron(cfg *CronConfig) error {
	if !cfg.Enabled {
		return nil
	}
	for name, spec := range map[string]string{
		"reconcile_spec": cfg.ReconcileSpec,
		"cleanup_spec":   cfg.CleanupSpec,
		"sweep_spec":     cfg.SweepSpec,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, spec, err)
		}
	}
	if cfg.NotificationRetention <= 0 {
		return fmt.Errorf("notification_retention must be positive")
	}
	return nil
}
