// 配置校验。
//
// 每个配置节提供自己的 Validate，Config.Validate 汇总所有错误。
package config

import (
	"fmt"
	"strings"
)

// Validate 验证完整配置，返回所有配置节的错误汇总
func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Store.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Bus.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Driver.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Validate 验证服务器配置
func (s *ServerConfig) Validate() error {
	if s.Addr == "" {
		return fmt.Errorf("server: addr is required")
	}
	if s.RateLimitRPS < 0 {
		return fmt.Errorf("server: rate_limit_rps must not be negative")
	}
	if (s.TLSCertFile == "") != (s.TLSKeyFile == "") {
		return fmt.Errorf("server: tls_cert_file and tls_key_file must be set together")
	}
	return nil
}

// Validate 验证存储配置。只校验选中的后端
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case "memory":
		return nil
	case "file":
		if s.BaseDir == "" {
			return fmt.Errorf("store: base_dir is required for the file backend")
		}
		return nil
	case "sql":
		return s.Database.Validate()
	case "redis":
		return s.Redis.Validate()
	case "mongo":
		return s.Mongo.Validate()
	default:
		return fmt.Errorf("store: unknown backend %q (supported: memory, file, sql, redis, mongo)", s.Backend)
	}
}

// Validate 验证数据库配置
func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case "postgres", "mysql":
		if d.Host == "" {
			return fmt.Errorf("database: host is required for driver %q", d.Driver)
		}
		if d.Port <= 0 || d.Port > 65535 {
			return fmt.Errorf("database: invalid port %d", d.Port)
		}
		if d.Name == "" {
			return fmt.Errorf("database: name is required")
		}
	case "sqlite":
		if d.Name == "" {
			return fmt.Errorf("database: name (file path) is required for sqlite")
		}
	default:
		return fmt.Errorf("database: unknown driver %q (supported: postgres, mysql, sqlite)", d.Driver)
	}
	return nil
}

// Validate 验证 Redis 配置
func (r *RedisConfig) Validate() error {
	if r.Host == "" {
		return fmt.Errorf("redis: host is required")
	}
	if r.Port <= 0 || r.Port > 65535 {
		return fmt.Errorf("redis: invalid port %d", r.Port)
	}
	return nil
}

// Validate 验证 Mongo 配置
func (m *MongoConfig) Validate() error {
	if m.URI == "" {
		return fmt.Errorf("mongo: uri is required")
	}
	if m.Database == "" {
		return fmt.Errorf("mongo: database is required")
	}
	if m.Collection == "" {
		return fmt.Errorf("mongo: collection is required")
	}
	return nil
}

// Validate 验证总线配置
func (b *BusConfig) Validate() error {
	if b.ExpiryInterval <= 0 {
		return fmt.Errorf("bus: expiry_interval must be positive")
	}
	if b.SubscriberBuffer <= 0 {
		return fmt.Errorf("bus: subscriber_buffer must be positive")
	}
	return nil
}

// Validate 验证执行器配置
func (d *DriverConfig) Validate() error {
	if d.MaxRetries < 0 {
		return fmt.Errorf("driver: max_retries must not be negative")
	}
	if d.RetryDelay < 0 {
		return fmt.Errorf("driver: retry_delay must not be negative")
	}
	return nil
}

// Validate 验证日志配置
func (l *LogConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q (supported: debug, info, warn, error)", l.Level)
	}
	switch l.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log: unknown format %q (supported: json, console)", l.Format)
	}
	return nil
}

// Validate 验证遥测配置
func (t *TelemetryConfig) Validate() error {
	if t.SampleRate < 0 || t.SampleRate > 1 {
		return fmt.Errorf("telemetry: sample_rate must be between 0 and 1")
	}
	if t.Enabled && t.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry: otlp_endpoint is required when enabled")
	}
	return nil
}
