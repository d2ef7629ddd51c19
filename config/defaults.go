// =============================================================================
// 📦 AgentBus 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Store:     DefaultStoreConfig(),
		Bus:       DefaultBusConfig(),
		Driver:    DefaultDriverConfig(),
		Auth:      DefaultAuthConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultStoreConfig 返回默认存储配置。
// 默认内存后端，开箱即用；sql 后端默认 sqlite 单文件。
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:  "memory",
		BaseDir:  "./data/agentbus",
		Database: DefaultDatabaseConfig(),
		Redis:    DefaultRedisConfig(),
		Mongo:    DefaultMongoConfig(),
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "./data/agentbus/state.db",
		SSLMode:         "disable",
		MaxOpenConns:    100,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:      "localhost",
		Port:      6379,
		Password:  "",
		DB:        0,
		PoolSize:  10,
		KeyPrefix: "agentbus:",
	}
}

// DefaultMongoConfig 返回默认 Mongo 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "agentbus",
		Collection: "state_records",
	}
}

// DefaultBusConfig 返回默认总线配置
func DefaultBusConfig() BusConfig {
	return BusConfig{
		ExpiryInterval:   2 * time.Second,
		SubscriberBuffer: 16,
	}
}

// DefaultDriverConfig 返回默认执行器配置
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// DefaultAuthConfig 返回默认鉴权配置（默认关闭）
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentbus",
		SampleRate:   0.1,
	}
}
