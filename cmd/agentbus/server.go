package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbus/api/handlers"
	"github.com/BaSui01/agentbus/bus"
	"github.com/BaSui01/agentbus/config"
	"github.com/BaSui01/agentbus/internal/metrics"
	"github.com/BaSui01/agentbus/internal/server"
	"github.com/BaSui01/agentbus/internal/telemetry"
	"github.com/BaSui01/agentbus/persistence"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentBus 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager *server.Manager

	// 状态存储与总线
	store persistence.StateStore
	bus   *bus.Bus

	// Handlers
	healthHandler *handlers.HealthHandler
	stateHandler  *handlers.StateHandler
	watchHandler  *handlers.WatchHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// OpenTelemetry providers
	otelProviders *telemetry.Providers

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("agentbus", s.logger)

	// 2. 初始化状态存储
	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init state store: %w", err)
	}

	// 3. 初始化状态总线（启动时恢复全部非终态工作流）
	if err := s.initBus(); err != nil {
		return fmt.Errorf("failed to init state bus: %w", err)
	}

	// 4. 初始化 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("addr", s.cfg.Server.Addr),
		zap.String("store_backend", s.cfg.Store.Backend),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStore 根据配置创建状态存储
func (s *Server) initStore() error {
	store, err := persistence.NewStateStore(s.storeConfig())
	if err != nil {
		return err
	}
	s.store = store

	s.logger.Info("State store initialized", zap.String("backend", s.cfg.Store.Backend))
	return nil
}

// storeConfig 将应用配置映射为存储层配置
func (s *Server) storeConfig() persistence.StoreConfig {
	return persistence.StoreConfig{
		Type:    persistence.StoreType(s.cfg.Store.Backend),
		BaseDir: s.cfg.Store.BaseDir,
		SQL: persistence.SQLStoreConfig{
			Driver:          s.cfg.Store.Database.Driver,
			DSN:             s.cfg.Store.Database.DSN(),
			MaxIdleConns:    s.cfg.Store.Database.MaxIdleConns,
			MaxOpenConns:    s.cfg.Store.Database.MaxOpenConns,
			ConnMaxLifetime: s.cfg.Store.Database.ConnMaxLifetime,
			AutoMigrate:     s.cfg.Store.Database.AutoMigrate,
		},
		Redis: persistence.RedisStoreConfig{
			Host:      s.cfg.Store.Redis.Host,
			Port:      s.cfg.Store.Redis.Port,
			Password:  s.cfg.Store.Redis.Password,
			DB:        s.cfg.Store.Redis.DB,
			PoolSize:  s.cfg.Store.Redis.PoolSize,
			KeyPrefix: s.cfg.Store.Redis.KeyPrefix,
		},
		Mongo: persistence.MongoStoreConfig{
			URI:        s.cfg.Store.Mongo.URI,
			Database:   s.cfg.Store.Mongo.Database,
			Collection: s.cfg.Store.Mongo.Collection,
		},
	}
}

// initBus 创建并启动状态总线
func (s *Server) initBus() error {
	busCfg := bus.Config{
		ExpiryInterval:   s.cfg.Bus.ExpiryInterval,
		SubscriberBuffer: s.cfg.Bus.SubscriberBuffer,
	}

	s.bus = bus.New(s.store, busCfg, s.logger, bus.WithMetrics(s.metricsCollector))

	if err := s.bus.Start(context.Background()); err != nil {
		return err
	}

	s.logger.Info("State bus started",
		zap.Duration("expiry_interval", busCfg.ExpiryInterval),
		zap.Int("subscriber_buffer", busCfg.SubscriberBuffer),
	)
	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	// 健康检查 handler
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewStoreHealthCheck("store", s.store.Ping))
	s.healthHandler.RegisterCheck(handlers.NewBusHealthCheck("bus", func(ctx context.Context) error {
		_, err := s.bus.ListPending("")
		return err
	}))

	// 工作流状态 handler
	s.stateHandler = handlers.NewStateHandler(s.bus, s.logger)

	// WebSocket 订阅 handler
	s.watchHandler = handlers.NewWatchHandler(s.bus, s.logger, s.cfg.Server.AllowedOrigins)

	s.logger.Info("Handlers initialized")
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// Prometheus 指标端点
	mux.Handle("/metrics", promhttp.Handler())

	// ========================================
	// API 路由
	// ========================================
	mux.HandleFunc("/api/v1/pending", s.stateHandler.HandleListPending)
	mux.HandleFunc("GET /api/v1/state/{type}/{id}", s.stateHandler.HandleGetState)
	mux.HandleFunc("POST /api/v1/state/{type}/{id}/respond", s.stateHandler.HandleRespond)
	mux.HandleFunc("GET /api/v1/state/{type}/{id}/watch", s.watchHandler.HandleWatch)
	s.logger.Info("State API routes registered")

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.Telemetry.Enabled {
		middlewares = append(middlewares, OTelTracing())
	}
	middlewares = append(middlewares, CORS(s.cfg.Server.AllowedOrigins))
	if s.cfg.Server.RateLimitRPS > 0 {
		rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
		s.rateLimiterCancel = rateLimiterCancel
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger))
	}
	if len(s.cfg.Auth.APIKeys) > 0 {
		middlewares = append(middlewares,
			APIKeyAuth(s.cfg.Auth.APIKeys, skipAuthPaths, s.cfg.Auth.AllowQueryAPIKey, s.logger))
	}
	if s.cfg.Auth.JWTSecret != "" {
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger))
	}

	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            s.cfg.Server.Addr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  s.cfg.Server.MaxHeaderBytes,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞），配置证书时启用 HTTPS
	if s.cfg.Server.TLSCertFile != "" && s.cfg.Server.TLSKeyFile != "" {
		if err := s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile); err != nil {
			return err
		}
		s.logger.Info("HTTPS server started", zap.String("addr", s.cfg.Server.Addr))
		return nil
	}

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.cfg.Server.Addr))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器（停止接收新请求）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 停止状态总线（排空到期监控，关闭全部订阅）
	if s.bus != nil {
		if err := s.bus.Stop(); err != nil {
			s.logger.Error("State bus shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭状态存储
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("State store shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭 OpenTelemetry providers
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 5. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
