package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"greenlife-monitor/common/database"
	rediscommon "greenlife-monitor/common/redis"
	"greenlife-monitor/internal/alert"
	"greenlife-monitor/internal/channel"
	"greenlife-monitor/internal/config"
	"greenlife-monitor/internal/dashboard"
	httpapi "greenlife-monitor/internal/http"
	"greenlife-monitor/internal/identity"
	"greenlife-monitor/internal/metrics"
	"greenlife-monitor/internal/repository"
)

// DashboardService serves dashboard sessions over HTTP and WebSocket.
type DashboardService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB // nil unless DB_ENABLED
	redisClient *redis.Client
	hub         *httpapi.Hub
	server      *Server
}

// NewDashboardService wires the dashboard from configuration.
func NewDashboardService(cfg *config.Config, logger *zap.Logger) (*DashboardService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid time zone: %w", err)
	}

	redisClient, err := rediscommon.Connect(context.Background(), &cfg.Redis)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	var recorder alert.Recorder
	if cfg.DBEnabled {
		db, err = database.NewPostgresDB(context.Background(), &cfg.Database)
		if err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		auditRepo := repository.NewCommandAuditRepository(db, logger)
		if err := auditRepo.EnsureSchema(context.Background()); err != nil {
			_ = redisClient.Close()
			_ = db.Close()
			return nil, err
		}
		recorder = auditRepo
	}

	m := metrics.New(prometheus.NewRegistry())

	ch := channel.NewRedisChannel(redisClient, channel.RedisOptions{
		KeyPrefix:    cfg.Channel.KeyPrefix,
		StreamMaxLen: cfg.Channel.StreamMaxLen,
		BlockTimeout: cfg.Channel.BlockTimeout,
		RetryBackoff: cfg.Channel.RetryBackoff,
		MaxBackoff:   cfg.Channel.MaxBackoff,
	}, logger)

	verifier := identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.APIKey, cfg.Identity.Timeout, logger)
	coordinator := alert.NewCoordinator(ch, cfg.Dashboard.TelemetryPath, recorder, m, logger)

	hub := httpapi.NewHub(ch, verifier, coordinator, dashboard.Options{
		TelemetryPath:     cfg.Dashboard.TelemetryPath,
		ProfilePathPrefix: cfg.Dashboard.ProfilePathPrefix,
		WindowSize:        cfg.Dashboard.WindowSize,
		Location:          loc,
	}, m, logger)

	router := httpapi.NewRouter(logger)
	router.RegisterDashboardRoutes(
		httpapi.NewStreamHandler(hub, cfg.HTTP.AllowedOrigins, logger),
		httpapi.NewDashboardHandler(hub, verifier, logger),
	)
	router.RegisterOpsRoutes(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}, m.Handler())

	return &DashboardService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		hub:         hub,
		server:      NewServer("greenlife-dashboard", cfg.HTTP.Addr, router, logger),
	}, nil
}

// Start serves until the server is stopped.
func (s *DashboardService) Start(ctx context.Context) error {
	s.logger.Info("Starting dashboard service",
		zap.String("telemetry_path", s.config.Dashboard.TelemetryPath),
		zap.Bool("audit_enabled", s.db != nil),
	)
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop closes the server, then every session, then the stores.
func (s *DashboardService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping dashboard service")

	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}
	s.hub.CloseAll()

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close Redis", zap.Error(err))
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	}

	s.logger.Info("Dashboard service stopped")
	return nil
}
