package service

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	mqttcommon "greenlife-monitor/common/mqtt"
	rediscommon "greenlife-monitor/common/redis"
	"greenlife-monitor/internal/bridge"
	"greenlife-monitor/internal/channel"
	"greenlife-monitor/internal/config"
	httpapi "greenlife-monitor/internal/http"
	"greenlife-monitor/internal/metrics"
)

// BridgeService relays between the bed device (MQTT) and the telemetry document.
type BridgeService struct {
	config      *config.Config
	logger      *zap.Logger
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	bridge      *bridge.Bridge
	ops         *Server
}

// NewBridgeService connects Redis and MQTT.
func NewBridgeService(cfg *config.Config, logger *zap.Logger) (*BridgeService, error) {
	redisClient, err := rediscommon.Connect(context.Background(), &cfg.Redis)
	if err != nil {
		return nil, err
	}

	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	ch := channel.NewRedisChannel(redisClient, channel.RedisOptions{
		KeyPrefix:    cfg.Channel.KeyPrefix,
		StreamMaxLen: cfg.Channel.StreamMaxLen,
		BlockTimeout: cfg.Channel.BlockTimeout,
		RetryBackoff: cfg.Channel.RetryBackoff,
		MaxBackoff:   cfg.Channel.MaxBackoff,
	}, logger)

	m := metrics.New(prometheus.NewRegistry())
	b := bridge.New(mqttClient, ch, bridge.Options{
		TelemetryTopic: cfg.Bridge.TelemetryTopic,
		CommandTopic:   cfg.Bridge.CommandTopic,
		TelemetryPath:  cfg.Dashboard.TelemetryPath,
		QoS:            cfg.MQTT.QoS,
		CommandTimeout: cfg.Bridge.CommandTimeout,
	}, m, logger)

	router := httpapi.NewRouter(logger)
	router.RegisterOpsRoutes(func(ctx context.Context) error {
		if !mqttClient.IsConnected() {
			return fmt.Errorf("mqtt disconnected")
		}
		return redisClient.Ping(ctx).Err()
	}, m.Handler())

	return &BridgeService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		bridge:      b,
		ops:         NewServer("greenlife-bridge", cfg.Bridge.OpsAddr, router, logger),
	}, nil
}

// Start runs the bridge until ctx is done.
func (s *BridgeService) Start(ctx context.Context) error {
	s.logger.Info("Starting bridge service")
	go func() {
		if err := s.ops.Start(); err != nil {
			s.logger.Error("Ops server failed", zap.Error(err))
		}
	}()
	if err := s.bridge.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}
	return nil
}

// Stop releases subscriptions and connections.
func (s *BridgeService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping bridge service")

	if err := s.bridge.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop bridge", zap.Error(err))
	}
	if err := s.ops.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop ops server", zap.Error(err))
	}
	s.mqttClient.Disconnect()
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close Redis", zap.Error(err))
	}

	s.logger.Info("Bridge service stopped")
	return nil
}
