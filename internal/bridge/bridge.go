package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqttcommon "greenlife-monitor/common/mqtt"
	"greenlife-monitor/internal/channel"
	"greenlife-monitor/internal/metrics"
)

const writeTimeout = 5 * time.Second

// Broker the MQTT operations the bridge needs
type Broker interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Unsubscribe(topics ...string) error
}

// Store the telemetry document operations the bridge needs
type Store interface {
	Subscribe(path string, h channel.Handler) (channel.Subscription, error)
	Update(ctx context.Context, path string, fn channel.UpdateFunc) error
}

// Options bridge settings
type Options struct {
	TelemetryTopic string
	CommandTopic   string
	TelemetryPath  string
	QoS            byte
	CommandTimeout time.Duration
}

// DeviceReport bed device telemetry payload
type DeviceReport struct {
	Pulse     float64 `json:"pulse"`
	Temp      float64 `json:"temp"`
	Hum       float64 `json:"hum"`
	Fan       bool    `json:"fan"`
	Buzzer    bool    `json:"buzzer"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// DeviceCommand payload sent to the device command topic
type DeviceCommand struct {
	CommandID string `json:"command_id"`
	Fan       bool   `json:"fan"`
	IssuedAt  string `json:"issued_at"`
}

type pendingCommand struct {
	id       string
	desired  bool
	deadline time.Time
}

// Bridge relays device telemetry into the telemetry document and fan intent
// from the document back to the device.
type Bridge struct {
	broker  Broker
	channel Store
	opts    Options
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	deviceFan *bool
	intent    *bool // last document fan value the bridge saw or wrote
	pending   *pendingCommand
	sub       channel.Subscription
}

// New creates a bridge.
func New(broker Broker, ch Store, opts Options, m *metrics.Metrics, logger *zap.Logger) *Bridge {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 10 * time.Second
	}
	return &Bridge{
		broker:  broker,
		channel: ch,
		opts:    opts,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Start subscribes to both sides and blocks until ctx is done.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.broker.Subscribe(b.opts.TelemetryTopic, b.opts.QoS, b.handleTelemetry); err != nil {
		return fmt.Errorf("failed to subscribe to telemetry topic: %w", err)
	}

	sub, err := b.channel.Subscribe(b.opts.TelemetryPath, channel.HandlerFuncs{
		Snapshot: b.handleIntent,
		Error: func(err error) {
			b.logger.Error("Telemetry document subscription failed", zap.Error(err))
		},
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", b.opts.TelemetryPath, err)
	}
	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()

	b.logger.Info("Device bridge started",
		zap.String("telemetry_topic", b.opts.TelemetryTopic),
		zap.String("command_topic", b.opts.CommandTopic),
		zap.String("path", b.opts.TelemetryPath),
	)

	<-ctx.Done()
	return nil
}

// Stop releases both subscriptions.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()
	if sub != nil {
		sub.Close()
	}

	if err := b.broker.Unsubscribe(b.opts.TelemetryTopic); err != nil {
		b.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	b.logger.Info("Device bridge stopped")
	return nil
}

func (b *Bridge) handleTelemetry(topic string, payload []byte) error {
	var report DeviceReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("failed to unmarshal device report: %w", err)
	}
	if report.Timestamp == "" {
		report.Timestamp = b.now().UTC().Format(time.RFC3339)
	}

	base := map[string]interface{}{
		"pulse":     report.Pulse,
		"temp":      report.Temp,
		"hum":       report.Hum,
		"buzzer":    report.Buzzer,
		"timestamp": report.Timestamp,
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	start := b.now()
	var wroteFan bool
	err := b.channel.Update(ctx, b.opts.TelemetryPath, func(current channel.Snapshot) (map[string]interface{}, error) {
		fields := make(map[string]interface{}, len(base)+1)
		for k, v := range base {
			fields[k] = v
		}
		wroteFan = b.acceptDeviceFan(report.Fan, documentFan(current))
		if wroteFan {
			fields["fan"] = report.Fan
		}
		return fields, nil
	})
	if err != nil {
		return fmt.Errorf("failed to store device report: %w", err)
	}
	if wroteFan {
		b.mu.Lock()
		fan := report.Fan
		b.intent = &fan
		b.mu.Unlock()
	}
	b.metrics.Timing(start, "bridge_uplink")
	b.metrics.BridgeMessage("uplink")

	b.logger.Debug("Relayed device report",
		zap.String("topic", topic),
		zap.Float64("pulse", report.Pulse),
		zap.Bool("fan", report.Fan),
	)
	return nil
}

// acceptDeviceFan records the device's fan state and reports whether it may
// overwrite the document. A pending command masks stale reports until the
// device confirms it or it times out. A document fan the bridge has not yet
// seen is an unrelayed intent and is never overwritten.
func (b *Bridge) acceptDeviceFan(fan bool, docFan *bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.deviceFan = &fan
	if docFan != nil && b.intent != nil && *docFan != *b.intent {
		return false
	}
	if b.pending == nil {
		return true
	}
	if b.pending.desired == fan {
		b.logger.Info("Device confirmed fan command", zap.String("command_id", b.pending.id))
		b.pending = nil
		return true
	}
	if b.now().After(b.pending.deadline) {
		b.logger.Warn("Device did not confirm fan command",
			zap.String("command_id", b.pending.id),
			zap.Bool("desired", b.pending.desired),
		)
		b.pending = nil
		return true
	}
	return false
}

func (b *Bridge) handleIntent(snap channel.Snapshot) {
	if !snap.Exists() {
		return
	}
	var doc struct {
		Fan *bool `json:"fan"`
	}
	if err := snap.Decode(&doc); err != nil {
		b.logger.Warn("Undecodable telemetry document", zap.Error(err))
		return
	}
	if doc.Fan == nil {
		return
	}
	desired := *doc.Fan

	b.mu.Lock()
	b.intent = &desired
	b.mu.Unlock()

	cmd, ok := b.commandFor(desired)
	if !ok {
		return
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		b.logger.Error("Failed to encode device command", zap.Error(err))
		return
	}
	if err := b.broker.Publish(b.opts.CommandTopic, b.opts.QoS, false, payload); err != nil {
		b.logger.Error("Failed to relay fan command",
			zap.String("command_id", cmd.CommandID),
			zap.Error(err),
		)
		b.mu.Lock()
		if b.pending != nil && b.pending.id == cmd.CommandID {
			b.pending = nil
		}
		b.mu.Unlock()
		return
	}
	b.metrics.BridgeMessage("downlink")
	b.logger.Info("Relayed fan command",
		zap.String("command_id", cmd.CommandID),
		zap.Bool("fan", desired),
	)
}

// commandFor decides whether desired needs relaying and marks it pending.
func (b *Bridge) commandFor(desired bool) (DeviceCommand, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.pending != nil && b.pending.desired == desired && now.Before(b.pending.deadline) {
		return DeviceCommand{}, false
	}
	if b.pending == nil && b.deviceFan != nil && *b.deviceFan == desired {
		return DeviceCommand{}, false
	}

	id := uuid.NewString()
	b.pending = &pendingCommand{
		id:       id,
		desired:  desired,
		deadline: now.Add(b.opts.CommandTimeout),
	}
	return DeviceCommand{
		CommandID: id,
		Fan:       desired,
		IssuedAt:  now.UTC().Format(time.RFC3339),
	}, true
}

func documentFan(snap channel.Snapshot) *bool {
	raw, ok := snap.Fields["fan"]
	if !ok {
		return nil
	}
	var fan bool
	if err := json.Unmarshal(raw, &fan); err != nil {
		return nil
	}
	return &fan
}
