package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"greenlife-monitor/internal/metrics"
	"greenlife-monitor/internal/models"
)

// FanField telemetry document field holding the fan actuator state
const FanField = "fan"

// Writer is the write side of the remote document store.
type Writer interface {
	WritePartial(ctx context.Context, path string, fields map[string]interface{}) error
}

// Recorder persists fan command outcomes.
type Recorder interface {
	Record(ctx context.Context, cmd *models.FanCommand) error
}

// CommandError the fan write was not acknowledged
type CommandError struct {
	Desired bool
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("failed to set fan %s: %v", onOff(e.Desired), e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Notice user-facing command outcome
type Notice struct {
	Level   string `json:"level"` // "success" or "error"
	Title   string `json:"title"`
	Message string `json:"message"`
}

// NoticeFor returns the notice shown after a toggle to desired finished with err.
func NoticeFor(desired bool, err error) Notice {
	if err != nil {
		return Notice{Level: "error", Title: "Error", Message: "Failed to update fan status"}
	}
	return Notice{
		Level:   "success",
		Title:   "Fan turned " + onOff(desired),
		Message: "Fan status updated successfully",
	}
}

// DeriveAlert mirrors the buzzer of the latest reading.
func DeriveAlert(r models.Reading) models.AlertState {
	return models.AlertState{Active: r.BuzzerActive}
}

// Coordinator issues fan commands against the telemetry document.
type Coordinator struct {
	writer        Writer
	telemetryPath string
	recorder      Recorder // optional
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewCoordinator creates a coordinator. recorder and m may be nil.
func NewCoordinator(writer Writer, telemetryPath string, recorder Recorder, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		writer:        writer,
		telemetryPath: telemetryPath,
		recorder:      recorder,
		metrics:       m,
		logger:        logger,
	}
}

// ToggleFan writes {"fan": desired} and returns once the store acknowledged.
// Local state is left alone; the next telemetry push confirms the change.
func (c *Coordinator) ToggleFan(ctx context.Context, identity string, desired bool) error {
	start := time.Now()
	cmd := &models.FanCommand{
		CommandID: uuid.New(),
		Identity:  identity,
		Desired:   desired,
		IssuedAt:  start.UTC(),
	}

	err := c.writer.WritePartial(ctx, c.telemetryPath, map[string]interface{}{FanField: desired})
	c.metrics.Timing(start, "fan_write")

	if err != nil {
		c.logger.Warn("Fan command failed",
			zap.String("command_id", cmd.CommandID.String()),
			zap.Bool("desired", desired),
			zap.Error(err),
		)
		cmd.Error = err.Error()
		c.metrics.FanCommand("error")
		c.record(ctx, cmd)
		return &CommandError{Desired: desired, Err: err}
	}

	cmd.Succeeded = true
	c.metrics.FanCommand("ok")
	c.logger.Info("Fan command acknowledged",
		zap.String("command_id", cmd.CommandID.String()),
		zap.Bool("desired", desired),
	)
	c.record(ctx, cmd)
	return nil
}

func (c *Coordinator) record(ctx context.Context, cmd *models.FanCommand) {
	if c.recorder == nil {
		return
	}
	// audit outlives a cancelled caller context
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.recorder.Record(auditCtx, cmd); err != nil {
		c.logger.Error("Failed to record fan command",
			zap.String("command_id", cmd.CommandID.String()),
			zap.Error(err),
		)
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
