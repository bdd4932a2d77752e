package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"greenlife-monitor/internal/models"
)

const createFanCommandsTable = `
	CREATE TABLE IF NOT EXISTS fan_commands (
		command_id UUID PRIMARY KEY,
		identity   TEXT        NOT NULL,
		desired    BOOLEAN     NOT NULL,
		succeeded  BOOLEAN     NOT NULL,
		error      TEXT,
		issued_at  TIMESTAMPTZ NOT NULL
	)`

// CommandAuditRepository fan command audit trail
type CommandAuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCommandAuditRepository creates a new audit repository
func NewCommandAuditRepository(db *sql.DB, logger *zap.Logger) *CommandAuditRepository {
	return &CommandAuditRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the fan_commands table if it is missing.
func (r *CommandAuditRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createFanCommandsTable); err != nil {
		return fmt.Errorf("failed to create fan_commands: %w", err)
	}
	return nil
}

// Record inserts one command outcome.
func (r *CommandAuditRepository) Record(ctx context.Context, cmd *models.FanCommand) error {
	query := `
		INSERT INTO fan_commands (command_id, identity, desired, succeeded, error, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	var errText sql.NullString
	if cmd.Error != "" {
		errText = sql.NullString{String: cmd.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		cmd.CommandID.String(),
		cmd.Identity,
		cmd.Desired,
		cmd.Succeeded,
		errText,
		cmd.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record fan command: %w", err)
	}
	return nil
}

// ListRecent returns the latest commands issued by identity, newest first.
func (r *CommandAuditRepository) ListRecent(ctx context.Context, identity string, limit int) ([]models.FanCommand, error) {
	query := `
		SELECT command_id, identity, desired, succeeded, error, issued_at
		FROM fan_commands
		WHERE identity = $1
		ORDER BY issued_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fan commands: %w", err)
	}
	defer rows.Close()

	var commands []models.FanCommand
	for rows.Next() {
		var cmd models.FanCommand
		var errText sql.NullString
		if err := rows.Scan(&cmd.CommandID, &cmd.Identity, &cmd.Desired, &cmd.Succeeded, &errText, &cmd.IssuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fan command: %w", err)
		}
		cmd.Error = errText.String
		commands = append(commands, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fan commands: %w", err)
	}
	return commands, nil
}
