// Package runlog persists stage attempt records to Postgres so run history
// survives the process. It is an optional sink: the pipeline runs fine
// without a database, and recording failures never fail a run.
package runlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-labs/meridian-go/internal/pipeline"
)

// Schema is the DDL for the stage attempt table. EnsureSchema applies it on
// startup; it is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS stage_attempts (
	attempt_id       BIGSERIAL PRIMARY KEY,
	run_id           TEXT        NOT NULL,
	stage            TEXT        NOT NULL,
	attempt          INT         NOT NULL,
	status           TEXT        NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	duration_ms      BIGINT      NOT NULL,
	error_message    TEXT,
	integrity_sha256 CHAR(64)    NOT NULL
);
CREATE INDEX IF NOT EXISTS stage_attempts_run_id_idx ON stage_attempts (run_id);
`

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Log records stage attempts into Postgres. It implements pipeline.Recorder.
type Log struct {
	db Execer
}

func New(db Execer) (*Log, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Log{db: db}, nil
}

// EnsureSchema creates the stage attempt table when it does not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure runlog schema: %w", err)
	}
	return nil
}

// RecordAttempt inserts one attempt row. Each row carries a content hash so
// tampering with stored history is detectable.
func (l *Log) RecordAttempt(ctx context.Context, record pipeline.AttemptRecord) error {
	if strings.TrimSpace(record.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(record.Stage) == "" {
		return errors.New("stage is required")
	}
	if strings.TrimSpace(record.Status) == "" {
		return errors.New("status is required")
	}

	integrity, err := ComputeIntegritySHA256(record)
	if err != nil {
		return err
	}

	var errorMessage sql.NullString
	if strings.TrimSpace(record.ErrorMessage) != "" {
		errorMessage = sql.NullString{String: record.ErrorMessage, Valid: true}
	}

	_, err = l.db.ExecContext(
		ctx,
		`INSERT INTO stage_attempts (
			run_id,
			stage,
			attempt,
			status,
			started_at,
			duration_ms,
			error_message,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		record.RunID,
		record.Stage,
		record.Attempt,
		record.Status,
		record.StartedAt.UTC(),
		record.DurationMs,
		errorMessage,
		integrity,
	)
	if err != nil {
		return fmt.Errorf("insert stage attempt: %w", err)
	}
	return nil
}

// ComputeIntegritySHA256 hashes the attempt's canonical JSON form.
func ComputeIntegritySHA256(record pipeline.AttemptRecord) (string, error) {
	type integrityInput struct {
		RunID        string    `json:"run_id"`
		Stage        string    `json:"stage"`
		Attempt      int       `json:"attempt"`
		Status       string    `json:"status"`
		StartedAt    time.Time `json:"started_at"`
		DurationMs   int64     `json:"duration_ms"`
		ErrorMessage string    `json:"error_message,omitempty"`
	}

	blob, err := json.Marshal(integrityInput{
		RunID:        record.RunID,
		Stage:        record.Stage,
		Attempt:      record.Attempt,
		Status:       record.Status,
		StartedAt:    record.StartedAt.UTC(),
		DurationMs:   record.DurationMs,
		ErrorMessage: record.ErrorMessage,
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
