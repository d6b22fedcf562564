package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/willy3087/codex-gateway/internal/wire"
)

// postgresStore persists SessionRecords to Postgres when a DatabaseURL
// is configured, alongside the bucket-JSON path rather than instead of it.
type postgresStore struct {
	db *sql.DB
}

func newPostgresStore(dsn string) (*postgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &postgresStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: migrate postgres: %w", err)
	}
	return s, nil
}

func (s *postgresStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS session_records (
		session_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		status TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		exit_code INTEGER NOT NULL DEFAULT -1,
		execution_time_ms BIGINT NOT NULL DEFAULT 0,
		stdout JSONB NOT NULL DEFAULT '[]',
		stderr JSONB NOT NULL DEFAULT '[]',
		created_files JSONB NOT NULL DEFAULT '[]',
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, created_at)
	)`)
	return err
}

func (s *postgresStore) writeRecord(ctx context.Context, record wire.SessionRecord) error {
	files, err := json.Marshal(record.CreatedFiles)
	if err != nil {
		return fmt.Errorf("persistence: marshal created files: %w", err)
	}
	stdout, err := json.Marshal(record.Stdout)
	if err != nil {
		return fmt.Errorf("persistence: marshal stdout: %w", err)
	}
	stderr, err := json.Marshal(record.Stderr)
	if err != nil {
		return fmt.Errorf("persistence: marshal stderr: %w", err)
	}
	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("persistence: marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_records (session_id, conversation_id, status, prompt, exit_code, execution_time_ms, stdout, stderr, created_files, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		record.SessionID, record.ConversationID, record.Status, record.Prompt,
		record.ExitCode, record.ElapsedMS, stdout, stderr, files, meta, record.Timestamp,
	)
	return err
}

func (s *postgresStore) close() error {
	return s.db.Close()
}
