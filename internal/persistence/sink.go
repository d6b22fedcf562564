// Package persistence implements the gateway's fire-and-forget session
// sink: after a turn reaches a terminal event, it uploads any files the
// agent created in its working directory and writes a SessionRecord
// summarizing the turn, both to an object-store bucket. Failures here
// are logged and never surfaced to the caller — persistence is always
// best-effort relative to the turn's own result.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/willy3087/codex-gateway/internal/config"
	"github.com/willy3087/codex-gateway/internal/wire"
)

// Sink uploads turn artifacts to an object-store bucket. A Sink with no
// buckets and no DatabaseURL configured is valid and simply skips every
// Persist call,
// matching the reference implementation's "disabled if env var unset"
// behavior.
type Sink struct {
	client        *storage.Client
	filesBucket   string
	sessionBucket string
	db            *postgresStore
	logger        *slog.Logger
}

// NewSink builds a Sink from the gateway's persistence configuration.
// It lazily connects to the object store only when at least one bucket
// is configured, and to Postgres only when a DatabaseURL is set. Both
// backends may be active at once: SessionRecords are written to
// whichever are configured.
func NewSink(ctx context.Context, cfg config.PersistenceConfig, logger *slog.Logger) (*Sink, error) {
	s := &Sink{
		filesBucket:   cfg.FilesBucket,
		sessionBucket: cfg.SessionBucket,
		logger:        logger,
	}

	if cfg.DatabaseURL != "" {
		db, err := newPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.db = db
	}

	if s.filesBucket == "" && s.sessionBucket == "" {
		return s, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		if s.db != nil {
			_ = s.db.close()
		}
		return nil, fmt.Errorf("persistence: connect to object store: %w", err)
	}
	s.client = client
	return s, nil
}

// Persist uploads the turn's created files and writes its SessionRecord.
// It is meant to be called from its own goroutine by the caller; Persist
// itself never returns an error to the caller, only logs one.
func (s *Sink) Persist(ctx context.Context, record wire.SessionRecord, prompt string, workDir string) {
	record.Prompt = prompt

	if s.client != nil {
		created := s.uploadCreatedFiles(ctx, record.SessionID, workDir)
		record.CreatedFiles = created
	}

	if s.db != nil {
		if err := s.db.writeRecord(ctx, record); err != nil {
			s.logger.Error("persistence: write session record to postgres", "error", err, "session_id", record.SessionID)
		} else {
			s.logger.Info("persisted session record to postgres", "session_id", record.SessionID)
		}
	}

	if s.client == nil || s.sessionBucket == "" {
		if s.client == nil && s.db == nil {
			s.logger.Debug("persistence sink disabled, skipping", "session_id", record.SessionID)
		}
		return
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		s.logger.Error("persistence: marshal session record", "error", err)
		return
	}

	objectName := fmt.Sprintf("sessions/%s-%s.json", record.SessionID, record.Timestamp.Format(time.RFC3339))
	if err := s.upload(ctx, s.sessionBucket, objectName, data); err != nil {
		s.logger.Error("persistence: write session record", "error", err, "session_id", record.SessionID)
		return
	}
	s.logger.Info("persisted session record", "session_id", record.SessionID, "object", objectName)
}

// uploadCreatedFiles reads workDir (subdirectories are skipped) and
// uploads every file that is not a dotfile or a *.tmp file, returning
// the bucket object names it wrote.
// This mirrors the reference implementation's skip rule exactly.
func (s *Sink) uploadCreatedFiles(ctx context.Context, sessionID wire.SessionID, workDir string) []string {
	if s.filesBucket == "" || workDir == "" {
		return nil
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		s.logger.Debug("persistence: read working directory", "error", err, "dir", workDir)
		return nil
	}

	var uploaded []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(workDir, name))
		if err != nil {
			s.logger.Error("persistence: read created file", "error", err, "file", name)
			continue
		}

		objectName := fmt.Sprintf("files/%s/%s", sessionID, name)
		if err := s.upload(ctx, s.filesBucket, objectName, data); err != nil {
			s.logger.Error("persistence: upload created file", "error", err, "file", name)
			continue
		}
		uploaded = append(uploaded, objectName)
	}
	return uploaded
}

func (s *Sink) upload(ctx context.Context, bucket, object string, data []byte) error {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Close releases the underlying object-store client and Postgres pool,
// if either was opened.
func (s *Sink) Close() error {
	var err error
	if s.client != nil {
		err = s.client.Close()
	}
	if s.db != nil {
		if dbErr := s.db.close(); dbErr != nil && err == nil {
			err = dbErr
		}
	}
	return err
}

