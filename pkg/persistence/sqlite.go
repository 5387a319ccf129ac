// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/internal/sqlitedriver"
)

// SQLiteStore keeps annotation records in SQLite. Record data is stored
// zstd-compressed.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *zap.Logger
}

// OpenSQLite opens (creating if needed) the store at path and applies
// pending migrations. ":memory:" opens a private in-memory store.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlitedriver.Open(path)
	if err != nil {
		return nil, err
	}

	migrator, err := NewMigrator(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	applied, err := migrator.MigrateUp(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	logger.Info("Annotation store opened",
		zap.String("path", path),
		zap.Int("migrations_applied", applied),
		zap.Bool("encryption_supported", sqlitedriver.EncryptionSupported))
	return &SQLiteStore{db: db, path: path, encoder: encoder, decoder: decoder, logger: logger}, nil
}

// Create stores r under a new id.
func (s *SQLiteStore) Create(ctx context.Context, r Record) (Record, error) {
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	r.ID = uuid.NewString()
	r.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	compressed := s.encoder.EncodeAll(r.Data, nil)

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO annotations (id, study_id, user_id, type, data, data_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StudyID, r.UserID, r.Type, compressed, len(r.Data), r.CreatedAt.UnixMicro(),
	); err != nil {
		return Record{}, fmt.Errorf("failed to insert annotation: %w", err)
	}

	s.logger.Debug("Annotation stored",
		zap.String("id", r.ID),
		zap.String("study_id", r.StudyID),
		zap.Int("size", len(r.Data)),
		zap.Int("compressed_size", len(compressed)))
	return r, nil
}

// List returns the records of a study in insertion order.
func (s *SQLiteStore) List(ctx context.Context, studyID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, study_id, user_id, type, data, data_size, created_at
		 FROM annotations WHERE study_id = ? ORDER BY seq`, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []Record{}
	for rows.Next() {
		var (
			r          Record
			compressed []byte
			size       int
			created    int64
		)
		if err := rows.Scan(&r.ID, &r.StudyID, &r.UserID, &r.Type, &compressed, &size, &created); err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		data, err := s.decoder.DecodeAll(compressed, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress annotation %s: %w", r.ID, err)
		}
		r.Data = data
		r.CreatedAt = time.UnixMicro(created).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate annotations: %w", err)
	}
	return records, nil
}

// StoredBytes returns the raw and compressed payload totals.
func (s *SQLiteStore) StoredBytes(ctx context.Context) (raw, compressed int64, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(data_size), 0), COALESCE(SUM(LENGTH(data)), 0) FROM annotations",
	).Scan(&raw, &compressed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum annotation sizes: %w", err)
	}
	return raw, compressed, nil
}

// Backup writes a verified copy of the database next to it and returns the
// copy's path.
func (s *SQLiteStore) Backup(ctx context.Context) (string, error) {
	if s.path == ":memory:" {
		return "", fmt.Errorf("backup: in-memory store cannot be backed up")
	}
	backupPath := s.path + ".backup." + time.Now().Format("20060102T150405")
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", backupPath); err != nil {
		_ = os.Remove(backupPath)
		return "", fmt.Errorf("backup: vacuum into %q: %w", backupPath, err)
	}
	if err := VerifyBackup(backupPath); err != nil {
		_ = os.Remove(backupPath)
		return "", err
	}
	s.logger.Info("Annotation store backed up", zap.String("path", backupPath))
	return backupPath, nil
}

// VerifyBackup runs an integrity check on a database file.
func VerifyBackup(path string) error {
	db, err := sql.Open(sqlitedriver.DriverName, path)
	if err != nil {
		return fmt.Errorf("verify backup: open %q: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("verify backup: integrity check on %q: %w", path, err)
	}
	if result != "ok" {
		return fmt.Errorf("verify backup: integrity check failed on %q: %s", path, result)
	}
	return nil
}

// Close releases the database and codecs.
func (s *SQLiteStore) Close() error {
	_ = s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}
