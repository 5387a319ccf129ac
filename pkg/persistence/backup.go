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
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Backupper writes a copy of a store and returns its path.
type Backupper interface {
	Backup(ctx context.Context) (string, error)
}

// BackupSchedule runs store backups on a standard 5-field cron schedule
// ("0 3 * * *", "@daily", "@every 6h").
type BackupSchedule struct {
	spec   string
	cron   *cron.Cron
	store  Backupper
	logger *zap.Logger

	mu      sync.Mutex
	runs    int
	last    string
	lastErr error
}

// NewBackupSchedule validates spec and registers the backup job. The
// schedule does not fire until Start.
func NewBackupSchedule(spec string, store Backupper, logger *zap.Logger) (*BackupSchedule, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}
	b := &BackupSchedule{
		spec:   spec,
		cron:   cron.New(),
		store:  store,
		logger: logger,
	}
	if _, err := b.cron.AddFunc(spec, func() {
		_, _ = b.RunNow(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("failed to register backup job: %w", err)
	}
	return b, nil
}

// Start begins firing the schedule.
func (b *BackupSchedule) Start() {
	b.cron.Start()
	b.logger.Info("Backup schedule started", zap.String("schedule", b.spec))
}

// Stop stops the schedule and waits for a running backup, or for ctx.
func (b *BackupSchedule) Stop(ctx context.Context) error {
	done := b.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow performs one backup immediately.
func (b *BackupSchedule) RunNow(ctx context.Context) (string, error) {
	path, err := b.store.Backup(ctx)

	if err != nil {
		path = ""
	}
	b.mu.Lock()
	b.runs++
	b.last, b.lastErr = path, err
	b.mu.Unlock()

	if err != nil {
		b.logger.Warn("Scheduled backup failed", zap.Error(err))
		return "", err
	}
	b.logger.Info("Scheduled backup written", zap.String("path", path))
	return path, nil
}

// Last returns the number of backups attempted and the outcome of the most
// recent one. The path is empty when that attempt failed.
func (b *BackupSchedule) Last() (runs int, path string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runs, b.last, b.lastErr
}
