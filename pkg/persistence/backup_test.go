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
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBackupper struct {
	path string
	err  error
}

func (f *fakeBackupper) Backup(context.Context) (string, error) {
	return f.path, f.err
}

func TestNewBackupSchedule_RejectsInvalidSpec(t *testing.T) {
	_, err := NewBackupSchedule("every tuesday", &fakeBackupper{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid backup schedule")
}

func TestBackupSchedule_RunNow(t *testing.T) {
	fake := &fakeBackupper{path: "/tmp/annotations.db.backup"}
	b, err := NewBackupSchedule("@daily", fake, zaptest.NewLogger(t))
	require.NoError(t, err)

	path, err := b.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fake.path, path)

	fake.err = errors.New("disk full")
	_, err = b.RunNow(context.Background())
	require.Error(t, err)

	runs, last, lastErr := b.Last()
	assert.Equal(t, 2, runs)
	assert.Empty(t, last, "a failed backup reports no path")
	assert.EqualError(t, lastErr, "disk full")

	fake.err = nil
	_, err = b.RunNow(context.Background())
	require.NoError(t, err)
	runs, last, lastErr = b.Last()
	assert.Equal(t, 3, runs)
	assert.Equal(t, fake.path, last)
	assert.NoError(t, lastErr)
}

func TestBackupSchedule_StartStop(t *testing.T) {
	b, err := NewBackupSchedule("@every 1h", &fakeBackupper{}, nil)
	require.NoError(t, err)

	b.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))

	runs, _, _ := b.Last()
	assert.Zero(t, runs)
}

func TestBackupSchedule_SQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "annotations.db"), nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	b, err := NewBackupSchedule("0 3 * * *", store, nil)
	require.NoError(t, err)

	path, err := b.RunNow(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)
	require.NoError(t, VerifyBackup(path))
}
