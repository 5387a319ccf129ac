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

package series

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/blob"
)

// DefaultDebounce is the quiet period after the last change in the watched
// directory before the series is rebuilt.
const DefaultDebounce = 500 * time.Millisecond

// WatcherConfig configures a directory watcher.
type WatcherConfig struct {
	Debounce time.Duration
	Logger   *zap.Logger
	// OnSeries receives every rebuilt series. The previous series is
	// destroyed after the callback returns.
	OnSeries func(*Series)
	// OnError receives rebuild failures, including ErrNoValidImages.
	OnError func(error)
}

// Watcher rebuilds a series whenever the files of one directory change.
type Watcher struct {
	dir     string
	builder *Builder
	watcher *fsnotify.Watcher
	config  WatcherConfig
	logger  *zap.Logger

	mu      sync.Mutex
	current *Series
	timer   *time.Timer
	closed  bool

	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
	stopMu  sync.Mutex
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, builder *Builder, config WatcherConfig) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		dir:     dir,
		builder: builder,
		watcher: fw,
		config:  config,
		logger:  config.Logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start builds the initial series and begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("Series watcher started",
		zap.String("directory", w.dir),
		zap.Duration("debounce", w.config.Debounce))

	w.rebuild()
	go w.watchLoop(ctx)
	return nil
}

// Current returns the most recently built series, or nil.
func (w *Watcher) Current() *Series {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops watching and destroys the current series.
func (w *Watcher) Stop() error {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	cur := w.current
	w.current = nil
	w.mu.Unlock()
	if cur != nil {
		cur.Destroy()
	}
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			w.logger.Info("Series watcher context cancelled")
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.debounce()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Series watcher error", zap.Error(err))
		}
	}
}

// debounce restarts the rebuild timer. The whole directory is one series,
// so a single timer covers every file.
func (w *Watcher) debounce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.config.Debounce, w.rebuild)
}

func (w *Watcher) rebuild() {
	files, err := ScanDir(w.dir)
	var s *Series
	if err == nil {
		s, err = w.builder.Build(files)
	}
	if err != nil {
		w.logger.Warn("Series rebuild failed", zap.String("directory", w.dir), zap.Error(err))
		if w.config.OnError != nil {
			w.config.OnError(err)
		}
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		s.Destroy()
		return
	}
	prev := w.current
	w.current = s
	w.mu.Unlock()

	w.logger.Info("Series rebuilt",
		zap.String("series", s.ID),
		zap.String("format", string(s.Format)),
		zap.Int("identifiers", s.Len()))
	if w.config.OnSeries != nil {
		w.config.OnSeries(s)
	}
	if prev != nil {
		prev.Destroy()
	}
}

// ScanDir opens every regular, non-hidden file directly inside dir.
func ScanDir(dir string) ([]*blob.RawFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var files []*blob.RawFile
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		f, err := blob.OpenRawFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		files = append(files, f)
	}
	return files, nil
}
