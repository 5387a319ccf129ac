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

package viewport

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/decode"
	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/engine/software"
	"github.com/teradata-labs/planeview/pkg/imageid"
	"github.com/teradata-labs/planeview/pkg/metadata"
	"github.com/teradata-labs/planeview/pkg/volume"
)

type memLoader struct {
	mu      sync.Mutex
	records map[string]*decode.Record
}

func newMemLoader() *memLoader {
	return &memLoader{records: make(map[string]*decode.Record)}
}

func (l *memLoader) LoadAndCache(_ context.Context, id imageid.ID) (*decode.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[id.String()]
	if !ok {
		return nil, &decode.Error{ID: id, Op: "resolve", Err: errors.New("missing")}
	}
	return r, nil
}

func (l *memLoader) Get(ctx context.Context, id imageid.ID) (metadata.SeriesMetadata, error) {
	r, err := l.LoadAndCache(ctx, id)
	if err != nil {
		return metadata.SeriesMetadata{}, err
	}
	return r.Metadata, nil
}

// add registers n slices. sizeOf returns the size of slice i; geometry
// controls whether the volume fields are set.
func (l *memLoader) add(prefix string, n int, geometry bool, sizeOf func(i int) int) []imageid.ID {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]imageid.ID, n)
	for i := range ids {
		size := sizeOf(i)
		id := imageid.MustNew(imageid.SchemeDICOMFile, fmt.Sprintf("%s-%d", prefix, i))
		md := metadata.SeriesMetadata{Rows: size, Columns: size, FrameOfReferenceUID: "for-" + prefix}
		if geometry {
			md.PixelSpacing = []float64{1, 1}
			md.Orientation = []float64{1, 0, 0, 0, 1, 0}
			md.Position = []float64{0, 0, float64(i)}
			md.SliceThickness = metadata.Float(1)
		}
		l.records[id.String()] = &decode.Record{
			ID:       id,
			Image:    image.NewGray(image.Rect(0, 0, size, size)),
			Metadata: md,
		}
		ids[i] = id
	}
	return ids
}

func square(n int) func(int) int { return func(int) int { return n } }

// recordingEngine logs teardown calls and injects failures.
type recordingEngine struct {
	engine.Engine

	mu          sync.Mutex
	calls       []string
	creates     int
	createDelay time.Duration
	destroyErr  error
}

func (r *recordingEngine) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *recordingEngine) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingEngine) Creates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

func (r *recordingEngine) CreateContext(ctx context.Context, name string) error {
	r.mu.Lock()
	r.creates++
	delay := r.createDelay
	r.mu.Unlock()
	time.Sleep(delay)
	return r.Engine.CreateContext(ctx, name)
}

func (r *recordingEngine) DestroyContext(name string) error {
	r.record("context:" + name)
	err := r.Engine.DestroyContext(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyErr != nil {
		return r.destroyErr
	}
	return err
}

func (r *recordingEngine) DestroyToolGroup(id string) error {
	r.record("toolgroup:" + id)
	return r.Engine.DestroyToolGroup(id)
}

func (r *recordingEngine) DisableSurface(contextName, viewportID string) error {
	r.record("viewport:" + viewportID)
	return r.Engine.DisableSurface(contextName, viewportID)
}

type fixture struct {
	soft    *software.Engine
	eng     *recordingEngine
	loader  *memLoader
	manager *Manager
}

func newFixture(t *testing.T, hook func(context.Context) error) *fixture {
	t.Helper()
	loader := newMemLoader()
	soft := software.New(loader, software.Options{Logger: zap.NewNop(), InitHook: hook})
	eng := &recordingEngine{Engine: soft}
	m := NewManager(eng, volume.NewDecider(loader, nil), Config{
		Bootstrap: BootstrapConfig{MaxAttempts: 3},
		Logger:    zap.NewNop(),
	})
	return &fixture{soft: soft, eng: eng, loader: loader, manager: m}
}

func (f *fixture) acquireWithViewport(t *testing.T, name, vpID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.manager.Acquire(ctx, name)
	require.NoError(t, err)
	spec := engine.ViewportSpec{ID: vpID, Type: engine.Stack}
	require.NoError(t, f.manager.EnableViewport(ctx, name, software.NewImageSurface(64, 64), spec))
}
