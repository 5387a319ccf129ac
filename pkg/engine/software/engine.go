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

// Package software is an in-process rendering and tooling engine. It draws
// stack slices, multi-planar reconstructions and annotation overlays with
// gg into caller supplied surfaces.
package software

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/decode"
	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/imageid"
)

// Loader supplies decoded images. *decode.Cache implements it.
type Loader interface {
	LoadAndCache(ctx context.Context, id imageid.ID) (*decode.Record, error)
}

// Options configures an Engine.
type Options struct {
	Logger *zap.Logger
	// InitHook runs on every Init attempt; an error fails the attempt.
	InitHook func(ctx context.Context) error
}

// Engine implements engine.Engine. Thread-safe.
type Engine struct {
	loader   Loader
	logger   *zap.Logger
	initHook func(ctx context.Context) error

	mu          sync.RWMutex
	initialized bool
	initCalls   int
	contexts    map[string]*renderContext
	volumes     map[string]*volume
	toolGroups  map[string]*toolGroup

	annotations *annotationStore
}

type renderContext struct {
	name      string
	viewports map[string]*viewport
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine that loads images through loader.
func New(loader Loader, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		loader:      loader,
		logger:      opts.Logger,
		initHook:    opts.InitHook,
		contexts:    make(map[string]*renderContext),
		volumes:     make(map[string]*volume),
		toolGroups:  make(map[string]*toolGroup),
		annotations: newAnnotationStore(),
	}
}

// Init boots the engine. Calling it after success is a no-op.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	e.initCalls++
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if e.initHook != nil {
		if err := e.initHook(ctx); err != nil {
			return fmt.Errorf("engine init: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("engine init: %w", err)
	}

	e.mu.Lock()
	e.initialized = true
	e.mu.Unlock()
	e.logger.Info("Software engine initialized")
	return nil
}

// InitCalls returns how many times Init was invoked.
func (e *Engine) InitCalls() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initCalls
}

func (e *Engine) checkInit() error {
	if !e.initialized {
		return engine.ErrNotInitialized
	}
	return nil
}

// CreateContext registers a rendering context.
func (e *Engine) CreateContext(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkInit(); err != nil {
		return err
	}
	if _, ok := e.contexts[name]; ok {
		return fmt.Errorf("context %q: %w", name, engine.ErrAlreadyExists)
	}
	e.contexts[name] = &renderContext{name: name, viewports: make(map[string]*viewport)}
	e.logger.Debug("Context created", zap.String("context", name))
	return nil
}

// HasContext reports whether name is registered.
func (e *Engine) HasContext(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.contexts[name]
	return ok
}

// Contexts returns the registered context names, sorted.
func (e *Engine) Contexts() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.contexts))
	for name := range e.contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DestroyContext destroys a context and its viewports.
func (e *Engine) DestroyContext(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rc, ok := e.contexts[name]
	if !ok {
		return fmt.Errorf("context %q: %w", name, engine.ErrNotFound)
	}
	for _, vp := range rc.viewports {
		vp.destroy()
	}
	delete(e.contexts, name)
	e.logger.Debug("Context destroyed", zap.String("context", name))
	return nil
}

// EnableSurface creates a viewport.
func (e *Engine) EnableSurface(ctx context.Context, contextName string, surface engine.Surface, spec engine.ViewportSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if spec.ID == "" {
		return fmt.Errorf("viewport id is required")
	}
	if spec.Type == "" {
		spec.Type = engine.Stack
	}
	if spec.Orientation == "" {
		spec.Orientation = engine.Axial
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkInit(); err != nil {
		return err
	}
	rc, ok := e.contexts[contextName]
	if !ok {
		return fmt.Errorf("context %q: %w", contextName, engine.ErrNotFound)
	}
	if _, ok := rc.viewports[spec.ID]; ok {
		return fmt.Errorf("viewport %q: %w", spec.ID, engine.ErrAlreadyExists)
	}
	rc.viewports[spec.ID] = newViewport(e, contextName, surface, spec)
	e.logger.Debug("Viewport enabled",
		zap.String("context", contextName),
		zap.String("viewport", spec.ID),
		zap.String("type", string(spec.Type)))
	return nil
}

// DisableSurface removes a viewport.
func (e *Engine) DisableSurface(contextName, viewportID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rc, ok := e.contexts[contextName]
	if !ok {
		return fmt.Errorf("context %q: %w", contextName, engine.ErrNotFound)
	}
	vp, ok := rc.viewports[viewportID]
	if !ok {
		return fmt.Errorf("viewport %q: %w", viewportID, engine.ErrNotFound)
	}
	vp.destroy()
	delete(rc.viewports, viewportID)
	return nil
}

// Viewport returns a viewport.
func (e *Engine) Viewport(contextName, viewportID string) (engine.Viewport, error) {
	vp, err := e.viewport(contextName, viewportID)
	if err != nil {
		return nil, err
	}
	return vp, nil
}

func (e *Engine) viewport(contextName, viewportID string) (*viewport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rc, ok := e.contexts[contextName]
	if !ok {
		return nil, fmt.Errorf("context %q: %w", contextName, engine.ErrNotFound)
	}
	vp, ok := rc.viewports[viewportID]
	if !ok {
		return nil, fmt.Errorf("viewport %q: %w", viewportID, engine.ErrNotFound)
	}
	return vp, nil
}

// Viewports returns the viewports of a context ordered by id.
func (e *Engine) Viewports(contextName string) ([]engine.Viewport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rc, ok := e.contexts[contextName]
	if !ok {
		return nil, fmt.Errorf("context %q: %w", contextName, engine.ErrNotFound)
	}
	ids := make([]string, 0, len(rc.viewports))
	for id := range rc.viewports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]engine.Viewport, 0, len(ids))
	for _, id := range ids {
		out = append(out, rc.viewports[id])
	}
	return out, nil
}

// CreateVolume registers an unloaded volume.
func (e *Engine) CreateVolume(ctx context.Context, volumeID string, ids []imageid.ID) (engine.VolumeData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("volume %q: no images", volumeID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkInit(); err != nil {
		return nil, err
	}
	if _, ok := e.volumes[volumeID]; ok {
		return nil, fmt.Errorf("volume %q: %w", volumeID, engine.ErrAlreadyExists)
	}
	v := newVolume(volumeID, ids, e.loader)
	e.volumes[volumeID] = v
	return v, nil
}

// RemoveVolume drops a volume.
func (e *Engine) RemoveVolume(volumeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.volumes[volumeID]; !ok {
		return fmt.Errorf("volume %q: %w", volumeID, engine.ErrNotFound)
	}
	delete(e.volumes, volumeID)
	return nil
}

func (e *Engine) volume(volumeID string) (*volume, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.volumes[volumeID]
	if !ok {
		return nil, fmt.Errorf("volume %q: %w", volumeID, engine.ErrNotFound)
	}
	return v, nil
}

// Volumes returns the number of registered volumes.
func (e *Engine) Volumes() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.volumes)
}

// CreateToolGroup registers a tool group.
func (e *Engine) CreateToolGroup(id string) (engine.ToolGroup, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkInit(); err != nil {
		return nil, err
	}
	if _, ok := e.toolGroups[id]; ok {
		return nil, fmt.Errorf("tool group %q: %w", id, engine.ErrAlreadyExists)
	}
	tg := newToolGroup(id)
	e.toolGroups[id] = tg
	return tg, nil
}

// ToolGroup returns a tool group.
func (e *Engine) ToolGroup(id string) (engine.ToolGroup, error) {
	tg, err := e.toolGroup(id)
	if err != nil {
		return nil, err
	}
	return tg, nil
}

func (e *Engine) toolGroup(id string) (*toolGroup, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tg, ok := e.toolGroups[id]
	if !ok {
		return nil, fmt.Errorf("tool group %q: %w", id, engine.ErrNotFound)
	}
	return tg, nil
}

// DestroyToolGroup drops a tool group and its annotations.
func (e *Engine) DestroyToolGroup(id string) error {
	e.mu.Lock()
	if _, ok := e.toolGroups[id]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("tool group %q: %w", id, engine.ErrNotFound)
	}
	delete(e.toolGroups, id)
	e.mu.Unlock()

	e.annotations.dropGroup(id)
	return nil
}

// groupsOf returns the ids of tool groups bound to a viewport.
func (e *Engine) groupsOf(contextName, viewportID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []string
	for id, tg := range e.toolGroups {
		if tg.hasViewport(contextName, viewportID) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
