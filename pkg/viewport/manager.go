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

// Package viewport owns the lifecycle of rendering contexts, their viewports,
// volumes and tool groups on top of an engine.Engine. Contexts are reference
// counted by name; the last release tears down tool groups, then viewports
// and volumes, then the context itself.
package viewport

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/imageid"
	"github.com/teradata-labs/planeview/pkg/outcome"
	"github.com/teradata-labs/planeview/pkg/volume"
)

// Decider explains whether identifiers can be loaded as a volume.
type Decider interface {
	Explain(ctx context.Context, ids []imageid.ID) volume.Decision
}

// Config configures a Manager.
type Config struct {
	Bootstrap BootstrapConfig
	Logger    *zap.Logger
}

// ReleaseOptions modifies Release.
type ReleaseOptions struct {
	// Force tears the context down regardless of its refcount and reports
	// teardown failures as an ignored outcome instead of an error.
	Force bool
}

type contextState int

const (
	stateInitializing contextState = iota
	stateReady
	stateDestroying
)

func (s contextState) String() string {
	switch s {
	case stateInitializing:
		return "initializing"
	case stateReady:
		return "ready"
	case stateDestroying:
		return "destroying"
	default:
		return "unknown"
	}
}

type boundViewport struct {
	surface engine.Surface
	spec    engine.ViewportSpec
}

type entry struct {
	name    string
	state   contextState
	refs    int
	created time.Time
	// settled is closed when the initializing or destroying phase ends.
	settled chan struct{}
	initErr error

	// vpMu serializes viewport creation and mode switches on this context.
	vpMu       sync.Mutex
	viewports  map[string]*boundViewport
	order      []string
	volumes    map[string]string // viewport id -> volume id
	toolGroups []string
}

// Context is a handle to an acquired rendering context.
type Context struct {
	name string
	m    *Manager
}

// Name returns the context name.
func (c *Context) Name() string { return c.name }

// Refs returns the current refcount, zero once destroyed.
func (c *Context) Refs() int {
	info, ok := c.m.Lookup(c.name)
	if !ok {
		return 0
	}
	return info.Refs
}

// ContextInfo describes a held context.
type ContextInfo struct {
	Name       string    `json:"name" yaml:"name"`
	State      string    `json:"state" yaml:"state"`
	Refs       int       `json:"refs" yaml:"refs"`
	Viewports  []string  `json:"viewports" yaml:"viewports"`
	ToolGroups []string  `json:"tool_groups" yaml:"tool_groups"`
	Created    time.Time `json:"created" yaml:"created"`
}

// Stats counts lifecycle events.
type Stats struct {
	Contexts        int `json:"contexts" yaml:"contexts"`
	Created         int `json:"created" yaml:"created"`
	Destroyed       int `json:"destroyed" yaml:"destroyed"`
	StaleReplaced   int `json:"stale_replaced" yaml:"stale_replaced"`
	VolumeLoads     int `json:"volume_loads" yaml:"volume_loads"`
	StackLoads      int `json:"stack_loads" yaml:"stack_loads"`
	VolumeFallbacks int `json:"volume_fallbacks" yaml:"volume_fallbacks"`
}

// Manager is the viewport lifecycle manager. It is safe for concurrent use.
type Manager struct {
	engine  engine.Engine
	decider Decider
	boot    *Bootstrap
	logger  *zap.Logger

	mu         sync.Mutex
	contexts   map[string]*entry
	toolGroups map[string]string // tool group id -> context name
	stats      Stats
}

// NewManager creates a manager over eng. Engine initialization is deferred
// to the first Acquire.
func NewManager(eng engine.Engine, decider Decider, cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Bootstrap == (BootstrapConfig{}) {
		cfg.Bootstrap = DefaultBootstrapConfig()
	}
	return &Manager{
		engine:     eng,
		decider:    decider,
		boot:       NewBootstrap(eng.Init, cfg.Bootstrap, logger.Named("bootstrap")),
		logger:     logger,
		contexts:   make(map[string]*entry),
		toolGroups: make(map[string]string),
	}
}

// Engine returns the managed engine.
func (m *Manager) Engine() engine.Engine { return m.engine }

// Bootstrap returns the engine bootstrap.
func (m *Manager) Bootstrap() *Bootstrap { return m.boot }

// ResetBootstrap re-arms engine initialization after exhaustion.
func (m *Manager) ResetBootstrap() { m.boot.Reset() }

// Acquire returns the context called name, creating it on first use, and
// takes a reference on it. Concurrent first acquires create the engine
// context once. An engine context of the same name that the manager does
// not hold is stale and is destroyed before the new one is created.
func (m *Manager) Acquire(ctx context.Context, name string) (*Context, error) {
	if name == "" {
		return nil, errors.New("context name is required")
	}
	if err := m.boot.Ensure(ctx); err != nil {
		return nil, err
	}

	for {
		m.mu.Lock()
		e, ok := m.contexts[name]
		if !ok {
			e = &entry{
				name:      name,
				state:     stateInitializing,
				refs:      1,
				created:   time.Now(),
				settled:   make(chan struct{}),
				viewports: make(map[string]*boundViewport),
				volumes:   make(map[string]string),
			}
			m.contexts[name] = e
			m.mu.Unlock()
			return m.create(ctx, e)
		}
		if e.state == stateReady {
			e.refs++
			refs := e.refs
			m.mu.Unlock()
			m.logger.Debug("Context acquired", zap.String("context", name), zap.Int("refs", refs))
			return &Context{name: name, m: m}, nil
		}
		settled := e.settled
		m.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.initErr != nil {
			return nil, e.initErr
		}
	}
}

func (m *Manager) create(ctx context.Context, e *entry) (*Context, error) {
	stale := m.engine.HasContext(e.name)
	if stale {
		m.logger.Warn("Replacing stale engine context", zap.String("context", e.name))
		if err := m.engine.DestroyContext(e.name); err != nil && !errors.Is(err, engine.ErrNotFound) {
			m.logger.Warn("Failed to destroy stale context", zap.String("context", e.name), zap.Error(err))
		}
	}

	err := m.engine.CreateContext(ctx, e.name)

	m.mu.Lock()
	defer m.mu.Unlock()
	if stale {
		m.stats.StaleReplaced++
	}
	if err != nil {
		e.initErr = fmt.Errorf("create context %q: %w", e.name, err)
		if m.contexts[e.name] == e {
			delete(m.contexts, e.name)
		}
		close(e.settled)
		m.logger.Error("Failed to create context", zap.String("context", e.name), zap.Error(err))
		return nil, e.initErr
	}
	e.state = stateReady
	m.stats.Created++
	close(e.settled)
	m.logger.Info("Context created", zap.String("context", e.name))
	return &Context{name: e.name, m: m}, nil
}

// Release drops a reference on name. At refcount zero, or with Force, the
// context is torn down: tools are disabled and tool groups destroyed, then
// viewports and volumes removed, then the context destroyed. Releasing an
// unknown name is ignored. Failures to disable tools or to remove something
// already gone are ignored; other teardown failures are returned unless Force.
func (m *Manager) Release(ctx context.Context, name string, opts ReleaseOptions) (outcome.Outcome, error) {
	m.mu.Lock()
	e, ok := m.contexts[name]
	if !ok || e.state != stateReady {
		m.mu.Unlock()
		m.logger.Debug("Release of unknown context ignored", zap.String("context", name))
		return outcome.Ignore(fmt.Errorf("context %q: %w", name, ErrNotFound)), nil
	}
	e.refs--
	if e.refs > 0 && !opts.Force {
		refs := e.refs
		m.mu.Unlock()
		m.logger.Debug("Context released", zap.String("context", name), zap.Int("refs", refs))
		return outcome.Ok(), nil
	}
	e.state = stateDestroying
	e.settled = make(chan struct{})
	m.mu.Unlock()

	res, err := m.teardown(ctx, e)

	m.mu.Lock()
	for _, id := range e.toolGroups {
		delete(m.toolGroups, id)
	}
	delete(m.contexts, name)
	m.stats.Destroyed++
	close(e.settled)
	m.mu.Unlock()

	m.logger.Info("Context destroyed",
		zap.String("context", name),
		zap.Bool("force", opts.Force),
		zap.Stringer("outcome", res),
		zap.Error(err))

	if err != nil {
		if opts.Force {
			return outcome.Merge(res, outcome.Ignore(err)), nil
		}
		return res, err
	}
	return res, nil
}

func (m *Manager) teardown(ctx context.Context, e *entry) (outcome.Outcome, error) {
	e.vpMu.Lock()
	defer e.vpMu.Unlock()

	var (
		ignored []outcome.Outcome
		errs    []error
	)
	absorb := func(err error) {
		if err == nil {
			return
		}
		if errors.Is(err, engine.ErrNotFound) {
			ignored = append(ignored, outcome.Ignore(err))
			return
		}
		errs = append(errs, err)
	}

	m.mu.Lock()
	groups := slices.Clone(e.toolGroups)
	order := slices.Clone(e.order)
	volumes := maps.Clone(e.volumes)
	m.mu.Unlock()

	for _, id := range groups {
		tg, err := m.engine.ToolGroup(id)
		if err != nil {
			absorb(fmt.Errorf("tool group %q: %w", id, err))
			continue
		}
		for _, tool := range tg.Tools() {
			if err := tg.SetToolDisabled(tool); err != nil {
				m.logger.Warn("Failed to disable tool",
					zap.String("tool_group", id),
					zap.String("tool", tool),
					zap.Error(err))
				ignored = append(ignored, outcome.Ignore(fmt.Errorf("disable %s in %q: %w", tool, id, err)))
			}
		}
		absorb(wrapf(m.engine.DestroyToolGroup(id), "destroy tool group %q", id))
	}

	removed := make(map[string]bool, len(volumes))
	for _, vpID := range order {
		absorb(wrapf(m.engine.DisableSurface(e.name, vpID), "disable viewport %q", vpID))
		if volID, ok := volumes[vpID]; ok && !removed[volID] {
			removed[volID] = true
			absorb(wrapf(m.engine.RemoveVolume(volID), "remove volume %q", volID))
		}
	}
	m.mu.Lock()
	e.order = nil
	clear(e.viewports)
	clear(e.volumes)
	m.mu.Unlock()

	absorb(wrapf(m.engine.DestroyContext(e.name), "destroy context %q", e.name))

	if err := ctx.Err(); err != nil {
		m.logger.Debug("Teardown finished after cancellation", zap.String("context", e.name))
	}
	return outcome.Merge(ignored...), errors.Join(errs...)
}

func wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ready returns the entry for a ready context.
func (m *Manager) ready(name string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.contexts[name]
	if !ok || e.state != stateReady {
		return nil, fmt.Errorf("context %q: %w", name, ErrNotFound)
	}
	return e, nil
}

// EnableViewport creates a viewport on the context bound to surface.
// Creation is serialized per context.
func (m *Manager) EnableViewport(ctx context.Context, name string, surface engine.Surface, spec engine.ViewportSpec) error {
	e, err := m.ready(name)
	if err != nil {
		return err
	}
	e.vpMu.Lock()
	defer e.vpMu.Unlock()

	if err := m.engine.EnableSurface(ctx, name, surface, spec); err != nil {
		return fmt.Errorf("enable viewport %q on %q: %w", spec.ID, name, err)
	}
	m.mu.Lock()
	if _, ok := e.viewports[spec.ID]; !ok {
		e.order = append(e.order, spec.ID)
	}
	e.viewports[spec.ID] = &boundViewport{surface: surface, spec: spec}
	m.mu.Unlock()

	m.logger.Debug("Viewport enabled",
		zap.String("context", name),
		zap.String("viewport", spec.ID),
		zap.String("type", string(spec.Type)),
		zap.String("orientation", string(spec.Orientation)))
	return nil
}

// Resize resizes a viewport. A context or viewport that is already gone is
// ignored.
func (m *Manager) Resize(name, viewportID string) outcome.Outcome {
	if _, err := m.ready(name); err != nil {
		m.logger.Debug("Resize on missing context ignored", zap.String("context", name))
		return outcome.Ignore(err)
	}
	vp, err := m.engine.Viewport(name, viewportID)
	if err != nil {
		m.logger.Debug("Resize on missing viewport ignored",
			zap.String("context", name),
			zap.String("viewport", viewportID))
		return outcome.Ignore(err)
	}
	if err := vp.Resize(); err != nil {
		m.logger.Warn("Resize failed", zap.String("viewport", viewportID), zap.Error(err))
		return outcome.Ignore(err)
	}
	return outcome.Ok()
}

// DestroyViewport removes one viewport, and its volume unless another
// viewport still shows it. It is idempotent.
func (m *Manager) DestroyViewport(name, viewportID string) outcome.Outcome {
	e, err := m.ready(name)
	if err != nil {
		return outcome.Ignore(err)
	}
	e.vpMu.Lock()
	defer e.vpMu.Unlock()

	m.mu.Lock()
	groups := slices.Clone(e.toolGroups)
	volID, hasVolume := e.volumes[viewportID]
	delete(e.volumes, viewportID)
	hasVolume = hasVolume && !volumeInUse(e, volID)
	delete(e.viewports, viewportID)
	e.order = slices.DeleteFunc(e.order, func(id string) bool { return id == viewportID })
	m.mu.Unlock()

	var results []outcome.Outcome
	for _, id := range groups {
		if tg, err := m.engine.ToolGroup(id); err == nil {
			if err := tg.RemoveViewport(name, viewportID); err != nil && !errors.Is(err, engine.ErrNotFound) {
				results = append(results, outcome.Ignore(err))
			}
		}
	}
	results = append(results, outcome.From(m.engine.DisableSurface(name, viewportID)))
	if hasVolume {
		results = append(results, outcome.From(m.engine.RemoveVolume(volID)))
	}
	res := outcome.Merge(results...)
	if !res.Applied() {
		m.logger.Debug("Viewport teardown absorbed errors",
			zap.String("context", name),
			zap.String("viewport", viewportID),
			zap.Stringer("outcome", res))
	}
	return res
}

// CreateToolGroup creates a tool group owned by context name, adds tools and
// binds the given viewports, or every viewport of the context when none are
// given. The first tool is made active.
func (m *Manager) CreateToolGroup(name, toolGroupID string, tools []string, viewportIDs ...string) (engine.ToolGroup, error) {
	e, err := m.ready(name)
	if err != nil {
		return nil, err
	}
	tg, err := m.engine.CreateToolGroup(toolGroupID)
	if err != nil {
		return nil, fmt.Errorf("create tool group %q: %w", toolGroupID, err)
	}

	m.mu.Lock()
	e.toolGroups = append(e.toolGroups, toolGroupID)
	m.toolGroups[toolGroupID] = name
	if len(viewportIDs) == 0 {
		viewportIDs = slices.Clone(e.order)
	}
	m.mu.Unlock()

	for _, tool := range tools {
		if err := tg.AddTool(tool); err != nil {
			return tg, fmt.Errorf("add tool %s: %w", tool, err)
		}
	}
	for _, vpID := range viewportIDs {
		if err := tg.AddViewport(name, vpID); err != nil {
			return tg, fmt.Errorf("bind viewport %q: %w", vpID, err)
		}
	}
	if len(tools) > 0 {
		if err := tg.SetToolActive(tools[0]); err != nil {
			return tg, fmt.Errorf("activate %s: %w", tools[0], err)
		}
	}
	m.logger.Debug("Tool group created",
		zap.String("context", name),
		zap.String("tool_group", toolGroupID),
		zap.Strings("tools", tools),
		zap.Strings("viewports", viewportIDs))
	return tg, nil
}

// SetActiveTool makes tool the single active tool of a group.
func (m *Manager) SetActiveTool(toolGroupID, tool string) error {
	m.mu.Lock()
	_, ok := m.toolGroups[toolGroupID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("tool group %q: %w", toolGroupID, ErrNotFound)
	}
	tg, err := m.engine.ToolGroup(toolGroupID)
	if err != nil {
		return err
	}
	return tg.SetToolActive(tool)
}

// DestroyToolGroup disables the tools of a group and destroys it while its
// context stays alive. An unknown or already destroyed group is ignored.
func (m *Manager) DestroyToolGroup(toolGroupID string) outcome.Outcome {
	m.mu.Lock()
	name, ok := m.toolGroups[toolGroupID]
	if ok {
		delete(m.toolGroups, toolGroupID)
		if e, held := m.contexts[name]; held {
			e.toolGroups = slices.DeleteFunc(e.toolGroups, func(id string) bool { return id == toolGroupID })
		}
	}
	m.mu.Unlock()
	if !ok {
		return outcome.Ignore(fmt.Errorf("tool group %q: %w", toolGroupID, ErrNotFound))
	}

	tg, err := m.engine.ToolGroup(toolGroupID)
	if err != nil {
		return outcome.Ignore(err)
	}
	var results []outcome.Outcome
	for _, tool := range tg.Tools() {
		if err := tg.SetToolDisabled(tool); err != nil {
			results = append(results, outcome.Ignore(err))
		}
	}
	results = append(results, outcome.From(m.engine.DestroyToolGroup(toolGroupID)))
	res := outcome.Merge(results...)
	m.logger.Debug("Tool group destroyed",
		zap.String("context", name),
		zap.String("tool_group", toolGroupID),
		zap.Stringer("outcome", res))
	return res
}

// ToolGroupsOf returns the tool group ids owned by context name.
func (m *Manager) ToolGroupsOf(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.contexts[name]
	if !ok {
		return nil
	}
	return slices.Clone(e.toolGroups)
}

// ContextOf returns the context owning a tool group.
func (m *Manager) ContextOf(toolGroupID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.toolGroups[toolGroupID]
	return name, ok
}

// Viewports returns the viewport ids of context name in creation order.
func (m *Manager) Viewports(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.contexts[name]
	if !ok {
		return nil
	}
	return slices.Clone(e.order)
}

// Lookup describes context name.
func (m *Manager) Lookup(name string) (ContextInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.contexts[name]
	if !ok {
		return ContextInfo{}, false
	}
	return ContextInfo{
		Name:       e.name,
		State:      e.state.String(),
		Refs:       e.refs,
		Viewports:  slices.Clone(e.order),
		ToolGroups: slices.Clone(e.toolGroups),
		Created:    e.created,
	}, true
}

// Contexts returns the names of held contexts, sorted.
func (m *Manager) Contexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.contexts))
	for name := range m.contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Stats returns lifecycle counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Contexts = len(m.contexts)
	return s
}

// Shutdown force-releases every context.
func (m *Manager) Shutdown(ctx context.Context) outcome.Outcome {
	var results []outcome.Outcome
	for _, name := range m.Contexts() {
		res, _ := m.Release(ctx, name, ReleaseOptions{Force: true})
		results = append(results, res)
	}
	res := outcome.Merge(results...)
	m.logger.Info("Viewport manager shut down", zap.Stringer("outcome", res))
	return res
}
