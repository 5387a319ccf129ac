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

// Package viewer is the composition root of the viewer core. A Viewer owns
// one blob tracker, series builder, decode cache, metadata probe, volume
// decider, viewport lifecycle manager and annotation manager; sessions opened
// from it mount series onto render surfaces and release everything on
// unmount.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/internal/csync"
	"github.com/teradata-labs/planeview/pkg/annotation"
	"github.com/teradata-labs/planeview/pkg/blob"
	"github.com/teradata-labs/planeview/pkg/decode"
	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/engine/software"
	"github.com/teradata-labs/planeview/pkg/metadata"
	"github.com/teradata-labs/planeview/pkg/outcome"
	"github.com/teradata-labs/planeview/pkg/persistence"
	"github.com/teradata-labs/planeview/pkg/series"
	"github.com/teradata-labs/planeview/pkg/viewport"
	"github.com/teradata-labs/planeview/pkg/volume"
)

const (
	DefaultContextName = "planeview"
	DefaultToolGroupID = "planeview-tools"
	DefaultSurfaceSize = 512
)

// DefaultTools are bound to every session tool group; the first is active.
var DefaultTools = []string{"WindowLevel", "Pan", "Zoom", "StackScroll", "Length", "Angle", "Probe"}

// ErrNoAnnotationAdapter is returned by New when the engine offers no
// annotation adapter and none was supplied.
var ErrNoAnnotationAdapter = errors.New("viewer: engine has no annotation adapter")

// Config configures a Viewer.
type Config struct {
	// ContextName is the rendering context sessions share unless a mount
	// names another.
	ContextName string
	// ToolGroupID prefixes the per-session tool group ids.
	ToolGroupID string
	Tools       []string
	// ProbeTimeout bounds one metadata probe.
	ProbeTimeout time.Duration
	Bootstrap    viewport.BootstrapConfig
	// SurfaceWidth and SurfaceHeight size the surfaces a mount creates when
	// the caller supplies none.
	SurfaceWidth  int
	SurfaceHeight int
	Logger        *zap.Logger
}

// DefaultConfig returns the configuration New falls back to.
func DefaultConfig() Config {
	return Config{
		ContextName:   DefaultContextName,
		ToolGroupID:   DefaultToolGroupID,
		Tools:         DefaultTools,
		ProbeTimeout:  metadata.DefaultProbeTimeout,
		Bootstrap:     viewport.DefaultBootstrapConfig(),
		SurfaceWidth:  DefaultSurfaceSize,
		SurfaceHeight: DefaultSurfaceSize,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ContextName == "" {
		c.ContextName = d.ContextName
	}
	if c.ToolGroupID == "" {
		c.ToolGroupID = d.ToolGroupID
	}
	if len(c.Tools) == 0 {
		c.Tools = d.Tools
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.Bootstrap == (viewport.BootstrapConfig{}) {
		c.Bootstrap = d.Bootstrap
	}
	if c.SurfaceWidth <= 0 {
		c.SurfaceWidth = d.SurfaceWidth
	}
	if c.SurfaceHeight <= 0 {
		c.SurfaceHeight = d.SurfaceHeight
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Dependencies are the external collaborators of a Viewer. Every field is
// optional.
type Dependencies struct {
	// Engine defaults to a software engine decoding through the viewer's
	// decode cache.
	Engine engine.Engine
	// Annotations defaults to the engine's own adapter when it has one.
	Annotations engine.AnnotationAdapter
	// Store receives saved annotations. Without one SaveAnnotations fails
	// with annotation.ErrNoStore.
	Store persistence.Store
	// Tracker defaults to a fresh tracker.
	Tracker *blob.Tracker
}

type annotationProvider interface {
	Annotations() engine.AnnotationAdapter
}

// Viewer owns the managers of one viewer instance.
type Viewer struct {
	cfg         Config
	logger      *zap.Logger
	tracker     *blob.Tracker
	builder     *series.Builder
	cache       *decode.Cache
	probe       *metadata.Probe
	decider     *volume.Decider
	engine      engine.Engine
	contexts    *viewport.Manager
	annotations *annotation.Manager

	sessions *csync.Map[string, *Session]
}

// New wires a viewer from cfg and deps.
func New(cfg Config, deps Dependencies) (*Viewer, error) {
	cfg = cfg.withDefaults()
	logger := cfg.Logger

	tracker := deps.Tracker
	if tracker == nil {
		tracker = blob.NewTracker(logger.Named("blob"))
	}
	cache := decode.NewCache(tracker, logger.Named("decode"))
	probe := metadata.NewProbe(cache, cfg.ProbeTimeout, logger.Named("metadata"))
	decider := volume.NewDecider(probe, logger.Named("volume"))

	eng := deps.Engine
	if eng == nil {
		eng = software.New(cache, software.Options{Logger: logger.Named("engine")})
	}
	adapter := deps.Annotations
	if adapter == nil {
		p, ok := eng.(annotationProvider)
		if !ok {
			return nil, ErrNoAnnotationAdapter
		}
		adapter = p.Annotations()
	}

	v := &Viewer{
		cfg:      cfg,
		logger:   logger,
		tracker:  tracker,
		builder:  series.NewBuilder(tracker, logger.Named("series")),
		cache:    cache,
		probe:    probe,
		decider:  decider,
		engine:   eng,
		sessions: csync.NewMap[string, *Session](),
		contexts: viewport.NewManager(eng, decider, viewport.Config{
			Bootstrap: cfg.Bootstrap,
			Logger:    logger.Named("viewport"),
		}),
	}
	v.annotations = annotation.NewManager(adapter, eng, deps.Store, logger.Named("annotation"))
	return v, nil
}

// Config returns the effective configuration.
func (v *Viewer) Config() Config { return v.cfg }

// Tracker returns the blob tracker.
func (v *Viewer) Tracker() *blob.Tracker { return v.tracker }

// Builder returns the series builder.
func (v *Viewer) Builder() *series.Builder { return v.builder }

// Cache returns the decode cache.
func (v *Viewer) Cache() *decode.Cache { return v.cache }

// Probe returns the metadata probe.
func (v *Viewer) Probe() *metadata.Probe { return v.probe }

// Engine returns the rendering engine.
func (v *Viewer) Engine() engine.Engine { return v.engine }

// Contexts returns the viewport lifecycle manager.
func (v *Viewer) Contexts() *viewport.Manager { return v.contexts }

// Annotations returns the annotation manager.
func (v *Viewer) Annotations() *annotation.Manager { return v.annotations }

// Explain reports whether s can be shown as a volume and why.
func (v *Viewer) Explain(ctx context.Context, s *series.Series) volume.Decision {
	return v.decider.Explain(ctx, s.Identifiers)
}

// Open classifies files into a series and returns an unmounted session for
// it.
func (v *Viewer) Open(files []*blob.RawFile) (*Session, error) {
	s, err := v.builder.Build(files)
	if err != nil {
		return nil, err
	}
	return v.newSession(s), nil
}

// OpenDir opens the regular files of dir.
func (v *Viewer) OpenDir(dir string) (*Session, error) {
	files, err := series.ScanDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return v.Open(files)
}

// Sessions returns the number of sessions that have not been unmounted.
func (v *Viewer) Sessions() int { return v.sessions.Len() }

// Close unmounts every open session, force-releases every context and
// purges the decode cache.
func (v *Viewer) Close(ctx context.Context) outcome.Outcome {
	var results []outcome.Outcome
	for _, s := range v.sessions.Drain() {
		results = append(results, s.Unmount(ctx))
	}
	v.annotations.CloseAll()
	results = append(results, v.contexts.Shutdown(ctx))
	v.cache.Purge()
	res := outcome.Merge(results...)
	v.logger.Info("Viewer closed", zap.Stringer("outcome", res))
	return res
}
