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

package viewer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/blob"
	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/engine/software"
	"github.com/teradata-labs/planeview/pkg/outcome"
	"github.com/teradata-labs/planeview/pkg/series"
	"github.com/teradata-labs/planeview/pkg/viewport"
)

var (
	// ErrMountCancelled is returned by a mount superseded by Unmount or
	// Replace.
	ErrMountCancelled = errors.New("viewer: mount cancelled")
	// ErrSessionClosed is returned after Unmount.
	ErrSessionClosed = errors.New("viewer: session closed")
	// ErrAlreadyMounted is returned by a second Mount.
	ErrAlreadyMounted = errors.New("viewer: session already mounted")
	// ErrNotRenderable is returned when mounting a video series.
	ErrNotRenderable = errors.New("viewer: series is not renderable")
)

// Layout arranges the viewports of a mount.
type Layout string

const (
	// LayoutSingle is one viewport.
	LayoutSingle Layout = "single"
	// LayoutMPR is three volume viewports, axial, sagittal and coronal,
	// sharing one context.
	LayoutMPR Layout = "mpr"
)

// MountOptions configures Mount.
type MountOptions struct {
	Layout Layout
	// ContextName overrides the viewer's context name.
	ContextName string
	// Surfaces are used in layout order; missing ones are created in memory.
	Surfaces []engine.Surface
}

// MountStatus is the tri-state result of a mount that did not fail.
type MountStatus int

const (
	// MountFull means the requested layout is shown as requested.
	MountFull MountStatus = iota
	// MountDegraded means only 2-D display or a reduced layout is available.
	MountDegraded
)

// String returns the status name.
func (s MountStatus) String() string {
	if s == MountDegraded {
		return "degraded"
	}
	return "full"
}

// View is one mounted viewport.
type View struct {
	ViewportID  string
	Orientation engine.Orientation
	Surface     engine.Surface
}

// MountResult describes a mount.
type MountResult struct {
	Status      MountStatus
	Layout      Layout
	Mode        engine.ViewportType
	ContextName string
	ToolGroupID string
	Views       []View
	Loads       []viewport.LoadResult
	// Cause is why the mount is degraded.
	Cause error
}

// Outcome converts the result for callers that merge outcomes.
func (r MountResult) Outcome() outcome.Outcome {
	if r.Status == MountDegraded {
		return outcome.Degrade(r.Cause)
	}
	return outcome.Ok()
}

// mounted is what a mount acquired, in acquisition order.
type mounted struct {
	contextName string
	acquired    bool
	views       []View
	toolGroupID string
	annotated   bool
}

// Session shows one series. Mount, Unmount and Replace may be called from
// different goroutines; Unmount and Replace cancel a mount in progress.
type Session struct {
	id     string
	v      *Viewer
	logger *zap.Logger

	// gen changes whenever pending setups must stop.
	gen atomic.Uint64

	mu      sync.Mutex
	series  *series.Series
	current *mounted
	result  MountResult
	opts    MountOptions
	closed  bool
}

func (v *Viewer) newSession(s *series.Series) *Session {
	id := uuid.NewString()
	sess := &Session{
		id:     id,
		v:      v,
		series: s,
		logger: v.logger.With(zap.String("session", id[:8])),
	}
	v.sessions.Set(id, sess)
	return sess
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Series returns the current series.
func (s *Session) Series() *series.Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.series
}

// Result returns the last successful mount result.
func (s *Session) Result() (MountResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.current != nil
}

// ToolGroupID returns the tool group of the mounted session, or "".
func (s *Session) ToolGroupID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.toolGroupID
}

// Mount shows the series: it acquires the rendering context, enables the
// layout's viewports, loads the images, creates the tool group and starts
// annotation tracking. A mount cancelled by ctx, Unmount or Replace releases
// what it acquired and commits nothing.
func (s *Session) Mount(ctx context.Context, opts MountOptions) (MountResult, error) {
	gen := s.gen.Load()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return MountResult{}, ErrSessionClosed
	}
	if s.current != nil {
		return MountResult{}, ErrAlreadyMounted
	}
	return s.mountLocked(ctx, gen, opts)
}

func (s *Session) mountLocked(ctx context.Context, gen uint64, opts MountOptions) (MountResult, error) {
	if s.series.Viewer == series.ViewerVideo {
		return MountResult{}, fmt.Errorf("%w: %s series", ErrNotRenderable, s.series.Viewer)
	}
	if opts.Layout == "" {
		opts.Layout = LayoutSingle
	}
	m := &mounted{contextName: opts.ContextName}
	if m.contextName == "" {
		m.contextName = s.v.cfg.ContextName
	}

	// checkpoint runs after every suspension point.
	checkpoint := func() error {
		if s.gen.Load() != gen {
			return ErrMountCancelled
		}
		return ctx.Err()
	}
	abort := func(err error) (MountResult, error) {
		res := s.release(context.WithoutCancel(ctx), m)
		s.logger.Info("Mount aborted",
			zap.String("context", m.contextName),
			zap.Stringer("rollback", res),
			zap.Error(err))
		return MountResult{}, err
	}

	if _, err := s.v.contexts.Acquire(ctx, m.contextName); err != nil {
		return MountResult{}, err
	}
	m.acquired = true
	if err := checkpoint(); err != nil {
		return abort(err)
	}

	result := MountResult{Layout: opts.Layout, ContextName: m.contextName}
	var err error
	if opts.Layout == LayoutMPR {
		err = s.mountMPR(ctx, m, opts, &result, checkpoint)
	} else {
		err = s.mountSingle(ctx, m, opts, &result, checkpoint)
	}
	if err != nil {
		return abort(err)
	}

	tgID := s.v.cfg.ToolGroupID + "-" + s.id[:8]
	vpIDs := make([]string, len(m.views))
	for i, view := range m.views {
		vpIDs[i] = view.ViewportID
	}
	m.toolGroupID = tgID
	if _, err := s.v.contexts.CreateToolGroup(m.contextName, tgID, s.v.cfg.Tools, vpIDs...); err != nil {
		return abort(err)
	}
	if err := checkpoint(); err != nil {
		return abort(err)
	}

	if err := s.v.annotations.Initialize(ctx, tgID); err != nil {
		return abort(err)
	}
	m.annotated = true
	if err := checkpoint(); err != nil {
		return abort(err)
	}

	result.ToolGroupID = tgID
	result.Views = slices.Clone(m.views)
	s.current = m
	s.result = result
	s.opts = opts
	s.logger.Info("Series mounted",
		zap.String("series", s.series.ID),
		zap.String("layout", string(result.Layout)),
		zap.String("mode", string(result.Mode)),
		zap.Stringer("status", result.Status),
		zap.Int("images", s.series.Len()))
	return result, nil
}

func (s *Session) surface(opts MountOptions, i int) engine.Surface {
	if i < len(opts.Surfaces) && opts.Surfaces[i] != nil {
		return opts.Surfaces[i]
	}
	return software.NewImageSurface(s.v.cfg.SurfaceWidth, s.v.cfg.SurfaceHeight)
}

func (s *Session) enable(ctx context.Context, m *mounted, opts MountOptions, o engine.Orientation, typ engine.ViewportType) (View, error) {
	view := View{
		ViewportID:  fmt.Sprintf("%s-%s", s.id[:8], o),
		Orientation: o,
		Surface:     s.surface(opts, len(m.views)),
	}
	err := s.v.contexts.EnableViewport(ctx, m.contextName, view.Surface, engine.ViewportSpec{
		ID:          view.ViewportID,
		Type:        typ,
		Orientation: o,
	})
	if err != nil {
		return View{}, err
	}
	m.views = append(m.views, view)
	return view, nil
}

func (s *Session) mountSingle(ctx context.Context, m *mounted, opts MountOptions, result *MountResult, checkpoint func() error) error {
	view, err := s.enable(ctx, m, opts, engine.Axial, engine.Stack)
	if err != nil {
		return err
	}
	if err := checkpoint(); err != nil {
		return err
	}

	load, err := s.v.contexts.Load(ctx, m.contextName, view.ViewportID, s.series.Identifiers)
	if err != nil {
		return err
	}
	if err := checkpoint(); err != nil {
		return err
	}
	result.Loads = []viewport.LoadResult{load}
	result.Mode = load.Mode
	if load.Status == viewport.LoadDegraded {
		result.Status = MountDegraded
		result.Cause = load.Cause
	}
	return nil
}

// mountMPR creates the three planes one after another. The axial plane loads
// the volume and the other two show the same one. A series that cannot
// form a volume, or a plane that fails, leaves a single viewport and a
// degraded result.
func (s *Session) mountMPR(ctx context.Context, m *mounted, opts MountOptions, result *MountResult, checkpoint func() error) error {
	decision := s.v.decider.Explain(ctx, s.series.Identifiers)
	if err := checkpoint(); err != nil {
		return err
	}
	if !decision.Volume {
		if err := s.mountSingle(ctx, m, opts, result, checkpoint); err != nil {
			return err
		}
		result.Status = MountDegraded
		if result.Cause == nil {
			result.Cause = &viewport.VolumeLoadError{Reason: string(decision.Reason), Missing: decision.Missing, Err: decision.Err}
		}
		return nil
	}

	for i, o := range engine.Orientations {
		view, err := s.enable(ctx, m, opts, o, engine.Volume)
		if err != nil {
			if i == 0 {
				return err
			}
			return s.reduceMPR(m, result, err)
		}
		if err := checkpoint(); err != nil {
			return err
		}

		var load viewport.LoadResult
		if i == 0 {
			load, err = s.v.contexts.Load(ctx, m.contextName, view.ViewportID, s.series.Identifiers)
			if err != nil {
				return err
			}
		} else {
			load, err = s.v.contexts.ShareVolume(ctx, m.contextName, view.ViewportID, result.Loads[0].VolumeID)
			if err != nil {
				return s.reduceMPR(m, result, err)
			}
		}
		if err := checkpoint(); err != nil {
			return err
		}
		result.Loads = append(result.Loads, load)
		if load.Status == viewport.LoadDegraded {
			return s.reduceMPR(m, result, load.Cause)
		}
	}
	result.Mode = engine.Volume
	return nil
}

// reduceMPR keeps the first plane and drops the rest.
func (s *Session) reduceMPR(m *mounted, result *MountResult, cause error) error {
	for _, view := range m.views[1:] {
		res := s.v.contexts.DestroyViewport(m.contextName, view.ViewportID)
		s.logger.Debug("MPR plane dropped", zap.String("viewport", view.ViewportID), zap.Stringer("outcome", res))
	}
	m.views = m.views[:1]
	result.Loads = result.Loads[:min(1, len(result.Loads))]
	result.Mode = engine.Stack
	if len(result.Loads) == 1 {
		result.Mode = result.Loads[0].Mode
	}
	result.Status = MountDegraded
	result.Cause = cause
	s.logger.Warn("MPR layout reduced to a single viewport", zap.Error(cause))
	return nil
}

// release undoes m in reverse order, best effort.
func (s *Session) release(ctx context.Context, m *mounted) outcome.Outcome {
	var results []outcome.Outcome
	if m.annotated {
		s.v.annotations.Close(m.toolGroupID)
	}
	if m.toolGroupID != "" {
		if _, owned := s.v.contexts.ContextOf(m.toolGroupID); owned {
			results = append(results, s.v.contexts.DestroyToolGroup(m.toolGroupID))
		}
	}
	for _, view := range slices.Backward(m.views) {
		results = append(results, s.v.contexts.DestroyViewport(m.contextName, view.ViewportID))
	}
	if m.acquired {
		res, err := s.v.contexts.Release(ctx, m.contextName, viewport.ReleaseOptions{})
		results = append(results, res)
		if err != nil {
			results = append(results, outcome.Ignore(err))
		}
	}
	return outcome.Merge(results...)
}

// Unmount cancels a pending mount, stops annotation tracking, releases the
// context and destroys the series. It is idempotent.
func (s *Session) Unmount(ctx context.Context) outcome.Outcome {
	s.gen.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return outcome.Ignore(ErrSessionClosed)
	}
	s.closed = true
	s.v.sessions.Delete(s.id)

	res := outcome.Ok()
	if s.current != nil {
		res = s.release(ctx, s.current)
		s.current = nil
	}
	s.discard(s.series)
	s.logger.Info("Session unmounted", zap.Stringer("outcome", res))
	return res
}

// Replace swaps the series for one built from files and revokes the old
// handles. A mounted session is remounted with its previous options.
func (s *Session) Replace(ctx context.Context, files []*blob.RawFile) (MountResult, error) {
	next, err := s.v.builder.Build(files)
	if err != nil {
		return MountResult{}, err
	}
	gen := s.gen.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		next.Destroy()
		return MountResult{}, ErrSessionClosed
	}
	wasMounted := s.current != nil
	if wasMounted {
		res := s.release(ctx, s.current)
		s.logger.Debug("Previous mount released", zap.Stringer("outcome", res))
		s.current = nil
		s.result = MountResult{}
	}
	prev := s.series
	s.series = next
	s.discard(prev)

	if !wasMounted {
		return MountResult{}, nil
	}
	return s.mountLocked(ctx, gen, s.opts)
}

func (s *Session) discard(sr *series.Series) {
	s.v.cache.EvictAll(sr.Identifiers)
	for _, id := range sr.Identifiers {
		s.v.probe.Invalidate(id)
	}
	revoked := sr.Destroy()
	s.logger.Debug("Series destroyed", zap.String("series", sr.ID), zap.Int("revoked", revoked))
}
