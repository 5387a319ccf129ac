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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/imageid"
	"github.com/teradata-labs/planeview/pkg/outcome"
	"github.com/teradata-labs/planeview/pkg/volume"
)

// LoadStatus says whether a load got the display mode the data supports.
type LoadStatus int

const (
	// LoadFull means the data is displayed in the best available mode.
	LoadFull LoadStatus = iota
	// LoadDegraded means a volume was expected but the data is shown as a
	// stack.
	LoadDegraded
)

// String returns the status name.
func (s LoadStatus) String() string {
	if s == LoadDegraded {
		return "degraded"
	}
	return "full"
}

// LoadResult is the result of Load.
type LoadResult struct {
	Status   LoadStatus
	Mode     engine.ViewportType
	VolumeID string
	Index    int
	// Cause explains a degraded load.
	Cause *VolumeLoadError
}

// Outcome converts the result for callers that merge outcomes.
func (r LoadResult) Outcome() outcome.Outcome {
	if r.Status == LoadDegraded {
		return outcome.Degrade(r.Cause)
	}
	return outcome.Ok()
}

// Load displays ids in viewport viewportID of context name. Identifiers that
// can form a volume are loaded as one under a fresh volume id; if that fails
// the viewport falls back to a stack and the result is degraded. Fewer than
// volume.MinSlices identifiers load as a stack directly. Identifiers that
// could have formed a volume but lack the metadata for it load as a degraded
// stack. Only a stack failure is returned as an error.
func (m *Manager) Load(ctx context.Context, name, viewportID string, ids []imageid.ID) (LoadResult, error) {
	if len(ids) == 0 {
		return LoadResult{}, errors.New("no images to load")
	}
	e, err := m.ready(name)
	if err != nil {
		return LoadResult{}, err
	}

	decision := m.decider.Explain(ctx, ids)
	if decision.Volume {
		res, volErr := m.loadVolume(ctx, e, viewportID, ids)
		if volErr == nil {
			m.count(func(s *Stats) { s.VolumeLoads++ })
			return res, nil
		}
		if ctx.Err() != nil {
			return LoadResult{}, ctx.Err()
		}
		m.logger.Warn("Volume load failed, falling back to stack",
			zap.String("context", name),
			zap.String("viewport", viewportID),
			zap.Error(volErr))
		m.count(func(s *Stats) { s.VolumeFallbacks++ })
		return m.fallback(ctx, e, viewportID, ids, volErr)
	}

	if decision.Reason != volume.ReasonTooFewSlices {
		m.logger.Info("Series cannot form a volume, loading as stack",
			zap.String("context", name),
			zap.String("viewport", viewportID),
			zap.Stringer("decision", decision))
		cause := &VolumeLoadError{Reason: string(decision.Reason), Missing: decision.Missing, Err: decision.Err}
		return m.fallback(ctx, e, viewportID, ids, cause)
	}

	if err := m.loadStack(ctx, e, viewportID, ids); err != nil {
		return LoadResult{}, err
	}
	m.count(func(s *Stats) { s.StackLoads++ })
	return LoadResult{Status: LoadFull, Mode: engine.Stack}, nil
}

func (m *Manager) fallback(ctx context.Context, e *entry, viewportID string, ids []imageid.ID, cause error) (LoadResult, error) {
	var vle *VolumeLoadError
	if !errors.As(cause, &vle) {
		vle = &VolumeLoadError{Err: cause}
	}
	if err := m.loadStack(ctx, e, viewportID, ids); err != nil {
		return LoadResult{}, fmt.Errorf("stack fallback after %v: %w", vle, err)
	}
	m.count(func(s *Stats) { s.StackLoads++ })
	return LoadResult{Status: LoadDegraded, Mode: engine.Stack, Cause: vle}, nil
}

func (m *Manager) loadVolume(ctx context.Context, e *entry, viewportID string, ids []imageid.ID) (LoadResult, error) {
	e.vpMu.Lock()
	defer e.vpMu.Unlock()

	vp, err := m.switchMode(ctx, e, viewportID, engine.Volume)
	if err != nil {
		return LoadResult{}, &VolumeLoadError{Err: err}
	}

	volID := "volume-" + uuid.NewString()
	vol, err := m.engine.CreateVolume(ctx, volID, ids)
	if err != nil {
		return LoadResult{}, &VolumeLoadError{VolumeID: volID, Err: err}
	}
	fail := func(err error) (LoadResult, error) {
		if rmErr := m.engine.RemoveVolume(volID); rmErr != nil && !errors.Is(rmErr, engine.ErrNotFound) {
			m.logger.Warn("Failed to remove volume", zap.String("volume", volID), zap.Error(rmErr))
		}
		return LoadResult{}, &VolumeLoadError{VolumeID: volID, Err: err}
	}
	if err := vol.Load(ctx); err != nil {
		return fail(err)
	}
	if err := vp.SetVolumes(ctx, volID); err != nil {
		return fail(err)
	}
	if err := vp.Render(); err != nil {
		return fail(err)
	}

	m.bindVolume(e, viewportID, volID)

	dims := vol.Dimensions()
	m.logger.Info("Volume loaded",
		zap.String("context", e.name),
		zap.String("viewport", viewportID),
		zap.String("volume", volID),
		zap.Ints("dimensions", dims[:]))
	return LoadResult{Status: LoadFull, Mode: engine.Volume, VolumeID: volID, Index: vp.CurrentIndex()}, nil
}

// ShareVolume shows a volume already loaded on another viewport of context
// name in viewportID, switching the viewport to volume mode if needed. The
// volume is removed once no viewport of the context shows it.
func (m *Manager) ShareVolume(ctx context.Context, name, viewportID, volumeID string) (LoadResult, error) {
	e, err := m.ready(name)
	if err != nil {
		return LoadResult{}, err
	}
	e.vpMu.Lock()
	defer e.vpMu.Unlock()

	m.mu.Lock()
	loaded := volumeInUse(e, volumeID)
	m.mu.Unlock()
	if !loaded {
		return LoadResult{}, fmt.Errorf("volume %q in context %q: %w", volumeID, name, ErrNotFound)
	}

	vp, err := m.switchMode(ctx, e, viewportID, engine.Volume)
	if err != nil {
		return LoadResult{}, &VolumeLoadError{VolumeID: volumeID, Err: err}
	}
	if err := vp.SetVolumes(ctx, volumeID); err != nil {
		return LoadResult{}, &VolumeLoadError{VolumeID: volumeID, Err: err}
	}
	if err := vp.Render(); err != nil {
		return LoadResult{}, &VolumeLoadError{VolumeID: volumeID, Err: err}
	}
	m.bindVolume(e, viewportID, volumeID)

	m.logger.Debug("Volume shared",
		zap.String("context", name),
		zap.String("viewport", viewportID),
		zap.String("volume", volumeID))
	return LoadResult{Status: LoadFull, Mode: engine.Volume, VolumeID: volumeID, Index: vp.CurrentIndex()}, nil
}

// bindVolume records the volume viewportID shows ("" for none) and removes
// the one it showed before when no other viewport still shows it. Callers
// hold e.vpMu.
func (m *Manager) bindVolume(e *entry, viewportID, volID string) {
	m.mu.Lock()
	prev, hadPrev := e.volumes[viewportID]
	if volID == "" {
		delete(e.volumes, viewportID)
	} else {
		e.volumes[viewportID] = volID
	}
	orphaned := hadPrev && prev != volID && !volumeInUse(e, prev)
	m.mu.Unlock()
	if orphaned {
		_ = m.engine.RemoveVolume(prev)
	}
}

// volumeInUse reports whether any viewport of e shows volID. Callers hold
// m.mu.
func volumeInUse(e *entry, volID string) bool {
	for _, id := range e.volumes {
		if id == volID {
			return true
		}
	}
	return false
}

func (m *Manager) loadStack(ctx context.Context, e *entry, viewportID string, ids []imageid.ID) error {
	e.vpMu.Lock()
	defer e.vpMu.Unlock()

	vp, err := m.switchMode(ctx, e, viewportID, engine.Stack)
	if err != nil {
		return err
	}
	if err := vp.SetStack(ctx, ids, 0); err != nil {
		return fmt.Errorf("set stack on %q: %w", viewportID, err)
	}
	if err := vp.Render(); err != nil {
		return fmt.Errorf("render %q: %w", viewportID, err)
	}

	m.bindVolume(e, viewportID, "")
	m.logger.Debug("Stack loaded",
		zap.String("context", e.name),
		zap.String("viewport", viewportID),
		zap.Int("images", len(ids)))
	return nil
}

// switchMode returns the viewport, re-enabling it on its surface with the
// wanted type when it has another. Callers hold e.vpMu.
func (m *Manager) switchMode(ctx context.Context, e *entry, viewportID string, want engine.ViewportType) (engine.Viewport, error) {
	vp, err := m.engine.Viewport(e.name, viewportID)
	if err != nil {
		return nil, fmt.Errorf("viewport %q: %w", viewportID, err)
	}
	if vp.Type() == want {
		return vp, nil
	}

	m.mu.Lock()
	bound, ok := e.viewports[viewportID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("viewport %q was not enabled through the manager: %w", viewportID, ErrNotFound)
	}

	spec := bound.spec
	spec.Type = want
	if want == engine.Volume && spec.Orientation == "" {
		spec.Orientation = engine.Axial
	}
	if err := m.engine.DisableSurface(e.name, viewportID); err != nil && !errors.Is(err, engine.ErrNotFound) {
		return nil, fmt.Errorf("disable %q: %w", viewportID, err)
	}
	if err := m.engine.EnableSurface(ctx, e.name, bound.surface, spec); err != nil {
		m.mu.Lock()
		delete(e.viewports, viewportID)
		m.mu.Unlock()
		return nil, fmt.Errorf("re-enable %q as %s: %w", viewportID, want, err)
	}
	m.mu.Lock()
	bound.spec = spec
	m.mu.Unlock()
	m.logger.Debug("Viewport mode switched",
		zap.String("context", e.name),
		zap.String("viewport", viewportID),
		zap.String("type", string(want)))
	return m.engine.Viewport(e.name, viewportID)
}

func (m *Manager) count(f func(*Stats)) {
	m.mu.Lock()
	f(&m.stats)
	m.mu.Unlock()
}
