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

package software

import (
	"context"
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/imageid"
)

type viewport struct {
	eng         *Engine
	id          string
	contextName string
	surface     engine.Surface
	spec        engine.ViewportSpec

	mu        sync.RWMutex
	destroyed bool
	ids       []imageid.ID
	index     int
	current   image.Image
	frameUID  string
	volumeID  string
	renders   int
}

var _ engine.Viewport = (*viewport)(nil)

func newViewport(e *Engine, contextName string, surface engine.Surface, spec engine.ViewportSpec) *viewport {
	return &viewport{eng: e, id: spec.ID, contextName: contextName, surface: surface, spec: spec}
}

func (v *viewport) ID() string { return v.id }

func (v *viewport) ContextName() string { return v.contextName }

func (v *viewport) Type() engine.ViewportType { return v.spec.Type }

func (v *viewport) Orientation() engine.Orientation { return v.spec.Orientation }

func (v *viewport) destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.destroyed = true
	v.current = nil
}

func (v *viewport) checkLive() error {
	if v.destroyed {
		return fmt.Errorf("viewport %q: %w", v.id, engine.ErrNotFound)
	}
	return nil
}

func (v *viewport) SetStack(ctx context.Context, ids []imageid.ID, index int) error {
	if v.spec.Type != engine.Stack {
		return fmt.Errorf("viewport %q is %s, not %s", v.id, v.spec.Type, engine.Stack)
	}
	if len(ids) == 0 {
		return fmt.Errorf("viewport %q: empty stack", v.id)
	}
	if index < 0 || index >= len(ids) {
		return fmt.Errorf("viewport %q: index %d out of range", v.id, index)
	}
	r, err := v.eng.loader.LoadAndCache(ctx, ids[index])
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkLive(); err != nil {
		return err
	}
	v.ids = slices.Clone(ids)
	v.index = index
	v.current = r.Image
	v.frameUID = r.Metadata.FrameOfReferenceUID
	return nil
}

func (v *viewport) SetVolumes(ctx context.Context, volumeIDs ...string) error {
	if v.spec.Type != engine.Volume {
		return fmt.Errorf("viewport %q is %s, not %s", v.id, v.spec.Type, engine.Volume)
	}
	if len(volumeIDs) == 0 {
		return fmt.Errorf("viewport %q: no volumes", v.id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	vol, err := v.eng.volume(volumeIDs[0])
	if err != nil {
		return err
	}
	if !vol.Loaded() {
		return fmt.Errorf("volume %q is not loaded", vol.ID())
	}
	index := vol.planes(v.spec.Orientation) / 2
	img, err := vol.plane(v.spec.Orientation, index)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkLive(); err != nil {
		return err
	}
	v.volumeID = vol.ID()
	v.ids = slices.Clone(vol.ids)
	v.index = index
	v.current = img
	v.frameUID = vol.frameOfReference()
	return nil
}

func (v *viewport) ImageIDs() []imageid.ID {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.ids)
}

func (v *viewport) CurrentIndex() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.index
}

// SetIndex moves a stack to another image or a volume to another plane.
func (v *viewport) SetIndex(index int) error {
	v.mu.RLock()
	volumeID := v.volumeID
	ids := v.ids
	v.mu.RUnlock()

	var img image.Image
	frameUID := ""
	if volumeID != "" {
		vol, err := v.eng.volume(volumeID)
		if err != nil {
			return err
		}
		if img, err = vol.plane(v.spec.Orientation, index); err != nil {
			return err
		}
		frameUID = vol.frameOfReference()
	} else {
		if index < 0 || index >= len(ids) {
			return fmt.Errorf("viewport %q: index %d out of range", v.id, index)
		}
		r, err := v.eng.loader.LoadAndCache(context.Background(), ids[index])
		if err != nil {
			return err
		}
		img = r.Image
		frameUID = r.Metadata.FrameOfReferenceUID
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkLive(); err != nil {
		return err
	}
	v.index = index
	v.current = img
	v.frameUID = frameUID
	return nil
}

func (v *viewport) VolumeID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.volumeID
}

func (v *viewport) FrameOfReferenceUID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.frameUID
}

// Resize re-renders at the surface's current size.
func (v *viewport) Resize() error {
	return v.Render()
}

// Render draws the current image and the visible annotations of every tool
// group bound to the viewport, then presents the frame. Engine state is read
// without holding the viewport lock.
func (v *viewport) Render() error {
	v.mu.RLock()
	if err := v.checkLive(); err != nil {
		v.mu.RUnlock()
		return err
	}
	current, frameUID, imageID := v.current, v.frameUID, v.currentImageIDLocked()
	v.mu.RUnlock()

	var marks []engine.Annotation
	for _, group := range v.eng.groupsOf(v.contextName, v.id) {
		marks = append(marks, v.eng.annotations.visibleIn(group, frameUID, imageID)...)
	}

	w, h := v.surface.Size()
	frame, err := compose(w, h, current, marks)
	if err != nil {
		return fmt.Errorf("viewport %q: %w", v.id, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkLive(); err != nil {
		return err
	}
	if err := v.surface.Present(frame); err != nil {
		return fmt.Errorf("viewport %q: present: %w", v.id, err)
	}
	v.renders++
	return nil
}

func (v *viewport) currentImageIDLocked() string {
	if v.volumeID != "" || v.index >= len(v.ids) {
		return ""
	}
	return v.ids[v.index].String()
}

// Renders returns how many frames were presented.
func (v *viewport) Renders() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.renders
}
