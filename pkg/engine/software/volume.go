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
	"errors"
	"fmt"
	"image"
	"math"
	"slices"
	"sync"

	"github.com/nfnt/resize"

	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/imageid"
)

// ErrInconsistentSlices is returned when slices of a volume differ in size.
var ErrInconsistentSlices = errors.New("slices differ in size")

type volume struct {
	id     string
	ids    []imageid.ID
	loader Loader

	mu        sync.RWMutex
	loaded    bool
	slices    []*image.Gray
	cols      int
	rows      int
	spacing   float64
	thickness float64
	frameUID  string
}

var _ engine.VolumeData = (*volume)(nil)

func newVolume(id string, ids []imageid.ID, loader Loader) *volume {
	return &volume{id: id, ids: slices.Clone(ids), loader: loader}
}

func (v *volume) ID() string { return v.id }

// Load decodes every slice. Slices must share one size. The in-plane
// spacing and slice spacing come from the first slice; the slice spacing
// prefers the distance between the first two positions over the nominal
// thickness.
func (v *volume) Load(ctx context.Context) error {
	grays := make([]*image.Gray, 0, len(v.ids))
	var spacing, thickness float64
	var frameUID string
	var firstPos, secondPos []float64

	for i, id := range v.ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := v.loader.LoadAndCache(ctx, id)
		if err != nil {
			return fmt.Errorf("volume %s slice %d: %w", v.id, i, err)
		}
		g := r.Gray()
		if i > 0 && g.Bounds().Size() != grays[0].Bounds().Size() {
			return fmt.Errorf("volume %s slice %d: %w", v.id, i, ErrInconsistentSlices)
		}
		grays = append(grays, g)

		m := r.Metadata
		switch i {
		case 0:
			if len(m.PixelSpacing) > 0 {
				spacing = m.PixelSpacing[0]
			}
			if m.SliceThickness != nil {
				thickness = *m.SliceThickness
			}
			frameUID = m.FrameOfReferenceUID
			firstPos = m.Position
		case 1:
			secondPos = m.Position
		}
	}

	if d := distance(firstPos, secondPos); d > 0 {
		thickness = d
	}
	if spacing <= 0 {
		spacing = 1
	}
	if thickness <= 0 {
		thickness = spacing
	}

	b := grays[0].Bounds()
	v.mu.Lock()
	defer v.mu.Unlock()
	v.slices = grays
	v.cols, v.rows = b.Dx(), b.Dy()
	v.spacing = spacing
	v.thickness = thickness
	v.frameUID = frameUID
	v.loaded = true
	return nil
}

func distance(a, b []float64) float64 {
	if len(a) != 3 || len(b) != 3 {
		return 0
	}
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (v *volume) Loaded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loaded
}

func (v *volume) Dimensions() [3]int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return [3]int{v.cols, v.rows, len(v.slices)}
}

func (v *volume) frameOfReference() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.frameUID
}

// planes returns how many planes exist along the normal of o.
func (v *volume) planes(o engine.Orientation) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	switch o {
	case engine.Sagittal:
		return v.cols
	case engine.Coronal:
		return v.rows
	default:
		return len(v.slices)
	}
}

// plane reconstructs plane index of orientation o. Sagittal and coronal
// planes are stretched vertically so one pixel covers the same distance as
// in-plane pixels.
func (v *volume) plane(o engine.Orientation, index int) (image.Image, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.loaded {
		return nil, fmt.Errorf("volume %s is not loaded", v.id)
	}
	n := len(v.slices)

	switch o {
	case engine.Sagittal:
		if index < 0 || index >= v.cols {
			return nil, fmt.Errorf("sagittal plane %d out of range", index)
		}
		out := image.NewGray(image.Rect(0, 0, v.rows, n))
		for z, s := range v.slices {
			for y := 0; y < v.rows; y++ {
				out.Pix[out.PixOffset(y, n-1-z)] = s.Pix[s.PixOffset(index, y)]
			}
		}
		return v.stretch(out), nil

	case engine.Coronal:
		if index < 0 || index >= v.rows {
			return nil, fmt.Errorf("coronal plane %d out of range", index)
		}
		out := image.NewGray(image.Rect(0, 0, v.cols, n))
		for z, s := range v.slices {
			for x := 0; x < v.cols; x++ {
				out.Pix[out.PixOffset(x, n-1-z)] = s.Pix[s.PixOffset(x, index)]
			}
		}
		return v.stretch(out), nil

	default:
		if index < 0 || index >= n {
			return nil, fmt.Errorf("axial plane %d out of range", index)
		}
		return v.slices[index], nil
	}
}

func (v *volume) stretch(img *image.Gray) image.Image {
	ratio := v.thickness / v.spacing
	if math.Abs(ratio-1) < 1e-6 {
		return img
	}
	b := img.Bounds()
	h := int(math.Round(float64(b.Dy()) * ratio))
	if h < 1 {
		h = 1
	}
	return resize.Resize(uint(b.Dx()), uint(h), img, resize.Bilinear)
}
