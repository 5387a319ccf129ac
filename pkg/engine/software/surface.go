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
	"errors"
	"image"
	"io"
	"sync"

	"github.com/gogpu/gg"

	"github.com/teradata-labs/planeview/pkg/engine"
)

// ErrNoFrame is returned when encoding a surface that was never presented.
var ErrNoFrame = errors.New("surface has no frame")

// ImageSurface is an in-memory surface that keeps the last presented frame.
type ImageSurface struct {
	mu       sync.RWMutex
	width    int
	height   int
	frame    image.Image
	presents int
}

var _ engine.Surface = (*ImageSurface)(nil)

// NewImageSurface creates a surface of the given size.
func NewImageSurface(width, height int) *ImageSurface {
	return &ImageSurface{width: width, height: height}
}

// Size returns the surface size.
func (s *ImageSurface) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// SetSize changes the size used by the next render.
func (s *ImageSurface) SetSize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
}

// Present stores img as the current frame.
func (s *ImageSurface) Present(img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = img
	s.presents++
	return nil
}

// Frame returns the last presented frame, or nil.
func (s *ImageSurface) Frame() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// Presents returns how many frames were presented.
func (s *ImageSurface) Presents() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presents
}

// EncodePNG writes the last frame as PNG.
func (s *ImageSurface) EncodePNG(w io.Writer) error {
	frame := s.Frame()
	if frame == nil {
		return ErrNoFrame
	}
	dc := gg.NewContextForImage(frame)
	defer dc.Close()
	return dc.EncodePNG(w)
}
