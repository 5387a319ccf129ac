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
	"fmt"
	"image"
	"math"

	"github.com/gogpu/gg"
	"github.com/nfnt/resize"

	"github.com/teradata-labs/planeview/pkg/engine"
)

const (
	markLineWidth = 2
	markRadius    = 3
)

// fit returns the scale and offset that place an iw x ih image centered in
// a w x h frame without distortion.
func fit(w, h, iw, ih int) (scale, ox, oy float64) {
	if iw == 0 || ih == 0 {
		return 1, 0, 0
	}
	scale = math.Min(float64(w)/float64(iw), float64(h)/float64(ih))
	ox = (float64(w) - float64(iw)*scale) / 2
	oy = (float64(h) - float64(ih)*scale) / 2
	return scale, ox, oy
}

// compose draws img fitted into a w x h black frame with marks on top.
// Mark points are in image pixel space.
func compose(w, h int, img image.Image, marks []engine.Annotation) (image.Image, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", w, h)
	}
	dc := gg.NewContext(w, h)
	defer dc.Close()
	dc.ClearWithColor(gg.Black)

	if img == nil {
		return dc.Image(), nil
	}

	b := img.Bounds()
	scale, ox, oy := fit(w, h, b.Dx(), b.Dy())
	dw := uint(math.Max(1, math.Round(float64(b.Dx())*scale)))
	dh := uint(math.Max(1, math.Round(float64(b.Dy())*scale)))
	scaled := resize.Resize(dw, dh, img, resize.Bilinear)
	dc.DrawImage(gg.ImageBufFromImage(scaled), math.Round(ox), math.Round(oy))

	dc.SetLineWidth(markLineWidth)
	for _, m := range marks {
		switch {
		case m.Selected:
			dc.SetRGB(1, 0.85, 0)
		case m.Locked:
			dc.SetRGB(0.6, 0.6, 0.6)
		default:
			dc.SetRGB(0, 1, 0.4)
		}
		for i, p := range m.Points {
			x, y := ox+p.X*scale, oy+p.Y*scale
			if i > 0 {
				prev := m.Points[i-1]
				dc.DrawLine(ox+prev.X*scale, oy+prev.Y*scale, x, y)
				if err := dc.Stroke(); err != nil {
					return nil, err
				}
			}
			dc.DrawCircle(x, y, markRadius)
			if err := dc.Stroke(); err != nil {
				return nil, err
			}
		}
	}
	return dc.Image(), nil
}
