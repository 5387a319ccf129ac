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

package decode

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	"github.com/disintegration/imageorient"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/teradata-labs/planeview/pkg/metadata"
)

// decodeRaster decodes a raster image, applying any EXIF orientation.
func decodeRaster(data []byte, r *Record) error {
	img, _, err := imageorient.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	r.Image = img
	r.Frames = 1
	b := img.Bounds()
	r.Metadata = metadata.SeriesMetadata{Rows: b.Dy(), Columns: b.Dx()}
	return nil
}

// rasterMetadata reads only the dimensions. Raster images carry no
// placement geometry.
func rasterMetadata(data []byte) (metadata.SeriesMetadata, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return metadata.SeriesMetadata{}, fmt.Errorf("failed to decode image header: %w", err)
	}
	return metadata.SeriesMetadata{Rows: cfg.Height, Columns: cfg.Width}, nil
}
