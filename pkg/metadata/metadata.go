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

// Package metadata holds per-image geometric and acquisition attributes and
// the probe that fetches and caches them by image identifier.
package metadata

import (
	"context"
	"slices"

	"github.com/teradata-labs/planeview/pkg/imageid"
)

// SeriesMetadata is the optional attribute bag of one image. Values are
// never mutated after construction; a refetch replaces the whole value.
type SeriesMetadata struct {
	// PixelSpacing is row spacing then column spacing in mm (2 values).
	PixelSpacing []float64 `json:"pixelSpacing,omitempty" yaml:"pixel_spacing,omitempty"`
	// Orientation is the row then column direction cosines (6 values).
	Orientation []float64 `json:"orientation,omitempty" yaml:"orientation,omitempty"`
	// Position is the patient-space position of the first voxel (3 values).
	Position []float64 `json:"position,omitempty" yaml:"position,omitempty"`
	// SliceThickness in mm; nil when absent.
	SliceThickness *float64 `json:"sliceThickness,omitempty" yaml:"slice_thickness,omitempty"`

	Rows    int `json:"rows,omitempty" yaml:"rows,omitempty"`
	Columns int `json:"columns,omitempty" yaml:"columns,omitempty"`

	FrameOfReferenceUID string `json:"frameOfReferenceUID,omitempty" yaml:"frame_of_reference_uid,omitempty"`
	StudyInstanceUID    string `json:"studyInstanceUID,omitempty" yaml:"study_instance_uid,omitempty"`
	InstanceNumber      int    `json:"instanceNumber,omitempty" yaml:"instance_number,omitempty"`
	Modality            string `json:"modality,omitempty" yaml:"modality,omitempty"`
}

// Field names a geometric field required for volume placement.
type Field string

const (
	FieldPixelSpacing   Field = "pixelSpacing"
	FieldOrientation    Field = "orientation"
	FieldPosition       Field = "position"
	FieldSliceThickness Field = "sliceThickness"
)

// GeometryFields lists the four fields that place a slice in 3-D space.
var GeometryFields = []Field{FieldPixelSpacing, FieldOrientation, FieldPosition, FieldSliceThickness}

// MissingGeometry returns the geometric fields that are absent or empty.
func (m SeriesMetadata) MissingGeometry() []Field {
	var missing []Field
	if len(m.PixelSpacing) == 0 {
		missing = append(missing, FieldPixelSpacing)
	}
	if len(m.Orientation) == 0 {
		missing = append(missing, FieldOrientation)
	}
	if len(m.Position) == 0 {
		missing = append(missing, FieldPosition)
	}
	if m.SliceThickness == nil {
		missing = append(missing, FieldSliceThickness)
	}
	return missing
}

// HasGeometry reports whether all four geometric fields are present.
func (m SeriesMetadata) HasGeometry() bool {
	return len(m.MissingGeometry()) == 0
}

// Clone returns a deep copy.
func (m SeriesMetadata) Clone() SeriesMetadata {
	out := m
	out.PixelSpacing = slices.Clone(m.PixelSpacing)
	out.Orientation = slices.Clone(m.Orientation)
	out.Position = slices.Clone(m.Position)
	if m.SliceThickness != nil {
		v := *m.SliceThickness
		out.SliceThickness = &v
	}
	return out
}

// Float returns a pointer to v, for building SliceThickness literals.
func Float(v float64) *float64 { return &v }

// Source fetches the attributes of one image, typically by decoding its
// header through the decode cache.
type Source interface {
	Fetch(ctx context.Context, id imageid.ID) (SeriesMetadata, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, id imageid.ID) (SeriesMetadata, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context, id imageid.ID) (SeriesMetadata, error) {
	return f(ctx, id)
}
