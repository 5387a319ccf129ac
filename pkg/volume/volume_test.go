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

package volume

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/planeview/pkg/imageid"
	"github.com/teradata-labs/planeview/pkg/metadata"
)

type fakeProbe struct {
	byLocation map[string]metadata.SeriesMetadata
	err        error
	calls      atomic.Int32
	lastID     imageid.ID
}

func (f *fakeProbe) Get(_ context.Context, id imageid.ID) (metadata.SeriesMetadata, error) {
	f.calls.Add(1)
	f.lastID = id
	if f.err != nil {
		return metadata.SeriesMetadata{}, f.err
	}
	return f.byLocation[id.Location()], nil
}

func ids(n int) []imageid.ID {
	out := make([]imageid.ID, n)
	for i := range out {
		out[i] = imageid.MustNew(imageid.SchemeDICOMFile, fmt.Sprintf("slice-%d", i))
	}
	return out
}

func complete() metadata.SeriesMetadata {
	return metadata.SeriesMetadata{
		PixelSpacing:   []float64{0.7, 0.7},
		Orientation:    []float64{1, 0, 0, 0, 1, 0},
		Position:       []float64{-100, -100, 0},
		SliceThickness: metadata.Float(2),
	}
}

func TestCanFormVolume_TooFewNeverProbes(t *testing.T) {
	p := &fakeProbe{byLocation: map[string]metadata.SeriesMetadata{"slice-0": complete()}}
	d := NewDecider(p, nil)
	for n := 0; n < MinSlices; n++ {
		assert.False(t, d.CanFormVolume(context.Background(), ids(n)), "n=%d", n)
	}
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestCanFormVolume_AllFieldsRequired(t *testing.T) {
	strip := map[metadata.Field]func(*metadata.SeriesMetadata){
		metadata.FieldPixelSpacing:   func(m *metadata.SeriesMetadata) { m.PixelSpacing = []float64{} },
		metadata.FieldOrientation:    func(m *metadata.SeriesMetadata) { m.Orientation = nil },
		metadata.FieldPosition:       func(m *metadata.SeriesMetadata) { m.Position = nil },
		metadata.FieldSliceThickness: func(m *metadata.SeriesMetadata) { m.SliceThickness = nil },
	}

	p := &fakeProbe{byLocation: map[string]metadata.SeriesMetadata{"slice-0": complete()}}
	d := NewDecider(p, nil)
	for _, n := range []int{3, 5, 40} {
		assert.True(t, d.CanFormVolume(context.Background(), ids(n)), "n=%d", n)
	}

	for field, fn := range strip {
		t.Run(string(field), func(t *testing.T) {
			m := complete()
			fn(&m)
			p := &fakeProbe{byLocation: map[string]metadata.SeriesMetadata{"slice-0": m}}
			dec := NewDecider(p, nil).Explain(context.Background(), ids(5))
			assert.False(t, dec.Volume)
			assert.Equal(t, ReasonMissingGeometry, dec.Reason)
			assert.Equal(t, []metadata.Field{field}, dec.Missing)
		})
	}
}

func TestCanFormVolume_ProbesFirstOnly(t *testing.T) {
	// later slices lack geometry, only the first is consulted
	p := &fakeProbe{byLocation: map[string]metadata.SeriesMetadata{"slice-0": complete()}}
	d := NewDecider(p, nil)
	require.True(t, d.CanFormVolume(context.Background(), ids(4)))
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, "slice-0", p.lastID.Location())
}

func TestCanFormVolume_ProbeFailureIsFalse(t *testing.T) {
	boom := errors.New("decode failed")
	d := NewDecider(&fakeProbe{err: boom}, nil)

	dec := d.Explain(context.Background(), ids(3))
	assert.False(t, dec.Volume)
	assert.Equal(t, ReasonProbeFailed, dec.Reason)
	assert.ErrorIs(t, dec.Err, boom)
	assert.Contains(t, dec.String(), "decode failed")
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "volume (3 slices)", Decision{Volume: true, Slices: 3}.String())
	assert.Equal(t, "stack: too few slices (1 slices)", Decision{Reason: ReasonTooFewSlices, Slices: 1}.String())
	assert.Equal(t, "stack: missing geometry (orientation)",
		Decision{Reason: ReasonMissingGeometry, Missing: []metadata.Field{metadata.FieldOrientation}}.String())
}
