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

// Package series classifies uploaded files and assembles them into an
// ordered image series addressed by scheme-tagged identifiers.
package series

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/blob"
	"github.com/teradata-labs/planeview/pkg/imageid"
)

// ErrNoValidImages is returned when no input file could be classified.
var ErrNoValidImages = errors.New("no valid images")

// ViewerType selects the viewer that displays a series.
type ViewerType string

const (
	ViewerDICOM ViewerType = "dicom"
	ViewerImage ViewerType = "image"
	ViewerVideo ViewerType = "video"
)

// Series is an ordered set of image identifiers of one format. Handles
// backing the identifiers are owned by the series id and revoked by Destroy.
type Series struct {
	ID          string
	Identifiers []imageid.ID
	Format      Kind
	Viewer      ViewerType
	// Names holds the source file name of each identifier, same order.
	Names []string
	// Rejected lists the input files that were excluded.
	Rejected []*ClassificationError
	// FromDICOMDIR is set when a DICOMDIR forced dicom mode.
	FromDICOMDIR bool

	tracker   *blob.Tracker
	destroyed atomic.Bool
	once      sync.Once
}

// Len returns the number of identifiers.
func (s *Series) Len() int { return len(s.Identifiers) }

// Destroy revokes every handle of the series. Safe to call repeatedly.
func (s *Series) Destroy() int {
	revoked := 0
	s.once.Do(func() {
		s.destroyed.Store(true)
		if s.tracker != nil {
			revoked = s.tracker.ReleaseOwner(s.ID)
		}
	})
	return revoked
}

// Destroyed reports whether Destroy has run.
func (s *Series) Destroyed() bool { return s.destroyed.Load() }

// Builder classifies files and builds series. Thread-safe.
type Builder struct {
	tracker *blob.Tracker
	logger  *zap.Logger
}

// NewBuilder creates a builder that registers handles with tracker.
func NewBuilder(tracker *blob.Tracker, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{tracker: tracker, logger: logger}
}

type candidate struct {
	file   *blob.RawFile
	handle *blob.Handle
	kind   Kind
}

// Build classifies files and assembles one series. Files are ordered by
// ascending name. Any dicom file makes a dicom series holding only the dicom
// files; otherwise raster files make an image series; otherwise the first
// video makes a single-identifier video series. Handles of files that end up
// excluded are revoked before Build returns.
func (b *Builder) Build(files []*blob.RawFile) (*Series, error) {
	s := &Series{ID: uuid.NewString(), tracker: b.tracker}

	ordered := make([]*blob.RawFile, 0, len(files))
	for _, f := range files {
		if f != nil {
			ordered = append(ordered, f)
		}
	}
	slices.SortStableFunc(ordered, func(a, b *blob.RawFile) int {
		return strings.Compare(a.Name(), b.Name())
	})

	forced := slices.ContainsFunc(ordered, func(f *blob.RawFile) bool { return IsDICOMDIR(f.Name()) })

	var candidates []candidate
	for _, f := range ordered {
		if forced && IsDICOMDIR(f.Name()) {
			continue
		}
		h := b.tracker.Handle(s.ID, f)
		kind := KindDICOM
		if !forced {
			kind = b.classify(h)
		}
		if kind == KindUnknown {
			s.Rejected = append(s.Rejected, &ClassificationError{Name: f.Name(), Reason: "unrecognized format"})
			h.Revoke()
			continue
		}
		candidates = append(candidates, candidate{file: f, handle: h, kind: kind})
	}

	switch {
	case hasKind(candidates, KindDICOM):
		s.Format, s.Viewer = KindDICOM, ViewerDICOM
	case hasKind(candidates, KindRaster):
		s.Format, s.Viewer = KindRaster, ViewerImage
	case hasKind(candidates, KindVideo):
		s.Format, s.Viewer = KindVideo, ViewerVideo
	default:
		b.tracker.ReleaseOwner(s.ID)
		b.logger.Warn("No valid images in input",
			zap.Int("files", len(files)),
			zap.Int("rejected", len(s.Rejected)))
		return nil, ErrNoValidImages
	}
	s.FromDICOMDIR = forced

	scheme := imageid.SchemeBlob
	if s.Format == KindDICOM {
		scheme = imageid.SchemeDICOMFile
	}
	for _, c := range candidates {
		if c.kind != s.Format || (s.Format == KindVideo && len(s.Identifiers) == 1) {
			reason := "excluded from " + string(s.Format) + " series"
			s.Rejected = append(s.Rejected, &ClassificationError{Name: c.file.Name(), Reason: reason})
			c.handle.Revoke()
			continue
		}
		s.Identifiers = append(s.Identifiers, imageid.MustNew(scheme, c.handle.ID()))
		s.Names = append(s.Names, c.file.Name())
	}

	b.logger.Debug("Series built",
		zap.String("series", s.ID),
		zap.String("format", string(s.Format)),
		zap.Int("identifiers", len(s.Identifiers)),
		zap.Int("rejected", len(s.Rejected)),
		zap.Bool("dicomdir", forced))
	return s, nil
}

// Classify returns the format of a single file without building a series.
// A temporary handle is used and revoked before returning.
func (b *Builder) Classify(f *blob.RawFile) Kind {
	owner := "classify-" + uuid.NewString()
	defer b.tracker.ReleaseOwner(owner)
	return b.classify(b.tracker.Handle(owner, f))
}

func (b *Builder) classify(h *blob.Handle) Kind {
	byName := kindByName(h.Name(), h.ContentType())
	if byName == KindDICOM {
		return KindDICOM
	}

	header, err := h.ReadHeader(HeaderSize)
	if err != nil {
		b.logger.Warn("Header read failed, classifying by name",
			zap.String("file", h.Name()),
			zap.String("kind", string(byName)),
			zap.Error(err))
		return byName
	}
	if hasMagic(header) {
		return KindDICOM
	}
	if byName == KindUnknown && sniffHeader(header, h.Size()) {
		return KindDICOM
	}
	return byName
}

func hasKind(cs []candidate, k Kind) bool {
	return slices.ContainsFunc(cs, func(c candidate) bool { return c.kind == k })
}
