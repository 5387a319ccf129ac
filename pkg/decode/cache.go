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

// Package decode loads images addressed by identifiers into memory and
// caches them. It is the decode cache the viewer core consumes: the engine
// reads pixel records from it and the metadata probe reads attributes.
package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/teradata-labs/planeview/internal/csync"
	"github.com/teradata-labs/planeview/pkg/blob"
	"github.com/teradata-labs/planeview/pkg/imageid"
	"github.com/teradata-labs/planeview/pkg/metadata"
)

var (
	// ErrUnsupportedScheme is returned for identifiers that need network
	// retrieval.
	ErrUnsupportedScheme = errors.New("unsupported identifier scheme")
	// ErrNoPixelData is returned for DICOM objects without an image.
	ErrNoPixelData = errors.New("no pixel data")
)

// Error is a decode failure for one identifier.
type Error struct {
	ID  imageid.ID
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode %s: %s: %v", e.ID, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Record is one decoded image.
type Record struct {
	ID       imageid.ID
	Name     string
	Metadata metadata.SeriesMetadata
	// Image is the display image: 8-bit gray for monochrome DICOM, the
	// decoded raster otherwise.
	Image    image.Image
	Frames   int
	Size     int64
	LoadedAt time.Time
}

// Width returns the image width in pixels.
func (r *Record) Width() int { return r.Image.Bounds().Dx() }

// Height returns the image height in pixels.
func (r *Record) Height() int { return r.Image.Bounds().Dy() }

// Gray returns the image as 8-bit gray, converting if needed.
func (r *Record) Gray() *image.Gray {
	if g, ok := r.Image.(*image.Gray); ok {
		return g
	}
	out := image.NewGray(r.Image.Bounds())
	draw.Draw(out, out.Bounds(), r.Image, r.Image.Bounds().Min, draw.Src)
	return out
}

// Stats holds cache counters.
type Stats struct {
	Records int
	Hits    int64
	Misses  int64
	Errors  int64
}

// Cache decodes images behind blob handles and keeps the records.
// Thread-safe.
type Cache struct {
	tracker *blob.Tracker
	records *csync.Map[string, *Record]
	flight  singleflight.Group
	logger  *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
}

// NewCache creates a cache that resolves identifiers through tracker.
func NewCache(tracker *blob.Tracker, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		tracker: tracker,
		records: csync.NewMap[string, *Record](),
		logger:  logger,
	}
}

// LoadAndCache returns the record for id, decoding it on a miss. Failures
// are *Error and are not cached.
func (c *Cache) LoadAndCache(ctx context.Context, id imageid.ID) (*Record, error) {
	key := id.String()
	if r, ok := c.records.Get(key); ok {
		c.hits.Add(1)
		return r, nil
	}
	c.misses.Add(1)

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, &Error{ID: id, Op: "load", Err: err}
		}
		r, err := c.load(id)
		if err != nil {
			return nil, err
		}
		c.records.Set(key, r)
		return r, nil
	})
	if err != nil {
		c.errs.Add(1)
		c.logger.Debug("Decode failed", zap.String("image", key), zap.Error(err))
		return nil, err
	}
	return v.(*Record), nil
}

// Fetch returns the attributes of id. A cached record answers directly;
// otherwise only the header is decoded and nothing is cached, leaving
// caching of attributes to the metadata probe.
func (c *Cache) Fetch(ctx context.Context, id imageid.ID) (metadata.SeriesMetadata, error) {
	if r, ok := c.records.Get(id.String()); ok {
		return r.Metadata.Clone(), nil
	}
	if err := ctx.Err(); err != nil {
		return metadata.SeriesMetadata{}, &Error{ID: id, Op: "metadata", Err: err}
	}

	h, err := c.resolve(id)
	if err != nil {
		return metadata.SeriesMetadata{}, err
	}
	data, err := h.ReadAll()
	if err != nil {
		return metadata.SeriesMetadata{}, &Error{ID: id, Op: "read", Err: err}
	}

	var m metadata.SeriesMetadata
	if id.Scheme().IsDICOM() {
		m, err = dicomMetadata(data)
	} else {
		m, err = rasterMetadata(data)
	}
	if err != nil {
		return metadata.SeriesMetadata{}, &Error{ID: id, Op: "metadata", Err: err}
	}
	return m, nil
}

// Evict drops the record for id.
func (c *Cache) Evict(id imageid.ID) {
	c.records.Delete(id.String())
}

// EvictAll drops the records of ids.
func (c *Cache) EvictAll(ids []imageid.ID) {
	for _, id := range ids {
		c.Evict(id)
	}
}

// Purge drops every record.
func (c *Cache) Purge() {
	c.records.Drain()
}

// Stats returns cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Records: c.records.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errs.Load(),
	}
}

func (c *Cache) resolve(id imageid.ID) (*blob.Handle, error) {
	switch id.Scheme() {
	case imageid.SchemeDICOMFile, imageid.SchemeBlob:
	default:
		return nil, &Error{ID: id, Op: "resolve", Err: ErrUnsupportedScheme}
	}
	h, err := c.tracker.Resolve(id.Location())
	if err != nil {
		return nil, &Error{ID: id, Op: "resolve", Err: err}
	}
	return h, nil
}

func (c *Cache) load(id imageid.ID) (*Record, error) {
	start := time.Now()
	h, err := c.resolve(id)
	if err != nil {
		return nil, err
	}
	data, err := h.ReadAll()
	if err != nil {
		return nil, &Error{ID: id, Op: "read", Err: err}
	}

	r := &Record{ID: id, Name: h.Name(), Size: int64(len(data)), LoadedAt: time.Now()}
	if id.Scheme().IsDICOM() {
		err = decodeDICOM(data, r)
	} else {
		err = decodeRaster(data, r)
	}
	if err != nil {
		return nil, &Error{ID: id, Op: "decode", Err: err}
	}

	c.logger.Debug("Image decoded",
		zap.String("image", id.String()),
		zap.String("name", r.Name),
		zap.Int("width", r.Width()),
		zap.Int("height", r.Height()),
		zap.Duration("duration", time.Since(start)))
	return r, nil
}
