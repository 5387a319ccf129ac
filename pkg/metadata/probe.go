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

package metadata

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/teradata-labs/planeview/internal/csync"
	"github.com/teradata-labs/planeview/pkg/imageid"
)

// DefaultProbeTimeout bounds one fetch from the source.
const DefaultProbeTimeout = 10 * time.Second

// Probe caches SeriesMetadata by identifier. Concurrent misses for the same
// identifier share one fetch.
type Probe struct {
	source  Source
	timeout time.Duration
	cache   *csync.Map[string, *SeriesMetadata]
	flight  singleflight.Group
	logger  *zap.Logger
}

// NewProbe creates a probe over source. A non-positive timeout selects
// DefaultProbeTimeout.
func NewProbe(source Source, timeout time.Duration, logger *zap.Logger) *Probe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{
		source:  source,
		timeout: timeout,
		cache:   csync.NewMap[string, *SeriesMetadata](),
		logger:  logger,
	}
}

// Get returns the cached attributes of id, fetching them on a miss.
func (p *Probe) Get(ctx context.Context, id imageid.ID) (SeriesMetadata, error) {
	if m, ok := p.cache.Get(id.String()); ok {
		return m.Clone(), nil
	}
	return p.fetch(ctx, id)
}

// Refetch fetches id again and replaces the cached value wholesale. The old
// value stays cached if the fetch fails.
func (p *Probe) Refetch(ctx context.Context, id imageid.ID) (SeriesMetadata, error) {
	return p.fetch(ctx, id)
}

// Invalidate drops the cached value of id.
func (p *Probe) Invalidate(id imageid.ID) {
	p.cache.Delete(id.String())
}

// Cached reports whether id has a cached value.
func (p *Probe) Cached(id imageid.ID) bool {
	_, ok := p.cache.Get(id.String())
	return ok
}

func (p *Probe) fetch(ctx context.Context, id imageid.ID) (SeriesMetadata, error) {
	key := id.String()
	// The shared fetch outlives any one caller; each caller stops waiting
	// when its own ctx is done.
	ch := p.flight.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		type result struct {
			m   SeriesMetadata
			err error
		}
		done := make(chan result, 1)
		go func() {
			m, err := p.source.Fetch(fetchCtx, id)
			done <- result{m: m, err: err}
		}()

		var r result
		select {
		case r = <-done:
		case <-fetchCtx.Done():
			r.err = fetchCtx.Err()
		}
		if r.err != nil {
			return nil, fmt.Errorf("metadata probe for %s: %w", key, r.err)
		}

		stored := r.m.Clone()
		p.cache.Set(key, &stored)
		return &stored, nil
	})

	var (
		v   interface{}
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = fmt.Errorf("metadata probe for %s: %w", key, ctx.Err())
	}
	if err != nil {
		p.logger.Debug("metadata probe failed", zap.String("image_id", key), zap.Error(err))
		return SeriesMetadata{}, err
	}
	return v.(*SeriesMetadata).Clone(), nil
}
