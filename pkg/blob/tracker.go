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

package blob

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// URLScheme prefixes handle URLs.
const URLScheme = "blob"

// Handle is a revocable reference to one RawFile.
type Handle struct {
	id        string
	owner     string
	file      *RawFile
	createdAt time.Time
	revoked   atomic.Bool
	tracker   *Tracker
}

// ID returns the handle id. It is the location part of image identifiers.
func (h *Handle) ID() string { return h.id }

// Owner returns the owner the handle was created for.
func (h *Handle) Owner() string { return h.owner }

// Name returns the underlying file name. Metadata stays readable after
// revocation; content does not.
func (h *Handle) Name() string { return h.file.Name() }

// ContentType returns the underlying declared content type.
func (h *Handle) ContentType() string { return h.file.ContentType() }

// Size returns the underlying file size.
func (h *Handle) Size() int64 { return h.file.Size() }

// URL returns "blob:<id>".
func (h *Handle) URL() string { return URLScheme + ":" + h.id }

// Revoked reports whether the handle has been revoked.
func (h *Handle) Revoked() bool { return h.revoked.Load() }

// Revoke revokes the handle. It reports whether this call did the revoking;
// revoking twice is a no-op.
func (h *Handle) Revoke() bool {
	if h.tracker != nil {
		return h.tracker.Revoke(h.id)
	}
	return h.revoked.CompareAndSwap(false, true)
}

// Open returns a reader over the file content.
func (h *Handle) Open() (io.ReadCloser, error) {
	if h.Revoked() {
		return nil, ErrRevoked
	}
	return h.file.open()
}

// ReadHeader synchronously reads up to n leading bytes.
func (h *Handle) ReadHeader(n int) ([]byte, error) {
	if h.Revoked() {
		return nil, ErrRevoked
	}
	return h.file.readHeader(n)
}

// ReadAll reads the whole file.
func (h *Handle) ReadAll() ([]byte, error) {
	if h.Revoked() {
		return nil, ErrRevoked
	}
	return h.file.readAll()
}

// Tracker creates handles lazily, one per live RawFile, and revokes them.
// Thread-safe.
type Tracker struct {
	mu      sync.RWMutex
	handles map[string]*Handle
	byFile  map[fileKey]*Handle
	owners  map[string][]string
	revoked map[string]struct{}
	logger  *zap.Logger

	created      atomic.Int64
	revokedTotal atomic.Int64
}

// Stats holds tracker statistics. Live should be zero once every series has
// been discarded; anything else is a leak.
type Stats struct {
	Live    int
	Owners  int
	Created int64
	Revoked int64
}

// NewTracker creates an empty tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		handles: make(map[string]*Handle),
		byFile:  make(map[fileKey]*Handle),
		owners:  make(map[string][]string),
		revoked: make(map[string]struct{}),
		logger:  logger,
	}
}

// fileKey scopes handles per owner so that two series built from the same
// file never share, and never revoke, each other's handle.
type fileKey struct {
	owner string
	file  *RawFile
}

// Handle returns owner's live handle for f, creating one if there is none.
// A file whose handle was revoked gets a fresh handle.
func (t *Tracker) Handle(owner string, f *RawFile) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := fileKey{owner: owner, file: f}
	if h, ok := t.byFile[key]; ok {
		return h
	}

	h := &Handle{
		id:        uuid.NewString(),
		owner:     owner,
		file:      f,
		createdAt: time.Now(),
		tracker:   t,
	}
	t.handles[h.id] = h
	t.byFile[key] = h
	t.owners[owner] = append(t.owners[owner], h.id)
	t.created.Add(1)

	t.logger.Debug("blob handle created",
		zap.String("handle", h.id),
		zap.String("owner", owner),
		zap.String("file", f.Name()))
	return h
}

// Resolve returns the live handle with the given id.
func (t *Tracker) Resolve(id string) (*Handle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if h, ok := t.handles[id]; ok {
		return h, nil
	}
	if _, ok := t.revoked[id]; ok {
		return nil, ErrRevoked
	}
	return nil, ErrNotFound
}

// Revoke revokes the handle with the given id and reports whether this call
// did the revoking. Unknown and already revoked ids are no-ops.
func (t *Tracker) Revoke(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.revokeLocked(id)
}

func (t *Tracker) revokeLocked(id string) bool {
	h, ok := t.handles[id]
	if !ok {
		return false
	}
	if !h.revoked.CompareAndSwap(false, true) {
		return false
	}

	delete(t.handles, id)
	delete(t.byFile, fileKey{owner: h.owner, file: h.file})
	t.revoked[id] = struct{}{}

	ids := t.owners[h.owner]
	for i, other := range ids {
		if other == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(t.owners, h.owner)
	} else {
		t.owners[h.owner] = ids
	}

	t.revokedTotal.Add(1)
	t.logger.Debug("blob handle revoked",
		zap.String("handle", id),
		zap.String("owner", h.owner))
	return true
}

// ReleaseOwner revokes every live handle of owner and returns how many were
// revoked. Releasing an unknown owner returns 0.
func (t *Tracker) ReleaseOwner(owner string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := append([]string(nil), t.owners[owner]...)
	count := 0
	for _, id := range ids {
		if t.revokeLocked(id) {
			count++
		}
	}
	return count
}

// OwnerHandles returns the ids of owner's live handles.
func (t *Tracker) OwnerHandles(owner string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.owners[owner]...)
}

// Stats returns tracker statistics.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Stats{
		Live:    len(t.handles),
		Owners:  len(t.owners),
		Created: t.created.Load(),
		Revoked: t.revokedTotal.Load(),
	}
}
