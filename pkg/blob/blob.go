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

// Package blob wraps raw uploaded files in revocable handles and owns their
// lifecycle.
//
// Every read of file content goes through a Handle, and a revoked Handle
// refuses reads with ErrRevoked, so use-after-revoke cannot happen by
// accident. Handles are grouped by owner (normally a series id) so that a
// whole series can be released in one call:
//
//	tracker := blob.NewTracker(logger)
//	h := tracker.Handle(seriesID, file)
//	...
//	tracker.ReleaseOwner(seriesID) // revokes every handle of the series
package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrRevoked is returned when a revoked handle is used.
	ErrRevoked = errors.New("blob handle revoked")
	// ErrNotFound is returned when a handle id is unknown to the tracker.
	ErrNotFound = errors.New("blob handle not found")
)

// RawFile is an immutable uploaded file: a name, a declared content type and
// a byte source. It is either held in memory or read lazily from disk, in
// which case reads can fail with I/O errors.
type RawFile struct {
	name        string
	contentType string
	data        []byte
	path        string
	size        int64
}

// NewRawFile creates an in-memory file. data is copied.
func NewRawFile(name, contentType string, data []byte) *RawFile {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &RawFile{
		name:        name,
		contentType: contentType,
		data:        buf,
		size:        int64(len(buf)),
	}
}

// OpenRawFile creates a disk-backed file. Content is not read until a
// handle reads it. The content type is guessed from the extension.
func OpenRawFile(path string) (*RawFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	name := filepath.Base(path)
	return &RawFile{
		name:        name,
		contentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(name))),
		path:        path,
		size:        info.Size(),
	}, nil
}

// Name returns the file name.
func (f *RawFile) Name() string { return f.name }

// ContentType returns the declared content type, possibly empty.
func (f *RawFile) ContentType() string { return f.contentType }

// Size returns the size in bytes.
func (f *RawFile) Size() int64 { return f.size }

func (f *RawFile) open() (io.ReadCloser, error) {
	if f.path == "" {
		return io.NopCloser(bytes.NewReader(f.data)), nil
	}
	return os.Open(f.path)
}

// readHeader reads up to n bytes from the start of the file. A file shorter
// than n yields its whole content without error.
func (f *RawFile) readHeader(n int) ([]byte, error) {
	if f.path == "" {
		if len(f.data) < n {
			n = len(f.data)
		}
		out := make([]byte, n)
		copy(out, f.data[:n])
		return out, nil
	}

	r, err := f.open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

func (f *RawFile) readAll() ([]byte, error) {
	if f.path == "" {
		out := make([]byte, len(f.data))
		copy(out, f.data)
		return out, nil
	}
	return os.ReadFile(f.path)
}
