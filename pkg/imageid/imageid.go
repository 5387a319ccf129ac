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

// Package imageid defines the opaque identifiers the rendering engine uses to
// address one image or frame. The wire form is "<scheme>:<location>";
// consumers dispatch on the scheme and treat the location as opaque.
package imageid

import (
	"fmt"
	"strings"
)

// Scheme is the wire scheme of an identifier.
type Scheme string

const (
	// SchemeDICOMFile addresses a local DICOM file through a blob handle.
	SchemeDICOMFile Scheme = "dicomfile"
	// SchemeWADOURI addresses a DICOM object served over DICOMweb (WADO-URI).
	SchemeWADOURI Scheme = "wadouri"
	// SchemeBlob addresses a local raster or video file through a blob handle.
	SchemeBlob Scheme = "blob"
	// SchemeRawURL addresses a remote raster image by URL.
	SchemeRawURL Scheme = "raw-url"
)

// Kind is the logical source kind behind a scheme.
type Kind string

const (
	KindDICOMFile Kind = "dicom-file"
	KindDICOMWeb  Kind = "dicom-web"
	KindRaster    Kind = "raster"
)

// Kind maps the scheme to its source kind.
func (s Scheme) Kind() Kind {
	switch s {
	case SchemeDICOMFile:
		return KindDICOMFile
	case SchemeWADOURI:
		return KindDICOMWeb
	default:
		return KindRaster
	}
}

// IsDICOM reports whether identifiers of this scheme carry DICOM objects.
func (s Scheme) IsDICOM() bool {
	return s == SchemeDICOMFile || s == SchemeWADOURI
}

// Valid reports whether s is a known scheme.
func (s Scheme) Valid() bool {
	switch s {
	case SchemeDICOMFile, SchemeWADOURI, SchemeBlob, SchemeRawURL:
		return true
	}
	return false
}

// ID is an immutable image identifier. The zero value is invalid.
type ID struct {
	scheme   Scheme
	location string
}

// New creates an identifier. It fails on an unknown scheme or empty location.
func New(scheme Scheme, location string) (ID, error) {
	if !scheme.Valid() {
		return ID{}, fmt.Errorf("unknown image identifier scheme %q", scheme)
	}
	if location == "" {
		return ID{}, fmt.Errorf("empty location for scheme %q", scheme)
	}
	return ID{scheme: scheme, location: location}, nil
}

// MustNew is New for identifiers built from trusted parts; it panics on error.
func MustNew(scheme Scheme, location string) ID {
	id, err := New(scheme, location)
	if err != nil {
		panic(err)
	}
	return id
}

// Parse parses the "<scheme>:<location>" wire form. The location may itself
// contain colons (URLs do).
func Parse(s string) (ID, error) {
	scheme, location, ok := strings.Cut(s, ":")
	if !ok {
		return ID{}, fmt.Errorf("malformed image identifier %q: missing scheme", s)
	}
	return New(Scheme(scheme), location)
}

// Scheme returns the wire scheme.
func (id ID) Scheme() Scheme { return id.scheme }

// Location returns the opaque location.
func (id ID) Location() string { return id.location }

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id.scheme == "" && id.location == "" }

// String returns the wire form.
func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	return string(id.scheme) + ":" + id.location
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Strings returns the wire forms of ids.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
