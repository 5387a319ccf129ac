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

package series

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is the classified format of one file.
type Kind string

const (
	KindDICOM   Kind = "dicom"
	KindRaster  Kind = "raster"
	KindVideo   Kind = "video"
	KindUnknown Kind = "unknown"
)

const (
	// magicOffset is where "DICM" sits after the 128-byte preamble.
	magicOffset = 128
	// HeaderSize is the number of leading bytes read for classification.
	HeaderSize = magicOffset + 4
)

var dicomMagic = []byte("DICM")

var (
	dicomExtensions  = map[string]bool{".dcm": true, ".dicom": true}
	rasterExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
	}
	videoExtensions = map[string]bool{".mp4": true, ".webm": true, ".mov": true, ".ogv": true}
)

// ClassificationError records why a file was excluded from a series.
type ClassificationError struct {
	Name   string
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classify %s: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("classify %s: %s", e.Name, e.Reason)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// IsDICOMDIR reports whether name is a DICOMDIR index file.
func IsDICOMDIR(name string) bool {
	upper := strings.ToUpper(filepath.Base(name))
	return upper == "DICOMDIR" || strings.HasSuffix(upper, ".DICOMDIR")
}

func extOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// kindByName classifies from the extension and declared content type only.
func kindByName(name, contentType string) Kind {
	ext := extOf(name)
	ct := strings.ToLower(contentType)
	switch {
	case dicomExtensions[ext] || ct == "application/dicom":
		return KindDICOM
	case rasterExtensions[ext] || strings.HasPrefix(ct, "image/"):
		return KindRaster
	case videoExtensions[ext] || strings.HasPrefix(ct, "video/"):
		return KindVideo
	}
	return KindUnknown
}

// hasMagic reports whether header carries "DICM" at offset 128. Headers
// shorter than HeaderSize never match.
func hasMagic(header []byte) bool {
	if len(header) < HeaderSize {
		return false
	}
	return bytes.Equal(header[magicOffset:HeaderSize], dicomMagic)
}

// validVRs lists the value representations accepted by the explicit VR sniff.
var validVRs = map[string]bool{
	"AE": true, "AS": true, "AT": true, "CS": true, "DA": true, "DS": true,
	"DT": true, "FD": true, "FL": true, "IS": true, "LO": true, "LT": true,
	"OB": true, "OD": true, "OF": true, "OL": true, "OW": true, "PN": true,
	"SH": true, "SL": true, "SQ": true, "SS": true, "ST": true, "TM": true,
	"UC": true, "UI": true, "UL": true, "UN": true, "UR": true, "US": true,
	"UT": true,
}

// sniffHeader attempts a minimal parse of a preamble-less DICOM stream: the
// first data element must belong to the file meta group (0002) or the
// identifying group (0008) and be encoded as little-endian explicit or
// implicit VR with a length that fits the file.
func sniffHeader(header []byte, size int64) bool {
	if len(header) < 8 {
		return false
	}
	group := binary.LittleEndian.Uint16(header[0:2])
	element := binary.LittleEndian.Uint16(header[2:4])
	if group != 0x0002 && group != 0x0008 {
		return false
	}
	// the first element of either group is a low-numbered one
	if element > 0x0100 {
		return false
	}

	vr := string(header[4:6])
	if validVRs[vr] {
		var length uint32
		switch vr {
		case "OB", "OD", "OF", "OL", "OW", "SQ", "UC", "UN", "UR", "UT":
			if len(header) < 12 {
				return false
			}
			length = binary.LittleEndian.Uint32(header[8:12])
			return length == 0xFFFFFFFF || int64(length)+12 <= size
		default:
			length = uint32(binary.LittleEndian.Uint16(header[6:8]))
			return int64(length)+8 <= size
		}
	}

	// implicit VR little endian: a 32-bit length follows the tag
	length := binary.LittleEndian.Uint32(header[4:8])
	if length == 0xFFFFFFFF {
		return true
	}
	return length > 0 && int64(length)+8 <= size
}
