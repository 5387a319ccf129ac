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

// Package dicomtest encodes small Part-10 DICOM files for tests. Output is
// explicit VR little endian with native 16-bit monochrome pixel data.
package dicomtest

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
)

const explicitVRLittleEndian = "1.2.840.10008.1.2.1"

// Slice describes one encoded image. Nil vectors and a zero SliceThickness
// are omitted from the output, which is how tests produce incomplete
// geometry.
type Slice struct {
	Rows, Columns    int
	PixelSpacing     []float64
	Orientation      []float64
	Position         []float64
	SliceThickness   float64
	InstanceNumber   int
	FrameOfReference string
	StudyUID         string
	Modality         string
	// Pixel returns the stored value at (x, y); nil fills a gradient.
	Pixel func(x, y int) uint16
}

// Axial returns a complete axial slice at height z.
func Axial(rows, cols int, z float64) Slice {
	return Slice{
		Rows:             rows,
		Columns:          cols,
		PixelSpacing:     []float64{0.5, 0.5},
		Orientation:      []float64{1, 0, 0, 0, 1, 0},
		Position:         []float64{0, 0, z},
		SliceThickness:   1,
		FrameOfReference: "1.2.826.0.1.3680043.8.498.1",
		StudyUID:         "1.2.826.0.1.3680043.8.498.2",
		Modality:         "CT",
	}
}

// Encode returns the file bytes for s.
func Encode(s Slice) []byte {
	var ds bytes.Buffer
	if s.Modality != "" {
		writeString(&ds, 0x0008, 0x0060, "CS", s.Modality)
	}
	if s.SliceThickness > 0 {
		writeString(&ds, 0x0018, 0x0050, "DS", formatFloats([]float64{s.SliceThickness}))
	}
	if s.StudyUID != "" {
		writeString(&ds, 0x0020, 0x000D, "UI", s.StudyUID)
	}
	if s.InstanceNumber > 0 {
		writeString(&ds, 0x0020, 0x0013, "IS", strconv.Itoa(s.InstanceNumber))
	}
	if len(s.Position) > 0 {
		writeString(&ds, 0x0020, 0x0032, "DS", formatFloats(s.Position))
	}
	if len(s.Orientation) > 0 {
		writeString(&ds, 0x0020, 0x0037, "DS", formatFloats(s.Orientation))
	}
	if s.FrameOfReference != "" {
		writeString(&ds, 0x0020, 0x0052, "UI", s.FrameOfReference)
	}
	writeUS(&ds, 0x0028, 0x0002, 1)
	writeString(&ds, 0x0028, 0x0004, "CS", "MONOCHROME2")
	writeString(&ds, 0x0028, 0x0008, "IS", "1")
	writeUS(&ds, 0x0028, 0x0010, s.Rows)
	writeUS(&ds, 0x0028, 0x0011, s.Columns)
	if len(s.PixelSpacing) > 0 {
		writeString(&ds, 0x0028, 0x0030, "DS", formatFloats(s.PixelSpacing))
	}
	writeUS(&ds, 0x0028, 0x0100, 16)
	writeUS(&ds, 0x0028, 0x0101, 16)
	writeUS(&ds, 0x0028, 0x0102, 15)
	writeUS(&ds, 0x0028, 0x0103, 0)

	pixel := s.Pixel
	if pixel == nil {
		pixel = func(x, y int) uint16 { return uint16((x + y) * 16) }
	}
	pixels := make([]byte, 0, s.Rows*s.Columns*2)
	for y := 0; y < s.Rows; y++ {
		for x := 0; x < s.Columns; x++ {
			pixels = binary.LittleEndian.AppendUint16(pixels, pixel(x, y))
		}
	}
	writeLong(&ds, 0x7FE0, 0x0010, "OW", pixels)

	var meta bytes.Buffer
	writeLong(&meta, 0x0002, 0x0001, "OB", []byte{0x00, 0x01})
	writeString(&meta, 0x0002, 0x0002, "UI", "1.2.840.10008.5.1.4.1.1.2")
	writeString(&meta, 0x0002, 0x0003, "UI", "1.2.826.0.1.3680043.8.498."+strconv.Itoa(s.InstanceNumber+100))
	writeString(&meta, 0x0002, 0x0010, "UI", explicitVRLittleEndian)

	var out bytes.Buffer
	out.Write(make([]byte, 128))
	out.WriteString("DICM")
	writeTag(&out, 0x0002, 0x0000, "UL")
	out.Write(binary.LittleEndian.AppendUint16(nil, 4))
	out.Write(binary.LittleEndian.AppendUint32(nil, uint32(meta.Len())))
	out.Write(meta.Bytes())
	out.Write(ds.Bytes())
	return out.Bytes()
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, `\`)
}

func writeTag(b *bytes.Buffer, group, element uint16, vr string) {
	b.Write(binary.LittleEndian.AppendUint16(nil, group))
	b.Write(binary.LittleEndian.AppendUint16(nil, element))
	b.WriteString(vr)
}

func writeString(b *bytes.Buffer, group, element uint16, vr, value string) {
	data := []byte(value)
	if len(data)%2 == 1 {
		pad := byte(' ')
		if vr == "UI" {
			pad = 0
		}
		data = append(data, pad)
	}
	writeTag(b, group, element, vr)
	b.Write(binary.LittleEndian.AppendUint16(nil, uint16(len(data))))
	b.Write(data)
}

func writeUS(b *bytes.Buffer, group, element uint16, v int) {
	writeTag(b, group, element, "US")
	b.Write(binary.LittleEndian.AppendUint16(nil, 2))
	b.Write(binary.LittleEndian.AppendUint16(nil, uint16(v)))
}

func writeLong(b *bytes.Buffer, group, element uint16, vr string, data []byte) {
	writeTag(b, group, element, vr)
	b.Write([]byte{0, 0})
	b.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(data))))
	b.Write(data)
}
