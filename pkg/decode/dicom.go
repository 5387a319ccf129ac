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

package decode

import (
	"bytes"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/teradata-labs/planeview/pkg/metadata"
)

func parseDICOM(data []byte, withPixels bool) (dicom.Dataset, error) {
	var opts []dicom.ParseOption
	if !withPixels {
		opts = append(opts, dicom.SkipPixelData())
	}
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil, opts...)
	if err != nil {
		return dicom.Dataset{}, fmt.Errorf("failed to parse dicom: %w", err)
	}
	return ds, nil
}

func dicomMetadata(data []byte) (metadata.SeriesMetadata, error) {
	ds, err := parseDICOM(data, false)
	if err != nil {
		return metadata.SeriesMetadata{}, err
	}
	return extractMetadata(&ds), nil
}

func decodeDICOM(data []byte, r *Record) error {
	ds, err := parseDICOM(data, true)
	if err != nil {
		return err
	}
	r.Metadata = extractMetadata(&ds)

	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return ErrNoPixelData
	}
	info, ok := el.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return ErrNoPixelData
	}
	img, err := info.Frames[0].GetImage()
	if err != nil {
		return fmt.Errorf("failed to read frame: %w", err)
	}
	r.Image = toDisplay(img)
	r.Frames = len(info.Frames)
	if r.Metadata.Rows == 0 {
		r.Metadata.Rows = r.Height()
	}
	if r.Metadata.Columns == 0 {
		r.Metadata.Columns = r.Width()
	}
	return nil
}

func extractMetadata(ds *dicom.Dataset) metadata.SeriesMetadata {
	var m metadata.SeriesMetadata
	m.PixelSpacing = floats(ds, tag.PixelSpacing, 2)
	m.Orientation = floats(ds, tag.ImageOrientationPatient, 6)
	m.Position = floats(ds, tag.ImagePositionPatient, 3)
	if v := floats(ds, tag.SliceThickness, 1); len(v) == 1 {
		m.SliceThickness = metadata.Float(v[0])
	}
	m.Rows = firstInt(ds, tag.Rows)
	m.Columns = firstInt(ds, tag.Columns)
	m.FrameOfReferenceUID = firstString(ds, tag.FrameOfReferenceUID)
	m.StudyInstanceUID = firstString(ds, tag.StudyInstanceUID)
	m.Modality = firstString(ds, tag.Modality)
	if n, err := strconv.Atoi(firstString(ds, tag.InstanceNumber)); err == nil {
		m.InstanceNumber = n
	}
	return m
}

func stringsOf(ds *dicom.Dataset, t tag.Tag) []string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return nil
	}
	v, _ := el.Value.GetValue().([]string)
	return v
}

func firstString(ds *dicom.Dataset, t tag.Tag) string {
	v := stringsOf(ds, t)
	if len(v) == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(v[0]), "\x00")
}

func firstInt(ds *dicom.Dataset, t tag.Tag) int {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return 0
	}
	if v, ok := el.Value.GetValue().([]int); ok && len(v) > 0 {
		return v[0]
	}
	return 0
}

// floats parses a decimal-string element. A value with the wrong
// multiplicity or an unparsable component counts as absent.
func floats(ds *dicom.Dataset, t tag.Tag, want int) []float64 {
	raw := stringsOf(ds, t)
	if len(raw) == 1 && want > 1 {
		raw = strings.Split(raw[0], `\`)
	}
	if len(raw) != want {
		return nil
	}
	out := make([]float64, 0, want)
	for _, s := range raw {
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimRight(s, "\x00")), 64)
		if err != nil {
			return nil
		}
		out = append(out, f)
	}
	return out
}

// toDisplay maps 16-bit monochrome to 8-bit by min/max windowing. Other
// images are returned as they are.
func toDisplay(img image.Image) image.Image {
	g16, ok := img.(*image.Gray16)
	if !ok {
		return img
	}
	b := g16.Bounds()
	lo, hi := uint16(0xFFFF), uint16(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := g16.Gray16At(x, y).Y
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	out := image.NewGray(b)
	span := float64(hi) - float64(lo)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := g16.Gray16At(x, y).Y
			if span > 0 {
				out.Pix[out.PixOffset(x, y)] = uint8((float64(v) - float64(lo)) * 255 / span)
			}
		}
	}
	return out
}

