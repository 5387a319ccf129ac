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
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/blob"
	"github.com/teradata-labs/planeview/pkg/imageid"
)

// part10 returns a minimal Part-10 style byte stream: preamble, magic and a
// few payload bytes.
func part10(payload string) []byte {
	b := make([]byte, HeaderSize, HeaderSize+len(payload))
	copy(b[magicOffset:], "DICM")
	return append(b, payload...)
}

// explicitMeta returns a preamble-less stream starting with (0002,0000) UL.
func explicitMeta() []byte {
	b := []byte{0x02, 0x00, 0x00, 0x00, 'U', 'L', 0x04, 0x00}
	return binary.LittleEndian.AppendUint32(b, 196)
}

// implicitIdent returns a preamble-less implicit VR stream starting with
// (0008,0005).
func implicitIdent() []byte {
	b := []byte{0x08, 0x00, 0x05, 0x00}
	b = binary.LittleEndian.AppendUint32(b, 10)
	return append(b, []byte("ISO_IR 100")...)
}

func newBuilder() (*Builder, *blob.Tracker) {
	tracker := blob.NewTracker(zap.NewNop())
	return NewBuilder(tracker, zap.NewNop()), tracker
}

func TestBuild_DICOMOrderedByName(t *testing.T) {
	b, tracker := newBuilder()
	files := []*blob.RawFile{
		blob.NewRawFile("c.dcm", "", part10("c")),
		blob.NewRawFile("a.dcm", "", part10("a")),
		blob.NewRawFile("b.dcm", "", part10("b")),
	}

	s, err := b.Build(files)
	require.NoError(t, err)
	assert.Equal(t, KindDICOM, s.Format)
	assert.Equal(t, ViewerDICOM, s.Viewer)
	assert.Equal(t, []string{"a.dcm", "b.dcm", "c.dcm"}, s.Names)
	require.Len(t, s.Identifiers, 3)
	for _, id := range s.Identifiers {
		assert.Equal(t, imageid.SchemeDICOMFile, id.Scheme())
		h, err := tracker.Resolve(id.Location())
		require.NoError(t, err)
		assert.Equal(t, s.ID, h.Owner())
	}

	h, err := tracker.Resolve(s.Identifiers[0].Location())
	require.NoError(t, err)
	assert.Equal(t, "a.dcm", h.Name())
}

func TestBuild_MagicRegardlessOfExtension(t *testing.T) {
	b, _ := newBuilder()
	s, err := b.Build([]*blob.RawFile{blob.NewRawFile("scan.png", "image/png", part10("x"))})
	require.NoError(t, err)
	assert.Equal(t, KindDICOM, s.Format)
}

func TestBuild_ShortFileNeverTakesMagicPath(t *testing.T) {
	b, tracker := newBuilder()
	data := make([]byte, 50)
	copy(data[46:], "DICM")

	_, err := b.Build([]*blob.RawFile{blob.NewRawFile("short.bin", "", data)})
	assert.ErrorIs(t, err, ErrNoValidImages)
	assert.Equal(t, 0, tracker.Stats().Live)
	assert.False(t, hasMagic(data))
}

func TestBuild_HeaderSniffFallback(t *testing.T) {
	b, _ := newBuilder()

	s, err := b.Build([]*blob.RawFile{
		blob.NewRawFile("IM0001", "", explicitMeta()),
		blob.NewRawFile("IM0002", "", implicitIdent()),
		blob.NewRawFile("notes", "", []byte("plain text, not an image at all")),
	})
	require.NoError(t, err)
	assert.Equal(t, KindDICOM, s.Format)
	assert.Equal(t, []string{"IM0001", "IM0002"}, s.Names)
	require.Len(t, s.Rejected, 1)
	assert.Equal(t, "notes", s.Rejected[0].Name)
}

func TestBuild_DICOMDIRForcesDICOM(t *testing.T) {
	b, _ := newBuilder()
	s, err := b.Build([]*blob.RawFile{
		blob.NewRawFile("DICOMDIR", "", []byte("index")),
		blob.NewRawFile("IMG2", "", []byte("two")),
		blob.NewRawFile("IMG1", "", []byte("one")),
	})
	require.NoError(t, err)
	assert.True(t, s.FromDICOMDIR)
	assert.Equal(t, KindDICOM, s.Format)
	assert.Equal(t, []string{"IMG1", "IMG2"}, s.Names)
	assert.Empty(t, s.Rejected)

	assert.True(t, IsDICOMDIR("study.dicomdir"))
	assert.False(t, IsDICOMDIR("dicomdir.txt"))
}

func TestBuild_MixedKeepsOnlyDICOM(t *testing.T) {
	b, tracker := newBuilder()
	s, err := b.Build([]*blob.RawFile{
		blob.NewRawFile("a.dcm", "", part10("a")),
		blob.NewRawFile("photo.jpg", "image/jpeg", []byte("jpeg")),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	require.Len(t, s.Rejected, 1)
	assert.Equal(t, "photo.jpg", s.Rejected[0].Name)
	assert.Equal(t, 1, tracker.Stats().Live)
}

func TestBuild_RasterSeries(t *testing.T) {
	b, _ := newBuilder()
	s, err := b.Build([]*blob.RawFile{blob.NewRawFile("scan.png", "image/png", []byte("\x89PNG\r\n\x1a\n"))})
	require.NoError(t, err)
	assert.Equal(t, KindRaster, s.Format)
	assert.Equal(t, ViewerImage, s.Viewer)
	require.Len(t, s.Identifiers, 1)
	assert.Equal(t, imageid.SchemeBlob, s.Identifiers[0].Scheme())
}

func TestBuild_VideoKeepsFirst(t *testing.T) {
	b, tracker := newBuilder()
	s, err := b.Build([]*blob.RawFile{
		blob.NewRawFile("b.mp4", "", []byte("b")),
		blob.NewRawFile("a.webm", "", []byte("a")),
	})
	require.NoError(t, err)
	assert.Equal(t, ViewerVideo, s.Viewer)
	assert.Equal(t, []string{"a.webm"}, s.Names)
	assert.Len(t, s.Rejected, 1)
	assert.Equal(t, 1, tracker.Stats().Live)
}

func TestBuild_EmptyInput(t *testing.T) {
	b, _ := newBuilder()
	_, err := b.Build(nil)
	assert.ErrorIs(t, err, ErrNoValidImages)
}

func TestBuild_HeaderReadFailureIsDowngraded(t *testing.T) {
	dir := t.TempDir()
	var files []*blob.RawFile
	for _, name := range []string{"gone.png", "gone.xyz"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		f, err := blob.OpenRawFile(path)
		require.NoError(t, err)
		files = append(files, f)
		require.NoError(t, os.Remove(path))
	}

	b, _ := newBuilder()
	s, err := b.Build(files)
	require.NoError(t, err)
	assert.Equal(t, KindRaster, s.Format)
	assert.Equal(t, []string{"gone.png"}, s.Names)
	require.Len(t, s.Rejected, 1)
	assert.Equal(t, "gone.xyz", s.Rejected[0].Name)
}

func TestSeries_DestroyRevokesOnce(t *testing.T) {
	b, tracker := newBuilder()
	s, err := b.Build([]*blob.RawFile{
		blob.NewRawFile("a.dcm", "", part10("a")),
		blob.NewRawFile("b.dcm", "", part10("b")),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, s.Destroy())
	assert.Equal(t, 0, s.Destroy())
	assert.True(t, s.Destroyed())
	assert.Equal(t, 0, tracker.Stats().Live)

	_, err = tracker.Resolve(s.Identifiers[0].Location())
	assert.ErrorIs(t, err, blob.ErrRevoked)
}

func TestBuilder_Classify(t *testing.T) {
	b, tracker := newBuilder()
	assert.Equal(t, KindDICOM, b.Classify(blob.NewRawFile("x", "", part10(""))))
	assert.Equal(t, KindRaster, b.Classify(blob.NewRawFile("x.TIFF", "", nil)))
	assert.Equal(t, KindVideo, b.Classify(blob.NewRawFile("clip", "video/mp4", nil)))
	assert.Equal(t, KindUnknown, b.Classify(blob.NewRawFile("x.txt", "text/plain", []byte("hello"))))
	assert.Equal(t, 0, tracker.Stats().Live)
}

func TestSniffHeader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{name: "explicit meta group", data: explicitMeta(), want: true},
		{name: "implicit identifying group", data: implicitIdent(), want: true},
		{name: "too short", data: []byte{0x02, 0x00}, want: false},
		{name: "wrong group", data: []byte{0x10, 0x00, 0x10, 0x00, 'P', 'N', 0x00, 0x00}, want: false},
		{name: "length past end", data: []byte{0x08, 0x00, 0x05, 0x00, 0xff, 0x00, 0x00, 0x00}, want: false},
		{name: "png signature", data: []byte("\x89PNG\r\n\x1a\n"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sniffHeader(tt.data, int64(len(tt.data))))
		})
	}
}
