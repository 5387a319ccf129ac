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

package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/decode"
	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/engine/software"
	"github.com/teradata-labs/planeview/pkg/imageid"
	"github.com/teradata-labs/planeview/pkg/metadata"
	"github.com/teradata-labs/planeview/pkg/persistence"
)

const frameUID = "1.2.3.4"

type oneImageLoader struct{ rec *decode.Record }

func (l oneImageLoader) LoadAndCache(context.Context, imageid.ID) (*decode.Record, error) {
	return l.rec, nil
}

// newWorld returns a software engine with context "main", viewport "vp-1"
// showing one slice in frameUID, and tool group "tg" bound to it.
func newWorld(t *testing.T) *software.Engine {
	t.Helper()
	id := imageid.MustNew(imageid.SchemeDICOMFile, "slice-0")
	eng := software.New(oneImageLoader{rec: &decode.Record{
		ID:       id,
		Image:    image.NewGray(image.Rect(0, 0, 16, 16)),
		Metadata: metadata.SeriesMetadata{FrameOfReferenceUID: frameUID},
	}}, software.Options{Logger: zap.NewNop()})

	ctx := context.Background()
	require.NoError(t, eng.Init(ctx))
	require.NoError(t, eng.CreateContext(ctx, "main"))
	require.NoError(t, eng.EnableSurface(ctx, "main", software.NewImageSurface(16, 16),
		engine.ViewportSpec{ID: "vp-1", Type: engine.Stack}))
	vp, err := eng.Viewport("main", "vp-1")
	require.NoError(t, err)
	require.NoError(t, vp.SetStack(ctx, []imageid.ID{id}, 0))
	tg, err := eng.CreateToolGroup("tg")
	require.NoError(t, err)
	require.NoError(t, tg.AddViewport("main", "vp-1"))
	return eng
}

func draw(t *testing.T, eng *software.Engine, tool string) string {
	t.Helper()
	uid, err := eng.Draw("tg", engine.Annotation{
		ToolName:            tool,
		FrameOfReferenceUID: frameUID,
		Points:              []engine.Point{{X: 1, Y: 1}, {X: 8, Y: 8}},
	})
	require.NoError(t, err)
	return uid
}

func uids(anns []engine.Annotation) []string {
	out := make([]string, len(anns))
	for i, a := range anns {
		out[i] = a.UID
	}
	sort.Strings(out)
	return out
}

func TestInitialize_EventsSeedAndPurgeMetadata(t *testing.T) {
	eng := newWorld(t)
	m := NewManager(eng.Annotations(), eng, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx, "tg"))
	require.NoError(t, m.Initialize(ctx, "tg"))
	assert.False(t, m.Degraded("tg"))

	uid := draw(t, eng, "Length")
	require.Eventually(t, func() bool {
		_, ok := m.Metadata("tg", uid)
		return ok
	}, time.Second, 5*time.Millisecond)
	md, _ := m.Metadata("tg", uid)
	assert.Equal(t, DefaultMetadata(), md)

	require.NoError(t, eng.Pick("tg", uid))
	require.Eventually(t, func() bool { return len(m.SelectedUIDs("tg")) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, eng.Erase("tg", uid))
	require.Eventually(t, func() bool {
		_, ok := m.Metadata("tg", uid)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, m.SelectedUIDs("tg"))

	s := m.Stats()
	assert.Equal(t, 1, s.Added)
	assert.Equal(t, 1, s.Removed)
	assert.Equal(t, 1, s.SelectionSyncs)
	assert.Equal(t, 1, s.ToolGroups)
}

func TestInitialize_LegacyAdapterDerivesFramesFromViewports(t *testing.T) {
	eng := newWorld(t)
	m := NewManager(eng.LegacyAnnotations(), eng, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx, "tg"))
	assert.True(t, m.Degraded("tg"))
	assert.Equal(t, 1, m.Stats().Degraded)

	uid := draw(t, eng, "Length")
	frames, err := m.FramesOfReference("tg")
	require.NoError(t, err)
	assert.Equal(t, []string{frameUID}, frames)

	anns, err := m.GetAnnotations(ctx, "tg", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{uid}, uids(anns))
	md, ok := m.Metadata("tg", uid)
	require.True(t, ok, "reading seeds metadata on demand")
	assert.True(t, md.Visible)
}

func TestStateChanges_ForwardToEngine(t *testing.T) {
	eng := newWorld(t)
	m := NewManager(eng.Annotations(), eng, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx, "tg"))
	a := draw(t, eng, "Length")
	b := draw(t, eng, "Angle")

	assert.True(t, m.Lock("tg", a).Applied())
	assert.Error(t, eng.Edit("tg", a, []engine.Point{{X: 2, Y: 2}}), "engine refuses edits of locked annotations")
	assert.True(t, m.Hide("tg", b).Applied())
	assert.True(t, m.Select("tg", b).Applied())

	anns, err := m.GetAnnotations(ctx, "tg", ByTool("Angle"))
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.False(t, anns[0].Visible)
	assert.True(t, anns[0].Selected)

	locked, err := m.GetAnnotations(ctx, "tg", func(x engine.Annotation) bool { return x.Locked })
	require.NoError(t, err)
	assert.Equal(t, []string{a}, uids(locked))

	assert.True(t, m.Unlock("tg", a).Applied())
	require.NoError(t, eng.Edit("tg", a, []engine.Point{{X: 2, Y: 2}}))
	assert.True(t, m.Show("tg", b).Applied())
	assert.True(t, m.Deselect("tg", b).Applied())
	selected, err := m.GetAnnotations(ctx, "tg", All(Selected(), ByFrame(frameUID)))
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestStateChanges_LocalStateWinsWhenEngineFails(t *testing.T) {
	eng := newWorld(t)
	m := NewManager(eng.Annotations(), eng, nil, nil)
	require.NoError(t, m.Initialize(context.Background(), "tg"))

	res := m.Lock("tg", "no-such-uid")
	assert.True(t, res.Ignored())
	assert.ErrorIs(t, res.Err, engine.ErrNotFound)
	md, ok := m.Metadata("tg", "no-such-uid")
	require.True(t, ok)
	assert.True(t, md.Locked)

	res = m.Hide("unknown", "x")
	assert.True(t, res.Ignored())
	assert.ErrorIs(t, res.Err, ErrUnknownToolGroup)
}

func TestStateChanges_WithoutMutateCapability(t *testing.T) {
	fa := &fakeAdapter{caps: engine.CapEnumerate}
	m := NewManager(fa, nil, nil, nil)
	require.NoError(t, m.Initialize(context.Background(), "tg"))

	res := m.Select("tg", "u1")
	assert.True(t, res.Ignored())
	assert.ErrorIs(t, res.Err, engine.ErrUnsupported)
	assert.Equal(t, []string{"u1"}, m.SelectedUIDs("tg"))
}

func TestGroupsAndAnalysis(t *testing.T) {
	eng := newWorld(t)
	m := NewManager(eng.Annotations(), eng, nil, nil)
	require.NoError(t, m.Initialize(context.Background(), "tg"))

	require.NoError(t, m.Group("tg", "g1", "a", "b"))
	require.NoError(t, m.Group("tg", "g2", "b"))
	assert.Equal(t, []string{"a"}, m.GroupMembers("tg", "g1"))
	assert.Equal(t, []string{"b"}, m.GroupMembers("tg", "g2"))

	require.NoError(t, m.SetAnalysis("tg", "a", "nodule, 4mm"))
	md, _ := m.Metadata("tg", "a")
	assert.Equal(t, "nodule, 4mm", md.Analysis)
	assert.Equal(t, "g1", md.GroupID)

	require.NoError(t, m.Ungroup("tg", "g1"))
	assert.Empty(t, m.GroupMembers("tg", "g1"))
	md, _ = m.Metadata("tg", "a")
	assert.Empty(t, md.GroupID)

	assert.Error(t, m.Group("tg", "", "a"))
	assert.ErrorIs(t, m.SetAnalysis("nope", "a", "x"), ErrUnknownToolGroup)
}

func TestSaveThenLoad_RestoresUIDsAndMetadata(t *testing.T) {
	eng := newWorld(t)
	store, err := persistence.OpenSQLite(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(eng.Annotations(), eng, store, nil)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx, "tg"))

	a := draw(t, eng, "Length")
	b := draw(t, eng, "Angle")
	m.Lock("tg", a)
	m.Hide("tg", b)
	require.NoError(t, m.Group("tg", "g1", b))
	require.NoError(t, m.SetAnalysis("tg", b, "calcified"))

	report, err := m.SaveAnnotations(ctx, "tg", "study-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Saved)
	assert.NoError(t, report.Err())

	extra := draw(t, eng, "Probe")
	require.Eventually(t, func() bool {
		_, ok := m.Metadata("tg", extra)
		return ok
	}, time.Second, 5*time.Millisecond)

	loaded, err := m.LoadAnnotations(ctx, "tg", "study-1")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Loaded)
	assert.NoError(t, loaded.Err())

	anns, err := m.GetAnnotations(ctx, "tg", nil)
	require.NoError(t, err)
	want := []string{a, b}
	sort.Strings(want)
	assert.Equal(t, want, uids(anns))

	mdA, _ := m.Metadata("tg", a)
	assert.True(t, mdA.Locked)
	assert.Equal(t, "study-1", mdA.StudyID)
	mdB, _ := m.Metadata("tg", b)
	assert.False(t, mdB.Visible)
	assert.Equal(t, "calcified", mdB.Analysis)
	assert.Equal(t, []string{b}, m.GroupMembers("tg", "g1"))
	_, ok := m.Metadata("tg", extra)
	assert.False(t, ok)

	assert.Error(t, eng.Edit("tg", a, nil), "lock is reapplied in the engine")
}

type failingStore struct {
	records []persistence.Record
	creates int
	listErr error
}

func (s *failingStore) Create(_ context.Context, r persistence.Record) (persistence.Record, error) {
	s.creates++
	if r.Type == "Broken" {
		return persistence.Record{}, &persistence.StatusError{Code: 500}
	}
	return r, nil
}

func (s *failingStore) List(context.Context, string) ([]persistence.Record, error) {
	return s.records, s.listErr
}

func TestSave_SkipsMissingUIDsAndReportsFailures(t *testing.T) {
	fa := &fakeAdapter{
		caps: engine.CapEnumerate | engine.CapMutate,
		anns: []engine.Annotation{
			{UID: "", ToolName: "Length"},
			{UID: "ok", ToolName: "Length"},
			{UID: "bad", ToolName: "Broken"},
		},
	}
	store := &failingStore{}
	m := NewManager(fa, nil, store, nil)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx, "tg"))

	report, err := m.SaveAnnotations(ctx, "tg", "s", "u")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Saved)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "bad", report.Failures[0].UID)
	assert.ErrorIs(t, report.Err(), persistence.ErrStatus)
	assert.Equal(t, 2, store.creates, "one call per annotation, no retries")

	_, err = NewManager(fa, nil, nil, nil).SaveAnnotations(ctx, "tg", "s", "u")
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestLoad_ContinuesPastBadRecords(t *testing.T) {
	good, err := encodeTransport(engine.Annotation{UID: "keep", ToolName: "Length"}, Metadata{Visible: true, Locked: true})
	require.NoError(t, err)
	store := &failingStore{records: []persistence.Record{
		{ID: "r1", Data: json.RawMessage(`{not json`)},
		{ID: "r2", Data: good},
		{ID: "r3", Data: json.RawMessage(`{"uid":"x"}`)},
	}}
	fa := &fakeAdapter{caps: engine.CapEnumerate | engine.CapMutate}
	m := NewManager(fa, nil, store, nil)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx, "tg"))

	report, err := m.LoadAnnotations(ctx, "tg", "s")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Loaded)
	assert.Len(t, report.Failures, 2)
	assert.Equal(t, 1, fa.removeAlls)
	assert.Equal(t, []string{"keep"}, fa.added)
	assert.Equal(t, []string{"keep"}, fa.lockedUIDs)

	store.listErr = errors.New("offline")
	_, err = m.LoadAnnotations(ctx, "tg", "s")
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "list", pe.Op)
}

func TestClose_StopsMirroring(t *testing.T) {
	eng := newWorld(t)
	m := NewManager(eng.Annotations(), eng, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx, "tg"))

	m.Close("tg")
	m.Close("tg")
	_, err := m.GetAnnotations(ctx, "tg", nil)
	assert.ErrorIs(t, err, ErrUnknownToolGroup)
	assert.Zero(t, m.Stats().ToolGroups)

	require.NoError(t, m.Initialize(ctx, "tg"))
	m.CloseAll()
	assert.Zero(t, m.Stats().ToolGroups)
}
