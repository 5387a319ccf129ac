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

package viewport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/engine/software"
	"github.com/teradata-labs/planeview/pkg/metadata"
)

func TestAcquire_ConcurrentCallsCreateOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.eng.createDelay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := f.manager.Acquire(context.Background(), "main")
			assert.NoError(t, err)
			if c != nil {
				assert.Equal(t, "main", c.Name())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.eng.Creates())
	info, ok := f.manager.Lookup("main")
	require.True(t, ok)
	assert.Equal(t, 2, info.Refs)
	assert.Equal(t, "ready", info.State)
}

func TestRelease_RefcountDecrementsBeforeTeardown(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c, err := f.manager.Acquire(ctx, "main")
	require.NoError(t, err)
	_, err = f.manager.Acquire(ctx, "main")
	require.NoError(t, err)

	res, err := f.manager.Release(ctx, "main", ReleaseOptions{})
	require.NoError(t, err)
	assert.True(t, res.Applied())
	assert.Equal(t, 1, c.Refs())
	assert.True(t, f.soft.HasContext("main"))

	res, err = f.manager.Release(ctx, "main", ReleaseOptions{})
	require.NoError(t, err)
	assert.True(t, res.Applied(), res.String())
	assert.Equal(t, 0, c.Refs())
	assert.False(t, f.soft.HasContext("main"))

	res, err = f.manager.Release(ctx, "main", ReleaseOptions{})
	require.NoError(t, err)
	assert.True(t, res.Ignored())
	assert.ErrorIs(t, res.Err, ErrNotFound)
}

func TestRelease_DestroysToolGroupsBeforeContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.acquireWithViewport(t, "main", "vp-1")

	tg, err := f.manager.CreateToolGroup("main", "tg-main", []string{"Length", "Pan"})
	require.NoError(t, err)
	assert.Equal(t, "Length", tg.ActiveTool())
	assert.Equal(t, []engine.ViewportRef{{ContextName: "main", ViewportID: "vp-1"}}, tg.Viewports())
	owner, ok := f.manager.ContextOf("tg-main")
	require.True(t, ok)
	assert.Equal(t, "main", owner)

	res, err := f.manager.Release(ctx, "main", ReleaseOptions{})
	require.NoError(t, err)
	assert.True(t, res.Applied(), res.String())

	assert.Equal(t, []string{"toolgroup:tg-main", "viewport:vp-1", "context:main"}, f.eng.Calls())
	_, err = f.soft.ToolGroup("tg-main")
	assert.ErrorIs(t, err, engine.ErrNotFound)
	assert.False(t, f.soft.HasContext("main"))
	_, ok = f.manager.ContextOf("tg-main")
	assert.False(t, ok)
	assert.Empty(t, f.manager.ToolGroupsOf("main"))
}

func TestRelease_ForceSuppressesTeardownErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.eng.destroyErr = errors.New("device lost")

	_, err := f.manager.Acquire(ctx, "a")
	require.NoError(t, err)
	_, err = f.manager.Release(ctx, "a", ReleaseOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device lost")

	_, err = f.manager.Acquire(ctx, "b")
	require.NoError(t, err)
	_, err = f.manager.Acquire(ctx, "b")
	require.NoError(t, err)
	res, err := f.manager.Release(ctx, "b", ReleaseOptions{Force: true})
	require.NoError(t, err)
	assert.True(t, res.Ignored())
	assert.Contains(t, res.Err.Error(), "device lost")
	_, ok := f.manager.Lookup("b")
	assert.False(t, ok)
}

func TestRelease_AlreadyGoneEngineObjectsAreIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.acquireWithViewport(t, "main", "vp-1")
	_, err := f.manager.CreateToolGroup("main", "tg", []string{"Pan"})
	require.NoError(t, err)

	// destroyed behind the manager's back
	require.NoError(t, f.soft.DestroyToolGroup("tg"))
	require.NoError(t, f.soft.DestroyContext("main"))

	res, err := f.manager.Release(context.Background(), "main", ReleaseOptions{})
	require.NoError(t, err)
	assert.True(t, res.Ignored())
	assert.ErrorIs(t, res.Err, engine.ErrNotFound)
}

func TestAcquire_ReplacesStaleContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.soft.Init(ctx))
	require.NoError(t, f.soft.CreateContext(ctx, "main"))

	_, err := f.manager.Acquire(ctx, "main")
	require.NoError(t, err)
	assert.True(t, f.soft.HasContext("main"))
	assert.Equal(t, 1, f.manager.Stats().StaleReplaced)
	assert.Contains(t, f.eng.Calls(), "context:main")
}

func TestAcquire_InitializationExhaustedUntilReset(t *testing.T) {
	var mu sync.Mutex
	broken := true
	f := newFixture(t, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if broken {
			return errors.New("no gpu")
		}
		return nil
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.manager.Acquire(ctx, "main")
		var ie *InitializationError
		require.ErrorAs(t, err, &ie)
	}
	_, err := f.manager.Acquire(ctx, "main")
	assert.ErrorIs(t, err, ErrInitializationExhausted)
	assert.Equal(t, 3, f.soft.InitCalls())

	mu.Lock()
	broken = false
	mu.Unlock()
	f.manager.ResetBootstrap()
	_, err = f.manager.Acquire(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 1, f.eng.Creates())
}

func TestEnableViewport_UnknownContext(t *testing.T) {
	f := newFixture(t, nil)
	err := f.manager.EnableViewport(context.Background(), "nope", software.NewImageSurface(8, 8),
		engine.ViewportSpec{ID: "vp", Type: engine.Stack})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResizeAndDestroyViewport_AreIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.acquireWithViewport(t, "main", "vp-1")

	assert.True(t, f.manager.Resize("main", "vp-1").Applied())
	assert.True(t, f.manager.Resize("main", "missing").Ignored())
	assert.True(t, f.manager.Resize("gone", "vp-1").Ignored())

	assert.True(t, f.manager.DestroyViewport("main", "vp-1").Applied())
	assert.True(t, f.manager.DestroyViewport("main", "vp-1").Ignored())
	assert.True(t, f.manager.DestroyViewport("gone", "vp-1").Ignored())
	assert.Empty(t, f.manager.Viewports("main"))
}

func TestSetActiveTool(t *testing.T) {
	f := newFixture(t, nil)
	f.acquireWithViewport(t, "main", "vp-1")
	tg, err := f.manager.CreateToolGroup("main", "tg", []string{"Length", "Angle"})
	require.NoError(t, err)

	require.NoError(t, f.manager.SetActiveTool("tg", "Angle"))
	assert.Equal(t, "Angle", tg.ActiveTool())
	assert.Equal(t, engine.ToolPassive, tg.ToolMode("Length"))
	assert.ErrorIs(t, f.manager.SetActiveTool("other", "Angle"), ErrNotFound)
}

func TestDestroyToolGroup_KeepsContext(t *testing.T) {
	f := newFixture(t, nil)
	f.acquireWithViewport(t, "main", "vp-1")
	_, err := f.manager.CreateToolGroup("main", "tg", []string{"Length"})
	require.NoError(t, err)

	assert.True(t, f.manager.DestroyToolGroup("tg").Applied())
	assert.Empty(t, f.manager.ToolGroupsOf("main"))
	_, owned := f.manager.ContextOf("tg")
	assert.False(t, owned)
	_, err = f.soft.ToolGroup("tg")
	assert.ErrorIs(t, err, engine.ErrNotFound)
	assert.True(t, f.soft.HasContext("main"))

	assert.True(t, f.manager.DestroyToolGroup("tg").Ignored())
}

func TestLoad_EligibleSeriesBecomesVolume(t *testing.T) {
	f := newFixture(t, nil)
	f.acquireWithViewport(t, "main", "vp-1")
	ids := f.loader.add("ct", 3, true, square(8))

	res, err := f.manager.Load(context.Background(), "main", "vp-1", ids)
	require.NoError(t, err)
	assert.Equal(t, LoadFull, res.Status)
	assert.Equal(t, engine.Volume, res.Mode)
	assert.True(t, strings.HasPrefix(res.VolumeID, "volume-"))
	assert.True(t, res.Outcome().Applied())

	vp, err := f.soft.Viewport("main", "vp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Volume, vp.Type())
	assert.Equal(t, res.VolumeID, vp.VolumeID())
	assert.Equal(t, 1, f.manager.Stats().VolumeLoads)

	// reloading as a stack drops the volume
	single := f.loader.add("xr", 1, false, square(8))
	res, err = f.manager.Load(context.Background(), "main", "vp-1", single)
	require.NoError(t, err)
	assert.Equal(t, engine.Stack, res.Mode)
	assert.Equal(t, 0, f.soft.Volumes())
}

func TestShareVolume_OneVolumeAcrossPlanes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.acquireWithViewport(t, "main", "axial")
	for _, o := range []engine.Orientation{engine.Sagittal, engine.Coronal} {
		spec := engine.ViewportSpec{ID: string(o), Type: engine.Volume, Orientation: o}
		require.NoError(t, f.manager.EnableViewport(ctx, "main", software.NewImageSurface(64, 64), spec))
	}
	ids := f.loader.add("ct", 4, true, square(8))

	first, err := f.manager.Load(ctx, "main", "axial", ids)
	require.NoError(t, err)
	require.Equal(t, engine.Volume, first.Mode)
	for _, id := range []string{"sagittal", "coronal"} {
		res, err := f.manager.ShareVolume(ctx, "main", id, first.VolumeID)
		require.NoError(t, err)
		assert.Equal(t, first.VolumeID, res.VolumeID)
		vp, err := f.soft.Viewport("main", id)
		require.NoError(t, err)
		assert.Equal(t, first.VolumeID, vp.VolumeID())
	}
	assert.Equal(t, 1, f.soft.Volumes())

	// the volume outlives a viewport that still has company
	assert.True(t, f.manager.DestroyViewport("main", "sagittal").Applied())
	assert.Equal(t, 1, f.soft.Volumes())

	res, err := f.manager.Release(ctx, "main", ReleaseOptions{})
	require.NoError(t, err)
	assert.True(t, res.Applied(), res.String())
	assert.Equal(t, 0, f.soft.Volumes())
}

func TestShareVolume_UnknownVolume(t *testing.T) {
	f := newFixture(t, nil)
	f.acquireWithViewport(t, "main", "vp-1")

	_, err := f.manager.ShareVolume(context.Background(), "main", "vp-1", "volume-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.manager.ShareVolume(context.Background(), "gone", "vp-1", "volume-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDestroyViewport_LastViewerRemovesSharedVolume(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.acquireWithViewport(t, "main", "vp-1")
	require.NoError(t, f.manager.EnableViewport(ctx, "main", software.NewImageSurface(64, 64),
		engine.ViewportSpec{ID: "vp-2", Type: engine.Stack}))
	ids := f.loader.add("ct", 3, true, square(8))

	first, err := f.manager.Load(ctx, "main", "vp-1", ids)
	require.NoError(t, err)
	_, err = f.manager.ShareVolume(ctx, "main", "vp-2", first.VolumeID)
	require.NoError(t, err)

	assert.True(t, f.manager.DestroyViewport("main", "vp-1").Applied())
	assert.Equal(t, 1, f.soft.Volumes())
	assert.True(t, f.manager.DestroyViewport("main", "vp-2").Applied())
	assert.Equal(t, 0, f.soft.Volumes())
}

func TestLoad_MissingOrientationDegradesToStack(t *testing.T) {
	f := newFixture(t, nil)
	f.acquireWithViewport(t, "main", "vp-1")
	ids := f.loader.add("us", 5, false, square(8))

	res, err := f.manager.Load(context.Background(), "main", "vp-1", ids)
	require.NoError(t, err)
	assert.Equal(t, LoadDegraded, res.Status)
	assert.Equal(t, engine.Stack, res.Mode)
	require.NotNil(t, res.Cause)
	assert.Contains(t, res.Cause.Missing, metadata.FieldOrientation)
	assert.True(t, res.Outcome().Degraded())

	vp, err := f.soft.Viewport("main", "vp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Stack, vp.Type())
	assert.Equal(t, 0, vp.CurrentIndex())
	assert.Len(t, vp.ImageIDs(), 5)
}

func TestLoad_VolumeFailureFallsBackToStack(t *testing.T) {
	f := newFixture(t, nil)
	f.acquireWithViewport(t, "main", "vp-1")
	ids := f.loader.add("mixed", 4, true, func(i int) int { return 8 + i })

	res, err := f.manager.Load(context.Background(), "main", "vp-1", ids)
	require.NoError(t, err)
	assert.Equal(t, LoadDegraded, res.Status)
	assert.Equal(t, engine.Stack, res.Mode)
	require.NotNil(t, res.Cause)
	assert.NotEmpty(t, res.Cause.VolumeID)
	assert.ErrorIs(t, res.Cause, software.ErrInconsistentSlices)
	assert.Equal(t, 0, f.soft.Volumes())
	assert.Equal(t, 1, f.manager.Stats().VolumeFallbacks)
}

func TestLoad_SingleImageIsFullStack(t *testing.T) {
	f := newFixture(t, nil)
	f.acquireWithViewport(t, "main", "vp-1")
	ids := f.loader.add("png", 1, false, square(8))

	res, err := f.manager.Load(context.Background(), "main", "vp-1", ids)
	require.NoError(t, err)
	assert.Equal(t, LoadFull, res.Status)
	assert.Equal(t, engine.Stack, res.Mode)
	assert.Nil(t, res.Cause)
}

func TestLoad_StackFailureIsReturned(t *testing.T) {
	f := newFixture(t, nil)
	f.acquireWithViewport(t, "main", "vp-1")
	ids := f.loader.add("ok", 1, false, square(8))
	delete(f.loader.records, ids[0].String())

	_, err := f.manager.Load(context.Background(), "main", "vp-1", ids)
	require.Error(t, err)

	_, err = f.manager.Load(context.Background(), "gone", "vp-1", ids)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestShutdown_ReleasesEverything(t *testing.T) {
	f := newFixture(t, nil)
	f.acquireWithViewport(t, "a", "vp-a")
	f.acquireWithViewport(t, "b", "vp-b")
	_, err := f.manager.Acquire(context.Background(), "b")
	require.NoError(t, err)

	res := f.manager.Shutdown(context.Background())
	assert.True(t, res.Applied(), res.String())
	assert.Empty(t, f.manager.Contexts())
	assert.Empty(t, f.soft.Contexts())
	assert.Equal(t, 2, f.manager.Stats().Destroyed)
}
