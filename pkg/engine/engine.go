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

// Package engine defines the contracts of the rendering and tooling engine
// the viewer core drives. The core never draws pixels itself; it creates
// contexts, viewports, volumes and tool groups through Engine and reads and
// mutates markups through AnnotationAdapter.
package engine

import (
	"context"
	"errors"
	"image"

	"github.com/teradata-labs/planeview/pkg/imageid"
)

var (
	// ErrNotFound is returned for a context, viewport, volume, tool group or
	// annotation the engine does not know.
	ErrNotFound = errors.New("engine: not found")
	// ErrAlreadyExists is returned when registering a duplicate name.
	ErrAlreadyExists = errors.New("engine: already exists")
	// ErrNotInitialized is returned by every operation before Init succeeds.
	ErrNotInitialized = errors.New("engine: not initialized")
	// ErrUnsupported is returned by adapters lacking a capability.
	ErrUnsupported = errors.New("engine: unsupported")
)

// ViewportType is the display mode of a viewport.
type ViewportType string

const (
	// Stack shows independent 2-D slices, one at a time.
	Stack ViewportType = "STACK"
	// Volume shows a plane through a loaded 3-D volume.
	Volume ViewportType = "VOLUME"
)

// Orientation is the anatomical plane of a volume viewport.
type Orientation string

const (
	Axial    Orientation = "axial"
	Sagittal Orientation = "sagittal"
	Coronal  Orientation = "coronal"
)

// Orientations lists the three planes in layout order.
var Orientations = []Orientation{Axial, Sagittal, Coronal}

// ViewportSpec describes a viewport to enable on a surface.
type ViewportSpec struct {
	ID          string
	Type        ViewportType
	Orientation Orientation
}

// Surface is the drawable a viewport renders into.
type Surface interface {
	Size() (width, height int)
	Present(img image.Image) error
}

// Engine is the rendering and tooling engine. Implementations must be safe
// for concurrent use.
type Engine interface {
	// Init boots the engine. It may fail and may be retried.
	Init(ctx context.Context) error

	CreateContext(ctx context.Context, name string) error
	HasContext(name string) bool
	DestroyContext(name string) error

	// EnableSurface creates a viewport on contextName bound to surface.
	// Creating two viewports with the same id fails with ErrAlreadyExists.
	EnableSurface(ctx context.Context, contextName string, surface Surface, spec ViewportSpec) error
	DisableSurface(contextName, viewportID string) error
	Viewport(contextName, viewportID string) (Viewport, error)
	Viewports(contextName string) ([]Viewport, error)

	CreateVolume(ctx context.Context, volumeID string, ids []imageid.ID) (VolumeData, error)
	RemoveVolume(volumeID string) error

	CreateToolGroup(id string) (ToolGroup, error)
	ToolGroup(id string) (ToolGroup, error)
	DestroyToolGroup(id string) error
}

// Viewport is one rendered view.
type Viewport interface {
	ID() string
	ContextName() string
	Type() ViewportType
	Orientation() Orientation

	// SetStack loads ids as a stack and shows index.
	SetStack(ctx context.Context, ids []imageid.ID, index int) error
	// SetVolumes binds loaded volumes; the first one is displayed.
	SetVolumes(ctx context.Context, volumeIDs ...string) error
	ImageIDs() []imageid.ID
	CurrentIndex() int
	SetIndex(index int) error
	VolumeID() string
	// FrameOfReferenceUID is the coordinate space of the displayed data,
	// empty when nothing is loaded.
	FrameOfReferenceUID() string

	Resize() error
	Render() error
}

// VolumeData is a 3-D grid assembled from slices.
type VolumeData interface {
	ID() string
	Load(ctx context.Context) error
	Loaded() bool
	// Dimensions returns columns, rows and slices.
	Dimensions() [3]int
}

// ToolMode is the binding state of a tool in a tool group.
type ToolMode string

const (
	ToolActive   ToolMode = "active"
	ToolPassive  ToolMode = "passive"
	ToolEnabled  ToolMode = "enabled"
	ToolDisabled ToolMode = "disabled"
)

// ViewportRef names a viewport bound to a tool group.
type ViewportRef struct {
	ContextName string
	ViewportID  string
}

// ToolGroup binds tools to viewports. At most one tool is active.
type ToolGroup interface {
	ID() string
	AddTool(name string) error
	Tools() []string
	AddViewport(contextName, viewportID string) error
	RemoveViewport(contextName, viewportID string) error
	Viewports() []ViewportRef
	// SetToolActive activates name; the previously active tool becomes
	// passive.
	SetToolActive(name string) error
	SetToolPassive(name string) error
	SetToolDisabled(name string) error
	ToolMode(name string) ToolMode
	ActiveTool() string
}
