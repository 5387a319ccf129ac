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

package engine

// Point is a coordinate in the world space of a frame of reference, or in
// image space for annotations without one.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Annotation is one markup object as the engine holds it.
type Annotation struct {
	UID                 string            `json:"uid"`
	ToolName            string            `json:"toolName"`
	FrameOfReferenceUID string            `json:"frameOfReferenceUID,omitempty"`
	ReferencedImageID   string            `json:"referencedImageId,omitempty"`
	Points              []Point           `json:"points"`
	Label               string            `json:"label,omitempty"`
	Data                map[string]string `json:"data,omitempty"`
	Locked              bool              `json:"-"`
	Visible             bool              `json:"-"`
	Selected            bool              `json:"-"`
}

// Capability is a bit set of optional adapter features.
type Capability uint8

const (
	// CapSubscribe delivers add, modify, remove and selection events.
	CapSubscribe Capability = 1 << iota
	// CapEnumerate lists the frames of reference holding annotations.
	CapEnumerate
	// CapMutate forwards select, lock and visibility changes.
	CapMutate
)

// Has reports whether all bits of x are set.
func (c Capability) Has(x Capability) bool { return c&x == x }

// String lists the capability names.
func (c Capability) String() string {
	s := ""
	for _, n := range []struct {
		bit  Capability
		name string
	}{{CapSubscribe, "subscribe"}, {CapEnumerate, "enumerate"}, {CapMutate, "mutate"}} {
		if c.Has(n.bit) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// AnnotationEventType is the kind of an annotation event.
type AnnotationEventType string

const (
	AnnotationAdded            AnnotationEventType = "added"
	AnnotationModified         AnnotationEventType = "modified"
	AnnotationRemoved          AnnotationEventType = "removed"
	AnnotationSelectionChanged AnnotationEventType = "selection"
)

// AnnotationEvent reports a change made inside the engine.
type AnnotationEvent struct {
	Type        AnnotationEventType
	ToolGroupID string
	Annotation  Annotation
	// Selected holds the full selection after a selection change.
	Selected []string
}

// AnnotationAdapter reads and mutates the engine's annotations. Callers
// negotiate Capabilities once and must not call methods whose capability is
// missing; such calls return ErrUnsupported.
type AnnotationAdapter interface {
	Capabilities() Capability

	// Subscribe requires CapSubscribe. The returned cancel func is
	// idempotent and closes the channel.
	Subscribe(toolGroupID string) (<-chan AnnotationEvent, func(), error)
	// FramesOfReference requires CapEnumerate.
	FramesOfReference(toolGroupID string) ([]string, error)

	// Annotations returns the annotations of one frame of reference. An
	// empty frameOfReferenceUID selects annotations without one.
	Annotations(toolGroupID, frameOfReferenceUID string) ([]Annotation, error)
	// Add creates an annotation; an empty UID is assigned.
	Add(toolGroupID string, a Annotation) (string, error)
	Remove(toolGroupID, uid string) error
	RemoveAll(toolGroupID string) error

	// The setters require CapMutate.
	SetSelected(toolGroupID, uid string, selected bool) error
	SetLocked(toolGroupID, uid string, locked bool) error
	SetVisible(toolGroupID, uid string, visible bool) error
}
