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

// Package annotation mirrors the markups of each tool group, keeps their
// local metadata (selection, lock, visibility, grouping, analysis text)
// authoritative for the UI, and saves and restores them through a
// persistence.Store.
package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/teradata-labs/planeview/pkg/engine"
)

var (
	// ErrUnknownToolGroup is returned for a tool group that was never
	// initialized or was closed.
	ErrUnknownToolGroup = errors.New("annotation: unknown tool group")
	// ErrNoStore is returned by save and load when no store is configured.
	ErrNoStore = errors.New("annotation: no persistence store")
)

// Metadata is the local state of one annotation.
type Metadata struct {
	StudyID  string `json:"studyId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Locked   bool   `json:"locked"`
	Visible  bool   `json:"visible"`
	GroupID  string `json:"groupId,omitempty"`
	Analysis string `json:"analysis,omitempty"`
}

// DefaultMetadata is seeded for annotations first seen through the engine.
func DefaultMetadata() Metadata { return Metadata{Visible: true} }

// Filter selects annotations. A nil Filter matches everything.
type Filter func(engine.Annotation) bool

// ByTool matches annotations drawn with one of the tools.
func ByTool(names ...string) Filter {
	return func(a engine.Annotation) bool { return slices.Contains(names, a.ToolName) }
}

// ByFrame matches annotations in one frame of reference.
func ByFrame(frameOfReferenceUID string) Filter {
	return func(a engine.Annotation) bool { return a.FrameOfReferenceUID == frameOfReferenceUID }
}

// Selected matches selected annotations.
func Selected() Filter {
	return func(a engine.Annotation) bool { return a.Selected }
}

// All matches annotations every filter matches.
func All(filters ...Filter) Filter {
	return func(a engine.Annotation) bool {
		for _, f := range filters {
			if f != nil && !f(a) {
				return false
			}
		}
		return true
	}
}

// PersistenceError is a failed save or load of one annotation.
type PersistenceError struct {
	UID string
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.UID == "" {
		return fmt.Sprintf("annotation %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("annotation %s %s: %v", e.Op, e.UID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SaveReport summarizes SaveAnnotations.
type SaveReport struct {
	Saved    int
	Skipped  int
	Failures []*PersistenceError
}

// Err joins the failures, nil when every annotation was saved.
func (r SaveReport) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// LoadReport summarizes LoadAnnotations.
type LoadReport struct {
	Loaded   int
	Failures []*PersistenceError
}

// Err joins the failures, nil when every record was restored.
func (r LoadReport) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// transport is the persisted form of an annotation: its geometry plus
// metadata.
type transport struct {
	engine.Annotation
	Metadata Metadata `json:"metadata"`
}

func encodeTransport(a engine.Annotation, md Metadata) (json.RawMessage, error) {
	return json.Marshal(transport{Annotation: a, Metadata: md})
}

func decodeTransport(data []byte) (engine.Annotation, Metadata, error) {
	t := transport{Metadata: DefaultMetadata()}
	if err := json.Unmarshal(data, &t); err != nil {
		return engine.Annotation{}, Metadata{}, err
	}
	if t.ToolName == "" {
		return engine.Annotation{}, Metadata{}, errors.New("missing tool name")
	}
	return t.Annotation, t.Metadata, nil
}
