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

package software

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/teradata-labs/planeview/internal/pubsub"
	"github.com/teradata-labs/planeview/pkg/engine"
)

// annotationStore holds annotations per tool group and fans interaction
// events out per tool group.
type annotationStore struct {
	mu      sync.RWMutex
	groups  map[string]map[string]*engine.Annotation
	brokers map[string]*pubsub.Broker[engine.AnnotationEvent]
}

func newAnnotationStore() *annotationStore {
	return &annotationStore{
		groups:  make(map[string]map[string]*engine.Annotation),
		brokers: make(map[string]*pubsub.Broker[engine.AnnotationEvent]),
	}
}

func clone(a *engine.Annotation) engine.Annotation {
	out := *a
	out.Points = slices.Clone(a.Points)
	out.Data = maps.Clone(a.Data)
	return out
}

func (s *annotationStore) broker(group string) *pubsub.Broker[engine.AnnotationEvent] {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.brokers[group]
	if !ok {
		b = pubsub.NewBroker[engine.AnnotationEvent](0)
		s.brokers[group] = b
	}
	return b
}

func (s *annotationStore) publish(group string, ev pubsub.Event[engine.AnnotationEvent]) {
	s.mu.RLock()
	b := s.brokers[group]
	s.mu.RUnlock()
	if b != nil {
		b.Publish(ev)
	}
}

func (s *annotationStore) add(group string, a engine.Annotation) engine.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.UID == "" {
		a.UID = uuid.NewString()
	}
	anns, ok := s.groups[group]
	if !ok {
		anns = make(map[string]*engine.Annotation)
		s.groups[group] = anns
	}
	stored := clone(&a)
	anns[a.UID] = &stored
	return clone(&stored)
}

func (s *annotationStore) get(group, uid string) (engine.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.groups[group][uid]
	if !ok {
		return engine.Annotation{}, fmt.Errorf("annotation %q: %w", uid, engine.ErrNotFound)
	}
	return clone(a), nil
}

func (s *annotationStore) update(group, uid string, fn func(a *engine.Annotation) error) (engine.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.groups[group][uid]
	if !ok {
		return engine.Annotation{}, fmt.Errorf("annotation %q: %w", uid, engine.ErrNotFound)
	}
	if err := fn(a); err != nil {
		return engine.Annotation{}, err
	}
	return clone(a), nil
}

func (s *annotationStore) remove(group, uid string) (engine.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.groups[group][uid]
	if !ok {
		return engine.Annotation{}, fmt.Errorf("annotation %q: %w", uid, engine.ErrNotFound)
	}
	delete(s.groups[group], uid)
	return clone(a), nil
}

func (s *annotationStore) removeAll(group string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.groups[group])
	delete(s.groups, group)
	return n
}

func (s *annotationStore) dropGroup(group string) {
	s.mu.Lock()
	delete(s.groups, group)
	b := s.brokers[group]
	delete(s.brokers, group)
	s.mu.Unlock()
	if b != nil {
		b.Close()
	}
}

func (s *annotationStore) list(group string, match func(*engine.Annotation) bool) []engine.Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.Annotation
	for _, a := range s.groups[group] {
		if match(a) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (s *annotationStore) framesOfReference(group string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, a := range s.groups[group] {
		seen[a.FrameOfReferenceUID] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

func (s *annotationStore) selected(group string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for uid, a := range s.groups[group] {
		if a.Selected {
			out = append(out, uid)
		}
	}
	sort.Strings(out)
	return out
}

// visibleIn returns the visible annotations of group that belong on a view
// showing frameUID, or imageID for stack views.
func (s *annotationStore) visibleIn(group, frameUID, imageID string) []engine.Annotation {
	return s.list(group, func(a *engine.Annotation) bool {
		if !a.Visible {
			return false
		}
		if a.ReferencedImageID != "" && imageID != "" {
			return a.ReferencedImageID == imageID
		}
		return a.FrameOfReferenceUID == frameUID
	})
}

// Draw creates an annotation as a user interaction would and reports it to
// subscribers. The annotation starts visible and unlocked.
func (e *Engine) Draw(toolGroupID string, a engine.Annotation) (string, error) {
	if _, err := e.toolGroup(toolGroupID); err != nil {
		return "", err
	}
	a.Visible = true
	a.Locked = false
	a.Selected = false
	stored := e.annotations.add(toolGroupID, a)
	e.annotations.publish(toolGroupID, pubsub.NewCreatedEvent(engine.AnnotationEvent{
		Type: engine.AnnotationAdded, ToolGroupID: toolGroupID, Annotation: stored,
	}))
	return stored.UID, nil
}

// Edit moves the points of an annotation as a user drag would. Locked
// annotations refuse edits.
func (e *Engine) Edit(toolGroupID, uid string, points []engine.Point) error {
	stored, err := e.annotations.update(toolGroupID, uid, func(a *engine.Annotation) error {
		if a.Locked {
			return fmt.Errorf("annotation %q is locked", uid)
		}
		a.Points = slices.Clone(points)
		return nil
	})
	if err != nil {
		return err
	}
	e.annotations.publish(toolGroupID, pubsub.NewUpdatedEvent(engine.AnnotationEvent{
		Type: engine.AnnotationModified, ToolGroupID: toolGroupID, Annotation: stored,
	}))
	return nil
}

// Erase deletes an annotation as a user would.
func (e *Engine) Erase(toolGroupID, uid string) error {
	removed, err := e.annotations.remove(toolGroupID, uid)
	if err != nil {
		return err
	}
	e.annotations.publish(toolGroupID, pubsub.NewDeletedEvent(engine.AnnotationEvent{
		Type: engine.AnnotationRemoved, ToolGroupID: toolGroupID, Annotation: removed,
	}))
	return nil
}

// Pick replaces the selection as a user click would.
func (e *Engine) Pick(toolGroupID string, uids ...string) error {
	if _, err := e.toolGroup(toolGroupID); err != nil {
		return err
	}
	want := make(map[string]bool, len(uids))
	for _, uid := range uids {
		want[uid] = true
	}
	for _, a := range e.annotations.list(toolGroupID, func(*engine.Annotation) bool { return true }) {
		selected := want[a.UID]
		if a.Selected == selected {
			continue
		}
		_, _ = e.annotations.update(toolGroupID, a.UID, func(ann *engine.Annotation) error {
			ann.Selected = selected
			return nil
		})
	}
	e.annotations.publish(toolGroupID, pubsub.NewSelectedEvent(engine.AnnotationEvent{
		Type:        engine.AnnotationSelectionChanged,
		ToolGroupID: toolGroupID,
		Selected:    e.annotations.selected(toolGroupID),
	}))
	return nil
}

// Annotations returns the adapter of the current engine version: every
// capability is supported.
func (e *Engine) Annotations() engine.AnnotationAdapter {
	return &annotationAdapter{eng: e, caps: engine.CapSubscribe | engine.CapEnumerate | engine.CapMutate}
}

// LegacyAnnotations returns the adapter of the previous engine version,
// which can neither deliver events nor enumerate frames of reference.
func (e *Engine) LegacyAnnotations() engine.AnnotationAdapter {
	return &annotationAdapter{eng: e, caps: engine.CapMutate}
}

// annotationAdapter implements engine.AnnotationAdapter. Changes made
// through it are not reported back as events.
type annotationAdapter struct {
	eng  *Engine
	caps engine.Capability
}

func (a *annotationAdapter) Capabilities() engine.Capability { return a.caps }

func (a *annotationAdapter) require(c engine.Capability) error {
	if !a.caps.Has(c) {
		return fmt.Errorf("%s: %w", c, engine.ErrUnsupported)
	}
	return nil
}

func (a *annotationAdapter) Subscribe(toolGroupID string) (<-chan engine.AnnotationEvent, func(), error) {
	if err := a.require(engine.CapSubscribe); err != nil {
		return nil, nil, err
	}
	if _, err := a.eng.toolGroup(toolGroupID); err != nil {
		return nil, nil, err
	}

	src, cancelSrc := a.eng.annotations.broker(toolGroupID).Subscribe()
	out := make(chan engine.AnnotationEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for ev := range src {
			select {
			case out <- ev.Payload:
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			cancelSrc()
		})
	}
	return out, cancel, nil
}

func (a *annotationAdapter) FramesOfReference(toolGroupID string) ([]string, error) {
	if err := a.require(engine.CapEnumerate); err != nil {
		return nil, err
	}
	if _, err := a.eng.toolGroup(toolGroupID); err != nil {
		return nil, err
	}
	return a.eng.annotations.framesOfReference(toolGroupID), nil
}

func (a *annotationAdapter) Annotations(toolGroupID, frameOfReferenceUID string) ([]engine.Annotation, error) {
	if _, err := a.eng.toolGroup(toolGroupID); err != nil {
		return nil, err
	}
	return a.eng.annotations.list(toolGroupID, func(ann *engine.Annotation) bool {
		return ann.FrameOfReferenceUID == frameOfReferenceUID
	}), nil
}

func (a *annotationAdapter) Add(toolGroupID string, ann engine.Annotation) (string, error) {
	if _, err := a.eng.toolGroup(toolGroupID); err != nil {
		return "", err
	}
	if ann.ToolName == "" {
		return "", fmt.Errorf("annotation tool name is required")
	}
	ann.Visible = true
	return a.eng.annotations.add(toolGroupID, ann).UID, nil
}

func (a *annotationAdapter) Remove(toolGroupID, uid string) error {
	_, err := a.eng.annotations.remove(toolGroupID, uid)
	return err
}

func (a *annotationAdapter) RemoveAll(toolGroupID string) error {
	if _, err := a.eng.toolGroup(toolGroupID); err != nil {
		return err
	}
	a.eng.annotations.removeAll(toolGroupID)
	return nil
}

func (a *annotationAdapter) set(toolGroupID, uid string, fn func(*engine.Annotation)) error {
	if err := a.require(engine.CapMutate); err != nil {
		return err
	}
	_, err := a.eng.annotations.update(toolGroupID, uid, func(ann *engine.Annotation) error {
		fn(ann)
		return nil
	})
	return err
}

func (a *annotationAdapter) SetSelected(toolGroupID, uid string, selected bool) error {
	return a.set(toolGroupID, uid, func(ann *engine.Annotation) { ann.Selected = selected })
}

func (a *annotationAdapter) SetLocked(toolGroupID, uid string, locked bool) error {
	return a.set(toolGroupID, uid, func(ann *engine.Annotation) { ann.Locked = locked })
}

func (a *annotationAdapter) SetVisible(toolGroupID, uid string, visible bool) error {
	return a.set(toolGroupID, uid, func(ann *engine.Annotation) { ann.Visible = visible })
}
