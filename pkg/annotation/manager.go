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
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/outcome"
	"github.com/teradata-labs/planeview/pkg/persistence"
)

// Topology resolves a tool group's bound viewports. engine.Engine
// satisfies it.
type Topology interface {
	ToolGroup(id string) (engine.ToolGroup, error)
	Viewport(contextName, viewportID string) (engine.Viewport, error)
}

// Stats counts tool groups and engine events.
type Stats struct {
	ToolGroups     int `json:"tool_groups" yaml:"tool_groups"`
	Degraded       int `json:"degraded" yaml:"degraded"`
	Annotations    int `json:"annotations" yaml:"annotations"`
	Added          int `json:"added" yaml:"added"`
	Modified       int `json:"modified" yaml:"modified"`
	Removed        int `json:"removed" yaml:"removed"`
	SelectionSyncs int `json:"selection_syncs" yaml:"selection_syncs"`
}

type set map[string]struct{}

type groupState struct {
	id       string
	degraded bool
	selected set
	locked   set
	hidden   set
	groups   map[string]set
	meta     map[string]*Metadata
	cancel   func()
	done     chan struct{}
}

func newGroupState(id string) *groupState {
	return &groupState{
		id:       id,
		selected: make(set),
		locked:   make(set),
		hidden:   make(set),
		groups:   make(map[string]set),
		meta:     make(map[string]*Metadata),
	}
}

// seed returns the metadata of uid, creating the default when absent.
func (g *groupState) seed(uid string) *Metadata {
	md, ok := g.meta[uid]
	if !ok {
		d := DefaultMetadata()
		md = &d
		g.meta[uid] = md
	}
	return md
}

func (g *groupState) purge(uid string) {
	delete(g.selected, uid)
	delete(g.locked, uid)
	delete(g.hidden, uid)
	if md, ok := g.meta[uid]; ok && md.GroupID != "" {
		if members := g.groups[md.GroupID]; members != nil {
			delete(members, uid)
			if len(members) == 0 {
				delete(g.groups, md.GroupID)
			}
		}
	}
	delete(g.meta, uid)
}

func (g *groupState) reset() {
	clear(g.selected)
	clear(g.locked)
	clear(g.hidden)
	clear(g.groups)
	clear(g.meta)
}

// Manager is the annotation state manager. It is safe for concurrent use.
type Manager struct {
	adapter  engine.AnnotationAdapter
	topology Topology
	store    persistence.Store
	logger   *zap.Logger

	capsOnce sync.Once
	caps     engine.Capability

	mu     sync.Mutex
	groups map[string]*groupState
	stats  Stats
}

// NewManager creates a manager. store may be nil when nothing is saved.
func NewManager(adapter engine.AnnotationAdapter, topology Topology, store persistence.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		adapter:  adapter,
		topology: topology,
		store:    store,
		logger:   logger,
		groups:   make(map[string]*groupState),
	}
}

// Capabilities returns the adapter capabilities, negotiated on first use.
func (m *Manager) Capabilities() engine.Capability {
	m.capsOnce.Do(func() {
		m.caps = m.adapter.Capabilities()
		m.logger.Info("Annotation capabilities negotiated", zap.Stringer("capabilities", m.caps))
	})
	return m.caps
}

// Initialize starts mirroring a tool group. It subscribes to engine events
// when the adapter supports them and otherwise runs degraded: annotations
// are read on demand only. Initializing twice is a no-op.
func (m *Manager) Initialize(ctx context.Context, toolGroupID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	caps := m.Capabilities()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[toolGroupID]; ok {
		return nil
	}

	st := newGroupState(toolGroupID)
	if caps.Has(engine.CapSubscribe) {
		events, cancel, err := m.adapter.Subscribe(toolGroupID)
		if err != nil {
			if !errors.Is(err, engine.ErrUnsupported) {
				return fmt.Errorf("subscribe to %q: %w", toolGroupID, err)
			}
			st.degraded = true
		} else {
			st.cancel = cancel
			st.done = make(chan struct{})
			go m.consume(st, events)
		}
	} else {
		st.degraded = true
	}
	m.groups[toolGroupID] = st

	if st.degraded {
		m.logger.Warn("Annotation events unavailable, running read-only on demand",
			zap.String("tool_group", toolGroupID),
			zap.Stringer("capabilities", caps))
	} else {
		m.logger.Debug("Annotation state initialized", zap.String("tool_group", toolGroupID))
	}
	return nil
}

func (m *Manager) consume(st *groupState, events <-chan engine.AnnotationEvent) {
	defer close(st.done)
	for ev := range events {
		m.mu.Lock()
		switch ev.Type {
		case engine.AnnotationAdded:
			st.seed(ev.Annotation.UID)
			m.stats.Added++
		case engine.AnnotationModified:
			st.seed(ev.Annotation.UID)
			m.stats.Modified++
		case engine.AnnotationRemoved:
			st.purge(ev.Annotation.UID)
			m.stats.Removed++
		case engine.AnnotationSelectionChanged:
			clear(st.selected)
			for _, uid := range ev.Selected {
				st.selected[uid] = struct{}{}
			}
			m.stats.SelectionSyncs++
		}
		m.mu.Unlock()
		m.logger.Debug("Annotation event",
			zap.String("tool_group", st.id),
			zap.String("type", string(ev.Type)),
			zap.String("uid", ev.Annotation.UID))
	}
}

func (m *Manager) state(toolGroupID string) (*groupState, error) {
	st, ok := m.groups[toolGroupID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownToolGroup, toolGroupID)
	}
	return st, nil
}

// Degraded reports whether a tool group runs without engine events.
func (m *Manager) Degraded(toolGroupID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.groups[toolGroupID]
	return ok && st.degraded
}

// FramesOfReference returns the frames of reference to read annotations
// from: enumerated by the engine when it can, otherwise derived from the
// viewports bound to the tool group.
func (m *Manager) FramesOfReference(toolGroupID string) ([]string, error) {
	if m.Capabilities().Has(engine.CapEnumerate) {
		frames, err := m.adapter.FramesOfReference(toolGroupID)
		if err == nil {
			return frames, nil
		}
		m.logger.Debug("Frame enumeration failed, deriving from viewports",
			zap.String("tool_group", toolGroupID),
			zap.Error(err))
	}

	tg, err := m.topology.ToolGroup(toolGroupID)
	if err != nil {
		return nil, fmt.Errorf("tool group %q: %w", toolGroupID, err)
	}
	seen := make(map[string]bool)
	var frames []string
	for _, ref := range tg.Viewports() {
		vp, err := m.topology.Viewport(ref.ContextName, ref.ViewportID)
		if err != nil {
			continue
		}
		uid := vp.FrameOfReferenceUID()
		if !seen[uid] {
			seen[uid] = true
			frames = append(frames, uid)
		}
	}
	return frames, nil
}

// GetAnnotations returns the annotations of a tool group across every
// frame of reference, with local metadata applied, in no particular order.
// Frames that fail to read are skipped.
func (m *Manager) GetAnnotations(ctx context.Context, toolGroupID string, filter Filter) ([]engine.Annotation, error) {
	m.mu.Lock()
	_, err := m.state(toolGroupID)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	frames, err := m.FramesOfReference(toolGroupID)
	if err != nil {
		return nil, err
	}

	var all []engine.Annotation
	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		anns, err := m.adapter.Annotations(toolGroupID, frame)
		if err != nil {
			m.logger.Warn("Failed to read annotations",
				zap.String("tool_group", toolGroupID),
				zap.String("frame_of_reference", frame),
				zap.Error(err))
			continue
		}
		all = append(all, anns...)
	}

	m.mu.Lock()
	st, err := m.state(toolGroupID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	out := all[:0]
	for _, a := range all {
		if a.UID != "" {
			md := st.seed(a.UID)
			_, a.Selected = st.selected[a.UID]
			a.Locked = md.Locked
			a.Visible = md.Visible
		}
		if filter == nil || filter(a) {
			out = append(out, a)
		}
	}
	m.mu.Unlock()
	return out, nil
}

// Metadata returns the local metadata of an annotation.
func (m *Manager) Metadata(toolGroupID, uid string) (Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.groups[toolGroupID]
	if !ok {
		return Metadata{}, false
	}
	md, ok := st.meta[uid]
	if !ok {
		return Metadata{}, false
	}
	return *md, true
}

// SelectedUIDs returns the selected uids of a tool group, sorted.
func (m *Manager) SelectedUIDs(toolGroupID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.groups[toolGroupID]
	if !ok {
		return nil
	}
	uids := slices.Collect(maps.Keys(st.selected))
	slices.Sort(uids)
	return uids
}

// update applies change to the local state of uid, then forwards it to the
// engine when the adapter can mutate. The local change always sticks.
func (m *Manager) update(toolGroupID, uid, op string, change func(st *groupState, md *Metadata), forward func() error) outcome.Outcome {
	m.mu.Lock()
	st, err := m.state(toolGroupID)
	if err != nil {
		m.mu.Unlock()
		return outcome.Ignore(err)
	}
	change(st, st.seed(uid))
	m.mu.Unlock()

	if forward == nil {
		return outcome.Ok()
	}
	if !m.Capabilities().Has(engine.CapMutate) {
		return outcome.Ignore(fmt.Errorf("%s %s: %w", op, uid, engine.ErrUnsupported))
	}
	if err := forward(); err != nil {
		m.logger.Warn("Engine rejected annotation change",
			zap.String("tool_group", toolGroupID),
			zap.String("uid", uid),
			zap.String("op", op),
			zap.Error(err))
		return outcome.Ignore(fmt.Errorf("%s %s: %w", op, uid, err))
	}
	return outcome.Ok()
}

// Select marks an annotation selected.
func (m *Manager) Select(toolGroupID, uid string) outcome.Outcome {
	return m.update(toolGroupID, uid, "select",
		func(st *groupState, _ *Metadata) { st.selected[uid] = struct{}{} },
		func() error { return m.adapter.SetSelected(toolGroupID, uid, true) })
}

// Deselect clears the selection of an annotation.
func (m *Manager) Deselect(toolGroupID, uid string) outcome.Outcome {
	return m.update(toolGroupID, uid, "deselect",
		func(st *groupState, _ *Metadata) { delete(st.selected, uid) },
		func() error { return m.adapter.SetSelected(toolGroupID, uid, false) })
}

// Lock makes an annotation immutable in the engine.
func (m *Manager) Lock(toolGroupID, uid string) outcome.Outcome {
	return m.update(toolGroupID, uid, "lock",
		func(st *groupState, md *Metadata) {
			st.locked[uid] = struct{}{}
			md.Locked = true
		},
		func() error { return m.adapter.SetLocked(toolGroupID, uid, true) })
}

// Unlock makes an annotation editable again.
func (m *Manager) Unlock(toolGroupID, uid string) outcome.Outcome {
	return m.update(toolGroupID, uid, "unlock",
		func(st *groupState, md *Metadata) {
			delete(st.locked, uid)
			md.Locked = false
		},
		func() error { return m.adapter.SetLocked(toolGroupID, uid, false) })
}

// Hide hides an annotation.
func (m *Manager) Hide(toolGroupID, uid string) outcome.Outcome {
	return m.update(toolGroupID, uid, "hide",
		func(st *groupState, md *Metadata) {
			st.hidden[uid] = struct{}{}
			md.Visible = false
		},
		func() error { return m.adapter.SetVisible(toolGroupID, uid, false) })
}

// Show shows a hidden annotation.
func (m *Manager) Show(toolGroupID, uid string) outcome.Outcome {
	return m.update(toolGroupID, uid, "show",
		func(st *groupState, md *Metadata) {
			delete(st.hidden, uid)
			md.Visible = true
		},
		func() error { return m.adapter.SetVisible(toolGroupID, uid, true) })
}

// Group puts annotations into groupID, moving them out of any other group.
func (m *Manager) Group(toolGroupID, groupID string, uids ...string) error {
	if groupID == "" {
		return errors.New("group id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.state(toolGroupID)
	if err != nil {
		return err
	}
	for _, uid := range uids {
		st.setGroup(uid, groupID)
	}
	return nil
}

// Ungroup dissolves groupID.
func (m *Manager) Ungroup(toolGroupID, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.state(toolGroupID)
	if err != nil {
		return err
	}
	for uid := range st.groups[groupID] {
		if md, ok := st.meta[uid]; ok {
			md.GroupID = ""
		}
	}
	delete(st.groups, groupID)
	return nil
}

// GroupMembers returns the uids in groupID, sorted.
func (m *Manager) GroupMembers(toolGroupID, groupID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.groups[toolGroupID]
	if !ok {
		return nil
	}
	uids := slices.Collect(maps.Keys(st.groups[groupID]))
	slices.Sort(uids)
	return uids
}

func (g *groupState) setGroup(uid, groupID string) {
	md := g.seed(uid)
	if md.GroupID != "" && md.GroupID != groupID {
		if members := g.groups[md.GroupID]; members != nil {
			delete(members, uid)
			if len(members) == 0 {
				delete(g.groups, md.GroupID)
			}
		}
	}
	md.GroupID = groupID
	if g.groups[groupID] == nil {
		g.groups[groupID] = make(set)
	}
	g.groups[groupID][uid] = struct{}{}
}

// SetAnalysis attaches analysis text to an annotation.
func (m *Manager) SetAnalysis(toolGroupID, uid, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.state(toolGroupID)
	if err != nil {
		return err
	}
	st.seed(uid).Analysis = text
	return nil
}

// Close stops mirroring a tool group and drops its state.
func (m *Manager) Close(toolGroupID string) {
	m.mu.Lock()
	st, ok := m.groups[toolGroupID]
	delete(m.groups, toolGroupID)
	m.mu.Unlock()
	if !ok {
		return
	}
	if st.cancel != nil {
		st.cancel()
		<-st.done
	}
	m.logger.Debug("Annotation state closed", zap.String("tool_group", toolGroupID))
}

// CloseAll closes every tool group.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := slices.Collect(maps.Keys(m.groups))
	m.mu.Unlock()
	for _, id := range ids {
		m.Close(id)
	}
}

// Stats returns counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.ToolGroups = len(m.groups)
	for _, st := range m.groups {
		if st.degraded {
			s.Degraded++
		}
		s.Annotations += len(st.meta)
	}
	return s
}
