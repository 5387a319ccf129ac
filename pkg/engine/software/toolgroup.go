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
	"slices"
	"sync"

	"github.com/teradata-labs/planeview/pkg/engine"
)

type toolGroup struct {
	id string

	mu        sync.RWMutex
	tools     map[string]engine.ToolMode
	order     []string
	viewports []engine.ViewportRef
}

var _ engine.ToolGroup = (*toolGroup)(nil)

func newToolGroup(id string) *toolGroup {
	return &toolGroup{id: id, tools: make(map[string]engine.ToolMode)}
}

func (g *toolGroup) ID() string { return g.id }

func (g *toolGroup) AddTool(name string) error {
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tools[name]; ok {
		return nil
	}
	g.tools[name] = engine.ToolPassive
	g.order = append(g.order, name)
	return nil
}

func (g *toolGroup) Tools() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.order)
}

func (g *toolGroup) AddViewport(contextName, viewportID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := engine.ViewportRef{ContextName: contextName, ViewportID: viewportID}
	if !slices.Contains(g.viewports, ref) {
		g.viewports = append(g.viewports, ref)
	}
	return nil
}

func (g *toolGroup) RemoveViewport(contextName, viewportID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := engine.ViewportRef{ContextName: contextName, ViewportID: viewportID}
	i := slices.Index(g.viewports, ref)
	if i < 0 {
		return fmt.Errorf("viewport %q: %w", viewportID, engine.ErrNotFound)
	}
	g.viewports = slices.Delete(g.viewports, i, i+1)
	return nil
}

func (g *toolGroup) Viewports() []engine.ViewportRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.viewports)
}

func (g *toolGroup) hasViewport(contextName, viewportID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Contains(g.viewports, engine.ViewportRef{ContextName: contextName, ViewportID: viewportID})
}

func (g *toolGroup) setMode(name string, mode engine.ToolMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tools[name]; !ok {
		return fmt.Errorf("tool %q: %w", name, engine.ErrNotFound)
	}
	if mode == engine.ToolActive {
		for other, m := range g.tools {
			if m == engine.ToolActive && other != name {
				g.tools[other] = engine.ToolPassive
			}
		}
	}
	g.tools[name] = mode
	return nil
}

func (g *toolGroup) SetToolActive(name string) error { return g.setMode(name, engine.ToolActive) }

func (g *toolGroup) SetToolPassive(name string) error { return g.setMode(name, engine.ToolPassive) }

func (g *toolGroup) SetToolDisabled(name string) error { return g.setMode(name, engine.ToolDisabled) }

func (g *toolGroup) ToolMode(name string) engine.ToolMode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tools[name]
}

func (g *toolGroup) ActiveTool() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, name := range g.order {
		if g.tools[name] == engine.ToolActive {
			return name
		}
	}
	return ""
}
