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
	"sync"

	"github.com/teradata-labs/planeview/pkg/engine"
)

// fakeAdapter serves a fixed annotation list from one frame of reference.
type fakeAdapter struct {
	caps engine.Capability
	anns []engine.Annotation

	mu         sync.Mutex
	added      []string
	lockedUIDs []string
	removeAlls int
}

func (f *fakeAdapter) Capabilities() engine.Capability { return f.caps }

func (f *fakeAdapter) Subscribe(string) (<-chan engine.AnnotationEvent, func(), error) {
	return nil, nil, engine.ErrUnsupported
}

func (f *fakeAdapter) FramesOfReference(string) ([]string, error) { return []string{""}, nil }

func (f *fakeAdapter) Annotations(string, string) ([]engine.Annotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Annotation(nil), f.anns...), nil
}

func (f *fakeAdapter) Add(_ string, a engine.Annotation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, a.UID)
	f.anns = append(f.anns, a)
	return a.UID, nil
}

func (f *fakeAdapter) Remove(string, string) error { return nil }

func (f *fakeAdapter) RemoveAll(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeAlls++
	f.anns = nil
	return nil
}

func (f *fakeAdapter) SetSelected(string, string, bool) error { return nil }

func (f *fakeAdapter) SetLocked(_ string, uid string, locked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if locked {
		f.lockedUIDs = append(f.lockedUIDs, uid)
	}
	return nil
}

func (f *fakeAdapter) SetVisible(string, string, bool) error { return nil }
