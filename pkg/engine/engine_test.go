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

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type gridStub struct{ dims [3]int }

func (g gridStub) ID() string { return "grid" }
func (g gridStub) Load(context.Context) error { return nil }
func (g gridStub) Loaded() bool { return true }
func (g gridStub) Dimensions() [3]int { return g.dims }

func TestViewportTypesAndVolumeData(t *testing.T) {
	assert.Equal(t, ViewportType("STACK"), Stack)
	assert.Equal(t, ViewportType("VOLUME"), Volume)
	assert.Len(t, Orientations, 3)

	var data VolumeData = gridStub{dims: [3]int{4, 4, 3}}
	assert.Equal(t, [3]int{4, 4, 3}, data.Dimensions())
}
