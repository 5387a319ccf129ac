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
	"errors"
	"fmt"
	"strings"

	"github.com/teradata-labs/planeview/pkg/metadata"
)

var (
	// ErrNotFound is returned when operating on a context, viewport or tool
	// group the manager does not hold. Teardown paths report it as an
	// ignored outcome instead.
	ErrNotFound = errors.New("viewport: not found")
	// ErrInitializationExhausted is returned once engine bootstrap has
	// failed MaxAttempts times, until the bootstrap is reset.
	ErrInitializationExhausted = errors.New("viewport: engine initialization exhausted")
)

// InitializationError is a failed engine bootstrap attempt.
type InitializationError struct {
	Attempt   int
	Exhausted bool
	Err       error
}

func (e *InitializationError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("engine initialization exhausted after %d attempts: %v", e.Attempt, e.Err)
	}
	return fmt.Sprintf("engine initialization attempt %d failed: %v", e.Attempt, e.Err)
}

// Unwrap exposes ErrInitializationExhausted once retries are used up.
func (e *InitializationError) Unwrap() []error {
	if e.Exhausted {
		return []error{ErrInitializationExhausted, e.Err}
	}
	return []error{e.Err}
}

// VolumeLoadError explains why a load ended in stack mode instead of volume
// mode. It is absorbed into a degraded LoadResult and never returned.
type VolumeLoadError struct {
	VolumeID string
	// Reason is the decision reason when the volume was never attempted.
	Reason  string
	Missing []metadata.Field
	Err     error
}

func (e *VolumeLoadError) Error() string {
	var b strings.Builder
	b.WriteString("volume load")
	if e.VolumeID != "" {
		b.WriteString(" " + e.VolumeID)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if len(e.Missing) > 0 {
		names := make([]string, len(e.Missing))
		for i, f := range e.Missing {
			names[i] = string(f)
		}
		b.WriteString(" (" + strings.Join(names, ", ") + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *VolumeLoadError) Unwrap() error { return e.Err }
