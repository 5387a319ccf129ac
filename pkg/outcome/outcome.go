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

// Package outcome carries the result of best-effort operations. A failure
// that was absorbed is returned as data instead of being logged and lost, so
// callers and tests can tell an applied change from an ignored one.
package outcome

import (
	"errors"
	"fmt"
)

// Kind classifies an outcome.
type Kind int

const (
	// Applied means the operation took full effect.
	Applied Kind = iota
	// Ignored means a failure was absorbed and the operation was a no-op
	// from the caller's point of view.
	Ignored
	// Degraded means the operation succeeded with reduced capability.
	Degraded
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Applied:
		return "applied"
	case Ignored:
		return "ignored"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Outcome is the result of a best-effort operation. Err is the absorbed
// failure for Ignored and Degraded, and nil for Applied.
type Outcome struct {
	Kind Kind
	Err  error
}

// Ok returns an Applied outcome.
func Ok() Outcome { return Outcome{Kind: Applied} }

// Ignore returns an Ignored outcome carrying err.
func Ignore(err error) Outcome { return Outcome{Kind: Ignored, Err: err} }

// Degrade returns a Degraded outcome carrying the cause.
func Degrade(cause error) Outcome { return Outcome{Kind: Degraded, Err: cause} }

// From returns Applied when err is nil and Ignored otherwise.
func From(err error) Outcome {
	if err == nil {
		return Ok()
	}
	return Ignore(err)
}

// Applied reports whether the operation took full effect.
func (o Outcome) Applied() bool { return o.Kind == Applied }

// Ignored reports whether a failure was absorbed.
func (o Outcome) Ignored() bool { return o.Kind == Ignored }

// Degraded reports whether the operation succeeded with reduced capability.
func (o Outcome) Degraded() bool { return o.Kind == Degraded }

// String formats the outcome for logs.
func (o Outcome) String() string {
	if o.Err == nil {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s: %v", o.Kind, o.Err)
}

// Merge combines outcomes of sub-steps. The result is Applied when every
// step applied; otherwise it takes the most severe kind (Degraded over
// Ignored) and joins the absorbed errors.
func Merge(outcomes ...Outcome) Outcome {
	result := Ok()
	var errs []error
	for _, o := range outcomes {
		switch o.Kind {
		case Degraded:
			result.Kind = Degraded
		case Ignored:
			if result.Kind == Applied {
				result.Kind = Ignored
			}
		}
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	if len(errs) > 0 {
		result.Err = errors.Join(errs...)
	}
	return result
}
