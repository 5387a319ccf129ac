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

// Package volume decides whether a set of image identifiers can be loaded as
// a 3-D volume or must be shown as a stack of independent slices.
package volume

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/imageid"
	"github.com/teradata-labs/planeview/pkg/metadata"
)

// MinSlices is the smallest identifier count that can form a volume.
const MinSlices = 3

// Prober returns the attributes of one image.
type Prober interface {
	Get(ctx context.Context, id imageid.ID) (metadata.SeriesMetadata, error)
}

// Reason explains a decision.
type Reason string

const (
	ReasonEligible        Reason = "eligible"
	ReasonTooFewSlices    Reason = "too few slices"
	ReasonProbeFailed     Reason = "metadata probe failed"
	ReasonMissingGeometry Reason = "missing geometry"
)

// Decision is the explained result of CanFormVolume.
type Decision struct {
	Volume  bool             `json:"volume" yaml:"volume"`
	Reason  Reason           `json:"reason" yaml:"reason"`
	Slices  int              `json:"slices" yaml:"slices"`
	Missing []metadata.Field `json:"missing,omitempty" yaml:"missing,omitempty"`
	Err     error            `json:"-" yaml:"-"`
}

// String formats the decision for logs and the CLI.
func (d Decision) String() string {
	switch {
	case d.Volume:
		return fmt.Sprintf("volume (%d slices)", d.Slices)
	case len(d.Missing) > 0:
		names := make([]string, len(d.Missing))
		for i, f := range d.Missing {
			names[i] = string(f)
		}
		return fmt.Sprintf("stack: %s (%s)", d.Reason, strings.Join(names, ", "))
	case d.Err != nil:
		return fmt.Sprintf("stack: %s: %v", d.Reason, d.Err)
	default:
		return fmt.Sprintf("stack: %s (%d slices)", d.Reason, d.Slices)
	}
}

// Decider makes volume-loadability decisions. It only probes the first
// identifier; series are assumed homogeneous.
type Decider struct {
	probe  Prober
	logger *zap.Logger
}

// NewDecider creates a decider over probe.
func NewDecider(probe Prober, logger *zap.Logger) *Decider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decider{probe: probe, logger: logger}
}

// CanFormVolume reports whether ids can be loaded as a volume. It never
// fails: a probe error means false.
func (d *Decider) CanFormVolume(ctx context.Context, ids []imageid.ID) bool {
	return d.Explain(ctx, ids).Volume
}

// Explain returns the decision with its reason.
func (d *Decider) Explain(ctx context.Context, ids []imageid.ID) Decision {
	dec := Decision{Slices: len(ids)}
	if len(ids) < MinSlices {
		dec.Reason = ReasonTooFewSlices
		return dec
	}

	m, err := d.probe.Get(ctx, ids[0])
	if err != nil {
		d.logger.Debug("Volume probe failed, using stack",
			zap.String("image", ids[0].String()),
			zap.Error(err))
		dec.Reason = ReasonProbeFailed
		dec.Err = err
		return dec
	}

	if missing := m.MissingGeometry(); len(missing) > 0 {
		dec.Reason = ReasonMissingGeometry
		dec.Missing = missing
		return dec
	}

	dec.Volume = true
	dec.Reason = ReasonEligible
	return dec
}
