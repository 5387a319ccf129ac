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
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/persistence"
)

// SaveAnnotations persists every annotation of a tool group, one store call
// per annotation. Annotations without a uid are skipped. Failures are
// collected in the report and not retried.
func (m *Manager) SaveAnnotations(ctx context.Context, toolGroupID, studyID, userID string) (SaveReport, error) {
	if m.store == nil {
		return SaveReport{}, ErrNoStore
	}
	anns, err := m.GetAnnotations(ctx, toolGroupID, nil)
	if err != nil {
		return SaveReport{}, err
	}

	var report SaveReport
	for _, a := range anns {
		if a.UID == "" {
			report.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		md, ok := m.stamp(toolGroupID, a.UID, studyID, userID)
		if !ok {
			report.Skipped++
			continue
		}
		data, err := encodeTransport(a, md)
		if err != nil {
			report.Failures = append(report.Failures, &PersistenceError{UID: a.UID, Op: "save", Err: err})
			continue
		}

		_, err = m.store.Create(ctx, persistence.Record{
			StudyID: studyID,
			UserID:  userID,
			Type:    a.ToolName,
			Data:    data,
		})
		if err != nil {
			m.logger.Warn("Failed to save annotation",
				zap.String("tool_group", toolGroupID),
				zap.String("uid", a.UID),
				zap.Error(err))
			report.Failures = append(report.Failures, &PersistenceError{UID: a.UID, Op: "save", Err: err})
			continue
		}
		report.Saved++
	}

	m.logger.Info("Annotations saved",
		zap.String("tool_group", toolGroupID),
		zap.String("study_id", studyID),
		zap.Int("saved", report.Saved),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failures)))
	return report, nil
}

// stamp records the study and user on the metadata of uid and returns a
// copy.
func (m *Manager) stamp(toolGroupID, uid, studyID, userID string) (Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.state(toolGroupID)
	if err != nil {
		return Metadata{}, false
	}
	md := st.seed(uid)
	md.StudyID = studyID
	md.UserID = userID
	return *md, true
}

// LoadAnnotations replaces the annotations of a tool group with the
// persisted records of a study: local state and engine annotations are
// cleared, each record is recreated under its saved uid, and lock,
// visibility, grouping and analysis are reapplied. A record that cannot be
// restored is logged and counted and the rest continue.
func (m *Manager) LoadAnnotations(ctx context.Context, toolGroupID, studyID string) (LoadReport, error) {
	if m.store == nil {
		return LoadReport{}, ErrNoStore
	}
	m.mu.Lock()
	_, err := m.state(toolGroupID)
	m.mu.Unlock()
	if err != nil {
		return LoadReport{}, err
	}

	records, err := m.store.List(ctx, studyID)
	if err != nil {
		return LoadReport{}, &PersistenceError{Op: "list", Err: err}
	}

	if err := m.adapter.RemoveAll(toolGroupID); err != nil {
		return LoadReport{}, fmt.Errorf("clear engine annotations of %q: %w", toolGroupID, err)
	}
	m.mu.Lock()
	st, err := m.state(toolGroupID)
	if err != nil {
		m.mu.Unlock()
		return LoadReport{}, err
	}
	st.reset()
	m.mu.Unlock()

	var report LoadReport
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		uid, err := m.restore(toolGroupID, rec)
		if err != nil {
			m.logger.Warn("Failed to restore annotation",
				zap.String("tool_group", toolGroupID),
				zap.String("record", rec.ID),
				zap.String("uid", uid),
				zap.Error(err))
			report.Failures = append(report.Failures, &PersistenceError{UID: uid, Op: "load", Err: err})
			continue
		}
		report.Loaded++
	}

	m.logger.Info("Annotations loaded",
		zap.String("tool_group", toolGroupID),
		zap.String("study_id", studyID),
		zap.Int("loaded", report.Loaded),
		zap.Int("failed", len(report.Failures)))
	return report, nil
}

func (m *Manager) restore(toolGroupID string, rec persistence.Record) (string, error) {
	a, md, err := decodeTransport(rec.Data)
	if err != nil {
		return "", fmt.Errorf("decode record %s: %w", rec.ID, err)
	}
	a.Locked, a.Visible, a.Selected = false, true, false

	uid, err := m.adapter.Add(toolGroupID, a)
	if err != nil {
		return a.UID, err
	}

	m.mu.Lock()
	if st, err := m.state(toolGroupID); err == nil {
		restored := md
		st.meta[uid] = &restored
		if md.Locked {
			st.locked[uid] = struct{}{}
		}
		if !md.Visible {
			st.hidden[uid] = struct{}{}
		}
		if md.GroupID != "" {
			st.setGroup(uid, md.GroupID)
		}
	}
	m.mu.Unlock()

	if m.Capabilities().Has(engine.CapMutate) {
		if md.Locked {
			if err := m.adapter.SetLocked(toolGroupID, uid, true); err != nil {
				m.logger.Debug("Failed to reapply lock", zap.String("uid", uid), zap.Error(err))
			}
		}
		if !md.Visible {
			if err := m.adapter.SetVisible(toolGroupID, uid, false); err != nil {
				m.logger.Debug("Failed to reapply visibility", zap.String("uid", uid), zap.Error(err))
			}
		}
	}
	return uid, nil
}
