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

// Package persistence stores annotation records. The same record shape is
// served over HTTP by pkg/server, fetched by Client and kept on disk by
// SQLiteStore.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrStatus is wrapped by StatusError for non-2xx responses.
	ErrStatus = errors.New("persistence: unexpected status")
	// ErrInvalid is returned for a record missing a required field.
	ErrInvalid = errors.New("persistence: invalid record")
)

// Record is one persisted annotation.
type Record struct {
	ID        string          `json:"id,omitempty"`
	StudyID   string          `json:"studyId"`
	UserID    string          `json:"userId"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt,omitzero"`
}

// Validate checks the fields every store requires.
func (r Record) Validate() error {
	var missing []string
	if r.StudyID == "" {
		missing = append(missing, "studyId")
	}
	if r.UserID == "" {
		missing = append(missing, "userId")
	}
	if r.Type == "" {
		missing = append(missing, "type")
	}
	if len(r.Data) == 0 {
		missing = append(missing, "data")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// Store creates and lists annotation records.
type Store interface {
	// Create stores r and returns it with ID and CreatedAt assigned.
	Create(ctx context.Context, r Record) (Record, error)
	// List returns the records of a study in creation order.
	List(ctx context.Context, studyID string) ([]Record, error)
}

// StatusError is a non-2xx response from the annotation API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("annotation api: status %d", e.Code)
	}
	return fmt.Sprintf("annotation api: status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }
