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

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/r3labs/sse/v2"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/persistence"
)

const maxBodyBytes = 8 << 20

// recordSchema is the body of POST /annotations.
const recordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["studyId", "userId", "type", "data"],
  "properties": {
    "studyId": {"type": "string", "minLength": 1},
    "userId":  {"type": "string", "minLength": 1},
    "type":    {"type": "string", "minLength": 1},
    "data":    {"type": ["object", "array"]}
  }
}`

type recordValidator struct {
	schema *gojsonschema.Schema
}

func newRecordValidator() (*recordValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(recordSchema))
	if err != nil {
		return nil, err
	}
	return &recordValidator{schema: schema}, nil
}

// validate returns the schema violations of body, none when it is valid.
func (v *recordValidator) validate(body []byte) ([]string, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		return nil, nil
	}
	problems := make([]string, len(result.Errors()))
	for i, e := range result.Errors() {
		problems[i] = e.String()
	}
	return problems, nil
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

func (h *HTTPServer) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createAnnotation(w, r)
	case http.MethodGet:
		h.listAnnotations(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *HTTPServer) createAnnotation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	problems, err := h.validator.validate(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON", err.Error())
		return
	}
	if len(problems) > 0 {
		writeError(w, http.StatusBadRequest, "invalid annotation record", problems...)
		return
	}

	var rec persistence.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON", err.Error())
		return
	}
	rec.ID = ""

	stored, err := h.store.Create(r.Context(), rec)
	if err != nil {
		if errors.Is(err, persistence.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to store annotation", zap.String("study_id", rec.StudyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store annotation")
		return
	}

	h.publish(stored)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *HTTPServer) listAnnotations(w http.ResponseWriter, r *http.Request) {
	studyID := strings.TrimSpace(r.URL.Query().Get("studyId"))
	if studyID == "" {
		writeError(w, http.StatusBadRequest, "studyId query parameter is required")
		return
	}
	records, err := h.store.List(r.Context(), studyID)
	if err != nil {
		h.logger.Error("Failed to list annotations", zap.String("study_id", studyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list annotations")
		return
	}
	if records == nil {
		records = []persistence.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// publish announces a created record on the event stream without blocking
// the request when subscribers lag.
func (h *HTTPServer) publish(rec persistence.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	ok := h.events.TryPublish(EventStream, &sse.Event{
		ID:    []byte(rec.ID),
		Event: []byte("created"),
		Data:  data,
	})
	if !ok {
		h.logger.Warn("Annotation event dropped", zap.String("id", rec.ID))
	}
}
