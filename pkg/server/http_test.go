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
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/planeview/pkg/persistence"
)

func newTestServer(t *testing.T) (*HTTPServer, *httptest.Server) {
	t.Helper()
	store, err := persistence.OpenSQLite(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv, err := NewHTTPServer(store, "127.0.0.1:0", zaptest.NewLogger(t))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Stop(context.Background())
		ts.Close()
	})
	return srv, ts
}

func TestHTTPServer_Health(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHTTPServer_ClientRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()

	client, err := persistence.NewClient(ts.URL)
	require.NoError(t, err)

	created, err := client.Create(ctx, persistence.Record{
		StudyID: "study-1",
		UserID:  "reader",
		Type:    "Length",
		Data:    json.RawMessage(`{"handles":[[0,0,0],[10,0,0]]}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = client.Create(ctx, persistence.Record{
		StudyID: "study-2", UserID: "reader", Type: "Angle", Data: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	records, err := client.List(ctx, "study-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, created.ID, records[0].ID)
	assert.JSONEq(t, `{"handles":[[0,0,0],[10,0,0]]}`, string(records[0].Data))

	none, err := client.List(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHTTPServer_RejectsInvalidRecords(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "missing fields", body: `{"studyId":"s1"}`, wantMsg: "userId"},
		{name: "empty study", body: `{"studyId":"","userId":"u","type":"Length","data":{}}`, wantMsg: "studyId"},
		{name: "scalar data", body: `{"studyId":"s1","userId":"u","type":"Length","data":3}`, wantMsg: "data"},
		{name: "malformed", body: `{"studyId":`, wantMsg: "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/annotations", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Contains(t, body.Error+" "+strings.Join(body.Details, " "), tt.wantMsg)
		})
	}
}

func TestHTTPServer_ListRequiresStudy(t *testing.T) {
	_, ts := newTestServer(t)

	client, err := persistence.NewClient(ts.URL)
	require.NoError(t, err)
	_, err = client.List(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrStatus)

	var status *persistence.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusBadRequest, status.Code)
}

func TestHTTPServer_MethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/annotations", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTPServer_CORSPreflight(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/annotations", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://viewer.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestGetAllowedOrigin(t *testing.T) {
	h := &HTTPServer{corsConfig: CORSConfig{AllowedOrigins: []string{"http://a.local"}}}
	assert.Equal(t, "http://a.local", h.getAllowedOrigin("http://a.local"))
	assert.Empty(t, h.getAllowedOrigin("http://b.local"))
	assert.Empty(t, h.getAllowedOrigin(""))
}

func TestHTTPServer_EventStream(t *testing.T) {
	_, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/annotations/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	client, err := persistence.NewClient(ts.URL)
	require.NoError(t, err)
	created, err := client.Create(ctx, persistence.Record{
		StudyID: "study-1", UserID: "reader", Type: "Probe", Data: json.RawMessage(`{"x":1}`),
	})
	require.NoError(t, err)

	var data, event string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		}
		if line == "" && data != "" {
			break
		}
	}
	require.NotEmpty(t, data)
	assert.Equal(t, "created", event)

	var got persistence.Record
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Probe", got.Type)
}
