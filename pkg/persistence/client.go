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

package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds one API call.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 4 << 10

// Client talks to the annotation API: POST /annotations and
// GET /annotations?studyId=.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid annotation endpoint %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid annotation endpoint %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Create posts r and returns the stored record.
func (c *Client) Create(ctx context.Context, r Record) (Record, error) {
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	body, err := json.Marshal(r)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/annotations", bytes.NewReader(body))
	if err != nil {
		return Record{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var stored Record
	if err := c.do(req, http.StatusCreated, &stored); err != nil {
		return Record{}, err
	}
	c.logger.Debug("Annotation record created",
		zap.String("id", stored.ID),
		zap.String("study_id", stored.StudyID),
		zap.String("type", stored.Type))
	return stored, nil
}

// List fetches the records of a study.
func (c *Client) List(ctx context.Context, studyID string) ([]Record, error) {
	q := url.Values{"studyId": {studyID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/annotations?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var records []Record
	if err := c.do(req, http.StatusOK, &records); err != nil {
		return nil, err
	}
	c.logger.Debug("Annotation records fetched",
		zap.String("study_id", studyID),
		zap.Int("count", len(records)))
	return records, nil
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
