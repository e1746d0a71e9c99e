// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cloud implements the REST client to the supervision backend.
// It classifies delivery failures into the kinds the session tracker
// distinguishes; retry policy lives with the callers, not here.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"grimm.is/hearth/internal/blocklist"
	"grimm.is/hearth/internal/errors"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/session"
)

// Client talks to the supervision backend over HTTPS.
type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client
	logger   *logging.Logger

	tokenMu sync.RWMutex
	token   string
}

// NewClient creates a backend client. The token authorizes this device's
// supervised account; deviceID identifies the installation.
func NewClient(baseURL, token, deviceID string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Client{
		baseURL:  baseURL,
		token:    token,
		deviceID: deviceID,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger.WithComponent("cloud"),
	}
}

// SetToken replaces the bearer token after re-authentication. Safe to
// call while flush, sync, and monitor goroutines are issuing requests.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

func (c *Client) bearerToken() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// SubmitActivity posts one telemetry batch. Implements session.Submitter.
func (c *Client) SubmitActivity(ctx context.Context, records []session.FlushRecord) error {
	payload := struct {
		Entries []session.FlushRecord `json:"entries"`
	}{Entries: records}
	return c.post(ctx, "/api/v1/activity", payload, nil)
}

// FetchRuleSet retrieves the current rule-sync payload for this device.
func (c *Client) FetchRuleSet(ctx context.Context) (*blocklist.SyncPayload, error) {
	var payload blocklist.SyncPayload
	if err := c.get(ctx, "/api/v1/devices/"+c.deviceID+"/rules", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Ping checks backend reachability without side effects.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/api/v1/ping", nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "build request")
	}
	return c.do(req, out)
}

// do executes the request and classifies failures. Transport errors mean
// the device is offline; 401 and 419 mean the backend session expired.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.bearerToken())
	req.Header.Set("X-Device-ID", c.deviceID)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.KindOffline, "backend unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == 419:
		return errors.Errorf(errors.KindAuthExpired, "backend session expired (status %d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return errors.Errorf(errors.KindUnavailable, "backend error %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf(errors.KindInternal, "request rejected (%d): %s", resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return errors.Wrap(err, errors.KindInternal, "decode response")
	}
	return nil
}
