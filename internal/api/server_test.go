// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/blocklist"
	"grimm.is/hearth/internal/session"
	"grimm.is/hearth/internal/state"
)

type nopSubmitter struct{}

func (nopSubmitter) SubmitActivity(context.Context, []session.FlushRecord) error { return nil }

type nopInstaller struct{}

func (nopInstaller) InstalledRuleIDs() ([]int, error)        { return nil, nil }
func (nopInstaller) RemoveRules([]int) error                 { return nil }
func (nopInstaller) AddRules([]blocklist.CompiledRule) error { return nil }

func newTestServer(t *testing.T) (*Server, *session.Tracker, *blocklist.Service) {
	t.Helper()
	store := state.NewMemoryStore()
	tracker := session.NewTracker(store, nopSubmitter{}, nil)
	tracker.SetAuthenticated(true)
	bl := blocklist.NewService(nopInstaller{}, store, nil)
	return NewServer("127.0.0.1:0", tracker, bl, nil, nil, nil), tracker, bl
}

func get(t *testing.T, router http.Handler, path string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var body map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func TestStatusReportsCounters(t *testing.T) {
	srv, _, _ := newTestServer(t)

	code, body := get(t, srv.Router(), "/api/v1/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["pendingRecords"])
	assert.Equal(t, float64(0), body["offlineRecords"])
	assert.Equal(t, "", body["blocklistVersion"])
}

func TestCheckRequiresURL(t *testing.T) {
	srv, _, _ := newTestServer(t)

	code, body := get(t, srv.Router(), "/api/v1/check")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "url")
}

func TestCheckReflectsBlocklist(t *testing.T) {
	srv, _, bl := newTestServer(t)
	_, _, err := bl.Sync(blocklist.SyncPayload{
		Version:        "v1",
		BlockedDomains: []string{"games.example"},
	})
	require.NoError(t, err)

	code, body := get(t, srv.Router(), "/api/v1/check?url=https://games.example/play")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["blocked"])

	code, body = get(t, srv.Router(), "/api/v1/check?url=https://fine.example")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["blocked"])
}

func TestStatsEndpoint(t *testing.T) {
	srv, tracker, _ := newTestServer(t)
	tracker.LogBlockedRequest("https://ads.example", "blocklist", "Ads")

	code, body := get(t, srv.Router(), "/api/v1/stats")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["blockedCount"])
}

func TestConnectivityRestoredTriggersCallback(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var mu sync.Mutex
	called := false
	srv.OnConnectivityRestored = func() {
		mu.Lock()
		called = true
		mu.Unlock()
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/connectivity/restored", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := called
		mu.Unlock()
		if done {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("callback never ran")
}

func TestBlockedReportBumpsStats(t *testing.T) {
	srv, tracker, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/blocked",
		bytes.NewReader([]byte(`{"url":"https://ads.example","reason":"blocklist","category":"Ads"}`)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, tracker.StatsToday().BlockedCount)

	// Missing URL is rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/blocked",
		bytes.NewReader([]byte(`{"reason":"blocklist"}`)))
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointServes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}
