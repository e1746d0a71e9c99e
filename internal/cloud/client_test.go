// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/errors"
	"grimm.is/hearth/internal/session"
)

func TestSubmitActivitySendsEntriesEnvelope(t *testing.T) {
	var got struct {
		Entries []session.FlushRecord `json:"entries"`
	}
	var auth, device string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/activity", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		device = r.Header.Get("X-Device-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-123", "dev-1", nil)
	err := c.SubmitActivity(context.Background(), []session.FlushRecord{
		{URL: "https://example.com", Domain: "example.com", VisitTime: "2026-08-24T10:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", auth)
	assert.Equal(t, "dev-1", device)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "example.com", got.Entries[0].Domain)
}

func TestSetTokenTakesEffectUnderConcurrentRequests(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "old-token", "dev", nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = c.Ping(context.Background())
			}
		}()
	}
	c.SetToken("new-token")
	wg.Wait()

	require.NoError(t, c.Ping(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer new-token", seen[len(seen)-1])
	for _, auth := range seen {
		assert.Contains(t, []string{"Bearer old-token", "Bearer new-token"}, auth)
	}
}

func TestFailureClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   errors.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, errors.KindAuthExpired},
		{"session expired", 419, errors.KindAuthExpired},
		{"server error", http.StatusInternalServerError, errors.KindUnavailable},
		{"bad gateway", http.StatusBadGateway, errors.KindUnavailable},
		{"bad request", http.StatusBadRequest, errors.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "tok", "dev", nil)
			err := c.SubmitActivity(context.Background(), nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.GetKind(err))
		})
	}
}

func TestUnreachableBackendIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // port is now dead

	c := NewClient(srv.URL, "tok", "dev", nil)
	err := c.SubmitActivity(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsOffline(err))
}

func TestFetchRuleSetDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/devices/dev-1/rules", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"version": "v42",
			"rules": [{"pattern": "||example.com", "patternType": "domain", "category": "Social", "action": "block"}],
			"blockedDomains": ["games.example"],
			"allowOnlyListed": false
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "dev-1", nil)
	payload, err := c.FetchRuleSet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v42", payload.Version)
	require.Len(t, payload.Rules, 1)
	assert.Equal(t, "Social", payload.Rules[0].Category)
	assert.Equal(t, []string{"games.example"}, payload.BlockedDomains)
}
