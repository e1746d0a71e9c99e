// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package state

import (
	"path/filepath"
	"testing"
)

func testStore(t *testing.T, s Store) {
	t.Helper()

	if _, err := s.Get("session", "missing"); err != ErrNotFound {
		t.Errorf("Get missing key: got %v, want ErrNotFound", err)
	}

	if err := s.Set("session", "offlineQueue", []byte(`[]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get("session", "offlineQueue")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `[]` {
		t.Errorf("Get = %q, want %q", got, `[]`)
	}

	// Overwrite
	if err := s.Set("session", "offlineQueue", []byte(`[1]`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, _ = s.Get("session", "offlineQueue")
	if string(got) != `[1]` {
		t.Errorf("after overwrite = %q, want %q", got, `[1]`)
	}

	// Buckets are independent
	if _, err := s.Get("blocklist", "offlineQueue"); err != ErrNotFound {
		t.Errorf("other bucket should not see key, got %v", err)
	}

	if err := s.Set("session", "lastStatsReset", []byte(`"2026-08-30"`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	keys, err := s.ListKeys("session")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("ListKeys = %v, want 2 keys", keys)
	}

	if err := s.Delete("session", "offlineQueue"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("session", "offlineQueue"); err != ErrNotFound {
		t.Errorf("deleted key should be gone, got %v", err)
	}
	// Deleting a missing key is not an error
	if err := s.Delete("session", "offlineQueue"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	testStore(t, s)
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore()

	type stats struct {
		Visited int    `json:"visited"`
		Date    string `json:"date"`
	}

	in := stats{Visited: 7, Date: "2026-08-30"}
	if err := SetJSON(s, "session", "stats", in); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var out stats
	if err := GetJSON(s, "session", "stats", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out != in {
		t.Errorf("roundtrip = %+v, want %+v", out, in)
	}

	if err := GetJSON(s, "session", "missing", &out); err != ErrNotFound {
		t.Errorf("GetJSON missing = %v, want ErrNotFound", err)
	}
}
