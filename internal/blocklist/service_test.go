// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package blocklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/restrictions"
	"grimm.is/hearth/internal/state"
)

func mkPolicy() *restrictions.Policy {
	return &restrictions.Policy{
		Enabled:     true,
		TimeWindows: []restrictions.TimeWindow{{Start: "08:00", End: "20:00"}},
	}
}

// fakeInstaller records native rule mutations.
type fakeInstaller struct {
	installed []CompiledRule
	removes   int
	adds      int
}

func (f *fakeInstaller) InstalledRuleIDs() ([]int, error) {
	ids := make([]int, 0, len(f.installed))
	for _, r := range f.installed {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (f *fakeInstaller) RemoveRules(ids []int) error {
	f.removes++
	f.installed = nil
	return nil
}

func (f *fakeInstaller) AddRules(rules []CompiledRule) error {
	f.adds++
	f.installed = append(f.installed, rules...)
	return nil
}

func payloadV1() SyncPayload {
	return SyncPayload{
		Version: "v1",
		Rules: []Rule{
			{Pattern: "||youtube.com", Category: "Video"},
			{Pattern: "||games.example.com", Category: "Games"},
		},
		BlockedDomains: []string{"https://www.youtube.com/watch", "social.example.net"},
	}
}

func TestSyncSameVersionIsNoOp(t *testing.T) {
	inst := &fakeInstaller{}
	s := NewService(inst, state.NewMemoryStore(), nil)

	_, updated, err := s.Sync(payloadV1())
	require.NoError(t, err)
	require.True(t, updated)
	addsAfterFirst := inst.adds
	removesAfterFirst := inst.removes

	_, updated, err = s.Sync(payloadV1())
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, addsAfterFirst, inst.adds, "second sync must not add rules")
	assert.Equal(t, removesAfterFirst, inst.removes, "second sync must not remove rules")
}

func TestSyncEmptyVersionInstallsOnceThenSkips(t *testing.T) {
	inst := &fakeInstaller{}
	store := state.NewMemoryStore()
	s := NewService(inst, store, nil)

	p := payloadV1()
	p.Version = ""

	// A versionless backend still gets its first payload applied.
	_, updated, err := s.Sync(p)
	require.NoError(t, err)
	require.True(t, updated)
	addsAfterFirst := inst.adds

	// But identical empty versions are current, not a forced reinstall.
	_, updated, err = s.Sync(p)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, addsAfterFirst, inst.adds)

	// The applied marker survives a restart.
	s2 := NewService(inst, store, nil)
	_, updated, err = s2.Sync(p)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestSyncReplacesInsteadOfDiffing(t *testing.T) {
	inst := &fakeInstaller{}
	s := NewService(inst, state.NewMemoryStore(), nil)

	_, _, err := s.Sync(payloadV1())
	require.NoError(t, err)
	require.Len(t, inst.installed, 2)

	p2 := SyncPayload{
		Version: "v2",
		Rules:   []Rule{{Pattern: "||other.example", Category: "Other"}},
	}
	_, updated, err := s.Sync(p2)
	require.NoError(t, err)
	require.True(t, updated)

	// Old rules removed, new set installed from scratch with fresh IDs.
	require.Len(t, inst.installed, 1)
	assert.Equal(t, 1, inst.installed[0].ID)
	assert.GreaterOrEqual(t, inst.removes, 1)
}

func TestSyncReturnsRestrictionsPayload(t *testing.T) {
	s := NewService(&fakeInstaller{}, state.NewMemoryStore(), nil)

	p := payloadV1()
	p.TimeRestrictions = mkPolicy()
	policy, updated, err := s.Sync(p)
	require.NoError(t, err)
	assert.True(t, updated)
	require.NotNil(t, policy)
	assert.True(t, policy.Enabled)
}

func TestIsURLBlockedNormalizesStoredEntries(t *testing.T) {
	s := NewService(&fakeInstaller{}, state.NewMemoryStore(), nil)
	_, _, err := s.Sync(payloadV1())
	require.NoError(t, err)

	// Stored entry "https://www.youtube.com/watch" reduces to youtube.com.
	d := s.IsURLBlocked("youtube.com")
	assert.True(t, d.Blocked)
	assert.Equal(t, "Video", d.Category)

	// Query side is normalized too.
	d = s.IsURLBlocked("HTTPS://WWW.YouTube.COM/feed?x=1")
	assert.True(t, d.Blocked)

	// Subdomains of a blocked domain are blocked.
	d = s.IsURLBlocked("m.youtube.com")
	assert.True(t, d.Blocked)

	// Unrelated domains are not.
	d = s.IsURLBlocked("https://example.org/")
	assert.False(t, d.Blocked)

	// Suffix lookalikes are not subdomains.
	d = s.IsURLBlocked("notyoutube.com")
	assert.False(t, d.Blocked)
}

func TestIsURLBlockedCategoryFallback(t *testing.T) {
	s := NewService(&fakeInstaller{}, state.NewMemoryStore(), nil)
	_, _, err := s.Sync(SyncPayload{
		Version:        "v1",
		BlockedDomains: []string{"plain.example.com"},
	})
	require.NoError(t, err)

	d := s.IsURLBlocked("plain.example.com")
	assert.True(t, d.Blocked)
	assert.Equal(t, "Restricted", d.Category)
}

func TestIsURLBlockedAnchoredRule(t *testing.T) {
	s := NewService(&fakeInstaller{}, state.NewMemoryStore(), nil)
	_, _, err := s.Sync(SyncPayload{
		Version: "v1",
		Rules:   []Rule{{Pattern: "||games.example.com^", Category: "Games"}},
	})
	require.NoError(t, err)

	d := s.IsURLBlocked("https://play.games.example.com/lobby")
	assert.True(t, d.Blocked)
	assert.Equal(t, "Games", d.Category)
}

func TestIsURLBlockedAllowlistOnly(t *testing.T) {
	s := NewService(&fakeInstaller{}, state.NewMemoryStore(), nil)
	_, _, err := s.Sync(SyncPayload{
		Version:          "v1",
		AllowlistDomains: []string{"school.example.edu"},
		AllowOnlyListed:  true,
	})
	require.NoError(t, err)

	assert.False(t, s.IsURLBlocked("school.example.edu").Blocked)
	assert.False(t, s.IsURLBlocked("portal.school.example.edu").Blocked)

	d := s.IsURLBlocked("https://anything-else.com")
	assert.True(t, d.Blocked)
	assert.Equal(t, "Allowlist only", d.Category)
}

func TestClearRemovesEverything(t *testing.T) {
	inst := &fakeInstaller{}
	store := state.NewMemoryStore()
	s := NewService(inst, store, nil)

	_, _, err := s.Sync(payloadV1())
	require.NoError(t, err)
	require.NotEmpty(t, inst.installed)

	require.NoError(t, s.Clear())
	assert.Empty(t, inst.installed)
	assert.Empty(t, s.Version())
	assert.False(t, s.IsURLBlocked("youtube.com").Blocked)

	// Cleared version means the same payload applies again.
	_, updated, err := s.Sync(payloadV1())
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestRestoreRebuildsLookupCache(t *testing.T) {
	store := state.NewMemoryStore()
	s := NewService(&fakeInstaller{}, store, nil)
	_, _, err := s.Sync(payloadV1())
	require.NoError(t, err)

	// A fresh service on the same store answers queries without a sync.
	inst2 := &fakeInstaller{}
	s2 := NewService(inst2, store, nil)
	assert.Equal(t, "v1", s2.Version())
	assert.True(t, s2.IsURLBlocked("youtube.com").Blocked)
	assert.Zero(t, inst2.adds, "restore must not touch the native rule set")

	// And the persisted version still suppresses a re-sync.
	_, updated, err := s2.Sync(payloadV1())
	require.NoError(t, err)
	assert.False(t, updated)
}
