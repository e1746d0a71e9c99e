// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package filter persists compiled rules for the native request filter.
// The filter engine watches a single JSON file; installs are atomic
// (write to temp, rename over) so the engine never reads a torn file.
package filter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"grimm.is/hearth/internal/blocklist"
	"grimm.is/hearth/internal/errors"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/metrics"
)

// FileInstaller implements blocklist.Installer on top of a JSON rule file.
type FileInstaller struct {
	mu     sync.Mutex
	path   string
	rules  map[int]blocklist.CompiledRule
	logger *logging.Logger
}

type ruleFile struct {
	Rules []blocklist.CompiledRule `json:"rules"`
}

// NewFileInstaller loads any existing rule file so installed IDs survive
// a restart.
func NewFileInstaller(path string, logger *logging.Logger) (*FileInstaller, error) {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	f := &FileInstaller{
		path:   path,
		rules:  make(map[int]blocklist.CompiledRule),
		logger: logger.WithComponent("filter"),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "read rule file")
	}

	var rf ruleFile
	if err := json.Unmarshal(data, &rf); err != nil {
		// A corrupt file is recoverable: the next install rewrites it.
		f.logger.WithError(err).Warn("Rule file corrupt, starting empty", "path", path)
		return f, nil
	}
	for _, r := range rf.Rules {
		f.rules[r.ID] = r
	}
	f.logger.Info("Loaded installed rules", "count", len(f.rules), "path", path)
	return f, nil
}

// InstalledRuleIDs returns the IDs currently installed, ascending.
func (f *FileInstaller) InstalledRuleIDs() ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]int, 0, len(f.rules))
	for id := range f.rules {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// RemoveRules uninstalls the given IDs. Unknown IDs are ignored.
func (f *FileInstaller) RemoveRules(ids []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range ids {
		delete(f.rules, id)
	}
	return f.write()
}

// AddRules installs the given rules, rejecting the whole batch if it
// would push the engine past its rule ceiling.
func (f *FileInstaller) AddRules(rules []blocklist.CompiledRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fresh := 0
	for _, r := range rules {
		if _, ok := f.rules[r.ID]; !ok {
			fresh++
		}
	}
	if len(f.rules)+fresh > blocklist.MaxInstalledRules {
		return errors.Errorf(errors.KindValidation,
			"rule ceiling exceeded: %d installed + %d new > %d",
			len(f.rules), fresh, blocklist.MaxInstalledRules)
	}

	for _, r := range rules {
		f.rules[r.ID] = r
	}
	if err := f.write(); err != nil {
		return err
	}
	metrics.RulesInstalled.Set(float64(len(f.rules)))
	return nil
}

// Count returns the number of installed rules.
func (f *FileInstaller) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rules)
}

// write rewrites the rule file atomically. Caller holds f.mu.
func (f *FileInstaller) write() error {
	ids := make([]int, 0, len(f.rules))
	for id := range f.rules {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	rf := ruleFile{Rules: make([]blocklist.CompiledRule, 0, len(ids))}
	for _, id := range ids {
		rf.Rules = append(rf.Rules, f.rules[id])
	}

	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "encode rule file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".rules-*.json")
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "create temp rule file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.KindInternal, "write rule file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.KindInternal, "close rule file")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.KindInternal, "install rule file")
	}
	return nil
}
