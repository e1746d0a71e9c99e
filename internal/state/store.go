// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package state provides the durable key-value store the engines rebuild
// their working state from after a restart. Values are opaque bytes grouped
// into buckets; engines typically store JSON via GetJSON/SetJSON.
package state

import (
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("state: key not found")

// Store is the persistence interface injected into each engine.
type Store interface {
	Get(bucket, key string) ([]byte, error)
	Set(bucket, key string, value []byte) error
	Delete(bucket, key string) error
	ListKeys(bucket string) ([]string, error)
}

// GetJSON reads a key and unmarshals it into v.
func GetJSON(s Store, bucket, key string, v any) error {
	data, err := s.Get(bucket, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SetJSON marshals v and writes it under the key.
func SetJSON(s Store, bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(bucket, key, data)
}
