// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kv provides small durable key-value storage for UI preferences.
//
// It persists things like the selected model per room and the last-open
// room bookmark. Not part of the message pipeline; loss of this file is an
// inconvenience, never data loss.
package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/jeranaias/parley/internal/util"
)

// Well-known keys.
const (
	KeyLastRoom      = "last_room"
	KeySelectedModel = "selected_model"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore is a JSON-file-backed key-value store with atomic writes.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

// Open loads (or initializes) the store at path.
func Open(path string) (*FileStore, error) {
	s := &FileStore{path: path, data: make(map[string]string)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read kv store: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		// A corrupted preferences file is not worth failing startup over;
		// start fresh and overwrite on the next write.
		s.data = make(map[string]string)
	}
	return s, nil
}

// GetItem returns the value for key and whether it exists.
func (s *FileStore) GetItem(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// SetItem stores a value and persists the file atomically.
func (s *FileStore) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.flushLocked()
}

// RemoveItem deletes a key. Removing an absent key succeeds.
func (s *FileStore) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode kv store: %w", err)
	}
	return util.AtomicWriteFile(s.path, raw, 0644)
}
