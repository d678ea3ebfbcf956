package store

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-receipts/core"
)

// MemorySnapshotStore is a process-local snapshot store for tests and
// single-node deployments. Single-key operations are atomic under one
// mutex, which also makes Take safe against redelivered checks.
type MemorySnapshotStore struct {
	mu        sync.Mutex
	snapshots map[string]core.MessageSnapshot
	keyPrefix string
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		snapshots: map[string]core.MessageSnapshot{},
		keyPrefix: core.DefaultSnapshotKeyPrefix,
	}
}

var _ core.SnapshotStore = (*MemorySnapshotStore)(nil)

func (s *MemorySnapshotStore) Save(_ context.Context, hookName string, messageID string, snapshot core.MessageSnapshot) error {
	key, err := s.key(hookName, messageID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[key] = snapshot
	return nil
}

func (s *MemorySnapshotStore) Update(_ context.Context, hookName string, messageID string, snapshot core.MessageSnapshot) (bool, error) {
	key, err := s.key(hookName, messageID)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[key]; !ok {
		return false, nil
	}
	s.snapshots[key] = snapshot
	return true, nil
}

func (s *MemorySnapshotStore) Take(_ context.Context, hookName string, messageID string) (core.MessageSnapshot, bool, error) {
	key, err := s.key(hookName, messageID)
	if err != nil {
		return core.MessageSnapshot{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.snapshots[key]
	if !ok {
		return core.MessageSnapshot{}, false, nil
	}
	delete(s.snapshots, key)
	return snapshot, true, nil
}

func (s *MemorySnapshotStore) Delete(_ context.Context, hookName string, messageID string) error {
	key, err := s.key(hookName, messageID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, key)
	return nil
}

func (s *MemorySnapshotStore) key(hookName string, messageID string) (string, error) {
	if s == nil {
		return "", core.InternalError("store: snapshot store is nil", nil)
	}
	hookName = strings.TrimSpace(hookName)
	messageID = strings.TrimSpace(messageID)
	if hookName == "" || messageID == "" {
		return "", core.BadInputError("store: hook name and message id are required", nil)
	}
	return core.SnapshotKey(s.keyPrefix, hookName, messageID), nil
}
