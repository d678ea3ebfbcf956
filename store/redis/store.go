package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/goliatone/go-receipts/core"
)

// SnapshotStore persists message snapshots in Redis. Take relies on
// GETDEL, so a redelivered check observes absence atomically without
// a transaction.
type SnapshotStore struct {
	client    goredis.UniversalClient
	keyPrefix string
	// retention bounds how long an orphaned snapshot can outlive its
	// armed check; zero means no expiry.
	retention time.Duration
}

type Config struct {
	Client    goredis.UniversalClient
	KeyPrefix string
	Retention time.Duration
}

func NewSnapshotStore(cfg Config) (*SnapshotStore, error) {
	if cfg.Client == nil {
		return nil, core.InternalError("redis: client is required", nil)
	}
	keyPrefix := strings.TrimSpace(cfg.KeyPrefix)
	if keyPrefix == "" {
		keyPrefix = core.DefaultSnapshotKeyPrefix
	}
	return &SnapshotStore{
		client:    cfg.Client,
		keyPrefix: keyPrefix,
		retention: cfg.Retention,
	}, nil
}

var _ core.SnapshotStore = (*SnapshotStore)(nil)

func (s *SnapshotStore) Save(ctx context.Context, hookName string, messageID string, snapshot core.MessageSnapshot) error {
	key, err := s.key(hookName, messageID)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, key, encoded, s.retention).Err(); err != nil {
		return fmt.Errorf("redis: save snapshot %s: %w", key, err)
	}
	return nil
}

func (s *SnapshotStore) Update(ctx context.Context, hookName string, messageID string, snapshot core.MessageSnapshot) (bool, error) {
	key, err := s.key(hookName, messageID)
	if err != nil {
		return false, err
	}
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return false, fmt.Errorf("redis: encode snapshot: %w", err)
	}
	// SetXX only writes when the key already exists, preserving the
	// never-resurrect rule for updates after deletion or consumption.
	ok, err := s.client.SetXX(ctx, key, encoded, s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("redis: update snapshot %s: %w", key, err)
	}
	return ok, nil
}

func (s *SnapshotStore) Take(ctx context.Context, hookName string, messageID string) (core.MessageSnapshot, bool, error) {
	key, err := s.key(hookName, messageID)
	if err != nil {
		return core.MessageSnapshot{}, false, err
	}
	raw, err := s.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return core.MessageSnapshot{}, false, nil
		}
		return core.MessageSnapshot{}, false, fmt.Errorf("redis: take snapshot %s: %w", key, err)
	}
	snapshot := core.MessageSnapshot{}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return core.MessageSnapshot{}, false, fmt.Errorf("redis: decode snapshot %s: %w", key, err)
	}
	return snapshot, true, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, hookName string, messageID string) error {
	key, err := s.key(hookName, messageID)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: delete snapshot %s: %w", key, err)
	}
	return nil
}

func (s *SnapshotStore) key(hookName string, messageID string) (string, error) {
	if s == nil || s.client == nil {
		return "", core.InternalError("redis: snapshot store is nil", nil)
	}
	hookName = strings.TrimSpace(hookName)
	messageID = strings.TrimSpace(messageID)
	if hookName == "" || messageID == "" {
		return "", core.BadInputError("redis: hook name and message id are required", nil)
	}
	return core.SnapshotKey(s.keyPrefix, hookName, messageID), nil
}
