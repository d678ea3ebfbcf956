package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-receipts/core"
)

// SnapshotStore keeps message snapshots in SQL. The (hook_name,
// message_id) pair is unique; Take runs select-then-delete inside one
// transaction so a redelivered check cannot evaluate the same snapshot
// twice.
type SnapshotStore struct {
	db   *bun.DB
	repo repository.Repository[*snapshotRecord]
}

func NewSnapshotStore(db *bun.DB) (*SnapshotStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*snapshotRecord](db, snapshotHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid snapshot repository wiring: %w", err)
		}
	}
	return &SnapshotStore{db: db, repo: repo}, nil
}

var _ core.SnapshotStore = (*SnapshotStore)(nil)

func (s *SnapshotStore) Save(ctx context.Context, hookName string, messageID string, snapshot core.MessageSnapshot) error {
	hookName, messageID, err := s.keys(hookName, messageID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("sqlstore: encode snapshot: %w", err)
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findSnapshotTx(ctx, tx, hookName, messageID)
		if err != nil {
			return err
		}
		if record == nil {
			record = &snapshotRecord{
				ID:        uuid.NewString(),
				HookName:  hookName,
				MessageID: messageID,
				Payload:   payload,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					return overwriteSnapshotTx(ctx, tx, hookName, messageID, payload, now)
				}
				return insertErr
			}
			return nil
		}
		return overwriteSnapshotTx(ctx, tx, hookName, messageID, payload, now)
	})
}

func (s *SnapshotStore) Update(ctx context.Context, hookName string, messageID string, snapshot core.MessageSnapshot) (bool, error) {
	hookName, messageID, err := s.keys(hookName, messageID)
	if err != nil {
		return false, err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return false, fmt.Errorf("sqlstore: encode snapshot: %w", err)
	}

	updated := false
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findSnapshotTx(ctx, tx, hookName, messageID)
		if err != nil {
			return err
		}
		if record == nil {
			return nil
		}
		if err := overwriteSnapshotTx(ctx, tx, hookName, messageID, payload, time.Now().UTC()); err != nil {
			return err
		}
		updated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

func (s *SnapshotStore) Take(ctx context.Context, hookName string, messageID string) (core.MessageSnapshot, bool, error) {
	hookName, messageID, err := s.keys(hookName, messageID)
	if err != nil {
		return core.MessageSnapshot{}, false, err
	}

	var snapshot core.MessageSnapshot
	found := false
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findSnapshotTx(ctx, tx, hookName, messageID)
		if err != nil {
			return err
		}
		if record == nil {
			return nil
		}
		if err := json.Unmarshal(record.Payload, &snapshot); err != nil {
			return fmt.Errorf("sqlstore: decode snapshot: %w", err)
		}
		res, err := tx.NewDelete().
			Model((*snapshotRecord)(nil)).
			Where("id = ?", record.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		// Under read committed two concurrent takes can both select the
		// row; only the delete that actually removed it owns the
		// snapshot. The loser sees zero affected rows and reports a miss.
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		found = affected > 0
		return nil
	})
	if err != nil {
		return core.MessageSnapshot{}, false, err
	}
	if !found {
		return core.MessageSnapshot{}, false, nil
	}
	return snapshot, true, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, hookName string, messageID string) error {
	hookName, messageID, err := s.keys(hookName, messageID)
	if err != nil {
		return err
	}
	_, err = s.db.NewDelete().
		Model((*snapshotRecord)(nil)).
		Where("hook_name = ?", hookName).
		Where("message_id = ?", messageID).
		Exec(ctx)
	return err
}

// PurgeOlderThan removes snapshots last touched before the cutoff.
// Orphaned rows can accumulate if a process dies between Save and Arm;
// this is the retention sweep operators run out of band.
func (s *SnapshotStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: snapshot store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*snapshotRecord)(nil)).
		Where("updated_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

func (s *SnapshotStore) keys(hookName string, messageID string) (string, string, error) {
	if s == nil || s.db == nil {
		return "", "", fmt.Errorf("sqlstore: snapshot store is not configured")
	}
	hookName = strings.TrimSpace(hookName)
	messageID = strings.TrimSpace(messageID)
	if hookName == "" || messageID == "" {
		return "", "", fmt.Errorf("sqlstore: hook name and message id are required")
	}
	return hookName, messageID, nil
}

func findSnapshotTx(ctx context.Context, tx bun.Tx, hookName string, messageID string) (*snapshotRecord, error) {
	record := &snapshotRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.hook_name = ?", hookName).
		Where("?TableAlias.message_id = ?", messageID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func overwriteSnapshotTx(
	ctx context.Context,
	tx bun.Tx,
	hookName string,
	messageID string,
	payload []byte,
	now time.Time,
) error {
	_, err := tx.NewUpdate().
		Model((*snapshotRecord)(nil)).
		Set("payload = ?", payload).
		Set("updated_at = ?", now).
		Where("hook_name = ?", hookName).
		Where("message_id = ?", messageID).
		Exec(ctx)
	return err
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
