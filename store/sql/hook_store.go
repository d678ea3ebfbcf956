package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-receipts/core"
)

// HookStore persists hook registrations. Shared secrets are encrypted
// at rest when a secret provider is configured.
type HookStore struct {
	db      *bun.DB
	repo    repository.Repository[*hookRecord]
	secrets core.SecretProvider
}

func NewHookStore(db *bun.DB, secrets core.SecretProvider) (*HookStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*hookRecord](db, hookHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid hook repository wiring: %w", err)
		}
	}
	return &HookStore{db: db, repo: repo, secrets: secrets}, nil
}

var _ core.HookConfigStore = (*HookStore)(nil)

func (s *HookStore) Save(ctx context.Context, in core.SaveHookInput) (core.StoredHook, error) {
	if s == nil || s.db == nil {
		return core.StoredHook{}, fmt.Errorf("sqlstore: hook store is not configured")
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Path = strings.TrimSpace(in.Path)
	if in.Name == "" || in.Path == "" {
		return core.StoredHook{}, fmt.Errorf("sqlstore: hook name and path are required")
	}
	encryptedSecret, err := s.sealSecret(ctx, in.Secret)
	if err != nil {
		return core.StoredHook{}, err
	}
	now := time.Now().UTC()

	var out core.StoredHook
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findHookTx(ctx, tx, in.Name)
		if err != nil {
			return err
		}
		if record == nil {
			record = &hookRecord{
				ID:              uuid.NewString(),
				Name:            in.Name,
				Path:            in.Path,
				Events:          append([]string(nil), in.Events...),
				EncryptedSecret: encryptedSecret,
				DelayMillis:     in.Delay.Milliseconds(),
				WatchedStatuses: append([]string(nil), in.WatchedStatuses...),
				IdentityMode:    strings.TrimSpace(in.IdentityMode),
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					record, err = findHookTx(ctx, tx, in.Name)
					if err != nil {
						return err
					}
					if record == nil {
						return insertErr
					}
				} else {
					return insertErr
				}
			} else {
				out, err = s.toStoredHook(ctx, record)
				return err
			}
		}

		record.Path = in.Path
		record.Events = append([]string(nil), in.Events...)
		record.EncryptedSecret = encryptedSecret
		record.DelayMillis = in.Delay.Milliseconds()
		record.WatchedStatuses = append([]string(nil), in.WatchedStatuses...)
		record.IdentityMode = strings.TrimSpace(in.IdentityMode)
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out, err = s.toStoredHook(ctx, record)
		return err
	})
	if err != nil {
		return core.StoredHook{}, err
	}
	return out, nil
}

func (s *HookStore) Get(ctx context.Context, name string) (core.StoredHook, error) {
	if s == nil || s.db == nil {
		return core.StoredHook{}, fmt.Errorf("sqlstore: hook store is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.StoredHook{}, fmt.Errorf("sqlstore: hook name is required")
	}
	record := &hookRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.StoredHook{}, fmt.Errorf("sqlstore: hook %q not found", name)
		}
		return core.StoredHook{}, err
	}
	return s.toStoredHook(ctx, record)
}

func (s *HookStore) List(ctx context.Context) ([]core.StoredHook, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: hook store is not configured")
	}
	records := []*hookRecord{}
	err := s.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.StoredHook, 0, len(records))
	for _, record := range records {
		hook, err := s.toStoredHook(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, hook)
	}
	return out, nil
}

func (s *HookStore) sealSecret(ctx context.Context, secret string) ([]byte, error) {
	if s.secrets == nil {
		return []byte(secret), nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(secret))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encrypt hook secret: %w", err)
	}
	return sealed, nil
}

func (s *HookStore) toStoredHook(ctx context.Context, record *hookRecord) (core.StoredHook, error) {
	if record == nil {
		return core.StoredHook{}, fmt.Errorf("sqlstore: hook record is nil")
	}
	secret := record.EncryptedSecret
	if s.secrets != nil {
		opened, err := s.secrets.Decrypt(ctx, record.EncryptedSecret)
		if err != nil {
			return core.StoredHook{}, fmt.Errorf("sqlstore: decrypt hook secret: %w", err)
		}
		secret = opened
	}
	return core.StoredHook{
		ID:              record.ID,
		Name:            record.Name,
		Path:            record.Path,
		Events:          append([]string(nil), record.Events...),
		Secret:          string(secret),
		Delay:           time.Duration(record.DelayMillis) * time.Millisecond,
		WatchedStatuses: append([]string(nil), record.WatchedStatuses...),
		IdentityMode:    record.IdentityMode,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}, nil
}

func findHookTx(ctx context.Context, tx bun.Tx, name string) (*hookRecord, error) {
	record := &hookRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", strings.TrimSpace(name)).
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
