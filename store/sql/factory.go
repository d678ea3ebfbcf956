package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-receipts/core"
)

// RepositoryFactory wires the SQL-backed stores off one bun handle.
type RepositoryFactory struct {
	db      *bun.DB
	secrets core.SecretProvider

	snapshotStore *SnapshotStore
	hookStore     *HookStore
}

func NewRepositoryFactory(secrets core.SecretProvider) *RepositoryFactory {
	return &RepositoryFactory{secrets: secrets}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, secrets core.SecretProvider) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(secrets)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, secrets core.SecretProvider) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(secrets)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.snapshotStore != nil && f.hookStore != nil {
		return nil
	}

	snapshotStore, err := NewSnapshotStore(f.db)
	if err != nil {
		return err
	}
	f.snapshotStore = snapshotStore

	hookStore, err := NewHookStore(f.db, f.secrets)
	if err != nil {
		return err
	}
	f.hookStore = hookStore
	return nil
}

func (f *RepositoryFactory) SnapshotStore() *SnapshotStore {
	if f == nil {
		return nil
	}
	return f.snapshotStore
}

func (f *RepositoryFactory) HookStore() *HookStore {
	if f == nil {
		return nil
	}
	return f.hookStore
}

// CachedHookStore wraps the factory's hook store with a read-through
// cache for the per-delivery config lookups.
func (f *RepositoryFactory) CachedHookStore(cacheService repositorycache.CacheService) (*CachedHookStore, error) {
	if f == nil || f.hookStore == nil {
		return nil, fmt.Errorf("sqlstore: hook store is not built")
	}
	return NewCachedHookStore(f.hookStore, cacheService)
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
