package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-receipts/core"
	receiptmigrations "github.com/goliatone/go-receipts/migrations"
	"github.com/goliatone/go-receipts/security"
	sqlstore "github.com/goliatone/go-receipts/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-receipts-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:receipts-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = receiptmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != receiptmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	})
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"receipt_snapshots", "receipt_hooks"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master: %v", err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func snapshotFixture(messageID string) core.MessageSnapshot {
	return core.MessageSnapshot{
		ID:     messageID,
		Sender: core.Participant{UserID: "sender-1"},
		Recipients: core.RecipientStatusList{
			{UserID: "u-a", Status: core.StatusSent},
			{UserID: "u-b", Status: core.StatusDelivered},
		},
	}
}

func TestSnapshotStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, nil)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.SnapshotStore()
	if store == nil {
		t.Fatalf("expected snapshot store from factory")
	}

	if err := store.Save(ctx, "orders", "msg-1", snapshotFixture("msg-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Save is an overwrite, not an insert-once.
	if err := store.Save(ctx, "orders", "msg-1", snapshotFixture("msg-1")); err != nil {
		t.Fatalf("second save: %v", err)
	}

	replacement := snapshotFixture("msg-1")
	replacement.Recipients.Set("u-a", core.StatusRead)
	updated, err := store.Update(ctx, "orders", "msg-1", replacement)
	if err != nil || !updated {
		t.Fatalf("update tracked snapshot: updated=%v err=%v", updated, err)
	}

	snapshot, ok, err := store.Take(ctx, "orders", "msg-1")
	if err != nil || !ok {
		t.Fatalf("take: ok=%v err=%v", ok, err)
	}
	if status, _ := snapshot.Recipients.Get("u-a"); status != core.StatusRead {
		t.Fatalf("take returned stale snapshot: %v", status)
	}
	// Recipient order must survive the SQL round trip.
	ids := snapshot.Recipients.UserIDs()
	if len(ids) != 2 || ids[0] != "u-a" || ids[1] != "u-b" {
		t.Fatalf("recipient order lost: %v", ids)
	}

	if _, ok, err := store.Take(ctx, "orders", "msg-1"); err != nil || ok {
		t.Fatalf("second take must miss: ok=%v err=%v", ok, err)
	}

	if updated, err := store.Update(ctx, "orders", "msg-1", replacement); err != nil || updated {
		t.Fatalf("update after take must miss: updated=%v err=%v", updated, err)
	}

	if err := store.Save(ctx, "orders", "msg-2", snapshotFixture("msg-2")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "orders", "msg-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Take(ctx, "orders", "msg-2"); ok {
		t.Fatalf("deleted snapshot must not be takeable")
	}
}

func TestSnapshotStoreConcurrentTakeSingleWinner(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, nil)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.SnapshotStore()

	if err := store.Save(ctx, "orders", "msg-race", snapshotFixture("msg-race")); err != nil {
		t.Fatalf("save: %v", err)
	}

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.Take(ctx, "orders", "msg-race")
			if err != nil {
				t.Errorf("take: %v", err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one take to own the snapshot, got %d", won)
	}
}

func TestSnapshotStorePurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, nil)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.SnapshotStore()

	if err := store.Save(ctx, "orders", "msg-old", snapshotFixture("msg-old")); err != nil {
		t.Fatalf("save: %v", err)
	}

	purged, err := store.PurgeOlderThan(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one purged snapshot, got %d", purged)
	}
	if _, ok, _ := store.Take(ctx, "orders", "msg-old"); ok {
		t.Fatalf("purged snapshot must be gone")
	}
}

func TestHookStoreUpsertWithEncryptedSecret(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	secrets, err := security.NewAppKeySecretProviderFromString("receipts-test-app-key")
	if err != nil {
		t.Fatalf("new secret provider: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, secrets)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	hookStore := factory.HookStore()
	if hookStore == nil {
		t.Fatalf("expected hook store from factory")
	}

	saved, err := hookStore.Save(ctx, core.SaveHookInput{
		Name:            "orders",
		Path:            "/hooks/orders",
		Events:          []string{"message.sent", "message.read"},
		Secret:          "webhook-shared-secret",
		Delay:           10 * time.Minute,
		WatchedStatuses: []string{"sent", "delivered"},
		IdentityMode:    "builtin",
	})
	if err != nil {
		t.Fatalf("save hook: %v", err)
	}
	if saved.ID == "" {
		t.Fatalf("saved hook missing id")
	}
	if saved.Secret != "webhook-shared-secret" {
		t.Fatalf("secret round trip failed: %q", saved.Secret)
	}

	// The secret must not land in the database as plaintext.
	var rawSecret []byte
	if err := client.DB().NewRaw(
		"SELECT encrypted_secret FROM receipt_hooks WHERE name = ?", "orders",
	).Scan(ctx, &rawSecret); err != nil {
		t.Fatalf("read raw secret: %v", err)
	}
	if string(rawSecret) == "webhook-shared-secret" {
		t.Fatalf("secret stored unencrypted")
	}

	// Saving the same name updates in place.
	resaved, err := hookStore.Save(ctx, core.SaveHookInput{
		Name:            "orders",
		Path:            "/hooks/orders/v2",
		Events:          []string{"message.sent"},
		Secret:          "rotated-secret",
		Delay:           5 * time.Minute,
		WatchedStatuses: []string{"sent"},
		IdentityMode:    "off",
	})
	if err != nil {
		t.Fatalf("resave hook: %v", err)
	}
	if resaved.ID != saved.ID {
		t.Fatalf("upsert created a second row: %q vs %q", resaved.ID, saved.ID)
	}
	if resaved.Path != "/hooks/orders/v2" || resaved.Secret != "rotated-secret" {
		t.Fatalf("upsert did not replace fields: %+v", resaved)
	}

	got, err := hookStore.Get(ctx, "orders")
	if err != nil {
		t.Fatalf("get hook: %v", err)
	}
	if got.Delay != 5*time.Minute {
		t.Fatalf("delay round trip failed: %v", got.Delay)
	}

	hooks, err := hookStore.List(ctx)
	if err != nil {
		t.Fatalf("list hooks: %v", err)
	}
	if len(hooks) != 1 {
		t.Fatalf("expected one hook, got %d", len(hooks))
	}

	if _, err := hookStore.Get(ctx, "ghost"); err == nil {
		t.Fatalf("expected error for unknown hook")
	}
}
