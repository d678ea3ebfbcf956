package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type snapshotRecord struct {
	bun.BaseModel `bun:"table:receipt_snapshots,alias:rs"`

	ID        string    `bun:"id,pk"`
	HookName  string    `bun:"hook_name,notnull"`
	MessageID string    `bun:"message_id,notnull"`
	Payload   []byte    `bun:"payload,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type hookRecord struct {
	bun.BaseModel `bun:"table:receipt_hooks,alias:rh"`

	ID              string    `bun:"id,pk"`
	Name            string    `bun:"name,notnull"`
	Path            string    `bun:"path,notnull"`
	Events          []string  `bun:"events,type:jsonb,notnull"`
	EncryptedSecret []byte    `bun:"encrypted_secret,notnull"`
	DelayMillis     int64     `bun:"delay_ms,notnull"`
	WatchedStatuses []string  `bun:"watched_statuses,type:jsonb,notnull"`
	IdentityMode    string    `bun:"identity_mode,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
