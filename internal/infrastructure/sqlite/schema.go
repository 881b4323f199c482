package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-notify-nosql/internal/domain"
)

// tableNames gives every category its own table so a batch read update in one
// partition can never reach rows of another.
var tableNames = map[domain.Category]string{
	domain.CategoryRestaurant: "notifications_restaurant",
	domain.CategoryCustomer:   "notifications_customer",
	domain.CategoryAgency:     "notifications_agency",
	domain.CategoryAdmin:      "notifications_admin",
}

const tableDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	notification_id TEXT PRIMARY KEY,
	event_id        TEXT NOT NULL UNIQUE,
	recipient_id    TEXT NOT NULL,
	category        TEXT NOT NULL,
	channel         TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	properties      TEXT NOT NULL DEFAULT '{}',
	priority        INTEGER NOT NULL DEFAULT 0,
	delivery_status TEXT NOT NULL DEFAULT '',
	retry_count     INTEGER NOT NULL DEFAULT 0,
	read_status     TEXT NOT NULL DEFAULT 'UNREAD',
	read_at         INTEGER,
	read_by_user_id TEXT NOT NULL DEFAULT '',
	shared_read     INTEGER NOT NULL DEFAULT 0,
	group_id        TEXT NOT NULL DEFAULT '',
	hub_id          TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	delivered_at    INTEGER
);
CREATE INDEX IF NOT EXISTS %[1]s_pending ON %[1]s (channel, delivery_status, priority DESC, created_at);
CREATE INDEX IF NOT EXISTS %[1]s_recipient ON %[1]s (recipient_id, read_status, created_at);
CREATE INDEX IF NOT EXISTS %[1]s_group ON %[1]s (group_id, read_status);
CREATE INDEX IF NOT EXISTS %[1]s_hub ON %[1]s (hub_id, read_status);
`

// InitSchema creates the per-category tables and their indexes if missing.
func InitSchema(ctx context.Context, db *sql.DB) error {
	for _, c := range domain.Categories {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(tableDDL, tableNames[c])); err != nil {
			return fmt.Errorf("create table for %s: %w", c, err)
		}
	}
	return nil
}
