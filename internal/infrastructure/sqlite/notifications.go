package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/go-notify-nosql/internal/domain"
)

// NotificationStore keeps notification rows in SQLite, one table per category.
// Every state transition is a conditional UPDATE so concurrent writers can only
// ever move a row forward.
type NotificationStore struct {
	db *sql.DB
}

// Open connects to dsn and creates the schema. A single connection is used so
// in-memory databases are shared by every caller and writes never contend.
func Open(ctx context.Context, dsn string) (*NotificationStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &NotificationStore{db: db}, nil
}

func (s *NotificationStore) Close() error { return s.db.Close() }

const columns = `notification_id, event_id, recipient_id, category, channel, title, body, properties,
	priority, delivery_status, retry_count, read_status, read_at, read_by_user_id, shared_read,
	group_id, hub_id, created_at, delivered_at`

func table(c domain.Category) (string, error) {
	t, ok := tableNames[c]
	if !ok {
		return "", fmt.Errorf("unknown category %q: %w", c, domain.ErrValidation)
	}
	return t, nil
}

// Insert stores a new row. A row whose event id already exists is left
// untouched and domain.ErrConflict is returned.
func (s *NotificationStore) Insert(ctx context.Context, n *domain.Notification) error {
	t, err := table(n.Category)
	if err != nil {
		return err
	}
	props, err := json.Marshal(n.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+t+` (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		n.NotificationID, n.EventID, n.RecipientID, string(n.Category), string(n.Channel),
		n.Title, n.Body, string(props), n.Priority, string(n.DeliveryStatus), n.RetryCount,
		string(n.ReadStatus), nanos(n.ReadAt), n.ReadByUserID, n.SharedRead,
		n.GroupID, n.HubID, n.CreatedAt.UnixNano(), nanos(n.DeliveredAt),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("event %s already stored: %w", n.EventID, domain.ErrConflict)
	}
	return nil
}

func (s *NotificationStore) Get(ctx context.Context, category domain.Category, notificationID string) (*domain.Notification, error) {
	t, err := table(category)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM `+t+` WHERE notification_id = ?`, notificationID)
	n, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	return n, err
}

// ListPending returns at most limit PENDING rows for ch, highest priority
// first and oldest first within a priority.
func (s *NotificationStore) ListPending(ctx context.Context, category domain.Category, ch domain.Channel, limit int) ([]domain.Notification, error) {
	t, err := table(category)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, `SELECT `+columns+` FROM `+t+`
		WHERE channel = ? AND delivery_status = ?
		ORDER BY priority DESC, created_at ASC, notification_id ASC
		LIMIT ?`, string(ch), string(domain.DeliveryPending), limit)
}

func (s *NotificationStore) ListUnread(ctx context.Context, category domain.Category, recipientID string, limit int) ([]domain.Notification, error) {
	t, err := table(category)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, `SELECT `+columns+` FROM `+t+`
		WHERE recipient_id = ? AND read_status = ?
		ORDER BY created_at DESC
		LIMIT ?`, recipientID, string(domain.ReadUnread), limit)
}

// MarkDelivered moves a row from PENDING to DELIVERED. It reports false when
// the row was no longer PENDING.
func (s *NotificationStore) MarkDelivered(ctx context.Context, category domain.Category, notificationID string, at time.Time) (bool, error) {
	t, err := table(category)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE `+t+`
		SET delivery_status = ?, delivered_at = ?
		WHERE notification_id = ? AND delivery_status = ?`,
		string(domain.DeliveryDelivered), at.UnixNano(), notificationID, string(domain.DeliveryPending))
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RecordFailure counts a failed send. Once the count reaches maxRetries the
// row becomes FAILED; maxRetries of zero never gives up.
func (s *NotificationStore) RecordFailure(ctx context.Context, category domain.Category, notificationID string, maxRetries int) (domain.DeliveryStatus, error) {
	t, err := table(category)
	if err != nil {
		return "", err
	}
	var status string
	err = s.db.QueryRowContext(ctx, `UPDATE `+t+`
		SET retry_count = retry_count + 1,
		    delivery_status = CASE WHEN ? > 0 AND retry_count + 1 >= ? THEN ? ELSE delivery_status END
		WHERE notification_id = ? AND delivery_status = ?
		RETURNING delivery_status`,
		maxRetries, maxRetries, string(domain.DeliveryFailed), notificationID, string(domain.DeliveryPending),
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("pending notification %s: %w", notificationID, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("record failure: %w", err)
	}
	return domain.DeliveryStatus(status), nil
}

// MarkRead flips a single row owned by recipientID.
func (s *NotificationStore) MarkRead(ctx context.Context, category domain.Category, notificationID, recipientID string, mark domain.ReadMark) (int, error) {
	t, err := table(category)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, `UPDATE `+t+`
		SET read_status = ?, read_at = ?, read_by_user_id = ?
		WHERE notification_id = ? AND recipient_id = ? AND read_status = ?`,
		string(domain.ReadRead), mark.At.UnixNano(), mark.ByUserID,
		notificationID, recipientID, string(domain.ReadUnread))
}

// MarkReadByScope flips the rows matched by sel and returns how many changed.
// Group and hub scopes only touch UNREAD rows. A hub broadcast overrides every
// row under the hub, re-stamping rows that were already read.
func (s *NotificationStore) MarkReadByScope(ctx context.Context, category domain.Category, sel domain.ReadSelector, mark domain.ReadMark) (int, error) {
	t, err := table(category)
	if err != nil {
		return 0, err
	}
	where, args, err := scopePredicate(sel)
	if err != nil {
		return 0, err
	}
	if sel.Scope != domain.ScopeHubBroadcast {
		where += ` AND read_status = ?`
		args = append(args, string(domain.ReadUnread))
	}
	head := []any{string(domain.ReadRead), mark.At.UnixNano(), mark.ByUserID}
	return s.exec(ctx, `UPDATE `+t+`
		SET read_status = ?, read_at = ?, read_by_user_id = ?
		WHERE `+where, append(head, args...)...)
}

// scopePredicate builds the sibling filter for a batch scope. The prefix is
// compared with substr so matching stays exact and case sensitive.
func scopePredicate(sel domain.ReadSelector) (string, []any, error) {
	switch sel.Scope {
	case domain.ScopeGroup:
		if sel.EventPrefix == "" || sel.GroupID == "" {
			return "", nil, fmt.Errorf("group scope needs event prefix and group id: %w", domain.ErrValidation)
		}
		return `substr(event_id, 1, length(?)) = ? AND group_id = ? AND shared_read = 1`,
			[]any{sel.EventPrefix, sel.EventPrefix, sel.GroupID}, nil
	case domain.ScopeHub:
		if sel.EventPrefix == "" || sel.HubID == "" {
			return "", nil, fmt.Errorf("hub scope needs event prefix and hub id: %w", domain.ErrValidation)
		}
		return `substr(event_id, 1, length(?)) = ? AND hub_id = ? AND shared_read = 1`,
			[]any{sel.EventPrefix, sel.EventPrefix, sel.HubID}, nil
	case domain.ScopeHubBroadcast:
		if sel.HubID == "" {
			return "", nil, fmt.Errorf("hub broadcast needs hub id: %w", domain.ErrValidation)
		}
		return `hub_id = ?`, []any{sel.HubID}, nil
	}
	return "", nil, fmt.Errorf("scope %q is not a batch scope: %w", sel.Scope, domain.ErrValidation)
}

func (s *NotificationStore) exec(ctx context.Context, q string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *NotificationStore) query(ctx context.Context, q string, args ...any) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (*domain.Notification, error) {
	var (
		n                          domain.Notification
		category, channel          string
		deliveryStatus, readStatus string
		props                      string
		readAt, deliveredAt        sql.NullInt64
		createdAt                  int64
	)
	err := r.Scan(&n.NotificationID, &n.EventID, &n.RecipientID, &category, &channel,
		&n.Title, &n.Body, &props, &n.Priority, &deliveryStatus, &n.RetryCount,
		&readStatus, &readAt, &n.ReadByUserID, &n.SharedRead,
		&n.GroupID, &n.HubID, &createdAt, &deliveredAt)
	if err != nil {
		return nil, err
	}
	n.Category = domain.Category(category)
	n.Channel = domain.Channel(channel)
	n.DeliveryStatus = domain.DeliveryStatus(deliveryStatus)
	n.ReadStatus = domain.ReadStatus(readStatus)
	n.CreatedAt = time.Unix(0, createdAt).UTC()
	n.ReadAt = fromNanos(readAt)
	n.DeliveredAt = fromNanos(deliveredAt)
	if strings.TrimSpace(props) != "" && props != "null" {
		if err := json.Unmarshal([]byte(props), &n.Properties); err != nil {
			return nil, fmt.Errorf("unmarshal properties: %w", err)
		}
	}
	return &n, nil
}

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
