package pgchannel

import (
	"context"
	"database/sql"
	"time"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS timer_channel_messages (
    id           BIGSERIAL PRIMARY KEY,
    channel      TEXT        NOT NULL,
    message_id   TEXT        NOT NULL,
    publisher    TEXT        NOT NULL,
    payload      BYTEA       NOT NULL,
    published_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (channel, message_id)
)`, `
CREATE INDEX IF NOT EXISTS timer_channel_messages_channel_id_idx
    ON timer_channel_messages (channel, id DESC)`,
}

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type MessageRow struct {
	ID          int64
	Channel     string
	MessageID   string
	Publisher   string
	Payload     []byte
	PublishedAt time.Time
}

func (q *Queries) CreateSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := q.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const insertMessage = `
INSERT INTO timer_channel_messages (channel, message_id, publisher, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (channel, message_id) DO NOTHING
RETURNING id
`

type InsertMessageParams struct {
	Channel   string
	MessageID string
	Publisher string
	Payload   []byte
}

// InsertMessage returns sql.ErrNoRows when the message ID was already stored.
func (q *Queries) InsertMessage(ctx context.Context, arg InsertMessageParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, insertMessage, arg.Channel, arg.MessageID, arg.Publisher, arg.Payload)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const notifyMessage = `SELECT pg_notify($1, $2)`

func (q *Queries) NotifyMessage(ctx context.Context, notifyChannel, payload string) error {
	_, err := q.db.ExecContext(ctx, notifyMessage, notifyChannel, payload)
	return err
}

const pruneMessages = `
DELETE FROM timer_channel_messages
WHERE channel = $1
  AND id < (
    SELECT COALESCE(MIN(id), 0) FROM (
        SELECT id FROM timer_channel_messages
        WHERE channel = $1
        ORDER BY id DESC
        LIMIT $2
    ) AS kept
  )
`

func (q *Queries) PruneMessages(ctx context.Context, channel string, keep int) (int64, error) {
	res, err := q.db.ExecContext(ctx, pruneMessages, channel, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getMessage = `
SELECT id, channel, message_id, publisher, payload, published_at
FROM timer_channel_messages
WHERE id = $1
`

func (q *Queries) GetMessage(ctx context.Context, id int64) (MessageRow, error) {
	row := q.db.QueryRowContext(ctx, getMessage, id)
	var m MessageRow
	err := row.Scan(&m.ID, &m.Channel, &m.MessageID, &m.Publisher, &m.Payload, &m.PublishedAt)
	return m, err
}

const recentMessages = `
SELECT id, channel, message_id, publisher, payload, published_at
FROM timer_channel_messages
WHERE channel = $1
ORDER BY id DESC
LIMIT $2
`

// RecentMessages returns up to limit rows, newest first.
func (q *Queries) RecentMessages(ctx context.Context, channel string, limit int) ([]MessageRow, error) {
	rows, err := q.db.QueryContext(ctx, recentMessages, channel, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MessageRow
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(&m.ID, &m.Channel, &m.MessageID, &m.Publisher, &m.Payload, &m.PublishedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
