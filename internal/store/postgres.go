package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"telemed-chat/internal/models"
)

const messageColumns = `id, room_id, sender_id, sender_name, text, file_url, file_name, file_type, file_size, reply_to, created_at, updated_at, edited, deleted, reactions, read_by, status`

// Postgres is a sqlx-backed MessageStore. Reactions and read receipts live in
// JSONB columns, keeping the table one-document-per-message.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres constructs a Postgres store.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Create(ctx context.Context, msg models.Message) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO messages (`+messageColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.Text,
		msg.FileURL, msg.FileName, msg.FileType, msg.FileSize, msg.ReplyTo,
		msg.CreatedAt, msg.UpdatedAt, msg.Edited, msg.Deleted,
		msg.Reactions, msg.ReadBy, msg.Status)
	return err
}

func (p *Postgres) Get(ctx context.Context, roomID, messageID string) (models.Message, error) {
	var msg models.Message
	err := p.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE room_id=$1 AND id=$2`, roomID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

var updatableColumns = map[string]bool{
	FieldText:      true,
	FieldEdited:    true,
	FieldUpdatedAt: true,
	FieldDeleted:   true,
	FieldReactions: true,
	FieldReadBy:    true,
	FieldStatus:    true,
}

func (p *Postgres) Update(ctx context.Context, roomID, messageID string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}

	assignments := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+2)
	for name, value := range fields {
		if !updatableColumns[name] {
			return fmt.Errorf("unknown message field %q", name)
		}
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s=$%d", name, len(args)))
	}
	args = append(args, roomID, messageID)

	query := fmt.Sprintf("UPDATE messages SET %s WHERE room_id=$%d AND id=$%d",
		strings.Join(assignments, ", "), len(args)-1, len(args))

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (p *Postgres) ListBefore(ctx context.Context, roomID, beforeID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := p.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE room_id=$1 AND ($2 = '' OR id < $2)
        ORDER BY id DESC
        LIMIT $3`, roomID, beforeID, limit)
	return msgs, err
}

func (p *Postgres) ListRoom(ctx context.Context, roomID string) ([]models.Message, error) {
	var msgs []models.Message
	err := p.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE room_id=$1 ORDER BY id ASC`, roomID)
	return msgs, err
}
