// Package store defines the document-store contract for the message log,
// keyed by (roomID, messageID).
package store

import (
	"context"
	"errors"

	"telemed-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// Field names accepted by Update. Updates are field-level and last-write-wins;
// concurrent updates to the same message settle in completion order.
const (
	FieldText      = "text"
	FieldEdited    = "edited"
	FieldUpdatedAt = "updated_at"
	FieldDeleted   = "deleted"
	FieldReactions = "reactions"
	FieldReadBy    = "read_by"
	FieldStatus    = "status"
)

// Fields is a partial update of a message document.
type Fields map[string]any

// MessageStore persists room message logs. Implementations must keep
// ListBefore ordered newest-first by message id, which is equivalent to
// creation-time order because ids are timestamp-sortable.
type MessageStore interface {
	// Create stores a new message document.
	Create(ctx context.Context, msg models.Message) error

	// Get returns one message or ErrMessageNotFound.
	Get(ctx context.Context, roomID, messageID string) (models.Message, error)

	// Update applies a field-level update to one message.
	Update(ctx context.Context, roomID, messageID string, fields Fields) error

	// ListBefore returns up to limit messages older than beforeID, newest
	// first. An empty beforeID starts from the latest message.
	ListBefore(ctx context.Context, roomID, beforeID string, limit int) ([]models.Message, error)

	// ListRoom returns every message in the room in chronological order.
	ListRoom(ctx context.Context, roomID string) ([]models.Message, error)
}
