package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"telemed-chat/internal/models"
)

// Memory is a mutex-guarded in-memory MessageStore. It backs local
// development when no database DSN is configured, and the coordinator tests.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]map[string]models.Message
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]map[string]models.Message)}
}

func (m *Memory) Create(_ context.Context, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[msg.RoomID]
	if !ok {
		room = make(map[string]models.Message)
		m.rooms[msg.RoomID] = room
	}
	room[msg.ID] = copyMessage(msg)
	return nil
}

func (m *Memory) Get(_ context.Context, roomID, messageID string) (models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.rooms[roomID][messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return copyMessage(msg), nil
}

func (m *Memory) Update(_ context.Context, roomID, messageID string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.rooms[roomID][messageID]
	if !ok {
		return ErrMessageNotFound
	}

	for name, value := range fields {
		switch name {
		case FieldText:
			msg.Text = value.(string)
		case FieldEdited:
			msg.Edited = value.(bool)
		case FieldUpdatedAt:
			t := value.(time.Time)
			msg.UpdatedAt = &t
		case FieldDeleted:
			msg.Deleted = value.(bool)
		case FieldReactions:
			msg.Reactions = copyReactions(value.(models.ReactionMap))
		case FieldReadBy:
			msg.ReadBy = append(models.UserIDSet(nil), value.(models.UserIDSet)...)
		case FieldStatus:
			msg.Status = value.(string)
		default:
			return fmt.Errorf("unknown message field %q", name)
		}
	}

	m.rooms[roomID][messageID] = msg
	return nil
}

func (m *Memory) ListBefore(_ context.Context, roomID, beforeID string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := make([]models.Message, 0, len(m.rooms[roomID]))
	for _, msg := range m.rooms[roomID] {
		if beforeID != "" && msg.ID >= beforeID {
			continue
		}
		msgs = append(msgs, copyMessage(msg))
	}

	// Newest first; ULIDs sort by creation time.
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (m *Memory) ListRoom(_ context.Context, roomID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := make([]models.Message, 0, len(m.rooms[roomID]))
	for _, msg := range m.rooms[roomID] {
		msgs = append(msgs, copyMessage(msg))
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

func copyMessage(msg models.Message) models.Message {
	msg.Reactions = copyReactions(msg.Reactions)
	msg.ReadBy = append(models.UserIDSet(nil), msg.ReadBy...)
	if msg.UpdatedAt != nil {
		t := *msg.UpdatedAt
		msg.UpdatedAt = &t
	}
	return msg
}

func copyReactions(reactions models.ReactionMap) models.ReactionMap {
	if reactions == nil {
		return nil
	}
	out := make(models.ReactionMap, len(reactions))
	for emoji, users := range reactions {
		out[emoji] = append(models.UserIDSet(nil), users...)
	}
	return out
}
