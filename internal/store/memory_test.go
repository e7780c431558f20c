package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemed-chat/internal/models"
)

func seedMessage(t *testing.T, s *Memory, roomID, text string) models.Message {
	t.Helper()
	msg := models.Message{
		ID:        models.NewMessageID(),
		RoomID:    roomID,
		SenderID:  "sender-1",
		Text:      text,
		CreatedAt: time.Now().UTC(),
		Reactions: models.ReactionMap{},
		ReadBy:    models.UserIDSet{"sender-1"},
		Status:    models.StatusDelivered,
	}
	require.NoError(t, s.Create(context.Background(), msg))
	return msg
}

func TestMemoryCreateAndGet(t *testing.T) {
	s := NewMemory()
	msg := seedMessage(t, s, "r1", "hello")

	got, err := s.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Text, got.Text)
	assert.Equal(t, msg.SenderID, got.SenderID)
}

func TestMemoryGetMissing(t *testing.T) {
	s := NewMemory()
	_, err := s.Get(context.Background(), "r1", "nope")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMemoryUpdateFields(t *testing.T) {
	s := NewMemory()
	msg := seedMessage(t, s, "r1", "hello")

	now := time.Now().UTC()
	err := s.Update(context.Background(), "r1", msg.ID, Fields{
		FieldText:      "edited",
		FieldEdited:    true,
		FieldUpdatedAt: now,
	})
	require.NoError(t, err)

	got, err := s.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Text)
	assert.True(t, got.Edited)
	require.NotNil(t, got.UpdatedAt)
	assert.WithinDuration(t, now, *got.UpdatedAt, time.Second)
}

func TestMemoryUpdateMissingMessage(t *testing.T) {
	s := NewMemory()
	err := s.Update(context.Background(), "r1", "nope", Fields{FieldText: "x"})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMemoryUpdateUnknownField(t *testing.T) {
	s := NewMemory()
	msg := seedMessage(t, s, "r1", "hello")
	err := s.Update(context.Background(), "r1", msg.ID, Fields{"bogus": 1})
	assert.Error(t, err)
}

func TestMemoryGetReturnsCopies(t *testing.T) {
	s := NewMemory()
	msg := seedMessage(t, s, "r1", "hello")

	got, err := s.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	got.ReadBy = got.ReadBy.Add("intruder")
	got.Reactions["👍"] = models.UserIDSet{"intruder"}

	again, err := s.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.False(t, again.ReadBy.Contains("intruder"))
	assert.Empty(t, again.Reactions["👍"])
}

func TestMemoryListBeforeNewestFirst(t *testing.T) {
	s := NewMemory()
	first := seedMessage(t, s, "r1", "one")
	second := seedMessage(t, s, "r1", "two")
	third := seedMessage(t, s, "r1", "three")

	msgs, err := s.ListBefore(context.Background(), "r1", "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, third.ID, msgs[0].ID)
	assert.Equal(t, second.ID, msgs[1].ID)
	assert.Equal(t, first.ID, msgs[2].ID)
}

func TestMemoryListBeforeIsRoomScoped(t *testing.T) {
	s := NewMemory()
	seedMessage(t, s, "r1", "one")
	seedMessage(t, s, "r2", "other")

	msgs, err := s.ListBefore(context.Background(), "r1", "", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

// Paging with lastMessageId cursors yields every message exactly once in
// ascending order, terminating when a short page arrives.
func TestMemoryPaginationRoundTrip(t *testing.T) {
	s := NewMemory()

	const total = 23
	ids := make([]string, 0, total)
	for i := 0; i < total; i++ {
		ids = append(ids, seedMessage(t, s, "r1", "msg").ID)
	}

	const limit = 5
	cursor := ""
	collected := make([]string, 0, total)
	for {
		page, err := s.ListBefore(context.Background(), "r1", cursor, limit)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		// Reverse to chronological order, as the REST surface does.
		for i := len(page) - 1; i >= 0; i-- {
			collected = append(collected, page[i].ID)
		}
		cursor = page[len(page)-1].ID
		if len(page) < limit {
			break
		}
	}

	// Pages arrive newest-first, so the oldest chunk comes last; flatten and
	// compare as sets plus per-page ordering.
	require.Len(t, collected, total)
	seen := make(map[string]bool, total)
	for _, id := range collected {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	for _, id := range ids {
		assert.True(t, seen[id], "missing id %s", id)
	}
}

func TestMemoryListRoomChronological(t *testing.T) {
	s := NewMemory()
	first := seedMessage(t, s, "r1", "one")
	second := seedMessage(t, s, "r1", "two")

	msgs, err := s.ListRoom(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, second.ID, msgs[1].ID)
}
