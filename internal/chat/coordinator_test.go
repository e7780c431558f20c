package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemed-chat/internal/auth"
	"telemed-chat/internal/models"
	"telemed-chat/internal/store"
)

var (
	alice = auth.Identity{UserID: "alice", DisplayName: "Alice", Email: "alice@example.com"}
	bob   = auth.Identity{UserID: "bob", DisplayName: "Bob", Email: "bob@example.com"}
)

// recorder captures fan-out without a live hub.
type recorder struct {
	broadcasts []recordedEvent
	direct     []recordedEvent
	typing     map[string]string
}

type recordedEvent struct {
	RoomID string
	ConnID string
	Event  any
}

func newRecorder() *recorder {
	return &recorder{typing: make(map[string]string)}
}

func (r *recorder) Broadcast(roomID string, event any) {
	r.broadcasts = append(r.broadcasts, recordedEvent{RoomID: roomID, Event: event})
}

func (r *recorder) BroadcastExcept(roomID, exceptConnID string, event any) {
	r.broadcasts = append(r.broadcasts, recordedEvent{RoomID: roomID, ConnID: exceptConnID, Event: event})
}

func (r *recorder) SendToConn(connID string, event any) {
	r.direct = append(r.direct, recordedEvent{ConnID: connID, Event: event})
}

func (r *recorder) SetTyping(userID, displayName, roomID string) {
	r.typing[userID] = roomID
}

func (r *recorder) ClearTyping(userID string) (string, bool) {
	roomID, ok := r.typing[userID]
	delete(r.typing, userID)
	return roomID, ok
}

func (r *recorder) eventTypes() []string {
	types := make([]string, 0, len(r.broadcasts))
	for _, rec := range r.broadcasts {
		if evt, ok := rec.Event.(models.Event); ok {
			types = append(types, evt.Type)
		}
	}
	return types
}

func newTestCoordinator() (*Coordinator, *store.Memory, *recorder) {
	memory := store.NewMemory()
	rec := newRecorder()
	return NewCoordinator(memory, rec, nil), memory, rec
}

func TestSendPersistsThenBroadcasts(t *testing.T) {
	coord, memory, rec := newTestCoordinator()

	msg, err := coord.Send(context.Background(), alice, "conn-a", "r1", "Hello", "")
	require.NoError(t, err)

	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "Alice", msg.SenderName)
	assert.Equal(t, models.StatusDelivered, msg.Status)
	assert.Equal(t, models.UserIDSet{"alice"}, msg.ReadBy)

	stored, err := memory.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", stored.Text)

	require.Len(t, rec.broadcasts, 1)
	evt := rec.broadcasts[0].Event.(models.Event)
	assert.Equal(t, models.EventNewMessage, evt.Type)
	assert.Equal(t, "Hello", evt.Message.Text)

	require.Len(t, rec.direct, 1)
	ack := rec.direct[0].Event.(models.Event)
	assert.Equal(t, models.EventMessageDelivered, ack.Type)
	assert.Equal(t, "conn-a", rec.direct[0].ConnID)
}

func TestSendRejectsMarkupOnlyText(t *testing.T) {
	coord, memory, rec := newTestCoordinator()

	_, err := coord.Send(context.Background(), alice, "conn-a", "r1", "<p><br></p>", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	msgs, err := memory.ListRoom(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, rec.broadcasts)
	assert.Empty(t, rec.direct)
}

func TestSendClearsTypingAfterBroadcast(t *testing.T) {
	coord, _, rec := newTestCoordinator()
	rec.typing["alice"] = "r1"

	_, err := coord.Send(context.Background(), alice, "conn-a", "r1", "done typing", "")
	require.NoError(t, err)

	assert.Empty(t, rec.typing)
	types := rec.eventTypes()
	require.Len(t, types, 2)
	assert.Equal(t, models.EventNewMessage, types[0])
	assert.Equal(t, models.EventUserStopTyping, types[1])
}

func TestSendKeepsReplyReference(t *testing.T) {
	coord, _, _ := newTestCoordinator()

	// replyTo is a weak reference: it is not validated to exist.
	msg, err := coord.Send(context.Background(), alice, "", "r1", "replying", "01NONEXISTENT")
	require.NoError(t, err)
	assert.Equal(t, "01NONEXISTENT", msg.ReplyTo)
}

func TestEditBySender(t *testing.T) {
	coord, memory, rec := newTestCoordinator()
	msg, err := coord.Send(context.Background(), alice, "", "r1", "orignal", "")
	require.NoError(t, err)

	edited, err := coord.Edit(context.Background(), alice, "r1", msg.ID, "original")
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.NotNil(t, edited.UpdatedAt)

	stored, err := memory.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Text)
	assert.True(t, stored.Edited)

	assert.Contains(t, rec.eventTypes(), models.EventMessageEdited)
}

func TestEditByOtherUserRejected(t *testing.T) {
	coord, memory, _ := newTestCoordinator()
	msg, err := coord.Send(context.Background(), alice, "", "r1", "mine", "")
	require.NoError(t, err)

	_, err = coord.Edit(context.Background(), bob, "r1", msg.ID, "hijacked")
	assert.ErrorIs(t, err, ErrUnauthorized)

	stored, err := memory.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", stored.Text)
	assert.False(t, stored.Edited)
}

func TestEditMissingMessageRejected(t *testing.T) {
	coord, _, _ := newTestCoordinator()
	_, err := coord.Edit(context.Background(), alice, "r1", "missing", "text")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEditAfterDeleteRejected(t *testing.T) {
	coord, memory, _ := newTestCoordinator()
	msg, err := coord.Send(context.Background(), alice, "", "r1", "secret", "")
	require.NoError(t, err)
	require.NoError(t, coord.Delete(context.Background(), alice, "r1", msg.ID))

	_, err = coord.Edit(context.Background(), alice, "r1", msg.ID, "resurrected")
	assert.ErrorIs(t, err, ErrInvalidInput)

	stored, err := memory.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeletedPlaceholder, stored.Text)
}

func TestDeleteTombstonesMessage(t *testing.T) {
	coord, memory, rec := newTestCoordinator()
	msg, err := coord.Send(context.Background(), alice, "", "r1", "to be removed", "")
	require.NoError(t, err)

	require.NoError(t, coord.Delete(context.Background(), alice, "r1", msg.ID))

	stored, err := memory.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
	assert.Equal(t, models.DeletedPlaceholder, stored.Text)
	assert.Contains(t, rec.eventTypes(), models.EventMessageDeleted)
}

func TestDeleteIsIdempotentInEffect(t *testing.T) {
	coord, memory, _ := newTestCoordinator()
	msg, err := coord.Send(context.Background(), alice, "", "r1", "bye", "")
	require.NoError(t, err)

	require.NoError(t, coord.Delete(context.Background(), alice, "r1", msg.ID))
	require.NoError(t, coord.Delete(context.Background(), alice, "r1", msg.ID))

	stored, err := memory.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
	assert.Equal(t, models.DeletedPlaceholder, stored.Text)
}

func TestDeleteByOtherUserRejected(t *testing.T) {
	coord, memory, _ := newTestCoordinator()
	msg, err := coord.Send(context.Background(), alice, "", "r1", "mine", "")
	require.NoError(t, err)

	err = coord.Delete(context.Background(), bob, "r1", msg.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	stored, err := memory.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.False(t, stored.Deleted)
}

func TestReactIsIdempotent(t *testing.T) {
	coord, memory, rec := newTestCoordinator()
	msg, err := coord.Send(context.Background(), alice, "", "r1", "nice", "")
	require.NoError(t, err)

	require.NoError(t, coord.React(context.Background(), bob, "r1", msg.ID, "👍"))
	require.NoError(t, coord.React(context.Background(), bob, "r1", msg.ID, "👍"))

	stored, err := memory.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserIDSet{"bob"}, stored.Reactions["👍"])

	// The duplicate reaction does not broadcast again.
	count := 0
	for _, typ := range rec.eventTypes() {
		if typ == models.EventReactionAdded {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestReactBySenderAllowed(t *testing.T) {
	coord, memory, _ := newTestCoordinator()
	msg, err := coord.Send(context.Background(), alice, "", "r1", "self-five", "")
	require.NoError(t, err)

	require.NoError(t, coord.React(context.Background(), alice, "r1", msg.ID, "🎉"))

	stored, err := memory.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Reactions["🎉"].Contains("alice"))
}

func TestReactOnMissingMessageIsNoOp(t *testing.T) {
	coord, _, rec := newTestCoordinator()
	require.NoError(t, coord.React(context.Background(), bob, "r1", "missing", "👍"))
	assert.Empty(t, rec.broadcasts)
}

func TestMarkReadGrowsMonotonically(t *testing.T) {
	coord, memory, _ := newTestCoordinator()
	msg, err := coord.Send(context.Background(), alice, "", "r1", "read me", "")
	require.NoError(t, err)

	require.NoError(t, coord.MarkRead(context.Background(), bob, "r1", msg.ID))
	require.NoError(t, coord.MarkRead(context.Background(), bob, "r1", msg.ID))

	stored, err := memory.Get(context.Background(), "r1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserIDSet{"alice", "bob"}, stored.ReadBy)
}

func TestMarkReadOnMissingMessageIsNoOp(t *testing.T) {
	coord, _, rec := newTestCoordinator()
	require.NoError(t, coord.MarkRead(context.Background(), bob, "r1", "missing"))
	assert.Empty(t, rec.broadcasts)
}

func TestTypingLifecycle(t *testing.T) {
	coord, _, rec := newTestCoordinator()

	coord.Typing(alice, "conn-a", "r1")
	assert.Equal(t, "r1", rec.typing["alice"])

	coord.StopTyping(alice, "conn-a", "r1")
	assert.Empty(t, rec.typing)

	types := rec.eventTypes()
	require.Len(t, types, 2)
	assert.Equal(t, models.EventUserTyping, types[0])
	assert.Equal(t, models.EventUserStopTyping, types[1])
	// Typing notifications exclude the caller's own connection.
	assert.Equal(t, "conn-a", rec.broadcasts[0].ConnID)
}

// Full lifecycle: A sends, B reads, A deletes; history shows the tombstone.
func TestSendReadDeleteScenario(t *testing.T) {
	coord, memory, rec := newTestCoordinator()

	msg, err := coord.Send(context.Background(), alice, "conn-a", "r1", "Hello", "")
	require.NoError(t, err)

	newMsg := rec.broadcasts[0].Event.(models.Event)
	assert.Equal(t, models.EventNewMessage, newMsg.Type)
	assert.Equal(t, "Hello", newMsg.Message.Text)
	assert.Equal(t, "alice", newMsg.Message.SenderID)
	assert.Equal(t, models.StatusDelivered, newMsg.Message.Status)

	require.NoError(t, coord.MarkRead(context.Background(), bob, "r1", msg.ID))
	readEvt := rec.broadcasts[len(rec.broadcasts)-1].Event.(models.Event)
	assert.Equal(t, models.EventMessageRead, readEvt.Type)
	assert.Equal(t, "bob", readEvt.UserID)

	require.NoError(t, coord.Delete(context.Background(), alice, "r1", msg.ID))
	delEvt := rec.broadcasts[len(rec.broadcasts)-1].Event.(models.Event)
	assert.Equal(t, models.EventMessageDeleted, delEvt.Type)

	history, err := memory.ListRoom(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.DeletedPlaceholder, history[0].Text)
}
