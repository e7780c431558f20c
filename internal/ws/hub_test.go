package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemed-chat/internal/auth"
	"telemed-chat/internal/models"
)

func testClient(hub *Hub, connID, userID, displayName string) *Client {
	identity := auth.Identity{UserID: userID, DisplayName: displayName, Email: userID + "@example.com"}
	return newClient(hub, nil, nil, connID, identity, nil)
}

// drain decodes everything queued on the client's send channel.
func drain(t *testing.T, c *Client) []models.Event {
	t.Helper()
	var events []models.Event
	for {
		select {
		case payload := <-c.send:
			var evt models.Event
			require.NoError(t, json.Unmarshal(payload, &evt))
			events = append(events, evt)
		default:
			return events
		}
	}
}

func eventTypes(events []models.Event) []string {
	types := make([]string, len(events))
	for i, evt := range events {
		types[i] = evt.Type
	}
	return types
}

func TestJoinRoomNotifiesAndSnapshots(t *testing.T) {
	hub := NewHub()
	alice := testClient(hub, "c1", "alice", "Alice")
	bob := testClient(hub, "c2", "bob", "Bob")
	hub.Register(alice)
	hub.Register(bob)

	hub.JoinRoom(alice, "r1")
	hub.JoinRoom(bob, "r1")

	// The earlier member sees both join events.
	aliceEvents := drain(t, alice)
	assert.Contains(t, eventTypes(aliceEvents), models.EventUserJoined)

	// The joiner gets its own join echo plus the membership snapshot.
	bobEvents := drain(t, bob)
	types := eventTypes(bobEvents)
	assert.Contains(t, types, models.EventUserJoined)
	require.Contains(t, types, models.EventRoomUsers)

	var snapshot models.Event
	for _, evt := range bobEvents {
		if evt.Type == models.EventRoomUsers {
			snapshot = evt
		}
	}
	require.Len(t, snapshot.Users, 2)
}

func TestRoomMembersDeduplicatesUser(t *testing.T) {
	hub := NewHub()
	tab1 := testClient(hub, "c1", "alice", "Alice")
	tab2 := testClient(hub, "c2", "alice", "Alice")
	hub.Register(tab1)
	hub.Register(tab2)
	hub.JoinRoom(tab1, "r1")
	hub.JoinRoom(tab2, "r1")

	members := hub.RoomMembers("r1")
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].UserID)
}

func TestMembershipSurvivesRoomSwitch(t *testing.T) {
	hub := NewHub()
	alice := testClient(hub, "c1", "alice", "Alice")
	hub.Register(alice)
	hub.JoinRoom(alice, "r1")
	hub.JoinRoom(alice, "r2")
	drain(t, alice)

	// There is no leave action; the session stays a target in both rooms.
	hub.Broadcast("r1", models.Event{Type: models.EventNewMessage, RoomID: "r1"})
	hub.Broadcast("r2", models.Event{Type: models.EventNewMessage, RoomID: "r2"})

	events := drain(t, alice)
	require.Len(t, events, 2)
	assert.Equal(t, "r1", events[0].RoomID)
	assert.Equal(t, "r2", events[1].RoomID)
}

func TestBroadcastExceptSkipsOneConnection(t *testing.T) {
	hub := NewHub()
	alice := testClient(hub, "c1", "alice", "Alice")
	bob := testClient(hub, "c2", "bob", "Bob")
	hub.Register(alice)
	hub.Register(bob)
	hub.JoinRoom(alice, "r1")
	hub.JoinRoom(bob, "r1")
	drain(t, alice)
	drain(t, bob)

	hub.BroadcastExcept("r1", "c1", models.Event{Type: models.EventUserTyping, RoomID: "r1", UserID: "alice"})

	assert.Empty(t, drain(t, alice))
	bobEvents := drain(t, bob)
	require.Len(t, bobEvents, 1)
	assert.Equal(t, models.EventUserTyping, bobEvents[0].Type)
}

func TestBroadcastScopedToRoom(t *testing.T) {
	hub := NewHub()
	alice := testClient(hub, "c1", "alice", "Alice")
	carol := testClient(hub, "c3", "carol", "Carol")
	hub.Register(alice)
	hub.Register(carol)
	hub.JoinRoom(alice, "r1")
	hub.JoinRoom(carol, "r2")
	drain(t, alice)
	drain(t, carol)

	hub.Broadcast("r1", models.Event{Type: models.EventNewMessage, RoomID: "r1"})

	assert.Len(t, drain(t, alice), 1)
	assert.Empty(t, drain(t, carol))
}

func TestSendToConnUnknownConnIsNoOp(t *testing.T) {
	hub := NewHub()
	hub.SendToConn("ghost", models.Event{Type: models.EventMessageDelivered})
}

func TestPresenceLastConnectionWins(t *testing.T) {
	hub := NewHub()
	old := testClient(hub, "c1", "alice", "Alice")
	hub.Register(old)

	replacement := testClient(hub, "c2", "alice", "Alice")
	hub.Register(replacement)

	entries := hub.Presence()
	require.Len(t, entries, 1)
	assert.Equal(t, "c2", entries[0].ConnID)

	// The stale connection going away must not evict the newer entry.
	hub.Unregister(old)
	entries = hub.Presence()
	require.Len(t, entries, 1)
	assert.Equal(t, "c2", entries[0].ConnID)

	hub.Unregister(replacement)
	assert.Empty(t, hub.Presence())
}

func TestUnregisterRemovesMembershipAndNotifiesRoom(t *testing.T) {
	hub := NewHub()
	alice := testClient(hub, "c1", "alice", "Alice")
	bob := testClient(hub, "c2", "bob", "Bob")
	hub.Register(alice)
	hub.Register(bob)
	hub.JoinRoom(alice, "r1")
	hub.JoinRoom(bob, "r1")
	drain(t, alice)
	drain(t, bob)

	hub.Unregister(alice)

	bobEvents := drain(t, bob)
	require.Len(t, bobEvents, 1)
	assert.Equal(t, models.EventUserLeft, bobEvents[0].Type)
	assert.Equal(t, "alice", bobEvents[0].UserID)

	members := hub.RoomMembers("r1")
	require.Len(t, members, 1)
	assert.Equal(t, "bob", members[0].UserID)
}

func TestUnregisterTwiceIsSafe(t *testing.T) {
	hub := NewHub()
	alice := testClient(hub, "c1", "alice", "Alice")
	hub.Register(alice)
	hub.JoinRoom(alice, "r1")

	hub.Unregister(alice)
	hub.Unregister(alice)
}

func TestBroadcastAfterUnregisterIsDropped(t *testing.T) {
	hub := NewHub()
	alice := testClient(hub, "c1", "alice", "Alice")
	bob := testClient(hub, "c2", "bob", "Bob")
	hub.Register(alice)
	hub.Register(bob)
	hub.JoinRoom(alice, "r1")
	hub.JoinRoom(bob, "r1")

	hub.Unregister(alice)

	// The departed session is no longer a target; the fan-out must not panic.
	hub.Broadcast("r1", models.Event{Type: models.EventNewMessage, RoomID: "r1"})
}

func TestTypingTable(t *testing.T) {
	hub := NewHub()

	hub.SetTyping("alice", "Alice", "r1")
	hub.SetTyping("bob", "Bob", "r2")

	typing := hub.TypingIn("r1")
	require.Len(t, typing, 1)
	assert.Equal(t, "alice", typing[0].UserID)

	roomID, ok := hub.ClearTyping("alice")
	require.True(t, ok)
	assert.Equal(t, "r1", roomID)
	assert.Empty(t, hub.TypingIn("r1"))

	_, ok = hub.ClearTyping("alice")
	assert.False(t, ok)
}

func TestTypingClearedOnUnregister(t *testing.T) {
	hub := NewHub()
	alice := testClient(hub, "c1", "alice", "Alice")
	hub.Register(alice)
	hub.JoinRoom(alice, "r1")
	hub.SetTyping("alice", "Alice", "r1")

	hub.Unregister(alice)

	assert.Empty(t, hub.TypingIn("r1"))
}
