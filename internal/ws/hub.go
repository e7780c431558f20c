package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"telemed-chat/internal/models"
	"telemed-chat/internal/observability"
)

// PresenceEntry is the connection metadata tracked per connected user. One
// entry per user; the last connection wins when a user reconnects.
type PresenceEntry struct {
	ConnID      string    `json:"connId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	LastSeen    time.Time `json:"lastSeen"`
}

type typingEntry struct {
	RoomID      string
	DisplayName string
}

// Hub owns room fan-out groups, the presence registry and the typing table.
// All three are transient and rebuilt from live connections; request
// goroutines reach them only through these serialized accessors.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]*Client
	conns    map[string]*Client
	presence map[string]PresenceEntry
	typing   map[string]typingEntry
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[string]map[string]*Client),
		conns:    make(map[string]*Client),
		presence: make(map[string]PresenceEntry),
		typing:   make(map[string]typingEntry),
	}
}

// Register adds a connection and its presence entry, replacing any prior
// entry for the same user.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[client.ConnID] = client
	h.presence[client.Identity.UserID] = PresenceEntry{
		ConnID:      client.ConnID,
		UserID:      client.Identity.UserID,
		DisplayName: client.Identity.DisplayName,
		Email:       client.Identity.Email,
		LastSeen:    time.Now().UTC(),
	}
	observability.IncWSActive()
	log.Printf("client registered: conn=%s user=%s", client.ConnID, client.Identity.UserID)
}

// Unregister removes the connection from every room it joined, clears its
// presence and typing entries and notifies the current room.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()

	if _, ok := h.conns[client.ConnID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, client.ConnID)

	for roomID := range client.rooms {
		if room, ok := h.rooms[roomID]; ok {
			delete(room, client.ConnID)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}

	userID := client.Identity.UserID
	// A newer connection may have replaced this one in the registry;
	// only the owning connection clears the entry.
	if entry, ok := h.presence[userID]; ok && entry.ConnID == client.ConnID {
		delete(h.presence, userID)
		delete(h.typing, userID)
	}

	currentRoom := client.currentRoom
	h.mu.Unlock()

	observability.DecWSActive()
	close(client.send)
	log.Printf("client unregistered: conn=%s user=%s", client.ConnID, userID)

	if currentRoom != "" {
		h.Broadcast(currentRoom, models.Event{
			Type:      models.EventUserLeft,
			RoomID:    currentRoom,
			UserID:    userID,
			UserName:  client.Identity.DisplayName,
			Timestamp: time.Now().UTC(),
		})
	}
}

// JoinRoom adds the client to the room's fan-out group and makes the room its
// current one. Prior memberships are kept: the protocol has no leave action,
// so a session can be a broadcast target in several rooms at once.
func (h *Hub) JoinRoom(client *Client, roomID string) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[roomID] = room
	}
	room[client.ConnID] = client
	client.rooms[roomID] = true
	client.currentRoom = roomID
	h.mu.Unlock()

	h.Broadcast(roomID, models.Event{
		Type:      models.EventUserJoined,
		RoomID:    roomID,
		UserID:    client.Identity.UserID,
		UserName:  client.Identity.DisplayName,
		Timestamp: time.Now().UTC(),
	})

	client.Send(models.Event{
		Type:      models.EventRoomUsers,
		RoomID:    roomID,
		Users:     h.RoomMembers(roomID),
		Timestamp: time.Now().UTC(),
	})
}

// RoomMembers returns the distinct users currently connected to the room.
func (h *Hub) RoomMembers(roomID string) []models.RoomMember {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	members := make([]models.RoomMember, 0)
	for _, client := range h.rooms[roomID] {
		if seen[client.Identity.UserID] {
			continue
		}
		seen[client.Identity.UserID] = true
		members = append(members, models.RoomMember{
			UserID:      client.Identity.UserID,
			DisplayName: client.Identity.DisplayName,
			Email:       client.Identity.Email,
		})
	}
	return members
}

// Broadcast fans an event out to every session joined to the room.
func (h *Hub) Broadcast(roomID string, event any) {
	h.broadcast(roomID, "", event)
}

// BroadcastExcept fans an event out to the room, skipping one connection.
func (h *Hub) BroadcastExcept(roomID, exceptConnID string, event any) {
	h.broadcast(roomID, exceptConnID, event)
}

func (h *Hub) broadcast(roomID, exceptConnID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for connID, client := range h.rooms[roomID] {
		if connID == exceptConnID {
			continue
		}
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.enqueue(payload)
	}
}

// SendToConn delivers an event to a single connection.
func (h *Hub) SendToConn(connID string, event any) {
	h.mu.RLock()
	client := h.conns[connID]
	h.mu.RUnlock()
	if client == nil {
		return
	}
	client.Send(event)
}

// Presence returns a snapshot of the presence registry.
func (h *Hub) Presence() []PresenceEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries := make([]PresenceEntry, 0, len(h.presence))
	for _, entry := range h.presence {
		entries = append(entries, entry)
	}
	return entries
}

// SetTyping records the user as typing in the room.
func (h *Hub) SetTyping(userID, displayName, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.typing[userID] = typingEntry{RoomID: roomID, DisplayName: displayName}
}

// ClearTyping removes the user's typing entry and reports which room it
// referred to.
func (h *Hub) ClearTyping(userID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.typing[userID]
	if !ok {
		return "", false
	}
	delete(h.typing, userID)
	return entry.RoomID, true
}

// TypingIn lists users currently typing in the room.
func (h *Hub) TypingIn(roomID string) []models.RoomMember {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]models.RoomMember, 0)
	for userID, entry := range h.typing {
		if entry.RoomID == roomID {
			members = append(members, models.RoomMember{UserID: userID, DisplayName: entry.DisplayName})
		}
	}
	return members
}
