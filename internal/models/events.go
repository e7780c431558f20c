package models

import "time"

// Inbound action names on the live channel.
const (
	ActionJoinRoom    = "join-room"
	ActionSendMessage = "send-message"
	ActionTyping      = "typing"
	ActionStopTyping  = "stop-typing"
	ActionMarkRead    = "mark-read"
	ActionEditMessage = "edit-message"
	ActionDeleteMsg   = "delete-message"
	ActionAddReaction = "add-reaction"
)

// Outbound event names on the live channel.
const (
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventRoomUsers        = "room-users"
	EventNewMessage       = "new-message"
	EventMessageDelivered = "message-delivered"
	EventUserTyping       = "user-typing"
	EventUserStopTyping   = "user-stop-typing"
	EventMessageEdited    = "message-edited"
	EventMessageDeleted   = "message-deleted"
	EventMessageRead      = "message-read"
	EventReactionAdded    = "reaction-added"
	EventError            = "error"
)

// Action is a client request received over the websocket.
type Action struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Text      string `json:"text,omitempty"`
	NewText   string `json:"newText,omitempty"`
	ReplyTo   string `json:"replyTo,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

// RoomMember is one entry of a room-users snapshot.
type RoomMember struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

// Event is pushed to clients over the websocket.
type Event struct {
	Type      string       `json:"type"`
	RoomID    string       `json:"roomId,omitempty"`
	Message   *Message     `json:"message,omitempty"`
	MessageID string       `json:"messageId,omitempty"`
	UserID    string       `json:"userId,omitempty"`
	UserName  string       `json:"userName,omitempty"`
	Emoji     string       `json:"emoji,omitempty"`
	Users     []RoomMember `json:"users,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// ErrorEvent reports an action failure back to the originating caller only.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorEvent builds an error event.
func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}
