// Package chat implements the message lifecycle: send, edit, delete,
// reactions, read receipts and typing state, with the consistency contract
// between the live channel and the persisted log.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telemed-chat/internal/auth"
	"telemed-chat/internal/models"
	"telemed-chat/internal/sanitize"
	"telemed-chat/internal/store"
	"telemed-chat/internal/telemetry"
)

// RoomBroadcaster fans events out to room members. The websocket hub
// implements it; tests substitute a recorder.
type RoomBroadcaster interface {
	Broadcast(roomID string, event any)
	BroadcastExcept(roomID, exceptConnID string, event any)
	SendToConn(connID string, event any)
	SetTyping(userID, displayName, roomID string)
	ClearTyping(userID string) (roomID string, ok bool)
}

// Coordinator serializes the message lifecycle over the store and the hub.
// A message is never broadcast unless it has been durably stored first.
type Coordinator struct {
	store store.MessageStore
	hub   RoomBroadcaster
	audit *telemetry.AuditEmitter
}

// NewCoordinator builds a Coordinator. The audit emitter may be nil.
func NewCoordinator(messageStore store.MessageStore, hub RoomBroadcaster, audit *telemetry.AuditEmitter) *Coordinator {
	return &Coordinator{store: messageStore, hub: hub, audit: audit}
}

// Send sanitizes and persists a text message, then fans it out. connID
// identifies the sender's connection for the direct delivery ack; it is empty
// for REST-originated messages.
func (c *Coordinator) Send(ctx context.Context, caller auth.Identity, connID, roomID, text, replyTo string) (models.Message, error) {
	clean, err := sanitize.Text(text)
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	msg := models.Message{
		ID:         models.NewMessageID(),
		RoomID:     roomID,
		SenderID:   caller.UserID,
		SenderName: caller.DisplayName,
		Text:       clean,
		ReplyTo:    replyTo,
		CreatedAt:  time.Now().UTC(),
		Reactions:  models.ReactionMap{},
		ReadBy:     models.UserIDSet{caller.UserID},
		Status:     models.StatusDelivered,
	}

	if err := c.store.Create(ctx, msg); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	c.hub.Broadcast(roomID, models.Event{
		Type:      models.EventNewMessage,
		RoomID:    roomID,
		Message:   &msg,
		Timestamp: time.Now().UTC(),
	})
	if connID != "" {
		c.hub.SendToConn(connID, models.Event{
			Type:      models.EventMessageDelivered,
			RoomID:    roomID,
			MessageID: msg.ID,
			Timestamp: time.Now().UTC(),
		})
	}
	c.clearTypingAfterSend(caller, connID)

	return msg, nil
}

// SendFile persists a file message and fans it out. The payload has already
// been stored in the blob store by the caller.
func (c *Coordinator) SendFile(ctx context.Context, caller auth.Identity, roomID, fileURL, fileName, fileType string, fileSize int64) (models.Message, error) {
	msg := models.Message{
		ID:         models.NewMessageID(),
		RoomID:     roomID,
		SenderID:   caller.UserID,
		SenderName: caller.DisplayName,
		FileURL:    fileURL,
		FileName:   fileName,
		FileType:   fileType,
		FileSize:   fileSize,
		CreatedAt:  time.Now().UTC(),
		Reactions:  models.ReactionMap{},
		ReadBy:     models.UserIDSet{caller.UserID},
		Status:     models.StatusDelivered,
	}

	if err := c.store.Create(ctx, msg); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	c.hub.Broadcast(roomID, models.Event{
		Type:      models.EventNewMessage,
		RoomID:    roomID,
		Message:   &msg,
		Timestamp: time.Now().UTC(),
	})
	return msg, nil
}

// Edit replaces the text of the caller's own message. Tombstoned messages
// cannot be edited.
func (c *Coordinator) Edit(ctx context.Context, caller auth.Identity, roomID, messageID, newText string) (models.Message, error) {
	msg, err := c.authorizeSender(ctx, caller, roomID, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.Deleted {
		return models.Message{}, fmt.Errorf("%w: message is deleted", ErrInvalidInput)
	}

	clean, err := sanitize.Text(newText)
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	err = c.store.Update(ctx, roomID, messageID, store.Fields{
		store.FieldText:      clean,
		store.FieldEdited:    true,
		store.FieldUpdatedAt: now,
	})
	if err != nil {
		return models.Message{}, wrapStoreErr(err)
	}

	msg.Text = clean
	msg.Edited = true
	msg.UpdatedAt = &now

	c.hub.Broadcast(roomID, models.Event{
		Type:      models.EventMessageEdited,
		RoomID:    roomID,
		Message:   &msg,
		MessageID: messageID,
		Timestamp: now,
	})
	c.emitAudit(ctx, caller, "message edited", messageID)
	return msg, nil
}

// Delete tombstones the caller's own message. The original text is
// overwritten with a fixed placeholder and is not recoverable. Repeating the
// delete leaves the message in the same observable state.
func (c *Coordinator) Delete(ctx context.Context, caller auth.Identity, roomID, messageID string) error {
	if _, err := c.authorizeSender(ctx, caller, roomID, messageID); err != nil {
		return err
	}

	now := time.Now().UTC()
	err := c.store.Update(ctx, roomID, messageID, store.Fields{
		store.FieldText:      models.DeletedPlaceholder,
		store.FieldDeleted:   true,
		store.FieldUpdatedAt: now,
	})
	if err != nil {
		return wrapStoreErr(err)
	}

	c.hub.Broadcast(roomID, models.Event{
		Type:      models.EventMessageDeleted,
		RoomID:    roomID,
		MessageID: messageID,
		UserID:    caller.UserID,
		Timestamp: now,
	})
	c.emitAudit(ctx, caller, "message deleted", messageID)
	return nil
}

// React adds the caller to the emoji's reaction set. Any joined participant
// may react, the sender included; repeated reactions are absorbed. A missing
// message is a silent no-op.
func (c *Coordinator) React(ctx context.Context, caller auth.Identity, roomID, messageID, emoji string) error {
	if emoji == "" {
		return fmt.Errorf("%w: missing emoji", ErrInvalidInput)
	}

	msg, err := c.store.Get(ctx, roomID, messageID)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	reactions := msg.Reactions
	if reactions == nil {
		reactions = models.ReactionMap{}
	}
	if reactions[emoji].Contains(caller.UserID) {
		return nil
	}
	reactions[emoji] = reactions[emoji].Add(caller.UserID)

	err = c.store.Update(ctx, roomID, messageID, store.Fields{store.FieldReactions: reactions})
	if err != nil {
		return wrapStoreErr(err)
	}

	c.hub.Broadcast(roomID, models.Event{
		Type:      models.EventReactionAdded,
		RoomID:    roomID,
		MessageID: messageID,
		UserID:    caller.UserID,
		Emoji:     emoji,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// MarkRead adds the caller to the message's read set. The set only grows;
// repeated acknowledgements are absorbed. A missing message is a silent no-op.
func (c *Coordinator) MarkRead(ctx context.Context, caller auth.Identity, roomID, messageID string) error {
	msg, err := c.store.Get(ctx, roomID, messageID)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	if msg.ReadBy.Contains(caller.UserID) {
		return nil
	}

	err = c.store.Update(ctx, roomID, messageID, store.Fields{store.FieldReadBy: msg.ReadBy.Add(caller.UserID)})
	if err != nil {
		return wrapStoreErr(err)
	}

	c.hub.Broadcast(roomID, models.Event{
		Type:      models.EventMessageRead,
		RoomID:    roomID,
		MessageID: messageID,
		UserID:    caller.UserID,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// Typing records the caller as typing in the room and notifies everyone else.
func (c *Coordinator) Typing(caller auth.Identity, connID, roomID string) {
	c.hub.SetTyping(caller.UserID, caller.DisplayName, roomID)
	c.hub.BroadcastExcept(roomID, connID, models.Event{
		Type:      models.EventUserTyping,
		RoomID:    roomID,
		UserID:    caller.UserID,
		UserName:  caller.DisplayName,
		Timestamp: time.Now().UTC(),
	})
}

// StopTyping clears the caller's typing state and notifies everyone else.
func (c *Coordinator) StopTyping(caller auth.Identity, connID, roomID string) {
	c.hub.ClearTyping(caller.UserID)
	c.hub.BroadcastExcept(roomID, connID, models.Event{
		Type:      models.EventUserStopTyping,
		RoomID:    roomID,
		UserID:    caller.UserID,
		Timestamp: time.Now().UTC(),
	})
}

// clearTypingAfterSend runs after the new-message broadcast, preserving the
// persist, broadcast, stop-typing order.
func (c *Coordinator) clearTypingAfterSend(caller auth.Identity, connID string) {
	roomID, ok := c.hub.ClearTyping(caller.UserID)
	if !ok {
		return
	}
	c.hub.BroadcastExcept(roomID, connID, models.Event{
		Type:      models.EventUserStopTyping,
		RoomID:    roomID,
		UserID:    caller.UserID,
		Timestamp: time.Now().UTC(),
	})
}

// authorizeSender loads the message and checks the caller is its sender.
// An absent message and a foreign sender are both reported as Unauthorized,
// so callers cannot probe for message existence.
func (c *Coordinator) authorizeSender(ctx context.Context, caller auth.Identity, roomID, messageID string) (models.Message, error) {
	msg, err := c.store.Get(ctx, roomID, messageID)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			return models.Message{}, ErrUnauthorized
		}
		return models.Message{}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	if msg.SenderID != caller.UserID {
		return models.Message{}, ErrUnauthorized
	}
	return msg, nil
}

func (c *Coordinator) emitAudit(ctx context.Context, caller auth.Identity, text, messageID string) {
	if c.audit == nil {
		return
	}
	userID := caller.UserID
	c.audit.Emit(ctx, "INFO", text+" "+messageID, "", &userID)
}

func wrapStoreErr(err error) error {
	if errors.Is(err, store.ErrMessageNotFound) {
		return ErrUnauthorized
	}
	return fmt.Errorf("%w: %v", ErrStoreFailure, err)
}
