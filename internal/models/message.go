package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Message status values. A message is created as delivered once it has been
// persisted and fanned out; "sent" exists for clients that stage optimistic
// copies before the server acknowledgement.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
)

// DeletedPlaceholder replaces the text of tombstoned messages. The original
// text is overwritten, not retained.
const DeletedPlaceholder = "This message was deleted"

// MaxTextRunes is the maximum message length in code points after sanitization.
const MaxTextRunes = 5000

// UserIDSet is a grow-only set of user ids stored as a JSON array.
type UserIDSet []string

// Contains reports set membership.
func (s UserIDSet) Contains(userID string) bool {
	for _, id := range s {
		if id == userID {
			return true
		}
	}
	return false
}

// Add returns the set with userID included, without duplicating entries.
func (s UserIDSet) Add(userID string) UserIDSet {
	if s.Contains(userID) {
		return s
	}
	return append(s, userID)
}

func (s UserIDSet) Value() (driver.Value, error) {
	if s == nil {
		s = UserIDSet{}
	}
	return json.Marshal(s)
}

func (s *UserIDSet) Scan(src any) error {
	return scanJSON(src, s)
}

// ReactionMap maps an emoji symbol to the set of users who reacted with it.
type ReactionMap map[string]UserIDSet

func (m ReactionMap) Value() (driver.Value, error) {
	if m == nil {
		m = ReactionMap{}
	}
	return json.Marshal(m)
}

func (m *ReactionMap) Scan(src any) error {
	return scanJSON(src, m)
}

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	case nil:
		return nil
	default:
		return fmt.Errorf("cannot scan %T into JSON column", src)
	}
}

// Message is one entry in a room's message log. ID, RoomID, SenderID and
// CreatedAt never change after creation; Deleted=true is terminal for Text.
type Message struct {
	ID         string      `db:"id" json:"id"`
	RoomID     string      `db:"room_id" json:"roomId"`
	SenderID   string      `db:"sender_id" json:"senderId"`
	SenderName string      `db:"sender_name" json:"senderName"`
	Text       string      `db:"text" json:"text"`
	FileURL    string      `db:"file_url" json:"fileUrl,omitempty"`
	FileName   string      `db:"file_name" json:"fileName,omitempty"`
	FileType   string      `db:"file_type" json:"fileType,omitempty"`
	FileSize   int64       `db:"file_size" json:"fileSize,omitempty"`
	ReplyTo    string      `db:"reply_to" json:"replyTo,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt  *time.Time  `db:"updated_at" json:"updatedAt"`
	Edited     bool        `db:"edited" json:"edited"`
	Deleted    bool        `db:"deleted" json:"deleted"`
	Reactions  ReactionMap `db:"reactions" json:"reactions"`
	ReadBy     UserIDSet   `db:"read_by" json:"readBy"`
	Status     string      `db:"status" json:"status"`
}

// IsFile reports whether the message carries a file payload instead of text.
func (m Message) IsFile() bool {
	return m.FileURL != ""
}

// NewMessageID returns a ULID: millisecond timestamp plus a random suffix, so
// ids sort lexicographically by creation time even under clock collisions.
func NewMessageID() string {
	return ulid.Make().String()
}
