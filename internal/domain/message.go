package domain

import "time"

// ReplyExcerptLimit caps the text excerpt captured in a reply snapshot
const ReplyExcerptLimit = 200

// ReplyAttachment is the attachment summary inside a reply snapshot
type ReplyAttachment struct {
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
}

// ReplySnapshot is a point-in-time copy of the replied-to message,
// denormalized onto the replying message and never re-synced.
type ReplySnapshot struct {
	MessageID     string           `json:"messageId"`
	SenderID      string           `json:"senderId"`
	TextExcerpt   string           `json:"textExcerpt"`
	HasAttachment bool             `json:"hasAttachment"`
	Attachment    *ReplyAttachment `json:"attachment,omitempty"`
}

// Message is one unit of conversation content. Text and EditedAt are the
// only mutable fields, and only by the original sender; everything else is
// fixed at creation.
type Message struct {
	ID          string         `gorm:"column:id;primaryKey;size:36" json:"id"`
	RoomID      string         `gorm:"column:room_id;size:36;index:idx_chat_messages_room,priority:1" json:"room_id"`
	SenderID    string         `gorm:"column:sender_id;size:64" json:"sender_id"`
	Text        string         `gorm:"column:text;type:text" json:"text"`
	Reply       *ReplySnapshot `gorm:"column:reply;serializer:json" json:"reply,omitempty"`
	Attachments []Attachment   `gorm:"foreignKey:MessageID" json:"attachments"`
	Seen        []MessageSeen  `gorm:"foreignKey:MessageID" json:"-"`
	CreatedAt   time.Time      `gorm:"column:created_at;index:idx_chat_messages_room,priority:2" json:"created_at"`
	EditedAt    *time.Time     `gorm:"column:edited_at" json:"edited_at,omitempty"`
}

// TableName returns the table name
func (Message) TableName() string {
	return "chat_messages"
}

// SeenBy returns the ids of users who acknowledged this message.
// The sender is never in this set.
func (m *Message) SeenBy() []string {
	ids := make([]string, 0, len(m.Seen))
	for _, s := range m.Seen {
		ids = append(ids, s.UserID)
	}
	return ids
}

// SeenByUser reports whether userID acknowledged this message
func (m *Message) SeenByUser(userID string) bool {
	for _, s := range m.Seen {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// MessageSeen is one acknowledgement row. The composite primary key makes
// insert-if-absent the idempotent mark-seen primitive.
type MessageSeen struct {
	MessageID string    `gorm:"column:message_id;primaryKey;size:36" json:"message_id"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:64" json:"user_id"`
	SeenAt    time.Time `gorm:"column:seen_at" json:"seen_at"`
}

// TableName returns the table name
func (MessageSeen) TableName() string {
	return "chat_message_seen"
}

// ExcerptText truncates s to at most max runes
func ExcerptText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
