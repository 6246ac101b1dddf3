package domain

import "time"

// CreateRoomRequest creates or returns the room for a user pair
type CreateRoomRequest struct {
	PartyAID   string `json:"partyAId" binding:"required"`
	PartyBID   string `json:"partyBId" binding:"required"`
	PartyAName string `json:"partyAName"`
	PartyBName string `json:"partyBName"`
}

// ListRoomsRequest lists all rooms of one user
type ListRoomsRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// HistoryRequest pages through a room's messages
type HistoryRequest struct {
	RoomID string     `json:"roomId" binding:"required"`
	UserID string     `json:"userId"`
	Limit  int        `json:"limit"`
	Before *time.Time `json:"before"`
}

// AttachmentInput is a pre-uploaded attachment reference supplied by the client
type AttachmentInput struct {
	URL             string   `json:"url" binding:"required"`
	OriginalName    string   `json:"originalName"`
	MimeType        string   `json:"mimeType"`
	Size            int64    `json:"size"`
	Width           *int     `json:"width,omitempty"`
	Height          *int     `json:"height,omitempty"`
	DurationSeconds *float64 `json:"durationSeconds,omitempty"`
	ThumbnailURL    string   `json:"thumbnailUrl,omitempty"`
}

// SendMessageRequest sends a text message, optionally with pre-uploaded attachments
type SendMessageRequest struct {
	RoomID      string            `json:"roomId" binding:"required"`
	SenderID    string            `json:"senderId" binding:"required"`
	Text        string            `json:"text"`
	ReplyTo     string            `json:"replyTo"`
	Attachments []AttachmentInput `json:"attachments"`
}

// EditMessageRequest edits the text of a previously sent message
type EditMessageRequest struct {
	RoomID    string `json:"roomId" binding:"required"`
	MessageID string `json:"messageId" binding:"required"`
	SenderID  string `json:"senderId" binding:"required"`
	NewText   string `json:"newText" binding:"required"`
}

// DeleteMessageRequest removes a message and its attachment bytes
type DeleteMessageRequest struct {
	RoomID    string `json:"roomId" binding:"required"`
	MessageID string `json:"messageId" binding:"required"`
	SenderID  string `json:"senderId" binding:"required"`
}

// MarkSeenRequest acknowledges messages; empty MessageIDs sweeps everything unseen
type MarkSeenRequest struct {
	RoomID     string   `json:"roomId" binding:"required"`
	UserID     string   `json:"userId" binding:"required"`
	MessageIDs []string `json:"messageIds"`
}

// UnseenCountRequest counts messages not yet acknowledged by the user
type UnseenCountRequest struct {
	RoomID string `json:"roomId" binding:"required"`
	UserID string `json:"userId" binding:"required"`
}

// MessageData is the wire representation of a message
type MessageData struct {
	MessageID   string         `json:"messageId"`
	RoomID      string         `json:"roomId"`
	SenderID    string         `json:"senderId"`
	Text        string         `json:"text"`
	Reply       *ReplySnapshot `json:"reply,omitempty"`
	Attachments []Attachment   `json:"attachments"`
	SeenBy      []string       `json:"seenBy"`
	Timestamp   time.Time      `json:"timestamp"`
	EditedAt    *time.Time     `json:"editedAt,omitempty"`
}

// ToData converts a message to its wire representation
func (m *Message) ToData() *MessageData {
	attachments := m.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	return &MessageData{
		MessageID:   m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		Text:        m.Text,
		Reply:       m.Reply,
		Attachments: attachments,
		SeenBy:      m.SeenBy(),
		Timestamp:   m.CreatedAt,
		EditedAt:    m.EditedAt,
	}
}

// RoomData is the wire representation of a room
type RoomData struct {
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
	LastMessage  *MessageData  `json:"lastMessage,omitempty"`
	UnseenCount  int64         `json:"unseenCount"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// MarkSeenResult reports exactly the messages that transitioned unseen->seen
type MarkSeenResult struct {
	MarkedCount     int            `json:"markedCount"`
	UpdatedMessages []*MessageData `json:"updatedMessages"`
}
