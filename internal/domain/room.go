package domain

import "time"

// Participant roles. A room always pairs a partyA with a partyB; "other"
// covers operator accounts surfaced in migrated data.
const (
	RolePartyA = "partyA"
	RolePartyB = "partyB"
	RoleOther  = "other"
)

// Participant is one side of a two-party conversation
type Participant struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// NotifiedMap maps a user id to the last time the external notifier fired
// for them, used to throttle repeat notifications per room.
type NotifiedMap map[string]time.Time

// Room is a conversation between exactly two participants. The user id
// pair is stored sorted so that concurrent create attempts collide on the
// unique pair index and converge on a single row.
type Room struct {
	ID                   string      `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserAID              string      `gorm:"column:user_a_id;size:64;uniqueIndex:idx_chat_room_pair,priority:1" json:"user_a_id"`
	UserBID              string      `gorm:"column:user_b_id;size:64;index;uniqueIndex:idx_chat_room_pair,priority:2" json:"user_b_id"`
	UserAName            string      `gorm:"column:user_a_name;size:100" json:"user_a_name"`
	UserBName            string      `gorm:"column:user_b_name;size:100" json:"user_b_name"`
	UserARole            string      `gorm:"column:user_a_role;size:20" json:"user_a_role"`
	UserBRole            string      `gorm:"column:user_b_role;size:20" json:"user_b_role"`
	LastNotificationSent NotifiedMap `gorm:"column:last_notification_sent;serializer:json" json:"-"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// TableName returns the table name
func (Room) TableName() string {
	return "chat_rooms"
}

// Participants returns both sides in storage order
func (r *Room) Participants() []Participant {
	return []Participant{
		{UserID: r.UserAID, DisplayName: r.UserAName, Role: r.UserARole},
		{UserID: r.UserBID, DisplayName: r.UserBName, Role: r.UserBRole},
	}
}

// IsParticipant reports whether userID belongs to this room
func (r *Room) IsParticipant(userID string) bool {
	return userID == r.UserAID || userID == r.UserBID
}

// OtherParticipant returns the participant opposite to userID
func (r *Room) OtherParticipant(userID string) (Participant, bool) {
	switch userID {
	case r.UserAID:
		return Participant{UserID: r.UserBID, DisplayName: r.UserBName, Role: r.UserBRole}, true
	case r.UserBID:
		return Participant{UserID: r.UserAID, DisplayName: r.UserAName, Role: r.UserARole}, true
	}
	return Participant{}, false
}

// SortPair orders two participants by user id, the storage order for rooms
func SortPair(a, b Participant) (Participant, Participant) {
	if a.UserID > b.UserID {
		return b, a
	}
	return a, b
}

// RoomSummary is one entry of a user's room list
type RoomSummary struct {
	Room        *Room
	LastMessage *Message
	UnseenCount int64
}
