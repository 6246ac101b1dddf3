package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pairwave/chat-backend/internal/common"
	"github.com/pairwave/chat-backend/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomRepository persists conversation aggregates. All message-level
// mutations are expressed as targeted, conditional statements so that
// concurrent writers to the same room never clobber each other; the
// database's per-row atomicity is the only concurrency primitive used.
type RoomRepository interface {
	FindOrCreateRoom(ctx context.Context, a, b domain.Participant) (*domain.Room, bool, error)
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]domain.RoomSummary, error)

	AppendMessage(ctx context.Context, roomID string, msg *domain.Message) error
	GetMessage(ctx context.Context, roomID, messageID string) (*domain.Message, error)
	GetMessages(ctx context.Context, roomID string, limit int, before *time.Time) ([]*domain.Message, error)
	UpdateMessageText(ctx context.Context, roomID, messageID, senderID, newText string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, roomID, messageID, senderID string) (*domain.Message, error)

	GetAttachment(ctx context.Context, roomID, attachmentID string) (*domain.Attachment, error)

	UnseenCount(ctx context.Context, roomID, userID string) (int64, error)
	MarkSeen(ctx context.Context, roomID, userID string, messageIDs []string) ([]*domain.Message, error)

	TouchNotificationSent(ctx context.Context, roomID, userID string, at time.Time) error
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository creates a new RoomRepository
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

// FindOrCreateRoom returns the single room for an unordered user pair,
// creating it when absent. The pair is stored sorted by user id; a writer
// losing the duplicate-insert race on the unique pair index re-reads the
// winner's row, so concurrent calls for (A,B) and (B,A) converge.
func (r *roomRepository) FindOrCreateRoom(ctx context.Context, a, b domain.Participant) (*domain.Room, bool, error) {
	if a.UserID == "" || b.UserID == "" || a.UserID == b.UserID {
		return nil, false, common.ErrBadRequest
	}
	a, b = domain.SortPair(a, b)

	room, err := r.findByPair(ctx, a.UserID, b.UserID)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	room = &domain.Room{
		ID:                   uuid.New().String(),
		UserAID:              a.UserID,
		UserBID:              b.UserID,
		UserAName:            a.DisplayName,
		UserBName:            b.DisplayName,
		UserARole:            a.Role,
		UserBRole:            b.Role,
		LastNotificationSent: domain.NotifiedMap{},
	}
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		// Lost the race on the pair index: the winner's row is the room.
		if existing, findErr := r.findByPair(ctx, a.UserID, b.UserID); findErr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return room, true, nil
}

func (r *roomRepository) findByPair(ctx context.Context, userAID, userBID string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? AND user_b_id = ?", userAID, userBID).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("id = ?", roomID).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) ListRoomsForUser(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	var rooms []*domain.Room
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("updated_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		var last domain.Message
		err := r.db.WithContext(ctx).
			Preload("Attachments").Preload("Seen").
			Where("room_id = ?", room.ID).
			Order("created_at DESC, id DESC").
			First(&last).Error
		summary := domain.RoomSummary{Room: room}
		switch {
		case err == nil:
			summary.LastMessage = &last
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}

		count, err := r.UnseenCount(ctx, room.ID, userID)
		if err != nil {
			return nil, err
		}
		summary.UnseenCount = count
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// AppendMessage is the atomic commit point for sends: the message row and
// its attachment rows land in one transaction or not at all.
func (r *roomRepository) AppendMessage(ctx context.Context, roomID string, msg *domain.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room domain.Room
		if err := tx.Select("id").Where("id = ?", roomID).First(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrRoomNotFound
			}
			return err
		}
		msg.RoomID = roomID
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		// Bump room activity for list ordering
		return tx.Model(&domain.Room{}).Where("id = ?", roomID).
			Update("updated_at", msg.CreatedAt).Error
	})
}

func (r *roomRepository) GetMessage(ctx context.Context, roomID, messageID string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments").Preload("Seen").
		Where("room_id = ? AND id = ?", roomID, messageID).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// GetAttachment resolves an attachment row, verifying it belongs to a
// message of the given room.
func (r *roomRepository) GetAttachment(ctx context.Context, roomID, attachmentID string) (*domain.Attachment, error) {
	var att domain.Attachment
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_messages ON chat_messages.id = chat_attachments.message_id").
		Where("chat_attachments.id = ? AND chat_messages.room_id = ?", attachmentID, roomID).
		First(&att).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &att, nil
}

// GetMessages returns the most recent page by default, ordered oldest to
// newest within the page. A before cursor pages further back.
func (r *roomRepository) GetMessages(ctx context.Context, roomID string, limit int, before *time.Time) ([]*domain.Message, error) {
	q := r.db.WithContext(ctx).
		Preload("Attachments").Preload("Seen").
		Where("room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}

	var messages []*domain.Message
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// UpdateMessageText edits the text of a message owned by senderID. The
// write is guarded on the sender column, so a cross-user edit can never
// slip through between the read and the update.
func (r *roomRepository) UpdateMessageText(ctx context.Context, roomID, messageID, senderID, newText string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND id = ?", roomID, messageID).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrMessageNotFound
		}
		return nil, err
	}
	if msg.SenderID != senderID {
		return nil, common.ErrNotOwner
	}

	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("room_id = ? AND id = ? AND sender_id = ?", roomID, messageID, senderID).
		Updates(map[string]interface{}{"text": newText, "edited_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Deleted concurrently
		return nil, common.ErrMessageNotFound
	}
	return r.GetMessage(ctx, roomID, messageID)
}

// DeleteMessage hard-deletes a message owned by senderID and returns the
// removed row with its attachments so callers can clean up blob bytes.
// Under concurrent deletes exactly one caller wins; the rest see NotFound.
func (r *roomRepository) DeleteMessage(ctx context.Context, roomID, messageID, senderID string) (*domain.Message, error) {
	var removed *domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg domain.Message
		err := tx.Preload("Attachments").Preload("Seen").
			Where("room_id = ? AND id = ?", roomID, messageID).
			First(&msg).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrMessageNotFound
			}
			return err
		}
		if msg.SenderID != senderID {
			return common.ErrNotOwner
		}

		res := tx.Where("room_id = ? AND id = ? AND sender_id = ?", roomID, messageID, senderID).
			Delete(&domain.Message{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.ErrMessageNotFound
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&domain.MessageSeen{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}
		removed = &msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *roomRepository) UnseenCount(ctx context.Context, roomID, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("room_id = ? AND sender_id <> ?", roomID, userID).
		Where("NOT EXISTS (SELECT 1 FROM chat_message_seen cs WHERE cs.message_id = chat_messages.id AND cs.user_id = ?)", userID).
		Count(&count).Error
	return count, err
}

// MarkSeen acknowledges messages for userID and returns only those that
// transitioned unseen->seen in this call. The mutation is insert-if-absent
// on the (message_id, user_id) primary key, never a read-modify-write of a
// seen list, so concurrent calls and concurrent arrivals cannot lose
// updates. Repeating a call yields an empty delta.
func (r *roomRepository) MarkSeen(ctx context.Context, roomID, userID string, messageIDs []string) ([]*domain.Message, error) {
	var delta []*domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Snapshot of currently-unseen targets; the sender of a message is
		// never a candidate for its own seen set.
		q := tx.Model(&domain.Message{}).
			Where("room_id = ? AND sender_id <> ?", roomID, userID).
			Where("NOT EXISTS (SELECT 1 FROM chat_message_seen cs WHERE cs.message_id = chat_messages.id AND cs.user_id = ?)", userID)
		if len(messageIDs) > 0 {
			q = q.Where("id IN ?", messageIDs)
		}

		var ids []string
		if err := q.Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		now := time.Now()
		rows := make([]domain.MessageSeen, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, domain.MessageSeen{MessageID: id, UserID: userID, SeenAt: now})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return err
		}

		return tx.Preload("Attachments").Preload("Seen").
			Where("id IN ?", ids).
			Order("created_at ASC, id ASC").
			Find(&delta).Error
	})
	if err != nil {
		return nil, err
	}
	return delta, nil
}

// TouchNotificationSent records when the external notifier last fired for
// a user in this room. Throttling aid only; a lost concurrent update costs
// at most one extra notification.
func (r *roomRepository) TouchNotificationSent(ctx context.Context, roomID, userID string, at time.Time) error {
	room, err := r.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.LastNotificationSent == nil {
		room.LastNotificationSent = domain.NotifiedMap{}
	}
	room.LastNotificationSent[userID] = at
	return r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", roomID).
		Update("last_notification_sent", room.LastNotificationSent).Error
}
