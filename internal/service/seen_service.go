package service

import (
	"context"

	"github.com/pairwave/chat-backend/internal/common"
	"github.com/pairwave/chat-backend/internal/domain"
	"github.com/pairwave/chat-backend/internal/repository"
	"github.com/pairwave/chat-backend/internal/ws"
)

// SeenService computes unseen counts and applies idempotent mark-seen
// updates. The heavy lifting is the repository's insert-if-absent; this
// layer adds membership checks and delta broadcasting.
type SeenService struct {
	rooms       repository.RoomRepository
	broadcaster Broadcaster
}

// NewSeenService creates a new SeenService
func NewSeenService(rooms repository.RoomRepository, broadcaster Broadcaster) *SeenService {
	return &SeenService{rooms: rooms, broadcaster: broadcaster}
}

// UnseenCount counts messages not sent by userID and not yet acknowledged
func (s *SeenService) UnseenCount(ctx context.Context, roomID, userID string) (int64, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if !room.IsParticipant(userID) {
		return 0, common.ErrNotParticipant
	}
	return s.rooms.UnseenCount(ctx, roomID, userID)
}

// MarkSeen acknowledges the given messages (or everything unseen when no
// ids are supplied) and returns exactly the delta, so callers broadcast
// only messages that transitioned in this call. Calling it again with the
// same arguments yields markedCount 0.
func (s *SeenService) MarkSeen(ctx context.Context, roomID, userID string, messageIDs []string) (*domain.MarkSeenResult, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(userID) {
		return nil, common.ErrNotParticipant
	}

	delta, err := s.rooms.MarkSeen(ctx, roomID, userID, messageIDs)
	if err != nil {
		return nil, err
	}

	result := &domain.MarkSeenResult{
		MarkedCount:     len(delta),
		UpdatedMessages: make([]*domain.MessageData, 0, len(delta)),
	}
	for _, m := range delta {
		result.UpdatedMessages = append(result.UpdatedMessages, m.ToData())
	}

	if len(delta) > 0 && s.broadcaster != nil {
		ids := make([]string, 0, len(delta))
		for _, m := range delta {
			ids = append(ids, m.ID)
		}
		event := &ws.Event{Type: ws.EventSeen, Payload: map[string]interface{}{
			"roomId":     roomID,
			"userId":     userID,
			"messageIds": ids,
		}}
		go func() {
			for _, p := range room.Participants() {
				s.broadcaster.SendToUser(p.UserID, event)
			}
		}()
	}
	return result, nil
}
