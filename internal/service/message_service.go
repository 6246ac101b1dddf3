package service

import (
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pairwave/chat-backend/internal/common"
	"github.com/pairwave/chat-backend/internal/domain"
	"github.com/pairwave/chat-backend/internal/notify"
	"github.com/pairwave/chat-backend/internal/repository"
	"github.com/pairwave/chat-backend/internal/ws"
	pkglogger "github.com/pairwave/chat-backend/pkg/logger"
	"github.com/pairwave/chat-backend/pkg/storage"
)

const (
	// MaxFilesPerMessage caps a single multipart send
	MaxFilesPerMessage = 10

	notifyPreviewLimit = 120
	hookTimeout        = 10 * time.Second
)

// MessageService validates and assembles messages before delegating to the
// room repository, and fires broadcast/notify hooks after the commit.
type MessageService struct {
	rooms          repository.RoomRepository
	blobs          storage.Blob
	broadcaster    Broadcaster
	notifier       Notifier
	notifyThrottle time.Duration
}

// NewMessageService creates a new MessageService
func NewMessageService(rooms repository.RoomRepository, blobs storage.Blob, broadcaster Broadcaster, notifier Notifier, notifyThrottle time.Duration) *MessageService {
	return &MessageService{
		rooms:          rooms,
		blobs:          blobs,
		broadcaster:    broadcaster,
		notifier:       notifier,
		notifyThrottle: notifyThrottle,
	}
}

// CreateRoom finds or creates the room for a user pair
func (s *MessageService) CreateRoom(ctx context.Context, req *domain.CreateRoomRequest) (*domain.Room, bool, error) {
	a := domain.Participant{UserID: req.PartyAID, DisplayName: req.PartyAName, Role: domain.RolePartyA}
	b := domain.Participant{UserID: req.PartyBID, DisplayName: req.PartyBName, Role: domain.RolePartyB}
	return s.rooms.FindOrCreateRoom(ctx, a, b)
}

// ListRooms returns all rooms of a user with last message and unseen count
func (s *MessageService) ListRooms(ctx context.Context, userID string) ([]domain.RoomData, error) {
	summaries, err := s.rooms.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rooms := make([]domain.RoomData, 0, len(summaries))
	for _, sum := range summaries {
		data := domain.RoomData{
			RoomID:       sum.Room.ID,
			Participants: sum.Room.Participants(),
			UnseenCount:  sum.UnseenCount,
			CreatedAt:    sum.Room.CreatedAt,
		}
		if sum.LastMessage != nil {
			data.LastMessage = sum.LastMessage.ToData()
		}
		rooms = append(rooms, data)
	}
	return rooms, nil
}

// History returns one page of a room's messages, oldest to newest
func (s *MessageService) History(ctx context.Context, roomID, userID string, limit int, before *time.Time) ([]*domain.MessageData, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if userID != "" && !room.IsParticipant(userID) {
		return nil, common.ErrNotParticipant
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	messages, err := s.rooms.GetMessages(ctx, roomID, limit, before)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.MessageData, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ToData())
	}
	return out, nil
}

// Send sends a text message, optionally carrying pre-uploaded attachment
// references (remote URLs already hosted elsewhere).
func (s *MessageService) Send(ctx context.Context, req *domain.SendMessageRequest) (*domain.MessageData, error) {
	attachments := make([]domain.Attachment, 0, len(req.Attachments))
	for _, in := range req.Attachments {
		attachments = append(attachments, domain.Attachment{
			ID:              uuid.New().String(),
			OriginalName:    in.OriginalName,
			MimeType:        in.MimeType,
			Size:            in.Size,
			StorageKind:     domain.StorageRemote,
			URL:             in.URL,
			Width:           in.Width,
			Height:          in.Height,
			DurationSeconds: in.DurationSeconds,
			ThumbnailURL:    in.ThumbnailURL,
		})
	}
	return s.send(ctx, req.RoomID, req.SenderID, req.Text, req.ReplyTo, attachments)
}

// SendFiles uploads each file to the blob store, then sends one message
// referencing them. Uploads complete fully before the message is appended;
// if the append fails the uploaded blobs are deleted, so no persisted
// message ever references a partial upload.
func (s *MessageService) SendFiles(ctx context.Context, roomID, senderID, text, replyTo string, files []*multipart.FileHeader) (*domain.MessageData, error) {
	if text == "" && len(files) == 0 {
		return nil, common.ErrEmptyMessage
	}
	if len(files) > MaxFilesPerMessage {
		return nil, fmt.Errorf("%w: at most %d files per message", common.ErrBadRequest, MaxFilesPerMessage)
	}

	attachments := make([]domain.Attachment, 0, len(files))
	for _, fh := range files {
		att, err := s.uploadFile(ctx, fh)
		if err != nil {
			s.cleanupBlobs(attachments)
			return nil, err
		}
		attachments = append(attachments, att)
	}

	data, err := s.send(ctx, roomID, senderID, text, replyTo, attachments)
	if err != nil {
		s.cleanupBlobs(attachments)
		return nil, err
	}
	return data, nil
}

func (s *MessageService) uploadFile(ctx context.Context, fh *multipart.FileHeader) (domain.Attachment, error) {
	src, err := fh.Open()
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(fh.Filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ref, size, err := s.blobs.Put(ctx, src, fh.Filename, contentType)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("store attachment: %w", err)
	}

	return domain.Attachment{
		ID:           uuid.New().String(),
		OriginalName: fh.Filename,
		MimeType:     contentType,
		Size:         size,
		StorageKind:  domain.StorageBlob,
		BlobRef:      ref,
	}, nil
}

func (s *MessageService) send(ctx context.Context, roomID, senderID, text, replyTo string, attachments []domain.Attachment) (*domain.MessageData, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(senderID) {
		return nil, common.ErrNotParticipant
	}
	if text == "" && len(attachments) == 0 {
		return nil, common.ErrEmptyMessage
	}

	msg := &domain.Message{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		SenderID:    senderID,
		Text:        text,
		Attachments: attachments,
		CreatedAt:   time.Now(),
	}
	if replyTo != "" {
		// A vanished reply target is not an error; the snapshot is omitted.
		if ref, err := s.rooms.GetMessage(ctx, roomID, replyTo); err == nil {
			msg.Reply = buildReplySnapshot(ref)
		}
	}

	if err := s.rooms.AppendMessage(ctx, roomID, msg); err != nil {
		return nil, err
	}

	data := msg.ToData()
	go s.fanOut(room, senderID, data)
	return data, nil
}

// buildReplySnapshot captures the referenced message at reply time
func buildReplySnapshot(ref *domain.Message) *domain.ReplySnapshot {
	snap := &domain.ReplySnapshot{
		MessageID:     ref.ID,
		SenderID:      ref.SenderID,
		TextExcerpt:   domain.ExcerptText(ref.Text, domain.ReplyExcerptLimit),
		HasAttachment: len(ref.Attachments) > 0,
	}
	if len(ref.Attachments) > 0 {
		snap.Attachment = &domain.ReplyAttachment{
			OriginalName: ref.Attachments[0].OriginalName,
			MimeType:     ref.Attachments[0].MimeType,
		}
	}
	return snap
}

// Edit changes the text of a message; only the original sender may edit
func (s *MessageService) Edit(ctx context.Context, req *domain.EditMessageRequest) (*domain.MessageData, error) {
	room, err := s.rooms.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(req.SenderID) {
		return nil, common.ErrNotParticipant
	}

	msg, err := s.rooms.UpdateMessageText(ctx, req.RoomID, req.MessageID, req.SenderID, req.NewText)
	if err != nil {
		return nil, err
	}

	data := msg.ToData()
	go s.broadcastToRoom(room, &ws.Event{Type: ws.EventMessageEdited, Payload: data})
	return data, nil
}

// Delete removes a message and best-effort deletes its attachment bytes.
// Storage cleanup failures are logged and swallowed; the record delete has
// already succeeded by then.
func (s *MessageService) Delete(ctx context.Context, req *domain.DeleteMessageRequest) (string, error) {
	room, err := s.rooms.GetRoom(ctx, req.RoomID)
	if err != nil {
		return "", err
	}
	if !room.IsParticipant(req.SenderID) {
		return "", common.ErrNotParticipant
	}

	removed, err := s.rooms.DeleteMessage(ctx, req.RoomID, req.MessageID, req.SenderID)
	if err != nil {
		return "", err
	}

	go func() {
		s.cleanupBlobs(removed.Attachments)
		s.broadcastToRoom(room, &ws.Event{Type: ws.EventMessageDeleted, Payload: map[string]interface{}{
			"roomId":    req.RoomID,
			"messageId": removed.ID,
		}})
	}()
	return removed.ID, nil
}

// cleanupBlobs removes attachment bytes from their backing storage.
// Never fails the caller.
func (s *MessageService) cleanupBlobs(attachments []domain.Attachment) {
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	for _, att := range attachments {
		var err error
		switch att.StorageKind {
		case domain.StorageBlob:
			err = s.blobs.Delete(ctx, att.BlobRef)
		case domain.StorageLocal:
			if att.LocalPath != "" {
				err = os.Remove(att.LocalPath)
			}
		case domain.StorageRemote:
			// Externally hosted; nothing to clean up
		}
		if err != nil {
			pkglogger.GetLogger().Warn().
				Err(err).
				Str("attachment_id", att.ID).
				Str("storage_kind", string(att.StorageKind)).
				Msg("attachment cleanup failed")
		}
	}
}

// fanOut delivers the new message to both participants and notifies the
// recipient through the external pipeline, throttled per room and user.
func (s *MessageService) fanOut(room *domain.Room, senderID string, data *domain.MessageData) {
	s.broadcastToRoom(room, &ws.Event{Type: ws.EventMessage, Payload: data})

	other, ok := room.OtherParticipant(senderID)
	if !ok || s.notifier == nil {
		return
	}
	if last, seen := room.LastNotificationSent[other.UserID]; seen && time.Since(last) < s.notifyThrottle {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	preview := data.Text
	if preview == "" {
		preview = fmt.Sprintf("%d attachment(s)", len(data.Attachments))
	}
	preview = domain.ExcerptText(preview, notifyPreviewLimit)

	err := s.notifier.Notify(ctx, notify.Notification{
		RecipientID: other.UserID,
		Title:       "New message",
		Body:        preview,
		Link:        fmt.Sprintf("/chat/room/%s", room.ID),
	})
	if err != nil {
		pkglogger.GetLogger().Warn().
			Err(err).
			Str("room_id", room.ID).
			Str("recipient", other.UserID).
			Msg("notify hook failed")
		return
	}
	if err := s.rooms.TouchNotificationSent(ctx, room.ID, other.UserID, time.Now()); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Str("room_id", room.ID).Msg("notification throttle update failed")
	}
}

func (s *MessageService) broadcastToRoom(room *domain.Room, event *ws.Event) {
	if s.broadcaster == nil {
		return
	}
	for _, p := range room.Participants() {
		s.broadcaster.SendToUser(p.UserID, event)
	}
}
