package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pairwave/chat-backend/internal/common"
	"github.com/pairwave/chat-backend/internal/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Room{},
		&domain.Message{},
		&domain.Attachment{},
		&domain.MessageSeen{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestRoom(t *testing.T, repo RoomRepository, aID, bID string) *domain.Room {
	t.Helper()
	room, _, err := repo.FindOrCreateRoom(context.Background(),
		domain.Participant{UserID: aID, DisplayName: aID, Role: domain.RolePartyA},
		domain.Participant{UserID: bID, DisplayName: bID, Role: domain.RolePartyB},
	)
	if err != nil {
		t.Fatalf("FindOrCreateRoom failed: %v", err)
	}
	return room
}

func appendTestMessage(t *testing.T, repo RoomRepository, roomID, senderID, text string, at time.Time) *domain.Message {
	t.Helper()
	msg := &domain.Message{
		ID:        uuid.New().String(),
		SenderID:  senderID,
		Text:      text,
		CreatedAt: at,
	}
	if err := repo.AppendMessage(context.Background(), roomID, msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	return msg
}

func TestFindOrCreateRoom_ConvergesForSwappedPair(t *testing.T) {
	repo := NewRoomRepository(setupTestDB(t))
	ctx := context.Background()

	room1, created, err := repo.FindOrCreateRoom(ctx,
		domain.Participant{UserID: "alice", DisplayName: "Alice"},
		domain.Participant{UserID: "bob", DisplayName: "Bob"},
	)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create the room")
	}

	// Swapped order must resolve to the same room
	room2, created, err := repo.FindOrCreateRoom(ctx,
		domain.Participant{UserID: "bob", DisplayName: "Bob"},
		domain.Participant{UserID: "alice", DisplayName: "Alice"},
	)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if created {
		t.Fatal("expected second call to reuse the room")
	}
	if room1.ID != room2.ID {
		t.Fatalf("expected same room for both orders, got %s and %s", room1.ID, room2.ID)
	}
}

func TestFindOrCreateRoom_RejectsInvalidPair(t *testing.T) {
	repo := NewRoomRepository(setupTestDB(t))
	ctx := context.Background()

	_, _, err := repo.FindOrCreateRoom(ctx,
		domain.Participant{UserID: "alice"},
		domain.Participant{UserID: "alice"},
	)
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for self-pair, got %v", err)
	}

	_, _, err = repo.FindOrCreateRoom(ctx,
		domain.Participant{UserID: ""},
		domain.Participant{UserID: "bob"},
	)
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for empty id, got %v", err)
	}
}

func TestAppendMessage_UnknownRoom(t *testing.T) {
	repo := NewRoomRepository(setupTestDB(t))

	err := repo.AppendMessage(context.Background(), "no-such-room", &domain.Message{
		ID:        uuid.New().String(),
		SenderID:  "alice",
		Text:      "hello",
		CreatedAt: time.Now(),
	})
	if !errors.Is(err, common.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestGetMessages_PagesOldestToNewest(t *testing.T) {
	repo := NewRoomRepository(setupTestDB(t))
	room := newTestRoom(t, repo, "alice", "bob")
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 5; i++ {
		appendTestMessage(t, repo, room.ID, "alice", fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Minute))
	}

	// Default page: newest messages, oldest first within the page
	page, err := repo.GetMessages(ctx, room.ID, 3, nil)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(page))
	}
	if page[0].Text != "msg 2" || page[2].Text != "msg 4" {
		t.Fatalf("unexpected page order: %q .. %q", page[0].Text, page[2].Text)
	}

	// Page further back with the cursor
	older, err := repo.GetMessages(ctx, room.ID, 3, &page[0].CreatedAt)
	if err != nil {
		t.Fatalf("GetMessages with cursor failed: %v", err)
	}
	if len(older) != 2 {
		t.Fatalf("expected 2 older messages, got %d", len(older))
	}
	if older[0].Text != "msg 0" || older[1].Text != "msg 1" {
		t.Fatalf("unexpected cursor page: %q, %q", older[0].Text, older[1].Text)
	}
}

func TestUpdateMessageText_OwnershipGuard(t *testing.T) {
	repo := NewRoomRepository(setupTestDB(t))
	room := newTestRoom(t, repo, "alice", "bob")
	ctx := context.Background()

	msg := appendTestMessage(t, repo, room.ID, "alice", "original", time.Now())

	// Non-owner cannot edit
	_, err := repo.UpdateMessageText(ctx, room.ID, msg.ID, "bob", "hacked")
	if !errors.Is(err, common.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	// Text must be unchanged after the rejected edit
	got, err := repo.GetMessage(ctx, room.ID, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got.Text != "original" {
		t.Fatalf("expected text unchanged, got %q", got.Text)
	}
	if got.EditedAt != nil {
		t.Fatal("expected no edit timestamp after rejected edit")
	}

	// Owner edit succeeds and stamps EditedAt
	updated, err := repo.UpdateMessageText(ctx, room.ID, msg.ID, "alice", "fixed")
	if err != nil {
		t.Fatalf("owner edit failed: %v", err)
	}
	if updated.Text != "fixed" {
		t.Fatalf("expected edited text, got %q", updated.Text)
	}
	if updated.EditedAt == nil {
		t.Fatal("expected edit timestamp to be set")
	}
}

func TestDeleteMessage_OwnershipAndCascade(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	room := newTestRoom(t, repo, "alice", "bob")
	ctx := context.Background()

	msg := &domain.Message{
		ID:        uuid.New().String(),
		SenderID:  "alice",
		Text:      "with file",
		CreatedAt: time.Now(),
		Attachments: []domain.Attachment{{
			ID:           uuid.New().String(),
			OriginalName: "photo.jpg",
			MimeType:     "image/jpeg",
			StorageKind:  domain.StorageBlob,
			BlobRef:      "abc123.jpg",
		}},
	}
	if err := repo.AppendMessage(ctx, room.ID, msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if _, err := repo.MarkSeen(ctx, room.ID, "bob", nil); err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}

	// Non-owner cannot delete
	if _, err := repo.DeleteMessage(ctx, room.ID, msg.ID, "bob"); !errors.Is(err, common.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	removed, err := repo.DeleteMessage(ctx, room.ID, msg.ID, "alice")
	if err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}
	if len(removed.Attachments) != 1 || removed.Attachments[0].BlobRef != "abc123.jpg" {
		t.Fatal("expected removed message to carry its attachments for cleanup")
	}

	if _, err := repo.GetMessage(ctx, room.ID, msg.ID); !errors.Is(err, common.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound after delete, got %v", err)
	}

	// Dependent rows must be gone too
	var seenCount, attCount int64
	db.Model(&domain.MessageSeen{}).Where("message_id = ?", msg.ID).Count(&seenCount)
	db.Model(&domain.Attachment{}).Where("message_id = ?", msg.ID).Count(&attCount)
	if seenCount != 0 || attCount != 0 {
		t.Fatalf("expected cascade cleanup, got %d seen rows and %d attachment rows", seenCount, attCount)
	}
}

func TestMarkSeen_DeltaAndIdempotency(t *testing.T) {
	repo := NewRoomRepository(setupTestDB(t))
	room := newTestRoom(t, repo, "alice", "bob")
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	m1 := appendTestMessage(t, repo, room.ID, "alice", "one", base)
	m2 := appendTestMessage(t, repo, room.ID, "alice", "two", base.Add(time.Second))
	appendTestMessage(t, repo, room.ID, "bob", "reply", base.Add(2*time.Second))

	count, err := repo.UnseenCount(ctx, room.ID, "bob")
	if err != nil {
		t.Fatalf("UnseenCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 unseen for bob, got %d", count)
	}

	// First sweep returns exactly the messages that flipped
	delta, err := repo.MarkSeen(ctx, room.ID, "bob", nil)
	if err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if len(delta) != 2 {
		t.Fatalf("expected delta of 2, got %d", len(delta))
	}
	if delta[0].ID != m1.ID || delta[1].ID != m2.ID {
		t.Fatal("expected delta ordered oldest to newest")
	}
	if !delta[0].SeenByUser("bob") {
		t.Fatal("expected delta message to include bob in its seen set")
	}

	// Sender is never in their own seen set
	if delta[0].SeenByUser("alice") {
		t.Fatal("sender must not appear in the seen set")
	}

	// Repeat yields an empty delta
	again, err := repo.MarkSeen(ctx, room.ID, "bob", nil)
	if err != nil {
		t.Fatalf("repeated MarkSeen failed: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected empty delta on repeat, got %d", len(again))
	}

	count, _ = repo.UnseenCount(ctx, room.ID, "bob")
	if count != 0 {
		t.Fatalf("expected 0 unseen after sweep, got %d", count)
	}

	// Alice still has bob's reply unseen
	count, _ = repo.UnseenCount(ctx, room.ID, "alice")
	if count != 1 {
		t.Fatalf("expected 1 unseen for alice, got %d", count)
	}
}

func TestMarkSeen_TargetedSubset(t *testing.T) {
	repo := NewRoomRepository(setupTestDB(t))
	room := newTestRoom(t, repo, "alice", "bob")
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	m1 := appendTestMessage(t, repo, room.ID, "alice", "one", base)
	appendTestMessage(t, repo, room.ID, "alice", "two", base.Add(time.Second))

	delta, err := repo.MarkSeen(ctx, room.ID, "bob", []string{m1.ID})
	if err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if len(delta) != 1 || delta[0].ID != m1.ID {
		t.Fatalf("expected delta of just %s, got %d entries", m1.ID, len(delta))
	}

	count, _ := repo.UnseenCount(ctx, room.ID, "bob")
	if count != 1 {
		t.Fatalf("expected 1 still unseen, got %d", count)
	}
}

func TestListRoomsForUser(t *testing.T) {
	repo := NewRoomRepository(setupTestDB(t))
	ctx := context.Background()

	roomAB := newTestRoom(t, repo, "alice", "bob")
	roomAC := newTestRoom(t, repo, "alice", "carol")
	newTestRoom(t, repo, "bob", "carol")

	appendTestMessage(t, repo, roomAB.ID, "bob", "hey", time.Now())

	summaries, err := repo.ListRoomsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListRoomsForUser failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 rooms for alice, got %d", len(summaries))
	}

	byID := map[string]domain.RoomSummary{}
	for _, s := range summaries {
		byID[s.Room.ID] = s
	}
	ab, ok := byID[roomAB.ID]
	if !ok {
		t.Fatal("expected summary for alice-bob room")
	}
	if ab.LastMessage == nil || ab.LastMessage.Text != "hey" {
		t.Fatal("expected last message on alice-bob room")
	}
	if ab.UnseenCount != 1 {
		t.Fatalf("expected 1 unseen in alice-bob room, got %d", ab.UnseenCount)
	}
	if byID[roomAC.ID].LastMessage != nil {
		t.Fatal("expected no last message in empty room")
	}
}

func TestGetAttachment_ScopedToRoom(t *testing.T) {
	repo := NewRoomRepository(setupTestDB(t))
	room := newTestRoom(t, repo, "alice", "bob")
	other := newTestRoom(t, repo, "alice", "carol")
	ctx := context.Background()

	attID := uuid.New().String()
	msg := &domain.Message{
		ID:        uuid.New().String(),
		SenderID:  "alice",
		CreatedAt: time.Now(),
		Attachments: []domain.Attachment{{
			ID:          attID,
			StorageKind: domain.StorageBlob,
			BlobRef:     "deadbeef.png",
			MimeType:    "image/png",
		}},
	}
	if err := repo.AppendMessage(ctx, room.ID, msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	att, err := repo.GetAttachment(ctx, room.ID, attID)
	if err != nil {
		t.Fatalf("GetAttachment failed: %v", err)
	}
	if att.BlobRef != "deadbeef.png" {
		t.Fatalf("unexpected blob ref %q", att.BlobRef)
	}

	// Same attachment id through the wrong room must not resolve
	if _, err := repo.GetAttachment(ctx, other.ID, attID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong room, got %v", err)
	}
}

func TestTouchNotificationSent(t *testing.T) {
	repo := NewRoomRepository(setupTestDB(t))
	room := newTestRoom(t, repo, "alice", "bob")
	ctx := context.Background()

	at := time.Now().Truncate(time.Second)
	if err := repo.TouchNotificationSent(ctx, room.ID, "bob", at); err != nil {
		t.Fatalf("TouchNotificationSent failed: %v", err)
	}

	got, err := repo.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	stored, ok := got.LastNotificationSent["bob"]
	if !ok {
		t.Fatal("expected notification timestamp for bob")
	}
	if !stored.Equal(at) {
		t.Fatalf("expected %v, got %v", at, stored)
	}
}
