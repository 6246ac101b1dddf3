package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pairwave/chat-backend/internal/domain"
	"github.com/pairwave/chat-backend/internal/repository"
	"github.com/pairwave/chat-backend/pkg/storage"
)

func setupStreamTest(t *testing.T) (*gin.Engine, repository.RoomRepository, storage.Blob) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(&domain.Room{}, &domain.Message{}, &domain.Attachment{}, &domain.MessageSeen{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	repo := repository.NewRoomRepository(db)

	blobs, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	h := NewStreamHandler(repo, blobs)
	router := gin.New()
	router.GET("/api/v1/file/:blobRef", h.ServeBlob)
	router.HEAD("/api/v1/file/:blobRef", h.ServeBlob)
	router.GET("/api/v1/chat/room/:roomId/attachment/:attachmentId", h.ServeAttachment)
	return router, repo, blobs
}

func putTestBlob(t *testing.T, blobs storage.Blob, name string, content []byte) string {
	t.Helper()
	ref, size, err := blobs.Put(context.Background(), bytes.NewReader(content), name, "")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if size != int64(len(content)) {
		t.Fatalf("expected size %d, got %d", len(content), size)
	}
	return ref
}

func TestServeBlob_FullContent(t *testing.T) {
	router, _, blobs := setupStreamTest(t)
	content := make([]byte, 1000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	ref := putTestBlob(t, blobs, "video.mp4", content)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/file/"+ref, nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Fatalf("expected Accept-Ranges bytes, got %q", got)
	}
	if got := w.Header().Get("Content-Length"); got != "1000" {
		t.Fatalf("expected Content-Length 1000, got %q", got)
	}
	if !strings.Contains(w.Header().Get("Cache-Control"), "immutable") {
		t.Fatal("expected immutable cache control for blob content")
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Fatal("body mismatch")
	}
}

func TestServeBlob_PartialContent(t *testing.T) {
	router, _, blobs := setupStreamTest(t)
	content := make([]byte, 1000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	ref := putTestBlob(t, blobs, "video.mp4", content)

	cases := []struct {
		header    string
		wantStart int64
		wantEnd   int64
	}{
		{"bytes=0-0", 0, 0},
		{"bytes=0-499", 0, 499},
		{"bytes=500-", 500, 999},
		{"bytes=-100", 900, 999},
		{"bytes=990-2000", 990, 999}, // end clamped to size
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/file/"+ref, nil)
		req.Header.Set("Range", tc.header)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusPartialContent {
			t.Fatalf("%s: expected 206, got %d", tc.header, w.Code)
		}
		wantLen := tc.wantEnd - tc.wantStart + 1
		wantRange := fmt.Sprintf("bytes %d-%d/1000", tc.wantStart, tc.wantEnd)
		if got := w.Header().Get("Content-Range"); got != wantRange {
			t.Fatalf("%s: expected Content-Range %q, got %q", tc.header, wantRange, got)
		}
		if got := w.Header().Get("Content-Length"); got != fmt.Sprint(wantLen) {
			t.Fatalf("%s: expected Content-Length %d, got %q", tc.header, wantLen, got)
		}
		if !bytes.Equal(w.Body.Bytes(), content[tc.wantStart:tc.wantEnd+1]) {
			t.Fatalf("%s: body mismatch", tc.header)
		}
	}
}

func TestServeBlob_UnsatisfiableRange(t *testing.T) {
	router, _, blobs := setupStreamTest(t)
	ref := putTestBlob(t, blobs, "clip.mp4", make([]byte, 1000))

	for _, header := range []string{"bytes=2000-3000", "bytes=1000-", "garbage", "bytes=b-a"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/file/"+ref, nil)
		req.Header.Set("Range", header)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusRequestedRangeNotSatisfiable {
			t.Fatalf("%s: expected 416, got %d", header, w.Code)
		}
		if got := w.Header().Get("Content-Range"); got != "bytes */1000" {
			t.Fatalf("%s: expected Content-Range bytes */1000, got %q", header, got)
		}
		var resp struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode error body: %v", header, err)
		}
		if resp.Error.Code != "RANGE_NOT_SATISFIABLE" {
			t.Fatalf("%s: expected RANGE_NOT_SATISFIABLE, got %q", header, resp.Error.Code)
		}
	}
}

func TestServeBlob_DispositionAndDownloadFlag(t *testing.T) {
	router, _, blobs := setupStreamTest(t)
	ref := putTestBlob(t, blobs, "photo.png", []byte("not really a png"))

	// Image renders inline by default
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/file/"+ref, nil)
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Content-Disposition"); !strings.HasPrefix(got, "inline") {
		t.Fatalf("expected inline disposition, got %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %q", got)
	}

	// download=1 forces attachment
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/file/"+ref+"?download=1", nil)
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Content-Disposition"); !strings.HasPrefix(got, "attachment") {
		t.Fatalf("expected attachment disposition, got %q", got)
	}
}

func TestServeBlob_NotFound(t *testing.T) {
	router, _, _ := setupStreamTest(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/file/0000000000000000000000000000000000000000000000000000000000000000.bin", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestServeBlob_HeadOmitsBody(t *testing.T) {
	router, _, blobs := setupStreamTest(t)
	ref := putTestBlob(t, blobs, "doc.pdf", make([]byte, 1234))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodHead, "/api/v1/file/"+ref, nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Length"); got != "1234" {
		t.Fatalf("expected Content-Length 1234, got %q", got)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %d bytes", w.Body.Len())
	}
}

func TestServeAttachment_BlobAndRemote(t *testing.T) {
	router, repo, blobs := setupStreamTest(t)
	ctx := context.Background()

	room, _, err := repo.FindOrCreateRoom(ctx,
		domain.Participant{UserID: "alice", DisplayName: "Alice"},
		domain.Participant{UserID: "bob", DisplayName: "Bob"},
	)
	if err != nil {
		t.Fatalf("FindOrCreateRoom failed: %v", err)
	}

	content := []byte("attachment payload bytes")
	ref := putTestBlob(t, blobs, "notes.txt", content)

	blobAttID := uuid.New().String()
	remoteAttID := uuid.New().String()
	msg := &domain.Message{
		ID:        uuid.New().String(),
		SenderID:  "alice",
		Text:      "files",
		CreatedAt: time.Now(),
		Attachments: []domain.Attachment{
			{ID: blobAttID, OriginalName: "notes.txt", MimeType: "text/plain", StorageKind: domain.StorageBlob, BlobRef: ref},
			{ID: remoteAttID, OriginalName: "ext.jpg", MimeType: "image/jpeg", StorageKind: domain.StorageRemote, URL: "https://cdn.example.com/ext.jpg"},
		},
	}
	if err := repo.AppendMessage(ctx, room.ID, msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	// Blob-backed attachment streams bytes
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/room/"+room.ID+"/attachment/"+blobAttID, nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Fatal("attachment body mismatch")
	}

	// Ranged request against the attachment route
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/chat/room/"+room.ID+"/attachment/"+blobAttID, nil)
	req.Header.Set("Range", "bytes=0-9")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), content[:10]) {
		t.Fatal("ranged attachment body mismatch")
	}

	// Remote attachment redirects
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/chat/room/"+room.ID+"/attachment/"+remoteAttID, nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if got := w.Header().Get("Location"); got != "https://cdn.example.com/ext.jpg" {
		t.Fatalf("unexpected redirect target %q", got)
	}

	// Unknown attachment id
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/chat/room/"+room.ID+"/attachment/"+uuid.New().String(), nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestServeAttachment_ParticipantCheck(t *testing.T) {
	router, repo, blobs := setupStreamTest(t)
	ctx := context.Background()

	room, _, err := repo.FindOrCreateRoom(ctx,
		domain.Participant{UserID: "alice", DisplayName: "Alice"},
		domain.Participant{UserID: "bob", DisplayName: "Bob"},
	)
	if err != nil {
		t.Fatalf("FindOrCreateRoom failed: %v", err)
	}

	ref := putTestBlob(t, blobs, "secret.txt", []byte("between alice and bob"))
	attID := uuid.New().String()
	msg := &domain.Message{
		ID:        uuid.New().String(),
		SenderID:  "alice",
		Text:      "here",
		CreatedAt: time.Now(),
		Attachments: []domain.Attachment{
			{ID: attID, OriginalName: "secret.txt", MimeType: "text/plain", StorageKind: domain.StorageBlob, BlobRef: ref},
		},
	}
	if err := repo.AppendMessage(ctx, room.ID, msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	path := "/api/v1/chat/room/" + room.ID + "/attachment/" + attID

	// An outsider identity is rejected
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path+"?userId=mallory", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d", w.Code)
	}

	// A participant identity streams the bytes
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, path+"?userId=bob", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for participant, got %d", w.Code)
	}
	if w.Body.String() != "between alice and bob" {
		t.Fatal("attachment body mismatch")
	}
}
