package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pairwave/chat-backend/internal/common"
	"github.com/pairwave/chat-backend/internal/domain"
	"github.com/pairwave/chat-backend/internal/middleware"
	"github.com/pairwave/chat-backend/internal/service"
)

// ChatHandler handles direct-message requests
type ChatHandler struct {
	messages *service.MessageService
	seen     *service.SeenService
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(messages *service.MessageService, seen *service.SeenService) *ChatHandler {
	return &ChatHandler{messages: messages, seen: seen}
}

// verifyIdentity cross-checks the identity claimed in the request body
// against the authenticated token identity, when one is present.
func verifyIdentity(c *gin.Context, claimed string) bool {
	tokenUser := middleware.GetUserID(c)
	if tokenUser != "" && tokenUser != claimed {
		common.ErrorResponse(c, http.StatusForbidden, "Identity does not match the authenticated user", nil)
		return false
	}
	return true
}

// CreateRoom handles POST /api/v1/chat/room
func (h *ChatHandler) CreateRoom(c *gin.Context) {
	var req domain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	room, created, err := h.messages.CreateRoom(c.Request.Context(), &req)
	if err != nil {
		common.FailFromError(c, err, "Failed to create chat room")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, common.APIResponse{
		Data: gin.H{
			"roomId":       room.ID,
			"participants": room.Participants(),
			"created":      created,
		},
	})
}

// ListRooms handles POST /api/v1/chat/rooms
func (h *ChatHandler) ListRooms(c *gin.Context) {
	var req domain.ListRoomsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !verifyIdentity(c, req.UserID) {
		return
	}

	rooms, err := h.messages.ListRooms(c.Request.Context(), req.UserID)
	if err != nil {
		common.FailFromError(c, err, "Failed to list chat rooms")
		return
	}

	common.SuccessResponse(c, rooms, &common.Meta{Total: int64(len(rooms))})
}

// History handles POST /api/v1/chat/history
func (h *ChatHandler) History(c *gin.Context) {
	var req domain.HistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID != "" && !verifyIdentity(c, req.UserID) {
		return
	}

	messages, err := h.messages.History(c.Request.Context(), req.RoomID, req.UserID, req.Limit, req.Before)
	if err != nil {
		common.FailFromError(c, err, "Failed to load message history")
		return
	}

	common.SuccessResponse(c, messages, &common.Meta{Total: int64(len(messages))})
}

// Send handles POST /api/v1/chat/message
func (h *ChatHandler) Send(c *gin.Context) {
	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !verifyIdentity(c, req.SenderID) {
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), &req)
	if err != nil {
		common.FailFromError(c, err, "Failed to send message")
		return
	}

	middleware.CountMessageSent()
	c.JSON(http.StatusCreated, common.APIResponse{Data: msg})
}

// SendFile handles POST /api/v1/chat/send-file (multipart)
func (h *ChatHandler) SendFile(c *gin.Context) {
	roomID := c.PostForm("roomId")
	senderID := c.PostForm("senderId")
	text := c.PostForm("text")
	replyTo := c.PostForm("replyTo")

	if roomID == "" || senderID == "" {
		common.ErrorResponse(c, http.StatusBadRequest, "roomId and senderId are required", nil)
		return
	}
	if !verifyIdentity(c, senderID) {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 && text == "" {
		common.ErrorResponse(c, http.StatusBadRequest, "No files uploaded", nil)
		return
	}

	msg, err := h.messages.SendFiles(c.Request.Context(), roomID, senderID, text, replyTo, files)
	if err != nil {
		common.FailFromError(c, err, "Failed to send files")
		return
	}

	middleware.CountMessageSent()
	c.JSON(http.StatusCreated, common.APIResponse{Data: msg})
}

// Edit handles PATCH /api/v1/chat/edit
func (h *ChatHandler) Edit(c *gin.Context) {
	var req domain.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !verifyIdentity(c, req.SenderID) {
		return
	}

	msg, err := h.messages.Edit(c.Request.Context(), &req)
	if err != nil {
		common.FailFromError(c, err, "Failed to edit message")
		return
	}

	common.SuccessResponse(c, msg, nil)
}

// Delete handles DELETE /api/v1/chat/message
func (h *ChatHandler) Delete(c *gin.Context) {
	var req domain.DeleteMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !verifyIdentity(c, req.SenderID) {
		return
	}

	messageID, err := h.messages.Delete(c.Request.Context(), &req)
	if err != nil {
		common.FailFromError(c, err, "Failed to delete message")
		return
	}

	common.SuccessResponse(c, gin.H{"deleted": true, "messageId": messageID}, nil)
}

// MarkSeen handles POST /api/v1/chat/mark-seen
func (h *ChatHandler) MarkSeen(c *gin.Context) {
	var req domain.MarkSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !verifyIdentity(c, req.UserID) {
		return
	}

	result, err := h.seen.MarkSeen(c.Request.Context(), req.RoomID, req.UserID, req.MessageIDs)
	if err != nil {
		common.FailFromError(c, err, "Failed to mark messages as seen")
		return
	}

	common.SuccessResponse(c, result, nil)
}

// UnseenCount handles POST /api/v1/chat/unseen-count
func (h *ChatHandler) UnseenCount(c *gin.Context) {
	var req domain.UnseenCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !verifyIdentity(c, req.UserID) {
		return
	}

	count, err := h.seen.UnseenCount(c.Request.Context(), req.RoomID, req.UserID)
	if err != nil {
		common.FailFromError(c, err, "Failed to count unseen messages")
		return
	}

	common.SuccessResponse(c, gin.H{"roomId": req.RoomID, "unseenCount": count}, nil)
}

// historyQueryLimit parses an optional limit query parameter, used by the
// GET variant of the history endpoint.
func historyQueryLimit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// HistoryByRoom handles GET /api/v1/chat/room/:roomId/history
func (h *ChatHandler) HistoryByRoom(c *gin.Context) {
	roomID := c.Param("roomId")
	userID := c.Query("userId")
	if userID == "" {
		userID = middleware.GetUserID(c)
	} else if !verifyIdentity(c, userID) {
		return
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "Invalid before timestamp", err)
			return
		}
		before = &t
	}

	messages, err := h.messages.History(c.Request.Context(), roomID, userID, historyQueryLimit(c), before)
	if err != nil {
		common.FailFromError(c, err, "Failed to load message history")
		return
	}

	common.SuccessResponse(c, messages, &common.Meta{Total: int64(len(messages))})
}
