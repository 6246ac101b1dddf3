package handler

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pairwave/chat-backend/internal/common"
	"github.com/pairwave/chat-backend/internal/domain"
	"github.com/pairwave/chat-backend/internal/middleware"
	"github.com/pairwave/chat-backend/internal/repository"
	"github.com/pairwave/chat-backend/pkg/httprange"
	"github.com/pairwave/chat-backend/pkg/logger"
	"github.com/pairwave/chat-backend/pkg/storage"
)

// StreamHandler serves attachment bytes with byte-range support
type StreamHandler struct {
	rooms repository.RoomRepository
	blobs storage.Blob
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler(rooms repository.RoomRepository, blobs storage.Blob) *StreamHandler {
	return &StreamHandler{rooms: rooms, blobs: blobs}
}

// openFunc hands back a reader over [offset, offset+length) of the content.
// length < 0 reads to the end.
type openFunc func(offset, length int64) (io.ReadCloser, error)

// ServeBlob handles GET /api/v1/file/:blobRef
func (h *StreamHandler) ServeBlob(c *gin.Context) {
	ref := c.Param("blobRef")
	if ref == "" || strings.ContainsAny(ref, "/\\") || strings.Contains(ref, "..") {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid blob reference", nil)
		return
	}

	ctx := c.Request.Context()
	size, err := h.blobs.Stat(ctx, ref)
	if err != nil {
		if err == storage.ErrNotFound {
			common.ErrorResponse(c, http.StatusNotFound, "File not found", nil)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to stat file", err)
		return
	}

	// Content behind a blob ref never changes once written
	c.Header("Cache-Control", "public, max-age=31536000, immutable")

	h.stream(c, streamInfo{
		size:        size,
		contentType: storage.ContentTypeForRef(ref),
		filename:    ref,
	}, func(offset, length int64) (io.ReadCloser, error) {
		return h.blobs.Open(ctx, ref, offset, length)
	})
}

// ServeAttachment handles GET /api/v1/chat/room/:roomId/attachment/:attachmentId
func (h *StreamHandler) ServeAttachment(c *gin.Context) {
	roomID := c.Param("roomId")
	attachmentID := c.Param("attachmentId")

	ctx := c.Request.Context()

	viewer := c.Query("userId")
	if tokenUser := middleware.GetUserID(c); tokenUser != "" {
		if viewer != "" && viewer != tokenUser {
			common.ErrorResponse(c, http.StatusForbidden, "Identity does not match the authenticated user", nil)
			return
		}
		viewer = tokenUser
	}
	if viewer != "" {
		room, err := h.rooms.GetRoom(ctx, roomID)
		if err != nil {
			common.FailFromError(c, err, "Failed to load chat room")
			return
		}
		if !room.IsParticipant(viewer) {
			common.ErrorResponse(c, http.StatusForbidden, "Not a participant of this chat room", nil)
			return
		}
	}

	att, err := h.rooms.GetAttachment(ctx, roomID, attachmentID)
	if err != nil {
		common.FailFromError(c, err, "Failed to load attachment")
		return
	}

	switch att.StorageKind {
	case domain.StorageRemote:
		c.Redirect(http.StatusFound, att.URL)

	case domain.StorageBlob:
		size, err := h.blobs.Stat(ctx, att.BlobRef)
		if err != nil {
			if err == storage.ErrNotFound {
				common.ErrorResponse(c, http.StatusNotFound, "Attachment content not found", nil)
				return
			}
			common.ErrorResponse(c, http.StatusInternalServerError, "Failed to stat attachment", err)
			return
		}
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		h.stream(c, streamInfo{
			size:        size,
			contentType: att.MimeType,
			filename:    att.OriginalName,
		}, func(offset, length int64) (io.ReadCloser, error) {
			return h.blobs.Open(ctx, att.BlobRef, offset, length)
		})

	case domain.StorageLocal:
		h.streamLocalFile(c, att)

	default:
		common.ErrorResponse(c, http.StatusInternalServerError, "Unknown attachment storage kind", nil)
	}
}

// streamLocalFile serves a legacy on-disk attachment
func (h *StreamHandler) streamLocalFile(c *gin.Context, att *domain.Attachment) {
	f, err := os.Open(att.LocalPath)
	if err != nil {
		if os.IsNotExist(err) {
			common.ErrorResponse(c, http.StatusNotFound, "Attachment content not found", nil)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to open attachment", err)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to stat attachment", err)
		return
	}

	h.stream(c, streamInfo{
		size:        fi.Size(),
		contentType: att.MimeType,
		filename:    att.OriginalName,
	}, func(offset, length int64) (io.ReadCloser, error) {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
		var r io.Reader = f
		if length >= 0 {
			r = io.LimitReader(f, length)
		}
		return io.NopCloser(r), nil
	})
}

type streamInfo struct {
	size        int64
	contentType string
	filename    string
}

// stream writes the response for a full (200) or ranged (206) request. A
// Range header that cannot be parsed or satisfied yields 416 with the
// total size in Content-Range.
func (h *StreamHandler) stream(c *gin.Context, info streamInfo, open openFunc) {
	contentType := info.contentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", dispositionFor(contentType, info.filename, c.Query("download") == "1"))

	var (
		offset int64
		length = info.size
		status = http.StatusOK
	)

	if rangeHeader := c.GetHeader("Range"); rangeHeader != "" {
		rng, err := httprange.Parse(rangeHeader, info.size)
		if err != nil {
			c.Header("Content-Range", httprange.Unsatisfiable(info.size))
			common.FailFromError(c, common.ErrRangeNotSatisfiable, "Requested range not satisfiable")
			return
		}
		offset = rng.Start
		length = rng.Length()
		status = http.StatusPartialContent
		c.Header("Content-Range", rng.ContentRange(info.size))
	}

	c.Header("Content-Length", strconv.FormatInt(length, 10))

	if c.Request.Method == http.MethodHead {
		c.Status(status)
		return
	}

	reader, err := open(offset, length)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to open content", err)
		return
	}
	defer reader.Close()

	c.Status(status)
	written, err := io.CopyN(c.Writer, reader, length)
	middleware.CountAttachmentBytes(written)
	if err != nil && err != io.EOF {
		// Headers are already out; the most common cause is the client
		// dropping the connection mid-transfer.
		logger.GetLogger().Debug().Err(err).Str("path", c.Request.URL.Path).Msg("attachment stream interrupted")
	}
}

// dispositionFor picks inline viewing for browser-renderable types unless
// a download is explicitly requested.
func dispositionFor(contentType, filename string, forceDownload bool) string {
	kind := "attachment"
	if !forceDownload && (strings.HasPrefix(contentType, "image/") || contentType == "application/pdf") {
		kind = "inline"
	}
	if filename == "" {
		return kind
	}
	if v := mime.FormatMediaType(kind, map[string]string{"filename": filename}); v != "" {
		return v
	}
	return fmt.Sprintf("%s; filename=%q", kind, filename)
}
