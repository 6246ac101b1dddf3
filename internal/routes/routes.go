package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/pairwave/chat-backend/internal/handler"
	"github.com/pairwave/chat-backend/internal/middleware"
	"github.com/pairwave/chat-backend/pkg/jwt"
)

// Setup configures all API routes
func Setup(
	router *gin.Engine,
	chatHandler *handler.ChatHandler,
	streamHandler *handler.StreamHandler,
	wsHandler *handler.WSHandler,
	jwtManager *jwt.Manager,
) {
	// Token identity is optional on the chat surface; when present it is
	// cross-checked against the identity claimed in the request body.
	api := router.Group("/api/v1", middleware.OptionalJWTAuth(jwtManager))

	chat := api.Group("/chat")
	{
		chat.POST("/room", chatHandler.CreateRoom)
		chat.POST("/rooms", chatHandler.ListRooms)
		chat.POST("/history", chatHandler.History)
		chat.GET("/room/:roomId/history", chatHandler.HistoryByRoom)

		chat.POST("/message", chatHandler.Send)
		chat.POST("/send-file", chatHandler.SendFile)
		chat.PATCH("/edit", chatHandler.Edit)
		chat.DELETE("/message", chatHandler.Delete)

		chat.POST("/mark-seen", chatHandler.MarkSeen)
		chat.POST("/unseen-count", chatHandler.UnseenCount)

		chat.GET("/room/:roomId/attachment/:attachmentId", streamHandler.ServeAttachment)
		chat.GET("/ws", wsHandler.Connect)
	}

	api.GET("/file/:blobRef", streamHandler.ServeBlob)
	api.HEAD("/file/:blobRef", streamHandler.ServeBlob)
}
