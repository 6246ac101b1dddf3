package common

import "errors"

// Business logic errors
var (
	// General errors
	ErrNotFound   = errors.New("resource not found")
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("invalid input")

	// Chat errors
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotParticipant  = errors.New("not a room participant")
	ErrNotOwner        = errors.New("not the message owner")
	ErrEmptyMessage    = errors.New("message requires text or attachments")

	// Streaming errors
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)
