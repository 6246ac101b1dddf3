package migration

import (
	"gorm.io/gorm"

	"github.com/pairwave/chat-backend/internal/domain"
)

// Run executes AutoMigrate for the chat tables. Tables and indexes are
// created when missing and left untouched otherwise.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Room{},
		&domain.Message{},
		&domain.Attachment{},
		&domain.MessageSeen{},
	)
}
