package domain

import "time"

// StorageKind discriminates how attachment bytes are resolved
type StorageKind string

const (
	// StorageLocal is a legacy file under the uploads directory
	StorageLocal StorageKind = "local"
	// StorageRemote is an externally hosted URL
	StorageRemote StorageKind = "remote"
	// StorageBlob is a ref into the blob store
	StorageBlob StorageKind = "blob"
)

// Attachment references one binary payload of a message. Binary content is
// immutable once created; only message deletion removes it.
type Attachment struct {
	ID              string      `gorm:"column:id;primaryKey;size:36" json:"id"`
	MessageID       string      `gorm:"column:message_id;size:36;index" json:"-"`
	OriginalName    string      `gorm:"column:original_name;size:255" json:"originalName"`
	MimeType        string      `gorm:"column:mime_type;size:100" json:"mimeType"`
	Size            int64       `gorm:"column:size" json:"size"`
	StorageKind     StorageKind `gorm:"column:storage_kind;size:20" json:"storageKind"`
	BlobRef         string      `gorm:"column:blob_ref;size:255;index" json:"blobRef,omitempty"`
	URL             string      `gorm:"column:url;size:500" json:"url,omitempty"`
	LocalPath       string      `gorm:"column:local_path;size:500" json:"-"`
	Width           *int        `gorm:"column:width" json:"width,omitempty"`
	Height          *int        `gorm:"column:height" json:"height,omitempty"`
	DurationSeconds *float64    `gorm:"column:duration_seconds" json:"durationSeconds,omitempty"`
	ThumbnailURL    string      `gorm:"column:thumbnail_url;size:500" json:"thumbnailUrl,omitempty"`
	CreatedAt       time.Time   `json:"-"`
}

// TableName returns the table name
func (Attachment) TableName() string {
	return "chat_attachments"
}
