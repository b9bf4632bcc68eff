package model

import "time"

// Picture states. A picture is pending from admission until its processed
// file is committed.
const (
	PictureStatusPending   = "pending"
	PictureStatusProcessed = "processed"
)

type Picture struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	Hash string `gorm:"column:hash;size:128;uniqueIndex;not null" json:"hash"`
	Path string `gorm:"column:path;size:2048;not null" json:"path"`

	RefCount int `gorm:"column:ref_count;not null;default:1" json:"ref_count"`

	Status      string     `gorm:"column:status;size:16;index;not null;default:pending" json:"status"`
	ProcessedAt *time.Time `gorm:"column:processed_at;index" json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Picture) TableName() string {
	return "picture"
}
