package dto

import "time"

// UploadResult describes where an upload ended up.
type UploadResult struct {
	PictureID uint64 `json:"picture_id"`
	Hash      string `json:"hash"`
	Created   bool   `json:"created"`
	Path      string `json:"path"`
}

type PictureResponse struct {
	ID          uint64     `json:"id"`
	Hash        string     `json:"hash"`
	Path        string     `json:"path"`
	RefCount    int        `json:"ref_count"`
	Status      string     `json:"status"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type ProductResponse struct {
	ID        uint64  `json:"id"`
	Name      string  `json:"name"`
	PictureID *uint64 `json:"picture_id,omitempty"`
	Created   bool    `json:"picture_created"`
}

type SweepResponse struct {
	Deleted int  `json:"deleted"`
	Queued  bool `json:"queued"`
}
