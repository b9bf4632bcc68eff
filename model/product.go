package model

import "time"

// Product is the catalogue entry that holds a reference on a picture.
type Product struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	Name string `gorm:"column:name;size:255;not null" json:"name"`

	PictureID *uint64 `gorm:"column:picture_id;index" json:"picture_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Product) TableName() string {
	return "product"
}
