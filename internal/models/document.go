package models

import (
	"time"
)

// CVDocument holds the plain text of an ingested CV. The vector for the same
// CV lives in the vector index under the same ID.
type CVDocument struct {
	ID        string    `gorm:"type:text;primaryKey" json:"cv_id"`
	Filename  string    `gorm:"type:text" json:"filename"`
	Content   string    `gorm:"type:text" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CVDocument) TableName() string {
	return "cv_documents"
}
