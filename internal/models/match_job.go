package models

import (
	"time"

	"github.com/google/uuid"
)

type MatchJobStatus string

const (
	StatusQueued     MatchJobStatus = "queued"
	StatusProcessing MatchJobStatus = "processing"
	StatusCompleted  MatchJobStatus = "completed"
	StatusFailed     MatchJobStatus = "failed"
)

// MatchJob is an asynchronous batch match. Request and Result are JSON
// encoded MatchRequest and BatchResult values.
type MatchJob struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobTitle     string         `gorm:"type:text" json:"job_title"`
	LLMProvider  string         `gorm:"type:text" json:"llm_provider"`
	Request      string         `gorm:"type:text;not null" json:"-"`
	Status       MatchJobStatus `gorm:"type:text;not null;default:'queued';index" json:"status"`
	Result       *string        `gorm:"type:text" json:"-"`
	ErrorMessage *string        `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MatchJob) TableName() string {
	return "match_jobs"
}
