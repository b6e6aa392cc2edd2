package models

import "time"

// MatchRequest is the job description plus the CVs to rank against it.
type MatchRequest struct {
	JobTitle       string   `json:"job_title" validate:"required"`
	JobDescription string   `json:"job_description" validate:"required"`
	RequiredSkills []string `json:"required_skills,omitempty"`
	CVIDs          []string `json:"cv_ids" validate:"required,min=1,dive,required"`
	LLMProvider    string   `json:"llm_provider"`
	TopK           int      `json:"top_k" validate:"min=1"`
}

type MatchResult struct {
	CVID                string   `json:"cv_id"`
	Filename            string   `json:"filename"`
	MatchScore          float64  `json:"match_score"`
	Reasoning           string   `json:"reasoning"`
	MatchedSkills       []string `json:"matched_skills"`
	ExperienceAlignment string   `json:"experience_alignment"`
	OverallAssessment   string   `json:"overall_assessment"`
}

// BatchResult holds the ranked matches, sorted by MatchScore descending.
type BatchResult struct {
	JobTitle     string        `json:"job_title"`
	TotalMatched int           `json:"total_matched"`
	Matches      []MatchResult `json:"matches"`
	Timestamp    time.Time     `json:"timestamp"`
}
