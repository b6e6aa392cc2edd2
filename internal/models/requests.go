package models

import "time"

type JDRequest struct {
	JobTitle       string   `json:"job_title"`
	JobDescription string   `json:"job_description"`
	RequiredSkills []string `json:"required_skills,omitempty"`
}

type MatchingRequest struct {
	JD          JDRequest `json:"jd"`
	CVIDs       []string  `json:"cv_ids"`
	LLMProvider string    `json:"llm_provider"`
	TopK        int       `json:"top_k"`
}

// ToMatchRequest fills the provider and top_k defaults.
func (r MatchingRequest) ToMatchRequest(defaultProvider string, defaultTopK int) MatchRequest {
	provider := r.LLMProvider
	if provider == "" {
		provider = defaultProvider
	}

	topK := r.TopK
	if topK == 0 {
		topK = defaultTopK
	}

	return MatchRequest{
		JobTitle:       r.JD.JobTitle,
		JobDescription: r.JD.JobDescription,
		RequiredSkills: r.JD.RequiredSkills,
		CVIDs:          r.CVIDs,
		LLMProvider:    provider,
		TopK:           topK,
	}
}

type CVUploadResponse struct {
	Message            string `json:"message"`
	CVID               string `json:"cv_id"`
	Filename           string `json:"filename"`
	EmbeddingDimension int    `json:"embedding_dimension"`
}

type CVListResponse struct {
	Total int          `json:"total"`
	CVs   []CVListItem `json:"cvs"`
}

type CVListItem struct {
	CVID      string    `json:"cv_id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

type EmbeddingRequest struct {
	Text string `json:"text"`
}

type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
}

type MatchJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type MatchJobResultResponse struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	Result       *BatchResult `json:"result,omitempty"`
	ErrorMessage *string      `json:"error_message,omitempty"`
}
