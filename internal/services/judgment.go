package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

type JudgmentKind int

const (
	// JudgmentParsed means the reply matched the expected schema.
	JudgmentParsed JudgmentKind = iota
	// JudgmentDegraded means the reply was unusable and the fallback was applied.
	JudgmentDegraded
)

func (k JudgmentKind) String() string {
	if k == JudgmentDegraded {
		return "degraded"
	}
	return "parsed"
}

const (
	degradedMatchScore          = 0.5
	degradedExperienceAlignment = "unknown"
	degradedOverallAssessment   = "Analysis incomplete"
)

// MatchJudgment is the LLM's structured verdict on a CV.
type MatchJudgment struct {
	MatchScore          float64  `json:"match_score"`
	Reasoning           string   `json:"reasoning"`
	MatchedSkills       []string `json:"matched_skills"`
	ExperienceAlignment string   `json:"experience_alignment"`
	OverallAssessment   string   `json:"overall_assessment"`
}

// Judgment is either a parsed verdict or the degraded fallback built from
// the raw reply.
type Judgment struct {
	Kind JudgmentKind
	MatchJudgment
	Raw string
}

// judgmentSchema uses pointers so missing keys can be told apart from zero values.
type judgmentSchema struct {
	MatchScore          *float64  `json:"match_score"`
	Reasoning           *string   `json:"reasoning"`
	MatchedSkills       *[]string `json:"matched_skills"`
	ExperienceAlignment *string   `json:"experience_alignment"`
	OverallAssessment   *string   `json:"overall_assessment"`
}

// ParseJudgment never fails: any reply that does not satisfy the schema
// yields the degraded judgment.
func ParseJudgment(raw string) Judgment {
	parsed, err := parseJudgmentStrict(raw)
	if err != nil {
		return degradedJudgment(raw)
	}
	return Judgment{Kind: JudgmentParsed, MatchJudgment: parsed, Raw: raw}
}

func degradedJudgment(raw string) Judgment {
	return Judgment{
		Kind: JudgmentDegraded,
		MatchJudgment: MatchJudgment{
			MatchScore:          degradedMatchScore,
			Reasoning:           raw,
			MatchedSkills:       []string{},
			ExperienceAlignment: degradedExperienceAlignment,
			OverallAssessment:   degradedOverallAssessment,
		},
		Raw: raw,
	}
}

func parseJudgmentStrict(raw string) (MatchJudgment, error) {
	var schema judgmentSchema
	if err := json.Unmarshal([]byte(extractJSON(raw)), &schema); err != nil {
		return MatchJudgment{}, fmt.Errorf("failed to unmarshal judgment: %w", err)
	}

	switch {
	case schema.MatchScore == nil:
		return MatchJudgment{}, fmt.Errorf("missing match_score")
	case schema.Reasoning == nil:
		return MatchJudgment{}, fmt.Errorf("missing reasoning")
	case schema.MatchedSkills == nil:
		return MatchJudgment{}, fmt.Errorf("missing matched_skills")
	case schema.ExperienceAlignment == nil:
		return MatchJudgment{}, fmt.Errorf("missing experience_alignment")
	case schema.OverallAssessment == nil:
		return MatchJudgment{}, fmt.Errorf("missing overall_assessment")
	}

	score := *schema.MatchScore
	if math.IsNaN(score) || score < 0 || score > 1 {
		return MatchJudgment{}, fmt.Errorf("match_score %v out of range", score)
	}

	return MatchJudgment{
		MatchScore:          score,
		Reasoning:           *schema.Reasoning,
		MatchedSkills:       *schema.MatchedSkills,
		ExperienceAlignment: *schema.ExperienceAlignment,
		OverallAssessment:   *schema.OverallAssessment,
	}, nil
}

// extractJSON pulls the JSON object out of a reply that may be wrapped in
// markdown fences or surrounded by prose.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1]
	}

	return strings.TrimSpace(text)
}
