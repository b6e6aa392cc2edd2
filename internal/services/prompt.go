package services

import (
	"fmt"
)

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildMatchPrompt creates the scoring prompt for one CV against a job description.
func (pb *PromptBuilder) BuildMatchPrompt(jobTitle, jobDescription, cvText string) string {
	return fmt.Sprintf(`You are an expert recruiter. Analyze the match between a CV and a job description.

JOB TITLE: %s
JOB DESCRIPTION:
%s

CV CONTENT:
%s

Provide your analysis in the following JSON format:
{
    "match_score": <0-1>,
    "reasoning": "<brief reasoning>",
    "matched_skills": [<list of matched skills>],
    "experience_alignment": "<excellent/good/fair/poor>",
    "overall_assessment": "<brief assessment>"
}

Respond with only the JSON, no additional text.`,
		jobTitle, jobDescription, cvText)
}
