package model

import "errors"

// ErrAssessmentNotFound is returned when the LMS has no such assessment.
var ErrAssessmentNotFound = errors.New("assessment not found")

// Assessment is loaded once per session and treated as read-only.
type Assessment struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// AssessmentRecord is the normalized LMS response for a single assessment,
// before its question list is decoded.
type AssessmentRecord struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	SerializedQuestions string `json:"serialized_questions"`
}

// Result is the payload stored by the LMS result endpoint.
type Result struct {
	AssessmentID string `json:"assessmentId"`
	UserID       string `json:"userId"`
	Score        int    `json:"score"`
}
