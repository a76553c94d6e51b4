package lms

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/edusync/proctor/internal/model"
)

// The LMS serializes with inconsistent casing depending on the endpoint, so
// fields are looked up case-insensitively under each of their known names.
var (
	idKeys        = []string{"assessmentId", "id"}
	titleKeys     = []string{"title"}
	questionsKeys = []string{"questions", "serializedQuestions"}
)

var errNotObject = errors.New("response is not a JSON object")

func decodeAssessment(raw []byte) (*model.AssessmentRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, errNotObject
	}

	folded := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		folded[strings.ToLower(k)] = v
	}

	return &model.AssessmentRecord{
		ID:                  scalar(lookup(folded, idKeys)),
		Title:               scalar(lookup(folded, titleKeys)),
		SerializedQuestions: questionsText(lookup(folded, questionsKeys)),
	}, nil
}

func lookup(folded map[string]json.RawMessage, names []string) json.RawMessage {
	for _, n := range names {
		if v, ok := folded[strings.ToLower(n)]; ok && !isNull(v) {
			return v
		}
	}
	return nil
}

// scalar renders a JSON string or number as text.
func scalar(v json.RawMessage) string {
	if v == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

// questionsText returns the serialized question list. The LMS normally
// stores it as a JSON string; an inline array is passed through as is.
func questionsText(v json.RawMessage) string {
	if v == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return string(trimmed)
	}
	return ""
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}
