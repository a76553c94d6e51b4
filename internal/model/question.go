package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/edusync/proctor/internal/validator"
)

// Unanswered marks a question with no recorded answer. It never equals a
// valid option index.
const Unanswered = -1

// ErrMalformedQuestions is returned when a serialized question list cannot be used.
var ErrMalformedQuestions = errors.New("malformed question list")

// Question is a single multiple-choice question. Immutable once loaded.
type Question struct {
	QuestionText       string   `json:"questionText"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
}

// IsCorrect reports whether option is the correct answer. The Unanswered
// sentinel and any out-of-range value are never correct.
func (q Question) IsCorrect(option int) bool {
	return option >= 0 && option < len(q.Options) && option == q.CorrectOptionIndex
}

// QuestionView is a question as shown to the student (no answer key).
type QuestionView struct {
	Index        int      `json:"index"`
	QuestionText string   `json:"question_text"`
	Options      []string `json:"options"`
}

// questionRecord is the wire shape stored by the LMS authoring form.
// The correct answer arrives as correctOptionIndex or correctOption,
// either as a number or a numeric string.
type questionRecord struct {
	QuestionText       string   `json:"questionText" validate:"required"`
	Options            []string `json:"options" validate:"min=1,dive,required"`
	CorrectOptionIndex *flexInt `json:"correctOptionIndex"`
	CorrectOption      *flexInt `json:"correctOption"`
}

// DecodeQuestions parses the serialized question list embedded in an
// assessment. Any syntax or validation failure yields an empty sequence.
func DecodeQuestions(serialized string) ([]Question, error) {
	var records []questionRecord
	if err := json.Unmarshal([]byte(serialized), &records); err != nil {
		return []Question{}, fmt.Errorf("%w: %v", ErrMalformedQuestions, err)
	}

	questions := make([]Question, 0, len(records))
	for i, rec := range records {
		if fields := validator.Struct(rec); fields != nil {
			return []Question{}, fmt.Errorf("%w: question %d: %v", ErrMalformedQuestions, i, fields)
		}

		correct := rec.CorrectOptionIndex
		if correct == nil {
			correct = rec.CorrectOption
		}
		if correct == nil {
			return []Question{}, fmt.Errorf("%w: question %d: missing correct option", ErrMalformedQuestions, i)
		}
		idx := int(*correct)
		if idx < 0 || idx >= len(rec.Options) {
			return []Question{}, fmt.Errorf("%w: question %d: correct option %d out of range", ErrMalformedQuestions, i, idx)
		}

		questions = append(questions, Question{
			QuestionText:       rec.QuestionText,
			Options:            append([]string(nil), rec.Options...),
			CorrectOptionIndex: idx,
		})
	}
	return questions, nil
}

// flexInt accepts 2 and "2".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("option index %q is not a number", s)
		}
		*f = flexInt(n)
		return nil
	}

	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}
