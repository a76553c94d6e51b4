package session

import "github.com/edusync/proctor/internal/model"

// CorrectCount counts questions whose recorded answer matches the key.
// Missing entries and the Unanswered sentinel never match.
func CorrectCount(questions []model.Question, answers map[int]int) int {
	correct := 0
	for i, q := range questions {
		if ans, ok := answers[i]; ok && q.IsCorrect(ans) {
			correct++
		}
	}
	return correct
}

// PercentScore is round-half-up(100*correct/total) in integer arithmetic,
// so 1/3 is 33, 2/3 is 67 and 1/8 is 13. A zero total scores 0.
func PercentScore(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}
