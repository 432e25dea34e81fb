package detail

import (
	"strings"

	"github.com/patrickwarner/flagdesk/internal/models"
)

// QuestionReview pairs a question with the student's answer.
type QuestionReview struct {
	Question models.QuizQuestion
	Answer   string
	Answered bool
	Correct  bool
}

// Reconcile matches attempt answers to quiz questions. Answers carrying a
// question id are matched by id; when none of them do, answers are matched by
// position. A nil attempt yields unanswered questions.
func Reconcile(quiz *models.Quiz, attempt *models.QuizAttempt) []QuestionReview {
	if quiz == nil {
		return nil
	}
	out := make([]QuestionReview, len(quiz.Questions))
	for i, q := range quiz.Questions {
		out[i].Question = q
	}
	if attempt == nil {
		return out
	}

	byID := make(map[int]string, len(attempt.Answers))
	for _, a := range attempt.Answers {
		if a.QuestionID != 0 {
			byID[a.QuestionID] = a.Answer
		}
	}

	for i := range out {
		var (
			ans string
			ok  bool
		)
		if len(byID) > 0 {
			ans, ok = byID[out[i].Question.ID]
		} else if i < len(attempt.Answers) {
			ans, ok = attempt.Answers[i].Answer, true
		}
		if !ok {
			continue
		}
		out[i].Answer = ans
		out[i].Answered = strings.TrimSpace(ans) != ""
		out[i].Correct = out[i].Answered && sameAnswer(ans, out[i].Question.CorrectAnswer)
	}
	return out
}

func sameAnswer(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Score returns the number of correct answers and the question count.
func Score(reviews []QuestionReview) (correct, total int) {
	for _, r := range reviews {
		if r.Correct {
			correct++
		}
	}
	return correct, len(reviews)
}
