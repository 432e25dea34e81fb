package models

// Quiz is a generated quiz with its questions.
type Quiz struct {
	ID        int            `json:"id"`
	Title     string         `json:"title"`
	CourseID  int            `json:"courseId,omitempty"`
	Questions []QuizQuestion `json:"questions"`
}

// QuizQuestion is a single multiple-choice question.
type QuizQuestion struct {
	ID            int      `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// QuizAttempt is a student's submission for a quiz.
type QuizAttempt struct {
	ID          int             `json:"id"`
	QuizID      int             `json:"quizId"`
	StudentName string          `json:"studentName"`
	Score       float64         `json:"score"`
	Answers     []AttemptAnswer `json:"answers"`
}

// AttemptAnswer is the answer given to one question. QuestionID may be zero on
// older attempts, in which case answers are matched by position.
type AttemptAnswer struct {
	QuestionID int    `json:"questionId,omitempty"`
	Answer     string `json:"answer"`
}
