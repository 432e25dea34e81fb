package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/patrickwarner/flagdesk/internal/models"
)

// Options size the generated data set.
type Options struct {
	Students        int
	Faculty         int
	FlagsPerStudent int
}

// Result lists what Populate inserted.
type Result struct {
	Users         []models.User
	Flags         []models.FlaggedItem
	Conversations int
	Quizzes       int
}

var (
	firstNames = []string{"Ava", "Noah", "Mia", "Liam", "Zoe", "Ezra", "Iris", "Kai", "Nora", "Omar", "Ruth", "Theo"}
	lastNames  = []string{"Okafor", "Lin", "Garcia", "Novak", "Patel", "Reyes", "Sato", "Walsh"}
	reasons    = []string{
		"tutor gave the wrong formula",
		"explanation skipped a step",
		"answer contradicts the textbook",
		"response was off topic",
		"example uses the wrong units",
		"tone was discouraging",
	}
	topics = []string{"derivatives", "limits", "vectors", "probability", "recursion", "photosynthesis"}
	// contentTypes are flagged without a dedicated detail view.
	contentTypes = []models.FlagType{models.FlagTypeFlashcard, models.FlagTypeReport, models.FlagTypeMindmap}
	priorities   = []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, ""}
)

type generator struct {
	r   *rand.Rand
	now time.Time
}

func newGenerator(seed int64, now time.Time) *generator {
	return &generator{r: rand.New(rand.NewSource(seed)), now: now}
}

func (g *generator) pick(list []string) string { return list[g.r.Intn(len(list))] }

func (g *generator) name() string {
	return g.pick(firstNames) + " " + g.pick(lastNames)
}

// Populate inserts one admin, the faculty roster and students, each student
// with a conversation, a quiz attempt and FlagsPerStudent flags spread across
// every lifecycle state.
func (g *generator) Populate(ctx context.Context, store models.FlagStore, opts Options) (Result, error) {
	var res Result
	insertUser := func(name, role string) (models.User, error) {
		u := models.User{Name: name, Role: role}
		if err := store.InsertUser(ctx, &u); err != nil {
			return u, err
		}
		res.Users = append(res.Users, u)
		return u, nil
	}

	if _, err := insertUser("Ada Admin", models.RoleAdmin); err != nil {
		return res, err
	}
	var roster []models.User
	for i := 0; i < opts.Faculty; i++ {
		u, err := insertUser("Dr. "+g.pick(lastNames), models.RoleFaculty)
		if err != nil {
			return res, err
		}
		roster = append(roster, u)
	}

	quizzes := make([]models.Quiz, 0, 2)
	for _, topic := range []string{g.pick(topics), g.pick(topics)} {
		q := g.quiz(topic)
		if err := store.InsertQuiz(ctx, &q); err != nil {
			return res, err
		}
		quizzes = append(quizzes, q)
		res.Quizzes++
	}

	for i := 0; i < opts.Students; i++ {
		stu, err := insertUser(g.name(), models.RoleStudent)
		if err != nil {
			return res, err
		}
		convID := 1000 + stu.ID
		msgs, err := g.conversation(ctx, store, convID)
		if err != nil {
			return res, err
		}
		res.Conversations++

		quiz := quizzes[g.r.Intn(len(quizzes))]
		attempt := g.attempt(quiz, stu.Name)
		if err := store.InsertQuizAttempt(ctx, &attempt); err != nil {
			return res, err
		}

		for n := 0; n < opts.FlagsPerStudent; n++ {
			f := g.flag(stu, convID, msgs, quiz, attempt, n)
			g.advance(&f, roster)
			if err := store.InsertFlag(ctx, &f); err != nil {
				return res, err
			}
			res.Flags = append(res.Flags, f)
		}
	}
	return res, nil
}

func (g *generator) conversation(ctx context.Context, store models.FlagStore, convID int) ([]models.Message, error) {
	start := g.now.Add(-time.Duration(24+g.r.Intn(24*14)) * time.Hour)
	topic := g.pick(topics)
	msgs := make([]models.Message, 0, 6)
	for i := 0; i < 6; i++ {
		m := models.Message{ConversationID: convID, SentAt: start.Add(time.Duration(i) * time.Minute)}
		if i%2 == 0 {
			m.Sender = "student"
			m.Content = fmt.Sprintf("Can you explain %s again? (%d)", topic, i/2+1)
		} else {
			m.Sender = "assistant"
			m.Content = fmt.Sprintf("Sure, here is step %d for %s.", i/2+1, topic)
		}
		if err := store.InsertMessage(ctx, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (g *generator) quiz(topic string) models.Quiz {
	q := models.Quiz{Title: "Quick check: " + topic}
	for i := 1; i <= 4; i++ {
		opts := []string{"A", "B", "C", "D"}
		q.Questions = append(q.Questions, models.QuizQuestion{
			ID:            i,
			Prompt:        fmt.Sprintf("%s question %d", topic, i),
			Options:       opts,
			CorrectAnswer: opts[g.r.Intn(len(opts))],
		})
	}
	return q
}

func (g *generator) attempt(q models.Quiz, studentName string) models.QuizAttempt {
	a := models.QuizAttempt{QuizID: q.ID, StudentName: studentName}
	correct := 0
	for _, question := range q.Questions {
		ans := question.Options[g.r.Intn(len(question.Options))]
		if ans == question.CorrectAnswer {
			correct++
		}
		a.Answers = append(a.Answers, models.AttemptAnswer{QuestionID: question.ID, Answer: ans})
	}
	a.Score = float64(correct) / float64(len(q.Questions)) * 100
	return a
}

// flag alternates message and quiz flags, with an occasional content flag.
func (g *generator) flag(stu models.User, convID int, msgs []models.Message, q models.Quiz, a models.QuizAttempt, n int) models.FlaggedItem {
	at := msgs[len(msgs)-1].SentAt.Add(time.Duration(g.r.Intn(120)) * time.Minute)
	f := models.NewPendingFlag(0, g.pick(reasons), stu.Name, at)
	f.Priority = priorities[g.r.Intn(len(priorities))]

	switch {
	case g.r.Intn(6) == 0:
		f.Type = contentTypes[g.r.Intn(len(contentTypes))]
		f.ContentID = models.IntPtr(500 + g.r.Intn(500))
		f.Metadata = models.ContentMetadata{
			FlaggedByID: stu.ID,
			Extra:       map[string]json.RawMessage{"topic": json.RawMessage(fmt.Sprintf("%q", g.pick(topics)))},
		}
	case n%2 == 0:
		// Flag an assistant reply.
		msg := msgs[1+2*g.r.Intn(len(msgs)/2)]
		f.ConversationID = models.IntPtr(convID)
		f.MessageID = models.IntPtr(msg.ID)
		f.Metadata = models.MessageMetadata{FlaggedByID: stu.ID}
	default:
		f.Type = models.FlagTypeQuiz
		f.ContentID = models.IntPtr(q.ID)
		f.Metadata = models.QuizMetadata{QuizID: q.ID, AttemptID: a.ID, FlaggedByID: stu.ID}
	}
	return f
}

// advance moves roughly a third of the flags to Assigned and a third to
// Resolved, using the same transitions the API applies.
func (g *generator) advance(f *models.FlaggedItem, roster []models.User) {
	if len(roster) == 0 {
		return
	}
	step := g.r.Intn(3)
	if step == 0 {
		return
	}
	fac := roster[g.r.Intn(len(roster))]
	if err := f.Assign(fac.ID, fac.Name); err != nil {
		return
	}
	if step == 1 {
		return
	}
	p := models.ResolutionPayload{Type: models.ResolutionFeedback, Feedback: "Reviewed and added to the knowledge base.", Timestamp: f.FlaggedAt.Add(time.Hour)}
	if g.r.Intn(2) == 0 {
		fix := "Corrected explanation attached."
		p.Type = models.ResolutionCorrected
		p.CorrectedResponse = &fix
	}
	notes, err := p.Encode()
	if err != nil {
		return
	}
	_ = f.Resolve(fac.ID, fac.Name, notes, p.Timestamp, false)
}
