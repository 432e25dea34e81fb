// Package detail dispatches a flag to the view matching its content type.
package detail

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/client"
	"github.com/patrickwarner/flagdesk/internal/models"
)

// Kind names a view variant.
type Kind string

const (
	KindMessage     Kind = "message"
	KindQuiz        Kind = "quiz"
	KindUnsupported Kind = "unsupported"
)

// View is one of MessageView, QuizView or UnsupportedView.
type View interface {
	Kind() Kind
	Item() models.FlaggedItem
}

// MessageView shows the flagged message within its conversation. Unavailable is
// set when the message or conversation no longer exists.
type MessageView struct {
	Flag        models.FlaggedItem
	Context     *models.MessageContext
	Unavailable bool
}

// QuizView shows the quiz questions next to the student's answers.
type QuizView struct {
	Flag        models.FlaggedItem
	Quiz        *models.Quiz
	Attempt     *models.QuizAttempt
	Questions   []QuestionReview
	Unavailable bool
}

// UnsupportedView is terminal for flag types without a dedicated view.
type UnsupportedView struct {
	Flag models.FlaggedItem
}

func (MessageView) Kind() Kind     { return KindMessage }
func (QuizView) Kind() Kind        { return KindQuiz }
func (UnsupportedView) Kind() Kind { return KindUnsupported }

func (v MessageView) Item() models.FlaggedItem     { return v.Flag }
func (v QuizView) Item() models.FlaggedItem        { return v.Flag }
func (v UnsupportedView) Item() models.FlaggedItem { return v.Flag }

// API is the subset of the repository client used by the router.
type API interface {
	GetFlagByID(ctx context.Context, id int) (*models.FlaggedItem, error)
	GetMessageContext(ctx context.Context, conversationID, messageID, windowSize int) (*models.MessageContext, error)
	GetQuiz(ctx context.Context, id int) (*models.Quiz, error)
	GetQuizAttempt(ctx context.Context, id int) (*models.QuizAttempt, error)
}

// Router holds no state between calls.
type Router struct {
	api    API
	window int
	logger *zap.Logger
}

// NewRouter creates a Router that requests window messages on each side of a
// flagged message.
func NewRouter(api API, window int, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{api: api, window: window, logger: logger}
}

// Route fetches the flag and builds the view for its type.
func (r *Router) Route(ctx context.Context, flagID int) (View, error) {
	flag, err := r.api.GetFlagByID(ctx, flagID)
	if err != nil {
		return nil, err
	}
	switch flag.Type {
	case models.FlagTypeMessage:
		return r.messageView(ctx, *flag)
	case models.FlagTypeQuiz:
		return r.quizView(ctx, *flag)
	}
	return UnsupportedView{Flag: *flag}, nil
}

func (r *Router) messageView(ctx context.Context, flag models.FlaggedItem) (View, error) {
	v := MessageView{Flag: flag}
	if flag.ConversationID == nil || flag.MessageID == nil {
		v.Unavailable = true
		return v, nil
	}
	mc, err := r.api.GetMessageContext(ctx, *flag.ConversationID, *flag.MessageID, r.window)
	if client.IsNotFound(err) {
		r.logger.Debug("flagged message gone", zap.Int("flag_id", flag.ID), zap.Error(err))
		v.Unavailable = true
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("message context for flag %d: %w", flag.ID, err)
	}
	v.Context = mc
	return v, nil
}

func (r *Router) quizView(ctx context.Context, flag models.FlaggedItem) (View, error) {
	v := QuizView{Flag: flag}
	meta, _ := flag.QuizMeta()
	quizID := meta.QuizID
	if quizID == 0 && flag.ContentID != nil {
		quizID = *flag.ContentID
	}
	if quizID == 0 {
		v.Unavailable = true
		return v, nil
	}
	quiz, err := r.api.GetQuiz(ctx, quizID)
	if client.IsNotFound(err) {
		v.Unavailable = true
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quiz %d for flag %d: %w", quizID, flag.ID, err)
	}
	v.Quiz = quiz

	if meta.AttemptID != 0 {
		attempt, err := r.api.GetQuizAttempt(ctx, meta.AttemptID)
		switch {
		case client.IsNotFound(err):
			r.logger.Debug("quiz attempt gone", zap.Int("attempt_id", meta.AttemptID))
		case err != nil:
			return nil, fmt.Errorf("attempt %d for flag %d: %w", meta.AttemptID, flag.ID, err)
		default:
			v.Attempt = attempt
		}
	}
	v.Questions = Reconcile(quiz, v.Attempt)
	return v, nil
}
