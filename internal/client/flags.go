package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/models"
)

// MutationOption adjusts an assign or resolve request.
type MutationOption func(*request)

// IfVersion makes the mutation conditional on the flag still being at version v.
// A stale version fails with ConflictError.
func IfVersion(v int) MutationOption {
	return func(r *request) { r.ifMatch = v }
}

// ListFlags returns flagged items. statusFilter is sent verbatim as ?status= and
// the result is not re-filtered on the client.
func (c *Client) ListFlags(ctx context.Context, statusFilter string) ([]models.FlaggedItem, error) {
	q := url.Values{}
	if statusFilter != "" {
		q.Set("status", statusFilter)
	}
	var items []models.FlaggedItem
	err := c.do(ctx, request{
		op:     "list_flags",
		method: http.MethodGet,
		path:   "/api/Conversations/flagged",
		query:  q,
	}, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetFlagByID fetches a single flag. When the direct route fails for any reason
// the full list is scanned instead, for back ends without the lookup route.
func (c *Client) GetFlagByID(ctx context.Context, id int) (*models.FlaggedItem, error) {
	var item models.FlaggedItem
	err := c.do(ctx, request{
		op:     "get_flag",
		method: http.MethodGet,
		path:   "/api/Conversations/flagged/" + strconv.Itoa(id),
	}, &item)
	if err == nil {
		return &item, nil
	}
	c.logger.Debug("direct flag lookup failed, scanning list", zap.Int("flag_id", id), zap.Error(err))

	items, listErr := c.ListFlags(ctx, "")
	if listErr != nil {
		return nil, listErr
	}
	for i := range items {
		if items[i].ID == id {
			return &items[i], nil
		}
	}
	return nil, &NotFoundError{Op: "get_flag", Message: fmt.Sprintf("flag %d not found", id)}
}

// GetAssignedFlags returns the flags assigned to the faculty member identified by
// the session token.
func (c *Client) GetAssignedFlags(ctx context.Context) ([]models.FlaggedItem, error) {
	var items []models.FlaggedItem
	err := c.do(ctx, request{
		op:     "assigned_flags",
		method: http.MethodGet,
		path:   "/api/Conversations/assigned-to-me",
	}, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetMessageContext fetches windowSize messages on each side of messageID. A
// deleted message or conversation yields NotFoundError.
func (c *Client) GetMessageContext(ctx context.Context, conversationID, messageID, windowSize int) (*models.MessageContext, error) {
	q := url.Values{}
	q.Set("windowSize", strconv.Itoa(windowSize))
	var mc models.MessageContext
	err := c.do(ctx, request{
		op:     "message_context",
		method: http.MethodGet,
		path:   fmt.Sprintf("/api/Conversations/%d/context-for-message/%d", conversationID, messageID),
		query:  q,
	}, &mc)
	if err != nil {
		return nil, err
	}
	return &mc, nil
}

// AssignFlag routes the flag to a faculty member.
func (c *Client) AssignFlag(ctx context.Context, flagID, facultyID int, opts ...MutationOption) error {
	req := request{
		op:     "assign_flag",
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/Conversations/flagged/%d/assign", flagID),
		body:   models.AssignRequest{FacultyID: facultyID},
	}
	for _, o := range opts {
		o(&req)
	}
	return c.do(ctx, req, nil)
}

// ResolveFlag records the resolution and the student notification.
func (c *Client) ResolveFlag(ctx context.Context, flagID int, res models.Resolution, opts ...MutationOption) error {
	req := request{
		op:     "resolve_flag",
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/Conversations/flagged/%d/resolve", flagID),
		body:   res,
	}
	for _, o := range opts {
		o(&req)
	}
	return c.do(ctx, req, nil)
}

// ListUsers returns users with the given role; an empty role lists everyone.
func (c *Client) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	q := url.Values{}
	if role != "" {
		q.Set("role", role)
	}
	var users []models.User
	if err := c.do(ctx, request{op: "list_users", method: http.MethodGet, path: "/api/Users", query: q}, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetQuiz fetches a quiz with its questions.
func (c *Client) GetQuiz(ctx context.Context, id int) (*models.Quiz, error) {
	var q models.Quiz
	if err := c.do(ctx, request{op: "get_quiz", method: http.MethodGet, path: "/api/Quizzes/" + strconv.Itoa(id)}, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuizAttempt fetches a student's attempt record.
func (c *Client) GetQuizAttempt(ctx context.Context, id int) (*models.QuizAttempt, error) {
	var a models.QuizAttempt
	if err := c.do(ctx, request{op: "get_attempt", method: http.MethodGet, path: "/api/Quizzes/attempts/" + strconv.Itoa(id)}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListNotifications returns the calling student's resolution notifications.
func (c *Client) ListNotifications(ctx context.Context) ([]models.StudentNotification, error) {
	var ns []models.StudentNotification
	if err := c.do(ctx, request{op: "list_notifications", method: http.MethodGet, path: "/api/Notifications"}, &ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// FlagActivity returns lifecycle action counts for the given look-back window.
func (c *Client) FlagActivity(ctx context.Context, since time.Duration) ([]models.ActionCount, error) {
	q := url.Values{}
	if since > 0 {
		q.Set("since", since.String())
	}
	var counts []models.ActionCount
	if err := c.do(ctx, request{op: "flag_activity", method: http.MethodGet, path: "/api/Reports/flag-activity", query: q}, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}
