package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/client"
	"github.com/patrickwarner/flagdesk/internal/detail"
	"github.com/patrickwarner/flagdesk/internal/models"
	"github.com/patrickwarner/flagdesk/internal/views"
	"github.com/patrickwarner/flagdesk/internal/workflow"
)

const toolTimeout = 10 * time.Second

// FlagSummary is the flat form of a flag returned to MCP clients.
type FlagSummary struct {
	ID         int    `json:"id"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Label      string `json:"label"`
	Priority   string `json:"priority"`
	Reason     string `json:"reason"`
	FlaggedBy  string `json:"flagged_by"`
	FlaggedAt  string `json:"flagged_at"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Version    int    `json:"version"`
}

func summarize(f models.FlaggedItem) FlagSummary {
	return FlagSummary{
		ID:         f.ID,
		Type:       string(f.Type),
		Status:     f.Status.WireValue(),
		Label:      f.Status.Label(),
		Priority:   string(f.Priority.Display()),
		Reason:     f.Reason,
		FlaggedBy:  f.FlaggedByName,
		FlaggedAt:  f.FlaggedAt.UTC().Format(time.RFC3339),
		AssignedTo: f.AssigneeName(),
		Version:    f.Version,
	}
}

func summarizeAll(items []models.FlaggedItem) []FlagSummary {
	out := make([]FlagSummary, 0, len(items))
	for _, f := range views.SortNewestFirst(items) {
		out = append(out, summarize(f))
	}
	return out
}

type StatusCounts struct {
	Pending  int `json:"pending"`
	Assigned int `json:"assigned"`
	Resolved int `json:"resolved"`
	Total    int `json:"total"`
}

type ListFlagsInput struct {
	Status string `json:"status,omitempty"`
	Mine   bool   `json:"mine,omitempty"`
}

type ListFlagsOutput struct {
	Flags  []FlagSummary `json:"flags"`
	Counts StatusCounts  `json:"counts"`
}

type ShowFlagInput struct {
	FlagID int `json:"flag_id"`
}

type ShowFlagOutput struct {
	Flag        FlagSummary `json:"flag"`
	Kind        string      `json:"kind"`
	Unavailable bool        `json:"unavailable"`
	// Text is the same rendering flagctl prints.
	Text string `json:"text"`
}

type ListFacultyInput struct{}

type FacultyMember struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type ListFacultyOutput struct {
	Faculty []FacultyMember `json:"faculty"`
}

type AssignFlagInput struct {
	FlagID    int `json:"flag_id"`
	FacultyID int `json:"faculty_id"`
	Version   int `json:"version,omitempty"`
}

type AssignFlagOutput struct {
	Message string        `json:"message"`
	Flags   []FlagSummary `json:"flags"`
}

type ResolveFlagInput struct {
	FlagID            int    `json:"flag_id"`
	Feedback          string `json:"feedback"`
	CorrectedResponse string `json:"corrected_response,omitempty"`
	Version           int    `json:"version,omitempty"`
}

type ResolveFlagOutput struct {
	Message             string        `json:"message"`
	StudentNotification string        `json:"student_notification"`
	Flags               []FlagSummary `json:"flags"`
}

// flagTools is shared by every session, so the workflow guards apply across
// concurrent tool calls.
type flagTools struct {
	api      *client.Client
	assigner *workflow.Assigner
	resolver *workflow.Resolver
	router   *detail.Router
	logger   *zap.Logger
}

func newFlagTools(api *client.Client, window int, logger *zap.Logger) *flagTools {
	return &flagTools{
		api:      api,
		assigner: workflow.NewAssigner(api, logger),
		resolver: workflow.NewResolver(api, logger),
		router:   detail.NewRouter(api, window, logger),
		logger:   logger,
	}
}

func versionOpts(v int) []client.MutationOption {
	if v > 0 {
		return []client.MutationOption{client.IfVersion(v)}
	}
	return nil
}

// ListFlags returns every flag, or the caller's assigned flags, with counts
// computed before the status filter is applied.
func (t *flagTools) ListFlags(ctx context.Context, req *mcp.CallToolRequest, input ListFlagsInput) (*mcp.CallToolResult, ListFlagsOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	var status models.Status
	if input.Status != "" {
		s, err := models.ParseStatus(input.Status)
		if err != nil {
			return nil, ListFlagsOutput{}, err
		}
		status = s
	}

	var (
		items []models.FlaggedItem
		err   error
	)
	if input.Mine {
		items, err = t.api.GetAssignedFlags(ctx)
	} else {
		items, err = t.api.ListFlags(ctx, "")
	}
	if err != nil {
		return nil, ListFlagsOutput{}, err
	}

	c := views.Count(items)
	if status != "" {
		items = views.Filter(items, status)
	}
	t.logger.Debug("listed flags", zap.Int("count", len(items)), zap.Bool("mine", input.Mine))
	return nil, ListFlagsOutput{
		Flags:  summarizeAll(items),
		Counts: StatusCounts{Pending: c.Pending, Assigned: c.Assigned, Resolved: c.Resolved, Total: c.Total},
	}, nil
}

func (t *flagTools) ShowFlag(ctx context.Context, req *mcp.CallToolRequest, input ShowFlagInput) (*mcp.CallToolResult, ShowFlagOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	v, err := t.router.Route(ctx, input.FlagID)
	if err != nil {
		return nil, ShowFlagOutput{}, err
	}
	var buf bytes.Buffer
	if err := views.RenderDetail(&buf, v); err != nil {
		return nil, ShowFlagOutput{}, err
	}
	out := ShowFlagOutput{Flag: summarize(v.Item()), Kind: string(v.Kind()), Text: buf.String()}
	switch v := v.(type) {
	case detail.MessageView:
		out.Unavailable = v.Unavailable
	case detail.QuizView:
		out.Unavailable = v.Unavailable
	}
	return nil, out, nil
}

func (t *flagTools) ListFaculty(ctx context.Context, req *mcp.CallToolRequest, input ListFacultyInput) (*mcp.CallToolResult, ListFacultyOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	users, err := t.assigner.Faculty(ctx)
	if err != nil {
		return nil, ListFacultyOutput{}, err
	}
	out := ListFacultyOutput{Faculty: make([]FacultyMember, 0, len(users))}
	for _, u := range users {
		out.Faculty = append(out.Faculty, FacultyMember{ID: u.ID, Name: u.Name})
	}
	return nil, out, nil
}

func (t *flagTools) AssignFlag(ctx context.Context, req *mcp.CallToolRequest, input AssignFlagInput) (*mcp.CallToolResult, AssignFlagOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	items, err := t.assigner.Assign(ctx, input.FlagID, input.FacultyID, versionOpts(input.Version)...)
	if err != nil {
		return nil, AssignFlagOutput{}, err
	}
	return nil, AssignFlagOutput{
		Message: fmt.Sprintf("Flag #%d assigned", input.FlagID),
		Flags:   summarizeAll(items),
	}, nil
}

func (t *flagTools) ResolveFlag(ctx context.Context, req *mcp.CallToolRequest, input ResolveFlagInput) (*mcp.CallToolResult, ResolveFlagOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	form := workflow.ResolutionForm{Type: models.ResolutionFeedback, Feedback: input.Feedback}
	if input.CorrectedResponse != "" {
		form.Type = models.ResolutionCorrected
		form.CorrectedResponse = input.CorrectedResponse
	}
	res, err := t.resolver.Resolve(ctx, input.FlagID, form, versionOpts(input.Version)...)
	if err != nil {
		return nil, ResolveFlagOutput{}, err
	}
	items, err := t.api.GetAssignedFlags(ctx)
	if err != nil {
		return nil, ResolveFlagOutput{}, fmt.Errorf("resolution saved but list refresh failed: %w", err)
	}
	return nil, ResolveFlagOutput{
		Message:             fmt.Sprintf("Flag #%d resolved", input.FlagID),
		StudentNotification: res.StudentNotification,
		Flags:               summarizeAll(items),
	}, nil
}
