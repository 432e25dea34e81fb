package workflow

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/client"
	"github.com/patrickwarner/flagdesk/internal/models"
	"github.com/patrickwarner/flagdesk/internal/observability"
)

var tracer = observability.Tracer("workflow")

// AssignAPI is the part of the repository client the assignment workflow needs.
type AssignAPI interface {
	ListUsers(ctx context.Context, role string) ([]models.User, error)
	ListFlags(ctx context.Context, statusFilter string) ([]models.FlaggedItem, error)
	AssignFlag(ctx context.Context, flagID, facultyID int, opts ...client.MutationOption) error
}

// Assigner routes flags to faculty members on behalf of an admin.
type Assigner struct {
	guard
	api    AssignAPI
	logger *zap.Logger
	// ListFilter is the status filter used when re-fetching the list after a
	// successful assignment. Empty lists every flag.
	ListFilter string
}

// NewAssigner creates an Assigner.
func NewAssigner(api AssignAPI, logger *zap.Logger) *Assigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assigner{api: api, logger: logger}
}

// Faculty fetches the roster offered for assignment. Only users whose role is
// exactly "faculty" are kept, whatever the server returned. Nothing is cached, so
// concurrent callers never share a roster.
func (a *Assigner) Faculty(ctx context.Context) ([]models.User, error) {
	users, err := a.api.ListUsers(ctx, models.RoleFaculty)
	if err != nil {
		return nil, err
	}
	roster := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.Role == models.RoleFaculty {
			roster = append(roster, u)
		}
	}
	return roster, nil
}

func inRoster(roster []models.User, facultyID int) (models.User, bool) {
	for _, u := range roster {
		if u.ID == facultyID {
			return u, true
		}
	}
	return models.User{}, false
}

// Assign routes flagID to facultyID and returns the re-fetched flag list. The
// roster is fetched on every call so faculty added on the server are accepted
// right away. Nothing is patched locally: on error the caller keeps its previous
// list and can retry with the same selection.
func (a *Assigner) Assign(ctx context.Context, flagID, facultyID int, opts ...client.MutationOption) ([]models.FlaggedItem, error) {
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.release()

	ctx, span := tracer.Start(ctx, "workflow.assign")
	span.SetAttributes(attribute.Int("flag.id", flagID), attribute.Int("faculty.id", facultyID))
	defer span.End()

	roster, err := a.Faculty(ctx)
	if err != nil {
		return nil, fmt.Errorf("load faculty roster: %w", err)
	}
	fac, ok := inRoster(roster, facultyID)
	if !ok {
		return nil, &ValidationError{Fields: map[string]string{
			"facultyId": "user " + strconv.Itoa(facultyID) + " is not a faculty member",
		}}
	}

	if err := a.api.AssignFlag(ctx, flagID, facultyID, opts...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assign failed")
		a.logger.Warn("assign failed", zap.Int("flag_id", flagID), zap.Int("faculty_id", facultyID), zap.Error(err))
		return nil, err
	}
	a.logger.Info("flag assigned", zap.Int("flag_id", flagID), zap.String("faculty", fac.Name))

	items, err := a.api.ListFlags(ctx, a.ListFilter)
	if err != nil {
		return nil, fmt.Errorf("assignment saved but list refresh failed: %w", err)
	}
	return items, nil
}
