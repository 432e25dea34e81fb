package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/client"
	"github.com/patrickwarner/flagdesk/internal/models"
)

// ResolutionForm is what faculty fill in to close a flag.
type ResolutionForm struct {
	Type              models.ResolutionType `json:"type" validate:"required,oneof=feedback corrected"`
	Feedback          string                `json:"feedback" validate:"notblank"`
	CorrectedResponse string                `json:"correctedResponse"`
}

// Validate checks the form and returns a ValidationError with field messages.
func (f ResolutionForm) Validate() error {
	return validateStruct(f)
}

// BuildResolution turns a valid form into the resolve request body. The payload
// stored in knowledgeGapFix carries a null correctedResponse for feedback-only
// resolutions.
func BuildResolution(form ResolutionForm, now time.Time) (models.Resolution, error) {
	if err := form.Validate(); err != nil {
		return models.Resolution{}, err
	}
	p := models.ResolutionPayload{
		Type:      form.Type,
		Feedback:  form.Feedback,
		Timestamp: now.UTC(),
	}
	if form.Type == models.ResolutionCorrected {
		cr := form.CorrectedResponse
		p.CorrectedResponse = &cr
	}
	enc, err := p.Encode()
	if err != nil {
		return models.Resolution{}, err
	}
	return models.Resolution{KnowledgeGapFix: enc, StudentNotification: p.Notification()}, nil
}

// ResolveAPI is the part of the repository client the resolution workflow needs.
type ResolveAPI interface {
	ResolveFlag(ctx context.Context, flagID int, res models.Resolution, opts ...client.MutationOption) error
}

// Resolver submits faculty resolutions.
type Resolver struct {
	guard
	api    ResolveAPI
	logger *zap.Logger
	now    func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(api ResolveAPI, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{api: api, logger: logger, now: time.Now}
}

// Resolve validates the form, then submits it. Validation failures never reach
// the network. The form is passed by value so the caller's copy stays intact for
// a retry.
func (r *Resolver) Resolve(ctx context.Context, flagID int, form ResolutionForm, opts ...client.MutationOption) (models.Resolution, error) {
	res, err := BuildResolution(form, r.now())
	if err != nil {
		return models.Resolution{}, err
	}
	if err := r.acquire(); err != nil {
		return models.Resolution{}, err
	}
	defer r.release()

	ctx, span := tracer.Start(ctx, "workflow.resolve")
	span.SetAttributes(attribute.Int("flag.id", flagID), attribute.String("resolution.type", string(form.Type)))
	defer span.End()

	if err := r.api.ResolveFlag(ctx, flagID, res, opts...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		r.logger.Warn("resolve failed", zap.Int("flag_id", flagID), zap.Error(err))
		return models.Resolution{}, err
	}
	r.logger.Info("flag resolved", zap.Int("flag_id", flagID), zap.String("type", string(form.Type)))
	return res, nil
}
