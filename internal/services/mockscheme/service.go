package mockscheme

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/fennel/pkg/context"
	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
	"github.com/Ramsey-B/fennel/pkg/events"
	"github.com/Ramsey-B/fennel/pkg/mockdata"
	"github.com/Ramsey-B/fennel/pkg/models"
	"github.com/Ramsey-B/fennel/pkg/tracing"
)

type Repository interface {
	Upsert(ctx context.Context, scheme models.MockScheme) (models.MockScheme, error)
	Get(ctx context.Context, scope models.TemplateScope) (models.MockScheme, error)
}

type Templates interface {
	Exists(ctx context.Context, scope models.TemplateScope) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Service struct {
	repo      Repository
	templates Templates
	publisher Publisher
	logger    ectologger.Logger
}

func NewService(repo Repository, templates Templates, publisher Publisher, logger ectologger.Logger) *Service {
	return &Service{
		repo:      repo,
		templates: templates,
		publisher: publisher,
		logger:    logger,
	}
}

// Save replaces the mock scheme of a template.
func (s *Service) Save(ctx context.Context, operator string, scope models.TemplateScope, data json.RawMessage) (models.MockScheme, error) {
	ctx, span := tracing.StartSpan(ctx, "MockSchemeService.Save")
	defer span.End()

	if err := mockdata.ValidateOperator(operator); err != nil {
		return models.MockScheme{}, err
	}
	if len(data) == 0 || !json.Valid(data) {
		return models.MockScheme{}, fennelerrors.NewValidationError("data must be a JSON value").AddField("data")
	}

	ok, err := s.templates.Exists(ctx, scope)
	if err != nil {
		return models.MockScheme{}, err
	}
	if !ok {
		return models.MockScheme{}, httperror.NewHTTPError(http.StatusNotFound, "template not found")
	}

	saved, err := s.repo.Upsert(ctx, models.MockScheme{
		SpaceID:    scope.SpaceID,
		TemplateID: scope.TemplateID,
		Data:       data,
		Operator:   operator,
	})
	if err != nil {
		return models.MockScheme{}, err
	}

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, events.Event{
			Kind:       events.KindMockSchemeSaved,
			SpaceID:    scope.SpaceID,
			TemplateID: scope.TemplateID,
			Operator:   operator,
			RequestID:  appctx.GetRequestID(ctx),
		})
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to publish mock scheme event")
		}
	}

	return saved, nil
}

func (s *Service) Get(ctx context.Context, scope models.TemplateScope) (models.MockScheme, error) {
	ctx, span := tracing.StartSpan(ctx, "MockSchemeService.Get")
	defer span.End()

	return s.repo.Get(ctx, scope)
}
