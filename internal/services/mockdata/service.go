package mockdata

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	appctx "github.com/Ramsey-B/fennel/pkg/context"
	"github.com/Ramsey-B/fennel/pkg/database"
	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
	"github.com/Ramsey-B/fennel/pkg/events"
	"github.com/Ramsey-B/fennel/pkg/metrics"
	"github.com/Ramsey-B/fennel/pkg/mockdata"
	"github.com/Ramsey-B/fennel/pkg/models"
	"github.com/Ramsey-B/fennel/pkg/tracing"
)

const (
	OperationReconcile   = "reconcile"
	OperationBatchCreate = "batch_create"
)

// Repository is the storage the service applies plans to. Writes must join the
// transaction carried by ctx.
type Repository interface {
	ListByTemplate(ctx context.Context, scope models.TemplateScope) ([]models.MockData, error)
	ListByNode(ctx context.Context, scope models.TemplateScope, nodeID string) ([]models.MockData, error)
	GetByID(ctx context.Context, scope models.TemplateScope, id int64) (models.MockData, error)
	BulkUpdate(ctx context.Context, scope models.TemplateScope, records []models.MockData) error
	BulkCreate(ctx context.Context, records []models.MockData) ([]models.MockData, error)
	DeleteByIDs(ctx context.Context, scope models.TemplateScope, ids []int64) error
}

// Templates answers whether a template exists in its space.
type Templates interface {
	Exists(ctx context.Context, scope models.TemplateScope) (bool, error)
}

type Cache interface {
	Get(ctx context.Context, scope models.TemplateScope) ([]models.MockData, bool, error)
	Set(ctx context.Context, scope models.TemplateScope, records []models.MockData) error
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Result is what a write returns: the records and what changed.
type Result struct {
	Records []models.MockData `json:"mock_data"`
	Summary mockdata.Summary  `json:"summary"`
}

type Service struct {
	repo      Repository
	templates Templates
	tx        database.Transactor
	cache     Cache
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

// NewService builds the service. cache and publisher may be nil.
func NewService(repo Repository, templates Templates, tx database.Transactor, cache Cache, publisher Publisher, logger ectologger.Logger) *Service {
	return &Service{
		repo:      repo,
		templates: templates,
		tx:        tx,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) scoped(ctx context.Context, operator string, scope models.TemplateScope) ectologger.Logger {
	return s.logger.WithContext(ctx).WithFields(map[string]any{
		"operator":    operator,
		"space_id":    scope.SpaceID,
		"template_id": scope.TemplateID,
	})
}

// Reconcile makes the mock data of scope match desired and returns the full
// post-write set. Nothing is written when any part fails.
func (s *Service) Reconcile(ctx context.Context, operator string, scope models.TemplateScope, desired models.DesiredMockData) (Result, error) {
	started := time.Now()
	ctx, span := tracing.StartSpan(ctx, "MockDataService.Reconcile")
	defer span.End()

	var (
		plan    *mockdata.Plan
		records []models.MockData
	)
	err := s.tx.WithinTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context) error {
		if err := s.requireTemplate(ctx, scope); err != nil {
			return err
		}

		existing, err := s.repo.ListByTemplate(ctx, scope)
		if err != nil {
			return err
		}

		plan, err = mockdata.NewPlan(operator, scope, existing, desired, s.now())
		if err != nil {
			return err
		}

		if err := s.apply(ctx, plan); err != nil {
			return err
		}

		records, err = s.repo.ListByTemplate(ctx, scope)
		return err
	})
	if err != nil {
		return Result{}, s.fail(ctx, OperationReconcile, operator, scope, started, err)
	}

	summary := plan.Summary()
	span.SetAttributes(
		attribute.Int("mock_data.created", summary.Created),
		attribute.Int("mock_data.updated", summary.Updated),
		attribute.Int("mock_data.deleted", summary.Deleted),
	)
	s.scoped(ctx, operator, scope).WithFields(map[string]any{
		"created": summary.Created,
		"updated": summary.Updated,
		"deleted": summary.Deleted,
	}).Info("Reconciled mock data")
	metrics.ObserveWrite(OperationReconcile, metrics.StatusSuccess, started)

	s.publish(ctx, events.KindMockDataReconciled, operator, plan)

	return Result{Records: records, Summary: summary}, nil
}

// BatchCreate adds desired to a template without touching its existing mock
// data and returns the full post-write set. Items that carry an id are rejected.
func (s *Service) BatchCreate(ctx context.Context, operator string, scope models.TemplateScope, desired models.DesiredMockData) (Result, error) {
	started := time.Now()
	ctx, span := tracing.StartSpan(ctx, "MockDataService.BatchCreate")
	defer span.End()

	plan, err := mockdata.NewCreatePlan(operator, scope, desired, s.now())
	if err != nil {
		return Result{}, s.fail(ctx, OperationBatchCreate, operator, scope, started, err)
	}

	var records []models.MockData
	err = s.tx.WithinTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context) error {
		if err := s.requireTemplate(ctx, scope); err != nil {
			return err
		}
		if _, err := s.repo.BulkCreate(ctx, plan.Creates); err != nil {
			return err
		}
		var err error
		records, err = s.repo.ListByTemplate(ctx, scope)
		return err
	})
	if err != nil {
		return Result{}, s.fail(ctx, OperationBatchCreate, operator, scope, started, err)
	}

	s.scoped(ctx, operator, scope).WithField("created", len(plan.Creates)).Info("Created mock data")
	metrics.ObserveWrite(OperationBatchCreate, metrics.StatusSuccess, started)

	s.publish(ctx, events.KindMockDataCreated, operator, plan)

	return Result{Records: records, Summary: plan.Summary()}, nil
}

func (s *Service) requireTemplate(ctx context.Context, scope models.TemplateScope) error {
	ok, err := s.templates.Exists(ctx, scope)
	if err != nil {
		return err
	}
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "template not found")
	}
	return nil
}

// apply runs the batches of plan in update, create, delete order.
func (s *Service) apply(ctx context.Context, plan *mockdata.Plan) error {
	if err := s.repo.BulkUpdate(ctx, plan.Scope, plan.Updates); err != nil {
		return err
	}
	if _, err := s.repo.BulkCreate(ctx, plan.Creates); err != nil {
		return err
	}
	return s.repo.DeleteByIDs(ctx, plan.Scope, plan.Deletes)
}

// fail logs err with the scope of the call, never with payloads, and
// classifies anything unrecognised as a storage failure.
func (s *Service) fail(ctx context.Context, operation, operator string, scope models.TemplateScope, started time.Time, err error) error {
	logger := s.scoped(ctx, operator, scope).WithError(err).WithField("operation", operation)

	if fennelerrors.IsValidationError(err) || (httperror.IsHTTPError(err) && httperror.GetStatusCode(err) < http.StatusInternalServerError) {
		logger.Warn("Rejected mock data write")
		metrics.ObserveWrite(operation, metrics.StatusInvalid, started)
		return err
	}

	if !fennelerrors.IsStorageError(err) && !httperror.IsHTTPError(err) {
		err = fennelerrors.NewStorageError("commit", err)
	}
	logger.Error("Mock data write failed")
	metrics.ObserveWrite(operation, metrics.StatusFailed, started)
	return err
}

func (s *Service) publish(ctx context.Context, kind events.Kind, operator string, plan *mockdata.Plan) {
	if s.publisher == nil {
		return
	}

	summary := plan.Summary()
	err := s.publisher.Publish(ctx, events.Event{
		Kind:       kind,
		SpaceID:    plan.Scope.SpaceID,
		TemplateID: plan.Scope.TemplateID,
		Operator:   operator,
		RequestID:  appctx.GetRequestID(ctx),
		Payload: events.MockDataPayload{
			Created:    summary.Created,
			Updated:    summary.Updated,
			Deleted:    summary.Deleted,
			NodeIDs:    plan.NodeIDs(),
			DeletedIDs: plan.Deletes,
		},
	})
	metrics.ObservePublish(kind, err)
	if err != nil {
		s.scoped(ctx, operator, plan.Scope).WithError(err).WithField("event_type", kind).Warn("Failed to publish mock data event")
	}
}

// List returns every record of scope, newest first, from the cache when it
// holds the listing.
func (s *Service) List(ctx context.Context, scope models.TemplateScope) ([]models.MockData, error) {
	ctx, span := tracing.StartSpan(ctx, "MockDataService.List")
	defer span.End()

	if s.cache != nil {
		records, ok, err := s.cache.Get(ctx, scope)
		if err != nil {
			s.scoped(ctx, "", scope).WithError(err).Warn("Mock data cache lookup failed")
		}
		metrics.ObserveCacheLookup(ok)
		if ok {
			return records, nil
		}
	}

	records, err := s.repo.ListByTemplate(ctx, scope)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, scope, records); err != nil {
			s.scoped(ctx, "", scope).WithError(err).Warn("Failed to cache mock data")
		}
	}

	return records, nil
}

func (s *Service) ListByNode(ctx context.Context, scope models.TemplateScope, nodeID string) ([]models.MockData, error) {
	ctx, span := tracing.StartSpan(ctx, "MockDataService.ListByNode")
	defer span.End()

	return s.repo.ListByNode(ctx, scope, nodeID)
}

func (s *Service) Get(ctx context.Context, scope models.TemplateScope, id int64) (models.MockData, error) {
	ctx, span := tracing.StartSpan(ctx, "MockDataService.Get")
	defer span.End()

	return s.repo.GetByID(ctx, scope, id)
}
