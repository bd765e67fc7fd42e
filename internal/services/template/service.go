package template

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/Gobusters/ectologger"

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
	MaxNameLength    = 128
	MaxDescLength    = 256
	MaxVersionLength = 32
)

type Repository interface {
	Create(ctx context.Context, t models.Template) (models.Template, error)
	Get(ctx context.Context, scope models.TemplateScope) (models.Template, error)
	Touch(ctx context.Context, scope models.TemplateScope, operator string, at time.Time) error
	CreateSnapshot(ctx context.Context, s models.TemplateSnapshot) (models.TemplateSnapshot, error)
	GetSnapshot(ctx context.Context, id int64) (models.TemplateSnapshot, error)
	UpdateSnapshot(ctx context.Context, s models.TemplateSnapshot) error
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Detail is a template together with the pipeline tree of its snapshot.
type Detail struct {
	models.Template
	PipelineTree json.RawMessage `json:"pipeline_tree"`
}

type CreateInput struct {
	Name         string
	Desc         string
	Version      string
	ExtraInfo    map[string]any
	PipelineTree json.RawMessage
}

type Service struct {
	repo      Repository
	tx        database.Transactor
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

func NewService(repo Repository, tx database.Transactor, publisher Publisher, logger ectologger.Logger) *Service {
	return &Service{
		repo:      repo,
		tx:        tx,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func validatePipelineTree(tree json.RawMessage) error {
	trimmed := bytes.TrimSpace(tree)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return fennelerrors.NewValidationError("pipeline_tree must be a JSON object").AddField("pipeline_tree")
	}
	return nil
}

func validateCreate(operator string, in CreateInput) error {
	if err := mockdata.ValidateOperator(operator); err != nil {
		return err
	}
	if in.Name == "" {
		return fennelerrors.NewValidationError("name is required").AddField("name")
	}
	if utf8.RuneCountInString(in.Name) > MaxNameLength {
		return fennelerrors.NewValidationErrorf("name must be at most %d characters", MaxNameLength).AddField("name")
	}
	if utf8.RuneCountInString(in.Desc) > MaxDescLength {
		return fennelerrors.NewValidationErrorf("desc must be at most %d characters", MaxDescLength).AddField("desc")
	}
	if in.Version == "" {
		return fennelerrors.NewValidationError("version is required").AddField("version")
	}
	if utf8.RuneCountInString(in.Version) > MaxVersionLength {
		return fennelerrors.NewValidationErrorf("version must be at most %d characters", MaxVersionLength).AddField("version")
	}
	return validatePipelineTree(in.PipelineTree)
}

// Create stores a template of spaceID and its first snapshot.
func (s *Service) Create(ctx context.Context, operator string, spaceID int64, in CreateInput) (Detail, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateService.Create")
	defer span.End()

	if err := validateCreate(operator, in); err != nil {
		return Detail{}, err
	}
	sum, err := models.PipelineMD5(in.PipelineTree)
	if err != nil {
		return Detail{}, fennelerrors.NewValidationError(err.Error()).AddField("pipeline_tree")
	}

	now := s.now()
	var detail Detail
	err = s.tx.WithinTx(ctx, nil, func(ctx context.Context) error {
		snapshot, err := s.repo.CreateSnapshot(ctx, models.TemplateSnapshot{
			Data:      in.PipelineTree,
			MD5Sum:    sum,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		created, err := s.repo.Create(ctx, models.Template{
			SpaceID:    spaceID,
			SnapshotID: snapshot.ID,
			Name:       in.Name,
			Desc:       in.Desc,
			Version:    in.Version,
			IsEnabled:  true,
			ExtraInfo:  in.ExtraInfo,
			Creator:    operator,
			UpdatedBy:  operator,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return err
		}

		snapshot.TemplateID = created.ID
		if err := s.repo.UpdateSnapshot(ctx, snapshot); err != nil {
			return err
		}

		detail = Detail{Template: created, PipelineTree: snapshot.Data}
		return nil
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("space_id", spaceID).Error("Failed to create template")
		return Detail{}, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"space_id":    spaceID,
		"template_id": detail.ID,
		"operator":    operator,
	}).Info("Created template")

	s.publish(ctx, events.KindTemplateCreated, operator, detail.Scope(), detail.SnapshotID, sum)
	return detail, nil
}

func (s *Service) Get(ctx context.Context, scope models.TemplateScope) (Detail, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateService.Get")
	defer span.End()

	t, err := s.repo.Get(ctx, scope)
	if err != nil {
		return Detail{}, err
	}
	snapshot, err := s.repo.GetSnapshot(ctx, t.SnapshotID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Template: t, PipelineTree: snapshot.Data}, nil
}

// UpdatePipelineTree rewrites the snapshot of the template when tree differs
// from the stored one. It reports whether anything was written.
func (s *Service) UpdatePipelineTree(ctx context.Context, operator string, scope models.TemplateScope, tree json.RawMessage) (Detail, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateService.UpdatePipelineTree")
	defer span.End()

	if err := mockdata.ValidateOperator(operator); err != nil {
		return Detail{}, false, err
	}
	if err := validatePipelineTree(tree); err != nil {
		return Detail{}, false, err
	}
	sum, err := models.PipelineMD5(tree)
	if err != nil {
		return Detail{}, false, fennelerrors.NewValidationError(err.Error()).AddField("pipeline_tree")
	}

	var (
		detail  Detail
		changed bool
	)
	err = s.tx.WithinTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context) error {
		t, err := s.repo.Get(ctx, scope)
		if err != nil {
			return err
		}
		snapshot, err := s.repo.GetSnapshot(ctx, t.SnapshotID)
		if err != nil {
			return err
		}

		diff, err := snapshot.HasChange(tree)
		if err != nil {
			return fennelerrors.NewValidationError(err.Error()).AddField("pipeline_tree")
		}
		if !diff {
			detail = Detail{Template: t, PipelineTree: snapshot.Data}
			return nil
		}

		now := s.now()
		snapshot.Data = tree
		snapshot.MD5Sum = sum
		snapshot.CreatedAt = now
		if err := s.repo.UpdateSnapshot(ctx, snapshot); err != nil {
			return err
		}
		if err := s.repo.Touch(ctx, scope, operator, now); err != nil {
			return err
		}

		t.UpdatedBy = operator
		t.UpdatedAt = now
		detail = Detail{Template: t, PipelineTree: snapshot.Data}
		changed = true
		return nil
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"space_id":    scope.SpaceID,
			"template_id": scope.TemplateID,
		}).Error("Failed to update pipeline tree")
		return Detail{}, false, err
	}

	if !changed {
		return detail, false, nil
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"space_id":    scope.SpaceID,
		"template_id": scope.TemplateID,
		"operator":    operator,
		"md5sum":      sum,
	}).Info("Updated template snapshot")

	s.publish(ctx, events.KindTemplateSnapshotUpdated, operator, scope, detail.SnapshotID, sum)
	return detail, true, nil
}

func (s *Service) publish(ctx context.Context, kind events.Kind, operator string, scope models.TemplateScope, snapshotID int64, sum string) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, events.Event{
		Kind:       kind,
		SpaceID:    scope.SpaceID,
		TemplateID: scope.TemplateID,
		Operator:   operator,
		RequestID:  appctx.GetRequestID(ctx),
		Payload:    events.TemplatePayload{SnapshotID: snapshotID, MD5Sum: sum},
	})
	metrics.ObservePublish(kind, err)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("event_type", kind).Warn("Failed to publish template event")
	}
}
