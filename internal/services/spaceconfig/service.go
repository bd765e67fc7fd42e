package spaceconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"unicode/utf8"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/fennel/pkg/context"
	"github.com/Ramsey-B/fennel/pkg/database"
	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
	"github.com/Ramsey-B/fennel/pkg/events"
	"github.com/Ramsey-B/fennel/pkg/models"
	"github.com/Ramsey-B/fennel/pkg/tracing"
)

const MaxNameLength = 128

type Repository interface {
	Upsert(ctx context.Context, configs []models.SpaceConfig) error
	ListBySpace(ctx context.Context, spaceID int64) ([]models.SpaceConfig, error)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Presentation is how a space's configs are shown to callers: name -> value.
type Presentation map[string]any

type Service struct {
	repo      Repository
	tx        database.Transactor
	publisher Publisher
	logger    ectologger.Logger
}

func NewService(repo Repository, tx database.Transactor, publisher Publisher, logger ectologger.Logger) *Service {
	return &Service{
		repo:      repo,
		tx:        tx,
		publisher: publisher,
		logger:    logger,
	}
}

// Renew upserts every supplied config of the space and returns the space's
// full presentation. Configs that are not named are left as they are.
func (s *Service) Renew(ctx context.Context, spaceID int64, values map[string]json.RawMessage) (Presentation, error) {
	ctx, span := tracing.StartSpan(ctx, "SpaceConfigService.Renew")
	defer span.End()

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	configs := make([]models.SpaceConfig, 0, len(names))
	for _, name := range names {
		if name == "" {
			return nil, fennelerrors.NewValidationError("config name is required").AddField("config")
		}
		if utf8.RuneCountInString(name) > MaxNameLength {
			return nil, fennelerrors.NewValidationErrorf("config name must be at most %d characters", MaxNameLength).AddField(name)
		}
		raw := bytes.TrimSpace(values[name])
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return nil, fennelerrors.NewValidationError("config value is required").AddField(name)
		}
		cfg, err := models.NewSpaceConfig(spaceID, name, raw)
		if err != nil {
			return nil, fennelerrors.NewValidationError(err.Error()).AddField(name)
		}
		configs = append(configs, cfg)
	}

	var presentation Presentation
	err := s.tx.WithinTx(ctx, nil, func(ctx context.Context) error {
		if err := s.repo.Upsert(ctx, configs); err != nil {
			return err
		}
		var err error
		presentation, err = s.present(ctx, spaceID)
		return err
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("space_id", spaceID).Error("Failed to renew space config")
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"space_id": spaceID,
		"names":    names,
	}).Info("Renewed space config")

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, events.Event{
			Kind:      events.KindSpaceConfigRenewed,
			SpaceID:   spaceID,
			RequestID: appctx.GetRequestID(ctx),
			Payload:   events.SpaceConfigPayload{Names: names},
		})
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to publish space config event")
		}
	}

	return presentation, nil
}

func (s *Service) Get(ctx context.Context, spaceID int64) (Presentation, error) {
	ctx, span := tracing.StartSpan(ctx, "SpaceConfigService.Get")
	defer span.End()

	return s.present(ctx, spaceID)
}

func (s *Service) present(ctx context.Context, spaceID int64) (Presentation, error) {
	configs, err := s.repo.ListBySpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	configs = ectolinq.Filter(configs, func(c models.SpaceConfig) bool {
		return c.Name != ""
	})

	presentation := make(Presentation, len(configs))
	for _, c := range configs {
		presentation[c.Name] = c.Value()
	}
	return presentation, nil
}
