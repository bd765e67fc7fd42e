package mockscheme

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fennel/pkg/database"
	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
	"github.com/Ramsey-B/fennel/pkg/models"
	"github.com/Ramsey-B/fennel/pkg/tracing"
)

const mockSchemeTable = "template_mock_scheme"

type MockSchemeRow struct {
	ID         int64            `db:"id"`
	SpaceID    int64            `db:"space_id"`
	TemplateID int64            `db:"template_id"`
	Data       database.RawJSON `db:"data"`
	Operator   sql.NullString   `db:"operator"`
	CreatedAt  time.Time        `db:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at"`
}

var mockSchemeStruct = database.NewStruct(new(MockSchemeRow))

func ToMockScheme(row MockSchemeRow) models.MockScheme {
	return models.MockScheme{
		ID:         row.ID,
		SpaceID:    row.SpaceID,
		TemplateID: row.TemplateID,
		Data:       json.RawMessage(row.Data),
		Operator:   row.Operator.String,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert stores the scheme of a template, replacing any previous one.
func (r *Repository) Upsert(ctx context.Context, scheme models.MockScheme) (models.MockScheme, error) {
	ctx, span := tracing.StartSpan(ctx, "MockSchemeRepository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	operator := sql.NullString{String: scheme.Operator, Valid: scheme.Operator != ""}

	ib := database.NewInsertBuilder().
		InsertInto(mockSchemeTable).
		Cols("space_id", "template_id", "data", "operator", "created_at", "updated_at").
		Values(scheme.SpaceID, scheme.TemplateID, database.RawJSON(scheme.Data), operator, now, now)
	ub := ib.OnConflict("space_id", "template_id")
	ub.Set(
		ub.Assign("data", database.Excluded("data")),
		ub.Assign("operator", database.Excluded("operator")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)

	query, args := ib.Build()

	logger := r.logger.WithContext(ctx).WithFields(map[string]any{
		"space_id":    scheme.SpaceID,
		"template_id": scheme.TemplateID,
		"operator":    scheme.Operator,
	})

	var saved models.MockScheme
	err := r.db.WithinTx(ctx, nil, func(ctx context.Context) error {
		if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
			logger.WithError(err).Error("error upserting mock scheme")
			return fennelerrors.NewStorageError("save_mock_scheme", err)
		}

		var err error
		saved, err = r.Get(ctx, models.TemplateScope{SpaceID: scheme.SpaceID, TemplateID: scheme.TemplateID})
		return err
	})
	if err != nil {
		return models.MockScheme{}, err
	}

	logger.Info("Saved mock scheme")
	return saved, nil
}

func (r *Repository) Get(ctx context.Context, scope models.TemplateScope) (models.MockScheme, error) {
	ctx, span := tracing.StartSpan(ctx, "MockSchemeRepository.Get")
	defer span.End()

	sb := mockSchemeStruct.SelectFrom(mockSchemeTable)
	sb.Where(
		sb.Equal("space_id", scope.SpaceID),
		sb.Equal("template_id", scope.TemplateID),
	)

	query, args := sb.Build()

	var row MockSchemeRow
	err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MockScheme{}, httperror.NewHTTPError(http.StatusNotFound, "mock scheme not found")
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"space_id":    scope.SpaceID,
			"template_id": scope.TemplateID,
		}).Error("Failed to get mock scheme")
		return models.MockScheme{}, fennelerrors.NewStorageError("get_mock_scheme", err)
	}

	return ToMockScheme(row), nil
}
