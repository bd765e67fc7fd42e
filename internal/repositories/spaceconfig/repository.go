package spaceconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fennel/pkg/database"
	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
	"github.com/Ramsey-B/fennel/pkg/models"
	"github.com/Ramsey-B/fennel/pkg/tracing"
)

const spaceConfigTable = "space_config"

type SpaceConfigRow struct {
	ID        int64            `db:"id"`
	SpaceID   int64            `db:"space_id"`
	Name      string           `db:"name"`
	ValueType string           `db:"value_type"`
	TextValue string           `db:"text_value"`
	JSONValue database.RawJSON `db:"json_value"`
	CreatedAt time.Time        `db:"created_at"`
	UpdatedAt time.Time        `db:"updated_at"`
}

var spaceConfigStruct = database.NewStruct(new(SpaceConfigRow))

func ToSpaceConfig(row SpaceConfigRow) models.SpaceConfig {
	return models.SpaceConfig{
		ID:        row.ID,
		SpaceID:   row.SpaceID,
		Name:      row.Name,
		ValueType: models.SpaceConfigValueType(row.ValueType),
		TextValue: row.TextValue,
		JSONValue: json.RawMessage(row.JSONValue),
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
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

// Upsert writes configs keyed by (space_id, name) in one statement.
func (r *Repository) Upsert(ctx context.Context, configs []models.SpaceConfig) error {
	if len(configs) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "SpaceConfigRepository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	ib := database.NewInsertBuilder().
		InsertInto(spaceConfigTable).
		Cols("space_id", "name", "value_type", "text_value", "json_value", "created_at", "updated_at")
	for _, c := range configs {
		ib = ib.Values(c.SpaceID, c.Name, string(c.ValueType), c.TextValue, database.RawJSON(c.JSONValue), now, now)
	}
	ub := ib.OnConflict("space_id", "name")
	ub.Set(
		ub.Assign("value_type", database.Excluded("value_type")),
		ub.Assign("text_value", database.Excluded("text_value")),
		ub.Assign("json_value", database.Excluded("json_value")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)

	query, args := ib.Build()

	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"space_id": configs[0].SpaceID,
			"count":    len(configs),
		}).Error("Failed to upsert space configs")
		return fennelerrors.NewStorageError("renew_space_config", err)
	}

	return nil
}

// ListBySpace returns every config of a space ordered by name.
func (r *Repository) ListBySpace(ctx context.Context, spaceID int64) ([]models.SpaceConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "SpaceConfigRepository.ListBySpace")
	defer span.End()

	sb := spaceConfigStruct.SelectFrom(spaceConfigTable)
	sb.Where(sb.Equal("space_id", spaceID))
	sb.OrderBy("name").Asc()

	query, args := sb.Build()

	var rows []SpaceConfigRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("space_id", spaceID).Error("Failed to list space configs")
		return nil, fennelerrors.NewStorageError("list_space_config", err)
	}

	configs := make([]models.SpaceConfig, len(rows))
	for i, row := range rows {
		configs[i] = ToSpaceConfig(row)
	}
	return configs, nil
}

// WithinTx exposes the store's transaction so the service can read back what
// it wrote under the same snapshot.
func (r *Repository) WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	return r.db.WithinTx(ctx, opts, fn)
}
