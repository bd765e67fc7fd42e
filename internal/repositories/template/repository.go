package template

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fennel/pkg/database"
	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
	"github.com/Ramsey-B/fennel/pkg/models"
	"github.com/Ramsey-B/fennel/pkg/tracing"
)

const (
	templateTable = "template"
	snapshotTable = "template_snapshot"
)

type TemplateRow struct {
	ID         int64                          `db:"id" fieldopt:"omitempty"`
	SpaceID    int64                          `db:"space_id"`
	SnapshotID int64                          `db:"snapshot_id"`
	Name       string                         `db:"name"`
	Desc       sql.NullString                 `db:"description"`
	Version    string                         `db:"version"`
	IsEnabled  bool                           `db:"is_enabled"`
	ExtraInfo  database.JSONB[map[string]any] `db:"extra_info"`
	Creator    sql.NullString                 `db:"creator"`
	UpdatedBy  sql.NullString                 `db:"updated_by"`
	CreatedAt  time.Time                      `db:"created_at"`
	UpdatedAt  time.Time                      `db:"updated_at"`
}

type SnapshotRow struct {
	ID         int64            `db:"id" fieldopt:"omitempty"`
	TemplateID sql.NullInt64    `db:"template_id"`
	Data       database.RawJSON `db:"data"`
	MD5Sum     string           `db:"md5sum"`
	CreatedAt  time.Time        `db:"created_at"`
}

var (
	templateStruct = database.NewStruct(new(TemplateRow))
	snapshotStruct = database.NewStruct(new(SnapshotRow))
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func FromTemplate(t models.Template) TemplateRow {
	extra := t.ExtraInfo
	if extra == nil {
		extra = map[string]any{}
	}
	return TemplateRow{
		ID:         t.ID,
		SpaceID:    t.SpaceID,
		SnapshotID: t.SnapshotID,
		Name:       t.Name,
		Desc:       nullString(t.Desc),
		Version:    t.Version,
		IsEnabled:  t.IsEnabled,
		ExtraInfo:  database.JSONB[map[string]any]{Data: extra},
		Creator:    nullString(t.Creator),
		UpdatedBy:  nullString(t.UpdatedBy),
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func ToTemplate(row TemplateRow) models.Template {
	return models.Template{
		ID:         row.ID,
		SpaceID:    row.SpaceID,
		SnapshotID: row.SnapshotID,
		Name:       row.Name,
		Desc:       row.Desc.String,
		Version:    row.Version,
		IsEnabled:  row.IsEnabled,
		ExtraInfo:  row.ExtraInfo.GetValue(),
		Creator:    row.Creator.String,
		UpdatedBy:  row.UpdatedBy.String,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

func FromSnapshot(s models.TemplateSnapshot) SnapshotRow {
	return SnapshotRow{
		ID:         s.ID,
		TemplateID: sql.NullInt64{Int64: s.TemplateID, Valid: s.TemplateID != 0},
		Data:       database.RawJSON(s.Data),
		MD5Sum:     s.MD5Sum,
		CreatedAt:  s.CreatedAt,
	}
}

func ToSnapshot(row SnapshotRow) models.TemplateSnapshot {
	return models.TemplateSnapshot{
		ID:         row.ID,
		TemplateID: row.TemplateID.Int64,
		Data:       json.RawMessage(row.Data),
		MD5Sum:     row.MD5Sum,
		CreatedAt:  row.CreatedAt.UTC(),
	}
}

// Repository stores templates and their snapshots. Every method runs on the
// transaction carried by ctx when there is one.
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

func (r *Repository) fields(ctx context.Context, scope models.TemplateScope) ectologger.Logger {
	return r.logger.WithContext(ctx).WithFields(map[string]any{
		"space_id":    scope.SpaceID,
		"template_id": scope.TemplateID,
	})
}

// Create inserts t and returns it with its id.
func (r *Repository) Create(ctx context.Context, t models.Template) (models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.Create")
	defer span.End()

	row := FromTemplate(t)
	row.ID = 0
	ib := templateStruct.InsertInto(templateTable, &row).Returning("id")

	query, args := ib.Build()

	if err := database.Conn(ctx, r.db).GetContext(ctx, &row.ID, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("space_id", t.SpaceID).Error("Failed to create template")
		return models.Template{}, fennelerrors.NewStorageError("create_template", err)
	}

	return ToTemplate(row), nil
}

func (r *Repository) Get(ctx context.Context, scope models.TemplateScope) (models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.Get")
	defer span.End()

	sb := templateStruct.SelectFrom(templateTable)
	sb.Where(
		sb.Equal("id", scope.TemplateID),
		sb.Equal("space_id", scope.SpaceID),
	)

	query, args := sb.Build()

	var row TemplateRow
	err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Template{}, httperror.NewHTTPError(http.StatusNotFound, "template not found")
	}
	if err != nil {
		r.fields(ctx, scope).WithError(err).Error("Failed to get template")
		return models.Template{}, fennelerrors.NewStorageError("get_template", err)
	}

	return ToTemplate(row), nil
}

// Exists reports whether the template of scope exists in its space.
func (r *Repository) Exists(ctx context.Context, scope models.TemplateScope) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.Exists")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("1").From(templateTable).Where(
		sb.Equal("id", scope.TemplateID),
		sb.Equal("space_id", scope.SpaceID),
	)

	query, args := sb.Build()

	var exists bool
	err := database.Conn(ctx, r.db).GetContext(ctx, &exists, fmt.Sprintf("SELECT EXISTS (%s)", query), args...)
	if err != nil {
		r.fields(ctx, scope).WithError(err).Error("Failed to check template")
		return false, fennelerrors.NewStorageError("get_template", err)
	}

	return exists, nil
}

// Touch records operator as the last writer of the template.
func (r *Repository) Touch(ctx context.Context, scope models.TemplateScope, operator string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.Touch")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(templateTable).Set(
		ub.Assign("updated_by", nullString(operator)),
		ub.Assign("updated_at", at),
	).Where(
		ub.Equal("id", scope.TemplateID),
		ub.Equal("space_id", scope.SpaceID),
	)

	query, args := ub.Build()

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.fields(ctx, scope).WithError(err).Error("Failed to touch template")
		return fennelerrors.NewStorageError("update_template", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "template not found")
	}

	return nil
}

// CreateSnapshot inserts s and returns it with its id.
func (r *Repository) CreateSnapshot(ctx context.Context, s models.TemplateSnapshot) (models.TemplateSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.CreateSnapshot")
	defer span.End()

	row := FromSnapshot(s)
	row.ID = 0
	ib := snapshotStruct.InsertInto(snapshotTable, &row).Returning("id")

	query, args := ib.Build()

	if err := database.Conn(ctx, r.db).GetContext(ctx, &row.ID, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create template snapshot")
		return models.TemplateSnapshot{}, fennelerrors.NewStorageError("create_template_snapshot", err)
	}

	return ToSnapshot(row), nil
}

func (r *Repository) GetSnapshot(ctx context.Context, id int64) (models.TemplateSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.GetSnapshot")
	defer span.End()

	sb := snapshotStruct.SelectFrom(snapshotTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var row SnapshotRow
	err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TemplateSnapshot{}, httperror.NewHTTPError(http.StatusNotFound, "template snapshot not found")
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("snapshot_id", id).Error("Failed to get template snapshot")
		return models.TemplateSnapshot{}, fennelerrors.NewStorageError("get_template_snapshot", err)
	}

	return ToSnapshot(row), nil
}

// UpdateSnapshot rewrites every column of the snapshot with s.ID.
func (r *Repository) UpdateSnapshot(ctx context.Context, s models.TemplateSnapshot) error {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.UpdateSnapshot")
	defer span.End()

	row := FromSnapshot(s)
	ub := snapshotStruct.Update(snapshotTable, &row)
	ub.Where(ub.Equal("id", s.ID))

	query, args := ub.Build()

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("snapshot_id", s.ID).Error("Failed to update template snapshot")
		return fennelerrors.NewStorageError("update_template_snapshot", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "template snapshot not found")
	}

	return nil
}
