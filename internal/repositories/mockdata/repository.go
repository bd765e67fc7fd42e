package mockdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fennel/pkg/database"
	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
	"github.com/Ramsey-B/fennel/pkg/models"
	"github.com/Ramsey-B/fennel/pkg/tracing"
)

// Repository stores template mock data in Postgres. Every method runs on the
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

// ListByTemplate returns every record of scope, newest first.
func (r *Repository) ListByTemplate(ctx context.Context, scope models.TemplateScope) ([]models.MockData, error) {
	ctx, span := tracing.StartSpan(ctx, "MockDataRepository.ListByTemplate")
	defer span.End()

	sb := mockDataStruct.SelectFrom(mockDataTable)
	sb.Where(
		sb.Equal("space_id", scope.SpaceID),
		sb.Equal("template_id", scope.TemplateID),
	)
	sb.OrderBy("id").Desc()

	query, args := sb.Build()

	var rows []MockDataRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.fields(ctx, scope).WithError(err).Error("Failed to list mock data")
		return nil, fennelerrors.NewStorageError("list_mock_data", err)
	}

	return ToMockDataList(rows), nil
}

// ListByNode returns the records of one node, newest first.
func (r *Repository) ListByNode(ctx context.Context, scope models.TemplateScope, nodeID string) ([]models.MockData, error) {
	ctx, span := tracing.StartSpan(ctx, "MockDataRepository.ListByNode")
	defer span.End()

	sb := mockDataStruct.SelectFrom(mockDataTable)
	sb.Where(
		sb.Equal("space_id", scope.SpaceID),
		sb.Equal("template_id", scope.TemplateID),
		sb.Equal("node_id", nodeID),
	)
	sb.OrderBy("id").Desc()

	query, args := sb.Build()

	var rows []MockDataRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.fields(ctx, scope).WithError(err).WithField("node_id", nodeID).Error("Failed to list mock data by node")
		return nil, fennelerrors.NewStorageError("list_mock_data", err)
	}

	return ToMockDataList(rows), nil
}

func (r *Repository) GetByID(ctx context.Context, scope models.TemplateScope, id int64) (models.MockData, error) {
	ctx, span := tracing.StartSpan(ctx, "MockDataRepository.GetByID")
	defer span.End()

	sb := mockDataStruct.SelectFrom(mockDataTable)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("space_id", scope.SpaceID),
		sb.Equal("template_id", scope.TemplateID),
	)

	query, args := sb.Build()

	var row MockDataRow
	err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MockData{}, httperror.NewHTTPError(http.StatusNotFound, "mock data not found")
	}
	if err != nil {
		r.fields(ctx, scope).WithError(err).WithField("id", id).Error("Failed to get mock data")
		return models.MockData{}, fennelerrors.NewStorageError("get_mock_data", err)
	}

	return ToMockData(row), nil
}

// BulkUpdate writes the editable columns of records in one statement. Every
// record must belong to scope and still exist.
func (r *Repository) BulkUpdate(ctx context.Context, scope models.TemplateScope, records []models.MockData) error {
	if len(records) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "MockDataRepository.BulkUpdate")
	defer span.End()

	u := &database.ValuesUpdate{
		Table:     mockDataTable,
		Key:       "id",
		Columns:   []string{"node_id", "name", "data", "is_default", "operator", "updated_at"},
		Casts:     []string{"bigint", "varchar", "varchar", "jsonb", "boolean", "varchar", "timestamptz"},
		Where:     []string{"t.space_id = %v", "t.template_id = %v"},
		WhereArgs: []any{scope.SpaceID, scope.TemplateID},
	}
	for _, record := range records {
		row := FromMockData(record)
		u.Add(row.ID, row.NodeID, row.Name, row.Data, row.IsDefault, row.Operator, row.UpdatedAt)
	}

	query, args := u.Build()

	r.fields(ctx, scope).WithField("count", len(records)).Debug("Bulk updating mock data")

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.fields(ctx, scope).WithError(err).Error("Failed to bulk update mock data")
		return fennelerrors.NewStorageError("bulk_update", err)
	}

	if err := expectAffected(result, len(records)); err != nil {
		r.fields(ctx, scope).WithError(err).Error("Bulk update touched an unexpected number of rows")
		return fennelerrors.NewStorageError("bulk_update", err)
	}

	return nil
}

// BulkCreate inserts records in one statement and returns them with the ids
// the store assigned, in input order.
func (r *Repository) BulkCreate(ctx context.Context, records []models.MockData) ([]models.MockData, error) {
	if len(records) == 0 {
		return nil, nil
	}

	ctx, span := tracing.StartSpan(ctx, "MockDataRepository.BulkCreate")
	defer span.End()

	ib := database.NewInsertBuilder().
		InsertInto(mockDataTable).
		Cols(mockDataColumns[1:]...)
	for _, record := range records {
		row := FromMockData(record)
		ib = ib.Values(row.SpaceID, row.TemplateID, row.NodeID, row.Name, row.Data, row.IsDefault, row.ExtraInfo, row.Operator, row.CreatedAt, row.UpdatedAt)
	}
	ib = ib.Returning(mockDataColumns...)

	query, args := ib.Build()

	scope := records[0].Scope()
	r.fields(ctx, scope).WithField("count", len(records)).Debug("Bulk creating mock data")

	rows, err := database.Conn(ctx, r.db).QueryxContext(ctx, query, args...)
	if err != nil {
		r.fields(ctx, scope).WithError(err).Error("Failed to bulk create mock data")
		return nil, fennelerrors.NewStorageError("bulk_create", err)
	}
	defer rows.Close()

	created := make([]models.MockData, 0, len(records))
	for rows.Next() {
		var row MockDataRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fennelerrors.NewStorageError("bulk_create", err)
		}
		created = append(created, ToMockData(row))
	}
	if err := rows.Err(); err != nil {
		r.fields(ctx, scope).WithError(err).Error("Failed to read created mock data")
		return nil, fennelerrors.NewStorageError("bulk_create", err)
	}
	if len(created) != len(records) {
		return nil, fennelerrors.NewStorageError("bulk_create", fmt.Errorf("inserted %d rows, expected %d", len(created), len(records)))
	}

	return created, nil
}

// DeleteByIDs removes ids from scope. Every id must still exist.
func (r *Repository) DeleteByIDs(ctx context.Context, scope models.TemplateScope, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "MockDataRepository.DeleteByIDs")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(mockDataTable)
	db.Where(
		db.Equal("space_id", scope.SpaceID),
		db.Equal("template_id", scope.TemplateID),
		db.In("id", database.Int64Args(ids)...),
	)

	query, args := db.Build()

	r.fields(ctx, scope).WithFields(map[string]any{"ids": ids}).Debug("Deleting mock data")

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.fields(ctx, scope).WithError(err).Error("Failed to delete mock data")
		return fennelerrors.NewStorageError("bulk_delete", err)
	}

	if err := expectAffected(result, len(ids)); err != nil {
		r.fields(ctx, scope).WithError(err).Error("Delete touched an unexpected number of rows")
		return fennelerrors.NewStorageError("bulk_delete", err)
	}

	return nil
}

// expectAffected fails when a concurrent writer removed rows the batch was
// computed against.
func expectAffected(result sql.Result, want int) error {
	got, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if got != int64(want) {
		return fmt.Errorf("affected %d rows, expected %d", got, want)
	}
	return nil
}
