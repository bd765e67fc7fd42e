package mockdata

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Ramsey-B/fennel/pkg/database"
	"github.com/Ramsey-B/fennel/pkg/models"
)

const (
	mockDataTable = "template_mock_data"
)

var mockDataColumns = []string{
	"id",
	"space_id",
	"template_id",
	"node_id",
	"name",
	"data",
	"is_default",
	"extra_info",
	"operator",
	"created_at",
	"updated_at",
}

// MockDataRow is the template_mock_data row.
type MockDataRow struct {
	ID         int64            `db:"id"`
	SpaceID    int64            `db:"space_id"`
	TemplateID int64            `db:"template_id"`
	NodeID     string           `db:"node_id"`
	Name       string           `db:"name"`
	Data       database.RawJSON `db:"data"`
	IsDefault  bool             `db:"is_default"`
	ExtraInfo  database.RawJSON `db:"extra_info"`
	Operator   sql.NullString   `db:"operator"`
	CreatedAt  time.Time        `db:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at"`
}

var mockDataStruct = database.NewStruct(new(MockDataRow))

func FromMockData(m models.MockData) MockDataRow {
	return MockDataRow{
		ID:         m.ID,
		SpaceID:    m.SpaceID,
		TemplateID: m.TemplateID,
		NodeID:     m.NodeID,
		Name:       m.Name,
		Data:       database.RawJSON(m.Data),
		IsDefault:  m.IsDefault,
		ExtraInfo:  database.RawJSON(m.ExtraInfo),
		Operator:   sql.NullString{String: m.Operator, Valid: m.Operator != ""},
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

func ToMockData(row MockDataRow) models.MockData {
	return models.MockData{
		ID:         row.ID,
		SpaceID:    row.SpaceID,
		TemplateID: row.TemplateID,
		NodeID:     row.NodeID,
		Name:       row.Name,
		Data:       json.RawMessage(row.Data),
		IsDefault:  row.IsDefault,
		ExtraInfo:  json.RawMessage(row.ExtraInfo),
		Operator:   row.Operator.String,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

func ToMockDataList(rows []MockDataRow) []models.MockData {
	records := make([]models.MockData, len(rows))
	for i, row := range rows {
		records[i] = ToMockData(row)
	}
	return records
}
