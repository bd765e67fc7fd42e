package mockdata_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
	"github.com/Ramsey-B/fennel/pkg/mockdata"
	"github.com/Ramsey-B/fennel/pkg/models"
)

var (
	scope = models.TemplateScope{SpaceID: 7, TemplateID: 42}
	now   = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	past  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func record(id int64, nodeID, name string) models.MockData {
	return models.MockData{
		ID:         id,
		SpaceID:    scope.SpaceID,
		TemplateID: scope.TemplateID,
		NodeID:     nodeID,
		Name:       name,
		Data:       json.RawMessage(`{"v":1}`),
		Operator:   "alice",
		CreatedAt:  past,
		UpdatedAt:  past,
	}
}

func fields(name string) models.MockDataFields {
	return models.MockDataFields{Name: name, Data: json.RawMessage(`{"v":2}`)}
}

func existing(id int64, name string) models.MockDataItem {
	return models.ExistingMockData{ID: id, MockDataFields: fields(name)}
}

func fresh(name string) models.MockDataItem {
	return models.NewMockData{MockDataFields: fields(name)}
}

func names(records []models.MockData) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

func TestNewPlan(t *testing.T) {
	persisted := []models.MockData{record(1, "n1", "A"), record(2, "n1", "B")}

	tests := []struct {
		name        string
		desired     models.DesiredMockData
		wantUpdates []string
		wantCreates []string
		wantDeletes []int64
	}{
		{
			name: "only new items creates everything and deletes the rest",
			desired: models.DesiredMockData{
				"n1": {fresh("C")},
				"n2": {fresh("D"), fresh("E")},
			},
			wantCreates: []string{"C", "D", "E"},
			wantDeletes: []int64{1, 2},
		},
		{
			name:        "empty desired deletes every record",
			desired:     models.DesiredMockData{},
			wantDeletes: []int64{1, 2},
		},
		{
			name:        "nil desired deletes every record",
			desired:     nil,
			wantDeletes: []int64{1, 2},
		},
		{
			name: "every id referenced updates in place",
			desired: models.DesiredMockData{
				"n1": {existing(2, "B2"), existing(1, "A2")},
			},
			wantUpdates: []string{"B2", "A2"},
		},
		{
			name: "mixed update create delete",
			desired: models.DesiredMockData{
				"n1": {existing(1, "A2"), fresh("C")},
				"n2": {fresh("D")},
			},
			wantUpdates: []string{"A2"},
			wantCreates: []string{"C", "D"},
			wantDeletes: []int64{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := mockdata.NewPlan("bob", scope, persisted, tt.desired, now)
			require.NoError(t, err)

			assert.Equal(t, scope, plan.Scope)
			assert.Equal(t, tt.wantUpdates, nilIfEmpty(names(plan.Updates)))
			assert.Equal(t, tt.wantCreates, nilIfEmpty(names(plan.Creates)))
			assert.Equal(t, tt.wantDeletes, plan.Deletes)
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestNewPlan_WorkedExample(t *testing.T) {
	persisted := []models.MockData{record(1, "n1", "A"), record(2, "n1", "B")}
	desired := models.DesiredMockData{
		"n2": {fresh("D")},
		"n1": {existing(1, "A2"), fresh("C")},
	}

	plan, err := mockdata.NewPlan("bob", scope, persisted, desired, now)
	require.NoError(t, err)

	require.Len(t, plan.Updates, 1)
	updated := plan.Updates[0]
	assert.Equal(t, int64(1), updated.ID)
	assert.Equal(t, "A2", updated.Name)
	assert.Equal(t, "n1", updated.NodeID)
	assert.Equal(t, "bob", updated.Operator)
	assert.Equal(t, past, updated.CreatedAt)
	assert.Equal(t, now, updated.UpdatedAt)
	assert.JSONEq(t, `{"v":2}`, string(updated.Data))

	require.Len(t, plan.Creates, 2)
	assert.Equal(t, "C", plan.Creates[0].Name)
	assert.Equal(t, "n1", plan.Creates[0].NodeID)
	assert.Equal(t, "D", plan.Creates[1].Name)
	assert.Equal(t, "n2", plan.Creates[1].NodeID)
	for _, c := range plan.Creates {
		assert.Zero(t, c.ID)
		assert.Equal(t, scope, c.Scope())
		assert.Equal(t, "bob", c.Operator)
		assert.Equal(t, now, c.CreatedAt)
	}

	assert.Equal(t, []int64{2}, plan.Deletes)
	assert.Equal(t, mockdata.Summary{Created: 2, Updated: 1, Deleted: 1}, plan.Summary())
	assert.Equal(t, []string{"n1", "n2"}, plan.NodeIDs())

	finalSize := len(persisted) - len(plan.Deletes) + len(plan.Creates)
	assert.Equal(t, 3, finalSize)
}

func TestNewPlan_MovesRecordBetweenNodes(t *testing.T) {
	persisted := []models.MockData{record(1, "n1", "A")}

	plan, err := mockdata.NewPlan("bob", scope, persisted, models.DesiredMockData{"n9": {existing(1, "A")}}, now)
	require.NoError(t, err)

	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "n9", plan.Updates[0].NodeID)
	assert.Empty(t, plan.Deletes)
}

func TestNewPlan_DoesNotMutateExisting(t *testing.T) {
	persisted := []models.MockData{record(1, "n1", "A")}

	_, err := mockdata.NewPlan("bob", scope, persisted, models.DesiredMockData{"n1": {existing(1, "A2")}}, now)
	require.NoError(t, err)

	assert.Equal(t, "A", persisted[0].Name)
	assert.Equal(t, "alice", persisted[0].Operator)
}

func TestNewPlan_Idempotent(t *testing.T) {
	persisted := []models.MockData{record(1, "n1", "A")}
	desired := models.DesiredMockData{"n1": {existing(1, "A2")}}

	first, err := mockdata.NewPlan("bob", scope, persisted, desired, now)
	require.NoError(t, err)

	second, err := mockdata.NewPlan("bob", scope, first.Updates, desired, now.Add(time.Minute))
	require.NoError(t, err)

	assert.Empty(t, second.Creates)
	assert.Empty(t, second.Deletes)
	require.Len(t, second.Updates, 1)

	a, b := first.Updates[0], second.Updates[0]
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.NodeID, b.NodeID)
	assert.Equal(t, a.Name, b.Name)
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, a.IsDefault, b.IsDefault)
}

func TestNewPlan_ValidationErrors(t *testing.T) {
	persisted := []models.MockData{record(1, "n1", "A")}

	tests := []struct {
		name     string
		operator string
		desired  models.DesiredMockData
		wantNode string
		wantItem *int64
		contains string
	}{
		{
			name:     "unknown id",
			operator: "bob",
			desired:  models.DesiredMockData{"n1": {existing(99, "X")}},
			wantNode: "n1",
			wantItem: ptr(99),
			contains: "does not exist",
		},
		{
			name:     "duplicate id",
			operator: "bob",
			desired:  models.DesiredMockData{"n1": {existing(1, "A")}, "n2": {existing(1, "A again")}},
			wantNode: "n2",
			wantItem: ptr(1),
			contains: "more than once",
		},
		{
			name:     "missing operator",
			desired:  models.DesiredMockData{},
			contains: "operator is required",
		},
		{
			name:     "operator too long",
			operator: strings.Repeat("o", mockdata.MaxOperatorLength+1),
			desired:  models.DesiredMockData{},
			contains: "operator must be at most",
		},
		{
			name:     "empty node id",
			operator: "bob",
			desired:  models.DesiredMockData{"": {fresh("A")}},
			contains: "node id is required",
		},
		{
			name:     "node id too long",
			operator: "bob",
			desired:  models.DesiredMockData{strings.Repeat("n", mockdata.MaxNodeIDLength+1): {fresh("A")}},
			wantNode: strings.Repeat("n", mockdata.MaxNodeIDLength+1),
			contains: "node id must be at most",
		},
		{
			name:     "empty name",
			operator: "bob",
			desired:  models.DesiredMockData{"n1": {fresh("")}},
			wantNode: "n1",
			contains: "name is required",
		},
		{
			name:     "invalid data",
			operator: "bob",
			desired: models.DesiredMockData{"n1": {models.NewMockData{MockDataFields: models.MockDataFields{
				Name: "A", Data: json.RawMessage(`{oops`),
			}}}},
			wantNode: "n1",
			contains: "data must be a JSON value",
		},
		{
			name:     "nil item",
			operator: "bob",
			desired:  models.DesiredMockData{"n1": {nil}},
			wantNode: "n1",
			contains: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := mockdata.NewPlan(tt.operator, scope, persisted, tt.desired, now)
			require.Error(t, err)
			assert.Nil(t, plan)
			assert.True(t, fennelerrors.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.contains)

			verr := err.(*fennelerrors.ValidationError)
			assert.Equal(t, tt.wantNode, verr.NodeID)
			assert.Equal(t, tt.wantItem, verr.ItemID)
		})
	}
}

func TestNewPlan_IsDefaultNotUnique(t *testing.T) {
	item := models.NewMockData{MockDataFields: models.MockDataFields{Name: "A", Data: json.RawMessage(`1`), IsDefault: true}}

	plan, err := mockdata.NewPlan("bob", scope, nil, models.DesiredMockData{"n1": {item, item}}, now)
	require.NoError(t, err)

	require.Len(t, plan.Creates, 2)
	assert.True(t, plan.Creates[0].IsDefault)
	assert.True(t, plan.Creates[1].IsDefault)
}

func TestNewCreatePlan(t *testing.T) {
	t.Run("creates every item", func(t *testing.T) {
		plan, err := mockdata.NewCreatePlan("bob", scope, models.DesiredMockData{
			"b": {fresh("B1"), fresh("B2")},
			"a": {fresh("A1")},
		}, now)
		require.NoError(t, err)

		assert.Equal(t, []string{"A1", "B1", "B2"}, names(plan.Creates))
		assert.Empty(t, plan.Updates)
		assert.Empty(t, plan.Deletes)
		assert.False(t, plan.IsEmpty())
	})

	t.Run("rejects ids", func(t *testing.T) {
		_, err := mockdata.NewCreatePlan("bob", scope, models.DesiredMockData{"a": {existing(1, "A")}}, now)
		require.Error(t, err)
		assert.True(t, fennelerrors.IsValidationError(err))
		assert.Contains(t, err.Error(), "id is not allowed")
	})

	t.Run("empty input is an empty plan", func(t *testing.T) {
		plan, err := mockdata.NewCreatePlan("bob", scope, nil, now)
		require.NoError(t, err)
		assert.True(t, plan.IsEmpty())
	})
}

func ptr(v int64) *int64 {
	return &v
}
