package mockdata_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fennel/internal/repositories/mockdata"
	"github.com/Ramsey-B/fennel/internal/testsupport"
	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
	"github.com/Ramsey-B/fennel/pkg/models"
)

func newRecord(scope models.TemplateScope, nodeID, name string) models.MockData {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return models.MockData{
		SpaceID:    scope.SpaceID,
		TemplateID: scope.TemplateID,
		NodeID:     nodeID,
		Name:       name,
		Data:       json.RawMessage(`{"input":"` + name + `"}`),
		Operator:   "alice",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestRepository_Integration(t *testing.T) {
	db := testsupport.StartPostgres(t)
	repo := mockdata.NewRepository(db, testsupport.Logger())
	ctx := context.Background()

	scope := models.TemplateScope{SpaceID: 1, TemplateID: 10}
	other := models.TemplateScope{SpaceID: 1, TemplateID: 11}

	created, err := repo.BulkCreate(ctx, []models.MockData{
		newRecord(scope, "n1", "A"),
		newRecord(scope, "n1", "B"),
		newRecord(scope, "n2", "C"),
	})
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.Equal(t, "A", created[0].Name)
	assert.Less(t, created[0].ID, created[1].ID)
	assert.Less(t, created[1].ID, created[2].ID)

	_, err = repo.BulkCreate(ctx, []models.MockData{newRecord(other, "n1", "X")})
	require.NoError(t, err)

	t.Run("list is scoped and newest first", func(t *testing.T) {
		records, err := repo.ListByTemplate(ctx, scope)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, []string{"C", "B", "A"}, []string{records[0].Name, records[1].Name, records[2].Name})
		assert.JSONEq(t, `{"input":"A"}`, string(records[2].Data))
	})

	t.Run("list by node", func(t *testing.T) {
		records, err := repo.ListByNode(ctx, scope, "n1")
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("get", func(t *testing.T) {
		record, err := repo.GetByID(ctx, scope, created[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "A", record.Name)

		_, err = repo.GetByID(ctx, other, created[0].ID)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("bulk update", func(t *testing.T) {
		a, b := created[0], created[1]
		a.Name, a.NodeID, a.IsDefault, a.Operator = "A2", "n3", true, "bob"
		a.Data = json.RawMessage(`[1,2]`)
		b.Name = "B2"

		require.NoError(t, repo.BulkUpdate(ctx, scope, []models.MockData{a, b}))

		got, err := repo.GetByID(ctx, scope, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "A2", got.Name)
		assert.Equal(t, "n3", got.NodeID)
		assert.True(t, got.IsDefault)
		assert.Equal(t, "bob", got.Operator)
		assert.JSONEq(t, `[1,2]`, string(got.Data))
	})

	t.Run("bulk update of a missing record fails", func(t *testing.T) {
		missing := newRecord(scope, "n1", "ghost")
		missing.ID = 999999

		err := repo.BulkUpdate(ctx, scope, []models.MockData{missing})
		require.Error(t, err)
		assert.True(t, fennelerrors.IsStorageError(err))
	})

	t.Run("delete is scoped", func(t *testing.T) {
		err := repo.DeleteByIDs(ctx, other, []int64{created[2].ID})
		require.Error(t, err)
		assert.True(t, fennelerrors.IsStorageError(err))

		require.NoError(t, repo.DeleteByIDs(ctx, scope, []int64{created[2].ID}))
		records, err := repo.ListByTemplate(ctx, scope)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("writes inside a rolled back transaction are discarded", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithinTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context) error {
			if _, err := repo.BulkCreate(ctx, []models.MockData{newRecord(scope, "n9", "Z")}); err != nil {
				return err
			}
			if err := repo.DeleteByIDs(ctx, scope, []int64{created[0].ID}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		records, err := repo.ListByTemplate(ctx, scope)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})
}
