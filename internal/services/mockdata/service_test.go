package mockdata_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fennel/internal/services/mockdata"
	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
	"github.com/Ramsey-B/fennel/pkg/events"
	plan "github.com/Ramsey-B/fennel/pkg/mockdata"
	"github.com/Ramsey-B/fennel/pkg/models"
)

// memRepo keeps records in memory. failOn names a method that returns a
// storage error instead of running.
type memRepo struct {
	records map[int64]models.MockData
	nextID  int64
	failOn  string
	lists   int
}

func newMemRepo(seed ...models.MockData) *memRepo {
	r := &memRepo{records: map[int64]models.MockData{}, nextID: 1}
	for _, m := range seed {
		r.records[m.ID] = m
		if m.ID >= r.nextID {
			r.nextID = m.ID + 1
		}
	}
	return r
}

func (r *memRepo) injected(op string) error {
	if r.failOn == op {
		return fennelerrors.NewStorageError(op, errors.New("injected failure"))
	}
	return nil
}

func (r *memRepo) ListByTemplate(_ context.Context, scope models.TemplateScope) ([]models.MockData, error) {
	r.lists++
	if err := r.injected("list"); err != nil {
		return nil, err
	}
	out := []models.MockData{}
	for _, m := range r.records {
		if m.Scope() == scope {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memRepo) ListByNode(ctx context.Context, scope models.TemplateScope, nodeID string) ([]models.MockData, error) {
	all, err := r.ListByTemplate(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := []models.MockData{}
	for _, m := range all {
		if m.NodeID == nodeID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memRepo) GetByID(_ context.Context, scope models.TemplateScope, id int64) (models.MockData, error) {
	m, ok := r.records[id]
	if !ok || m.Scope() != scope {
		return models.MockData{}, httperror.NewHTTPError(http.StatusNotFound, "mock data not found")
	}
	return m, nil
}

func (r *memRepo) BulkUpdate(_ context.Context, scope models.TemplateScope, records []models.MockData) error {
	if err := r.injected("bulk_update"); err != nil {
		return err
	}
	for _, m := range records {
		current, ok := r.records[m.ID]
		if !ok || current.Scope() != scope {
			return fennelerrors.NewStorageError("bulk_update", errors.New("missing row"))
		}
		r.records[m.ID] = m
	}
	return nil
}

func (r *memRepo) BulkCreate(_ context.Context, records []models.MockData) ([]models.MockData, error) {
	if err := r.injected("bulk_create"); err != nil {
		return nil, err
	}
	created := make([]models.MockData, 0, len(records))
	for _, m := range records {
		m.ID = r.nextID
		r.nextID++
		r.records[m.ID] = m
		created = append(created, m)
	}
	return created, nil
}

func (r *memRepo) DeleteByIDs(_ context.Context, scope models.TemplateScope, ids []int64) error {
	if err := r.injected("bulk_delete"); err != nil {
		return err
	}
	for _, id := range ids {
		if m, ok := r.records[id]; !ok || m.Scope() != scope {
			return fennelerrors.NewStorageError("bulk_delete", errors.New("missing row"))
		}
		delete(r.records, id)
	}
	return nil
}

// memTx snapshots the repo when a transaction begins and restores it when fn
// fails, the way a rolled back database transaction would.
type memTx struct {
	repo      *memRepo
	commitErr error
	opts      *sql.TxOptions
}

func (tx *memTx) WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	tx.opts = opts
	snapshot := make(map[int64]models.MockData, len(tx.repo.records))
	for k, v := range tx.repo.records {
		snapshot[k] = v
	}
	nextID := tx.repo.nextID

	err := fn(ctx)
	if err == nil {
		err = tx.commitErr
	}
	if err != nil {
		tx.repo.records = snapshot
		tx.repo.nextID = nextID
	}
	return err
}

type capturePublisher struct {
	events []events.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return p.err
}

type memCache struct {
	entries map[models.TemplateScope][]models.MockData
}

func (c *memCache) Get(_ context.Context, scope models.TemplateScope) ([]models.MockData, bool, error) {
	v, ok := c.entries[scope]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, scope models.TemplateScope, records []models.MockData) error {
	c.entries[scope] = records
	return nil
}

// knownTemplates is the set of templates that exist.
type knownTemplates map[models.TemplateScope]bool

func (k knownTemplates) Exists(_ context.Context, scope models.TemplateScope) (bool, error) {
	return k[scope], nil
}

var scope = models.TemplateScope{SpaceID: 1, TemplateID: 100}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func seeded(id int64, nodeID, name string) models.MockData {
	return models.MockData{
		ID: id, SpaceID: scope.SpaceID, TemplateID: scope.TemplateID,
		NodeID: nodeID, Name: name, Data: json.RawMessage(`{}`), Operator: "alice",
	}
}

func fresh(name string) models.MockDataItem {
	return models.NewMockData{MockDataFields: models.MockDataFields{Name: name, Data: json.RawMessage(`{"n":"` + name + `"}`)}}
}

func existing(id int64, name string) models.MockDataItem {
	return models.ExistingMockData{ID: id, MockDataFields: models.MockDataFields{Name: name, Data: json.RawMessage(`{"n":"` + name + `"}`)}}
}

type fixture struct {
	repo      *memRepo
	tx        *memTx
	publisher *capturePublisher
	service   *mockdata.Service
}

func newFixture(seed ...models.MockData) *fixture {
	repo := newMemRepo(seed...)
	tx := &memTx{repo: repo}
	publisher := &capturePublisher{}
	return &fixture{
		repo:      repo,
		tx:        tx,
		publisher: publisher,
		service:   mockdata.NewService(repo, knownTemplates{scope: true}, tx, nil, publisher, testLogger()),
	}
}

func namesByID(records map[int64]models.MockData) map[int64]string {
	out := map[int64]string{}
	for id, m := range records {
		out[id] = m.Name
	}
	return out
}

func TestReconcile_WorkedExample(t *testing.T) {
	f := newFixture(seeded(1, "n1", "A"), seeded(2, "n1", "B"))

	result, err := f.service.Reconcile(context.Background(), "bob", scope, models.DesiredMockData{
		"n1": {existing(1, "A2"), fresh("C")},
		"n2": {fresh("D")},
	})
	require.NoError(t, err)

	assert.Equal(t, plan.Summary{Created: 2, Updated: 1, Deleted: 1}, result.Summary)
	require.Len(t, result.Records, 3)
	assert.Equal(t, map[int64]string{1: "A2", 3: "C", 4: "D"}, namesByID(f.repo.records))
	assert.Equal(t, "n2", f.repo.records[4].NodeID)
	assert.Equal(t, "bob", f.repo.records[1].Operator)

	assert.Equal(t, []string{"D", "C", "A2"}, []string{result.Records[0].Name, result.Records[1].Name, result.Records[2].Name})
	assert.Equal(t, sql.LevelReadCommitted, f.tx.opts.Isolation)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, events.KindMockDataReconciled, event.Kind)
	assert.Equal(t, "bob", event.Operator)
	assert.Equal(t, events.MockDataPayload{
		Created: 2, Updated: 1, Deleted: 1,
		NodeIDs:    []string{"n1", "n2"},
		DeletedIDs: []int64{2},
	}, event.Payload)
}

func TestReconcile_Properties(t *testing.T) {
	tests := []struct {
		name    string
		desired models.DesiredMockData
		want    map[int64]string
		summary plan.Summary
	}{
		{
			name:    "only new items",
			desired: models.DesiredMockData{"n1": {fresh("C")}, "n2": {fresh("D")}},
			want:    map[int64]string{3: "C", 4: "D"},
			summary: plan.Summary{Created: 2, Deleted: 2},
		},
		{
			name:    "empty desired",
			desired: models.DesiredMockData{},
			want:    map[int64]string{},
			summary: plan.Summary{Deleted: 2},
		},
		{
			name:    "every id referenced",
			desired: models.DesiredMockData{"n1": {existing(1, "A2"), existing(2, "B2")}},
			want:    map[int64]string{1: "A2", 2: "B2"},
			summary: plan.Summary{Updated: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(seeded(1, "n1", "A"), seeded(2, "n1", "B"))

			result, err := f.service.Reconcile(context.Background(), "bob", scope, tt.desired)
			require.NoError(t, err)

			assert.Equal(t, tt.summary, result.Summary)
			assert.Equal(t, tt.want, namesByID(f.repo.records))
			assert.Len(t, result.Records, len(tt.want))
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(seeded(1, "n1", "A"))
	ctx := context.Background()

	first, err := f.service.Reconcile(ctx, "bob", scope, models.DesiredMockData{
		"n1": {existing(1, "A2"), fresh("B")},
	})
	require.NoError(t, err)

	desired := models.DesiredMockData{}
	for _, m := range first.Records {
		desired[m.NodeID] = append(desired[m.NodeID], models.ExistingMockData{
			ID:             m.ID,
			MockDataFields: models.MockDataFields{Name: m.Name, Data: m.Data, IsDefault: m.IsDefault},
		})
	}

	second, err := f.service.Reconcile(ctx, "bob", scope, desired)
	require.NoError(t, err)

	assert.Equal(t, plan.Summary{Updated: 2}, second.Summary)
	require.Len(t, second.Records, len(first.Records))
	for i := range first.Records {
		assert.Equal(t, first.Records[i].ID, second.Records[i].ID)
		assert.Equal(t, first.Records[i].Name, second.Records[i].Name)
		assert.Equal(t, first.Records[i].NodeID, second.Records[i].NodeID)
		assert.Equal(t, first.Records[i].Data, second.Records[i].Data)
	}
}

func TestReconcile_UnknownIDLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(seeded(1, "n1", "A"), seeded(2, "n1", "B"))
	before := namesByID(f.repo.records)

	_, err := f.service.Reconcile(context.Background(), "bob", scope, models.DesiredMockData{
		"n1": {fresh("C"), existing(42, "ghost")},
	})
	require.Error(t, err)
	assert.True(t, fennelerrors.IsValidationError(err))
	assert.Equal(t, before, namesByID(f.repo.records))
	assert.Empty(t, f.publisher.events)
}

func TestReconcile_StorageFailureRollsBack(t *testing.T) {
	for _, op := range []string{"bulk_update", "bulk_create", "bulk_delete"} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(seeded(1, "n1", "A"), seeded(2, "n1", "B"))
			f.repo.failOn = op
			before := namesByID(f.repo.records)

			_, err := f.service.Reconcile(context.Background(), "bob", scope, models.DesiredMockData{
				"n1": {existing(1, "A2"), fresh("C")},
			})
			require.Error(t, err)
			assert.True(t, fennelerrors.IsStorageError(err))

			var storageErr *fennelerrors.StorageError
			require.ErrorAs(t, err, &storageErr)
			assert.Equal(t, op, storageErr.Op)

			assert.Equal(t, before, namesByID(f.repo.records))
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestReconcile_CommitFailureIsAStorageError(t *testing.T) {
	f := newFixture(seeded(1, "n1", "A"))
	f.tx.commitErr = errors.New("connection reset")

	_, err := f.service.Reconcile(context.Background(), "bob", scope, models.DesiredMockData{})
	require.Error(t, err)
	assert.True(t, fennelerrors.IsStorageError(err))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Len(t, f.repo.records, 1)
}

func TestReconcile_PublishFailureDoesNotFailTheWrite(t *testing.T) {
	f := newFixture(seeded(1, "n1", "A"))
	f.publisher.err = errors.New("kafka down")

	result, err := f.service.Reconcile(context.Background(), "bob", scope, models.DesiredMockData{})
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Empty(t, f.repo.records)
}

func TestReconcile_ScopesAreIndependent(t *testing.T) {
	other := seeded(9, "n1", "other")
	other.TemplateID = 200
	f := newFixture(seeded(1, "n1", "A"), other)

	_, err := f.service.Reconcile(context.Background(), "bob", scope, models.DesiredMockData{})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{9: "other"}, namesByID(f.repo.records))

	_, err = f.service.Reconcile(context.Background(), "bob", scope, models.DesiredMockData{"n1": {existing(9, "steal")}})
	assert.True(t, fennelerrors.IsValidationError(err))
}

func TestWrites_UnknownTemplate(t *testing.T) {
	missing := models.TemplateScope{SpaceID: scope.SpaceID, TemplateID: 404}
	desired := models.DesiredMockData{"n1": {fresh("A")}}

	writes := map[string]func(f *fixture) error{
		"reconcile": func(f *fixture) error {
			_, err := f.service.Reconcile(context.Background(), "bob", missing, desired)
			return err
		},
		"batch create": func(f *fixture) error {
			_, err := f.service.BatchCreate(context.Background(), "bob", missing, desired)
			return err
		},
	}

	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			f := newFixture(seeded(1, "n1", "A"))

			err := write(f)
			require.Error(t, err)
			assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
			assert.Equal(t, map[int64]string{1: "A"}, namesByID(f.repo.records))
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestBatchCreate(t *testing.T) {
	t.Run("creates without touching existing records", func(t *testing.T) {
		f := newFixture(seeded(1, "n1", "A"))

		result, err := f.service.BatchCreate(context.Background(), "bob", scope, models.DesiredMockData{
			"n2": {fresh("B"), fresh("C")},
		})
		require.NoError(t, err)

		assert.Equal(t, plan.Summary{Created: 2}, result.Summary)
		assert.Len(t, f.repo.records, 3)
		require.Len(t, result.Records, 3)
		assert.Equal(t, map[int64]string{1: "A", 2: "B", 3: "C"}, namesByID(map[int64]models.MockData{
			result.Records[0].ID: result.Records[0],
			result.Records[1].ID: result.Records[1],
			result.Records[2].ID: result.Records[2],
		}))

		require.Len(t, f.publisher.events, 1)
		assert.Equal(t, events.KindMockDataCreated, f.publisher.events[0].Kind)
	})

	t.Run("returns every record of the scope", func(t *testing.T) {
		f := newFixture(seeded(1, "n1", "A"))

		result, err := f.service.BatchCreate(context.Background(), "bob", scope, models.DesiredMockData{
			"n2": {fresh("B")},
		})
		require.NoError(t, err)

		require.Len(t, result.Records, 2)
		assert.Equal(t, "B", result.Records[0].Name)
		assert.Equal(t, "A", result.Records[1].Name)
		assert.Equal(t, 1, f.repo.lists)
	})

	t.Run("rejects ids", func(t *testing.T) {
		f := newFixture(seeded(1, "n1", "A"))

		_, err := f.service.BatchCreate(context.Background(), "bob", scope, models.DesiredMockData{
			"n1": {existing(1, "A")},
		})
		assert.True(t, fennelerrors.IsValidationError(err))
		assert.Len(t, f.repo.records, 1)
	})

	t.Run("storage failure", func(t *testing.T) {
		f := newFixture()
		f.repo.failOn = "bulk_create"

		_, err := f.service.BatchCreate(context.Background(), "bob", scope, models.DesiredMockData{"n1": {fresh("A")}})
		assert.True(t, fennelerrors.IsStorageError(err))
		assert.Empty(t, f.publisher.events)
	})
}

func TestList_UsesCache(t *testing.T) {
	repo := newMemRepo(seeded(1, "n1", "A"))
	cache := &memCache{entries: map[models.TemplateScope][]models.MockData{}}
	service := mockdata.NewService(repo, knownTemplates{scope: true}, &memTx{repo: repo}, cache, nil, testLogger())
	ctx := context.Background()

	first, err := service.List(ctx, scope)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, repo.lists)
	assert.Len(t, cache.entries[scope], 1)

	second, err := service.List(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.lists)
}

func TestListByNodeAndGet(t *testing.T) {
	f := newFixture(seeded(1, "n1", "A"), seeded(2, "n2", "B"))
	ctx := context.Background()

	records, err := f.service.ListByNode(ctx, scope, "n2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "B", records[0].Name)

	record, err := f.service.Get(ctx, scope, 1)
	require.NoError(t, err)
	assert.Equal(t, "A", record.Name)

	_, err = f.service.Get(ctx, scope, 3)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}
