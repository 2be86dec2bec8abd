package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/arcline-ai/arcline/runtime/agent/await"
	"github.com/arcline-ai/arcline/runtime/agent/executor"
	"github.com/arcline-ai/arcline/runtime/agent/store"
)

func TestEnsureIndexes(t *testing.T) {
	fc := newFakeCollection()
	err := ensureIndexes(context.Background(), fc)
	require.NoError(t, err)
	require.Equal(t, 2, fc.indexesCreated)
}

func TestPutGetRoundTrip(t *testing.T) {
	s := mustNewTestStore()
	err := s.Put(context.Background(), store.KindProcess, "p1", []byte(`{"status":"running"}`))
	require.NoError(t, err)

	data, err := s.Get(context.Background(), store.KindProcess, "p1")
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"running"}`, string(data))

	// A second put replaces the record in place.
	err = s.Put(context.Background(), store.KindProcess, "p1", []byte(`{"status":"completed"}`))
	require.NoError(t, err)
	data, err = s.Get(context.Background(), store.KindProcess, "p1")
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"completed"}`, string(data))
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := mustNewTestStore()
	_, err := s.Get(context.Background(), store.KindProcess, "absent")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := mustNewTestStore()
	require.NoError(t, s.Put(context.Background(), store.KindProcess, "p1", []byte("x")))
	require.NoError(t, s.Delete(context.Background(), store.KindProcess, "p1"))
	_, err := s.Get(context.Background(), store.KindProcess, "p1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListFiltersByKind(t *testing.T) {
	s := mustNewTestStore()
	require.NoError(t, s.Put(context.Background(), store.KindProcess, "p1", []byte("a")))
	require.NoError(t, s.Put(context.Background(), store.KindProcess, "p2", []byte("b")))
	require.NoError(t, s.Put(context.Background(), store.KindAwaitable, "aw1", []byte("c")))

	ids, err := s.List(context.Background(), store.KindProcess)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"p1", "p2"}, ids)

	ids, err = s.List(context.Background(), store.KindAwaitable)
	require.NoError(t, err)
	require.Equal(t, []string{"aw1"}, ids)
}

func TestEmptyIDRejected(t *testing.T) {
	s := mustNewTestStore()
	require.Error(t, s.Put(context.Background(), store.KindProcess, "", []byte("x")))
	_, err := s.Get(context.Background(), store.KindProcess, "")
	require.Error(t, err)
	require.Error(t, s.Delete(context.Background(), store.KindProcess, ""))
}

func TestAwaitableRecordRoundTrip(t *testing.T) {
	s := mustNewTestStore()
	aw := await.NewTypeRequest("Invoice", "pending_invoice", nil)
	rec := executor.AwaitableRecord{
		ID:        aw.ID,
		ProcessID: "p1",
		Kind:      aw.Kind,
		Payload:   aw.Payload,
		SavedAt:   time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), store.KindAwaitable, aw.ID, raw))

	restored, err := executor.LoadAwaitable(context.Background(), s, aw.ID)
	require.NoError(t, err)
	require.Equal(t, aw.ID, restored.ID)
	require.Equal(t, await.KindTypeRequest, restored.Kind)
	require.Equal(t, "pending_invoice", restored.Payload["bind"])
	require.True(t, restored.Persistent)
}

func mustNewTestStore() *Store {
	s, err := newStoreWithCollection(nil, newFakeCollection(), time.Second)
	if err != nil {
		panic(err)
	}
	return s
}

type fakeCollection struct {
	mu             sync.Mutex
	indexesCreated int
	docs           map[string]record
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: make(map[string]record)}
}

func filterVals(filter any) (kind, id string) {
	for _, e := range filter.(bson.D) {
		switch e.Key {
		case "kind":
			kind = e.Value.(string)
		case "record_id":
			id = e.Value.(string)
		}
	}
	return
}

func docKey(kind, id string) string { return kind + "/" + id }

func (c *fakeCollection) ReplaceOne(ctx context.Context, filter, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongodriver.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind, id := filterVals(filter)
	rec, ok := replacement.(record)
	if !ok {
		return nil, errors.New("unsupported replacement")
	}
	key := docKey(kind, id)
	res := &mongodriver.UpdateResult{MatchedCount: 1}
	if _, exists := c.docs[key]; !exists {
		res = &mongodriver.UpdateResult{UpsertedCount: 1}
	}
	c.docs[key] = rec
	return res, nil
}

func (c *fakeCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind, id := filterVals(filter)
	rec, ok := c.docs[docKey(kind, id)]
	if !ok {
		return fakeSingleResult{err: mongodriver.ErrNoDocuments}
	}
	return fakeSingleResult{doc: &rec}
}

func (c *fakeCollection) DeleteOne(ctx context.Context, filter any, opts ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind, id := filterVals(filter)
	key := docKey(kind, id)
	var deleted int64
	if _, ok := c.docs[key]; ok {
		delete(c.docs, key)
		deleted = 1
	}
	return &mongodriver.DeleteResult{DeletedCount: deleted}, nil
}

func (c *fakeCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (documentCursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind, _ := filterVals(filter)
	var matches []record
	for _, rec := range c.docs {
		if rec.Kind == kind {
			matches = append(matches, rec)
		}
	}
	return &fakeCursor{docs: matches}, nil
}

func (c *fakeCollection) Indexes() indexView {
	return fakeIndexView{created: &c.indexesCreated}
}

type fakeIndexView struct {
	created *int
}

func (v fakeIndexView) CreateMany(ctx context.Context, models []mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) ([]string, error) {
	names := make([]string, len(models))
	for i, m := range models {
		if len(m.Keys.(bson.D)) == 0 {
			return nil, errors.New("missing keys")
		}
		names[i] = "idx"
	}
	*v.created += len(models)
	return names, nil
}

type fakeSingleResult struct {
	doc *record
	err error
}

func (r fakeSingleResult) Decode(val any) error {
	if r.err != nil {
		return r.err
	}
	target, ok := val.(*record)
	if !ok {
		return errors.New("unsupported target")
	}
	*target = *r.doc
	return nil
}

type fakeCursor struct {
	docs []record
	pos  int
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Decode(val any) error {
	target, ok := val.(*record)
	if !ok {
		return errors.New("unsupported target")
	}
	*target = c.docs[c.pos-1]
	return nil
}

func (c *fakeCursor) Err() error { return nil }

func (c *fakeCursor) Close(context.Context) error { return nil }
