package redis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/arcline-ai/arcline/runtime/agent/await"
	"github.com/arcline-ai/arcline/runtime/agent/executor"
	"github.com/arcline-ai/arcline/runtime/agent/store"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := mustNewTestStore(t, 0)
	err := s.Put(context.Background(), store.KindProcess, "p1", []byte(`{"status":"running"}`))
	require.NoError(t, err)

	data, err := s.Get(context.Background(), store.KindProcess, "p1")
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"running"}`, string(data))

	err = s.Put(context.Background(), store.KindProcess, "p1", []byte(`{"status":"completed"}`))
	require.NoError(t, err)
	data, err = s.Get(context.Background(), store.KindProcess, "p1")
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"completed"}`, string(data))
}

func TestKeysArePrefixed(t *testing.T) {
	s, fc := mustNewTestStore(t, 0)
	require.NoError(t, s.Put(context.Background(), store.KindProcess, "p1", []byte("x")))

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Contains(t, fc.data, "arcline:process:p1")
	require.True(t, fc.indexes["arcline:process:index"]["p1"])
}

func TestGetMissingIsNotFound(t *testing.T) {
	s, _ := mustNewTestStore(t, 0)
	_, err := s.Get(context.Background(), store.KindProcess, "absent")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteRemovesRecordAndIndex(t *testing.T) {
	s, fc := mustNewTestStore(t, 0)
	require.NoError(t, s.Put(context.Background(), store.KindProcess, "p1", []byte("x")))
	require.NoError(t, s.Delete(context.Background(), store.KindProcess, "p1"))

	_, err := s.Get(context.Background(), store.KindProcess, "p1")
	require.ErrorIs(t, err, store.ErrNotFound)

	ids, err := s.List(context.Background(), store.KindProcess)
	require.NoError(t, err)
	require.Empty(t, ids)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.NotContains(t, fc.data, "arcline:process:p1")
}

func TestListReturnsIndexedIDs(t *testing.T) {
	s, _ := mustNewTestStore(t, 0)
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

func TestTTLForwardedToWrites(t *testing.T) {
	s, fc := mustNewTestStore(t, time.Minute)
	require.NoError(t, s.Put(context.Background(), store.KindProcess, "p1", []byte("x")))

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Equal(t, time.Minute, fc.ttls["arcline:process:p1"])
}

func TestEmptyIDRejected(t *testing.T) {
	s, _ := mustNewTestStore(t, 0)
	require.Error(t, s.Put(context.Background(), store.KindProcess, "", []byte("x")))
}

func TestAwaitableRecordRoundTrip(t *testing.T) {
	s, _ := mustNewTestStore(t, 0)
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

func TestPing(t *testing.T) {
	s, _ := mustNewTestStore(t, 0)
	require.NoError(t, s.Ping(context.Background()))
}

func mustNewTestStore(t *testing.T, ttl time.Duration) (*Store, *fakeCommands) {
	t.Helper()
	fc := newFakeCommands()
	s, err := newStoreWithCommands(fc, "", ttl)
	require.NoError(t, err)
	return s, fc
}

type fakeCommands struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	indexes map[string]map[string]bool
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{
		data:    make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
		indexes: make(map[string]map[string]bool),
	}
}

func (c *fakeCommands) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (c *fakeCommands) Get(ctx context.Context, key string) *goredis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := goredis.NewStringCmd(ctx)
	data, ok := c.data[key]
	if !ok {
		cmd.SetErr(goredis.Nil)
		return cmd
	}
	cmd.SetVal(string(data))
	return cmd
}

func (c *fakeCommands) SMembers(ctx context.Context, key string) *goredis.StringSliceCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := goredis.NewStringSliceCmd(ctx)
	members := make([]string, 0, len(c.indexes[key]))
	for m := range c.indexes[key] {
		members = append(members, m)
	}
	cmd.SetVal(members)
	return cmd
}

func (c *fakeCommands) TxPipeline() goredis.Pipeliner {
	return &fakePipeline{c: c}
}

// fakePipeline queues writes and applies them on Exec. Only the commands the
// store issues are overridden; anything else panics through the embedded nil
// Pipeliner.
type fakePipeline struct {
	goredis.Pipeliner
	c   *fakeCommands
	ops []func()
}

func (p *fakePipeline) Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	data := toBytes(value)
	p.ops = append(p.ops, func() {
		p.c.data[key] = data
		p.c.ttls[key] = expiration
	})
	cmd := goredis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (p *fakePipeline) SAdd(ctx context.Context, key string, members ...any) *goredis.IntCmd {
	p.ops = append(p.ops, func() {
		set := p.c.indexes[key]
		if set == nil {
			set = make(map[string]bool)
			p.c.indexes[key] = set
		}
		for _, m := range members {
			set[m.(string)] = true
		}
	})
	return goredis.NewIntCmd(ctx)
}

func (p *fakePipeline) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	p.ops = append(p.ops, func() {
		for _, key := range keys {
			delete(p.c.data, key)
			delete(p.c.ttls, key)
		}
	})
	return goredis.NewIntCmd(ctx)
}

func (p *fakePipeline) SRem(ctx context.Context, key string, members ...any) *goredis.IntCmd {
	p.ops = append(p.ops, func() {
		for _, m := range members {
			delete(p.c.indexes[key], m.(string))
		}
	})
	return goredis.NewIntCmd(ctx)
}

func (p *fakePipeline) Exec(ctx context.Context) ([]goredis.Cmder, error) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	for _, op := range p.ops {
		op()
	}
	p.ops = nil
	return nil, nil
}

func toBytes(value any) []byte {
	switch v := value.(type) {
	case []byte:
		return append([]byte(nil), v...)
	case string:
		return []byte(v)
	default:
		return nil
	}
}
