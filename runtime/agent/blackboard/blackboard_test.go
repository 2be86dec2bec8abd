package blackboard

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/arcline-ai/arcline/runtime/agent/domain"
)

type report struct {
	Title string
}

type note struct {
	Body string
}

func newTestRegistry(t *testing.T) *domain.Registry {
	t.Helper()
	r := domain.NewRegistry()
	r.MustRegister(domain.Reflected("Report", report{}))
	r.MustRegister(domain.Reflected("Note", note{}))
	return r
}

func TestBindAppendsAndLookupSeesLatest(t *testing.T) {
	bb := New(newTestRegistry(t))
	bb.Bind("draft", &report{Title: "v1"})
	bb.Bind("draft", &report{Title: "v2"})

	v, ok := bb.Get("draft")
	require.True(t, ok)
	require.Equal(t, "v2", v.(*report).Title)

	// Both entries remain in the object history.
	require.Len(t, bb.Objects(), 2)
	require.Equal(t, 2, bb.Len())
}

func TestLastReturnsNewestAssignable(t *testing.T) {
	bb := New(newTestRegistry(t))
	bb.AddObject(&report{Title: "old"})
	bb.AddObject(&note{Body: "interleaved"})
	bb.AddObject(&report{Title: "new"})

	v := bb.Last("Report")
	require.NotNil(t, v)
	require.Equal(t, "new", v.(*report).Title)

	require.Nil(t, New(newTestRegistry(t)).Last("Report"))
}

func TestHideExcludesFromSnapshotsButKeepsByID(t *testing.T) {
	bb := New(newTestRegistry(t))
	r := &report{Title: "secret"}
	id := bb.AddObject(r)

	require.True(t, bb.Hide(r))
	require.Nil(t, bb.Last("Report"))
	require.Empty(t, bb.Objects())

	entry, ok := bb.GetByID(id)
	require.True(t, ok)
	require.True(t, entry.Hidden)
	require.Same(t, r, entry.Value.(*report))

	require.False(t, bb.Hide(r), "already hidden")
}

func TestConditions(t *testing.T) {
	bb := New(nil)
	_, ok := bb.GetCondition("approved")
	require.False(t, ok)

	bb.SetCondition("approved", true)
	v, ok := bb.GetCondition("approved")
	require.True(t, ok)
	require.True(t, v)

	bb.SetCondition("approved", false)
	v, ok = bb.GetCondition("approved")
	require.True(t, ok)
	require.False(t, v)
}

func TestSpawnIsolation(t *testing.T) {
	bb := New(newTestRegistry(t))
	bb.Bind("draft", &report{Title: "parent"})
	bb.SetCondition("ready", true)

	child := bb.Spawn()
	require.Equal(t, 1, child.Len())
	v, ok := child.GetCondition("ready")
	require.True(t, ok)
	require.True(t, v)

	child.Bind("draft", &report{Title: "child"})
	child.SetCondition("ready", false)

	pv, _ := bb.Get("draft")
	require.Equal(t, "parent", pv.(*report).Title)
	v, _ = bb.GetCondition("ready")
	require.True(t, v, "child writes must not leak into the parent")
}

func TestLastOf(t *testing.T) {
	bb := New(nil)
	bb.AddObject(&report{Title: "a"})
	bb.AddObject("just a string")

	r, ok := LastOf[*report](bb)
	require.True(t, ok)
	require.Equal(t, "a", r.Title)

	s, ok := LastOf[string](bb)
	require.True(t, ok)
	require.Equal(t, "just a string", s)

	// Pointer entries satisfy value-typed lookups.
	rv, ok := LastOf[report](bb)
	require.True(t, ok)
	require.Equal(t, "a", rv.Title)

	_, ok = LastOf[int](bb)
	require.False(t, ok)
}

func TestClear(t *testing.T) {
	bb := New(newTestRegistry(t))
	bb.Bind("draft", &report{})
	bb.SetCondition("ready", true)
	bb.Clear()
	require.Zero(t, bb.Len())
	_, ok := bb.Get("draft")
	require.False(t, ok)
	_, ok = bb.GetCondition("ready")
	require.False(t, ok)
}

// The newest assignable value always wins Last, regardless of how many older
func TestObserveSeesAppends(t *testing.T) {
	bb := New(newTestRegistry(t))
	bb.AddObject(&report{Title: "before"})

	var seen []Entry
	bb.Observe(func(e Entry) { seen = append(seen, e) })

	id := bb.AddObject(&report{Title: "anon"})
	bb.Bind("draft", &report{Title: "named"})
	bb.SetCondition("ready", true)

	require.Len(t, seen, 2, "only appends notify, and only after registration")
	require.Equal(t, id, seen[0].ID)
	require.Empty(t, seen[0].Name)
	require.Equal(t, "draft", seen[1].Name)
	require.Equal(t, "named", seen[1].Value.(*report).Title)

	// The callback may read the blackboard without deadlocking.
	bb.Observe(func(Entry) { _ = bb.Len() })
	bb.AddObject(&report{Title: "reentrant"})
}

// values of the same type precede it.
func TestLastNewestWinsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	registry := domain.NewRegistry()
	registry.MustRegister(domain.Reflected("Report", report{}))

	properties.Property("Last returns the newest report", prop.ForAll(
		func(titles []string) bool {
			if len(titles) == 0 {
				return true
			}
			bb := New(registry)
			for i, title := range titles {
				bb.AddObject(&report{Title: fmt.Sprintf("%d:%s", i, title)})
			}
			v := bb.Last("Report")
			if v == nil {
				return false
			}
			want := fmt.Sprintf("%d:%s", len(titles)-1, titles[len(titles)-1])
			return v.(*report).Title == want
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
