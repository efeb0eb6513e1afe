package defaultset

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shop-core/internal/domain/apperr"
)

type entry struct {
	id   string
	def  bool
	note string
}

func (e entry) Key() string              { return e.id }
func (e entry) Default() bool            { return e.def }
func (e entry) WithDefault(v bool) entry { e.def = v; return e }

func defaults(items []entry) []string {
	var out []string
	for _, it := range items {
		if it.def {
			out = append(out, it.id)
		}
	}
	return out
}

func TestAdd(t *testing.T) {
	var c []entry

	c = Add(c, entry{id: "a"})
	assert.Equal(t, []string{"a"}, defaults(c), "first item becomes default")

	c = Add(c, entry{id: "b"})
	assert.Equal(t, []string{"a"}, defaults(c))

	c = Add(c, entry{id: "c", def: true})
	assert.Equal(t, []string{"c"}, defaults(c), "explicit default clears the old one")
	assert.Len(t, c, 3)
}

func TestAdd_DoesNotMutateInput(t *testing.T) {
	in := []entry{{id: "a", def: true}}
	out := Add(in, entry{id: "b", def: true})

	assert.True(t, in[0].def)
	assert.Equal(t, []string{"b"}, defaults(out))
}

func TestSetDefault(t *testing.T) {
	c := []entry{{id: "a", def: true}, {id: "b"}, {id: "c"}}

	out, err := SetDefault(c, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, defaults(out))
	assert.Equal(t, []string{"a"}, defaults(c))

	_, err = SetDefault(c, "zzz")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestRemove(t *testing.T) {
	tests := []struct {
		name    string
		in      []entry
		remove  string
		wantIDs []string
		wantDef []string
	}{
		{
			name:    "remove default promotes first remaining",
			in:      []entry{{id: "a", def: true}, {id: "b"}, {id: "c"}},
			remove:  "a",
			wantIDs: []string{"b", "c"},
			wantDef: []string{"b"},
		},
		{
			name:    "remove default in the middle",
			in:      []entry{{id: "a"}, {id: "b", def: true}, {id: "c"}},
			remove:  "b",
			wantIDs: []string{"a", "c"},
			wantDef: []string{"a"},
		},
		{
			name:    "remove non-default keeps default",
			in:      []entry{{id: "a"}, {id: "b", def: true}},
			remove:  "a",
			wantIDs: []string{"b"},
			wantDef: []string{"b"},
		},
		{
			name:    "remove last item leaves empty collection",
			in:      []entry{{id: "a", def: true}},
			remove:  "a",
			wantIDs: nil,
			wantDef: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Remove(tt.in, tt.remove)
			require.NoError(t, err)

			var ids []string
			for _, it := range out {
				ids = append(ids, it.id)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantDef, defaults(out))
		})
	}

	_, err := Remove([]entry{{id: "a", def: true}}, "b")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	c := []entry{{id: "a", def: true}, {id: "b"}}

	out, err := Update(c, entry{id: "b", note: "new", def: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, defaults(out))
	assert.Equal(t, "new", out[1].note)

	out, err = Update(out, entry{id: "b", note: "cleared"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, defaults(out), "current default cannot be cleared directly")
	assert.Equal(t, "cleared", out[1].note)

	out, err = Update(out, entry{id: "a", note: "plain"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, defaults(out))

	_, err = Update(out, entry{id: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDefaultAndFind(t *testing.T) {
	c := []entry{{id: "a"}, {id: "b", def: true}}

	d, ok := Default(c)
	require.True(t, ok)
	assert.Equal(t, "b", d.id)

	_, ok = Default([]entry{})
	assert.False(t, ok)

	f, ok := Find(c, "a")
	require.True(t, ok)
	assert.Equal(t, "a", f.id)

	_, ok = Find(c, "z")
	assert.False(t, ok)
}

func TestCheck(t *testing.T) {
	require.NoError(t, Check([]entry{}))
	require.NoError(t, Check([]entry{{id: "a", def: true}, {id: "b"}}))
	require.Error(t, Check([]entry{{id: "a"}, {id: "b"}}))
	require.Error(t, Check([]entry{{id: "a", def: true}, {id: "b", def: true}}))
}

// Any sequence of operations starting from an empty collection keeps exactly
// one default when non-empty and none when empty.
func TestInvariantHoldsForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))

	for run := range 200 {
		var (
			c    []entry
			next int
		)
		for step := range 50 {
			switch op := rng.IntN(4); {
			case op == 0 || len(c) == 0:
				next++
				c = Add(c, entry{id: fmt.Sprintf("i%d", next), def: rng.IntN(2) == 0})
			case op == 1:
				var err error
				c, err = SetDefault(c, c[rng.IntN(len(c))].id)
				require.NoError(t, err)
			case op == 2:
				var err error
				c, err = Remove(c, c[rng.IntN(len(c))].id)
				require.NoError(t, err)
			default:
				target := c[rng.IntN(len(c))]
				var err error
				c, err = Update(c, entry{id: target.id, def: rng.IntN(2) == 0, note: "u"})
				require.NoError(t, err)
			}
			require.NoError(t, Check(c), "run %d step %d: %v", run, step, c)
		}
	}
}
