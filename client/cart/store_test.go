package cart

import (
	"testing"

	"github.com/shopswift/storefront/client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadIsDefensive(t *testing.T) {
	st := storage.NewMemoryStore()
	s := NewStore(st, nil)

	assert.Empty(t, s.Load())
	assert.NotNil(t, s.Load())

	require.NoError(t, st.Set(storage.KeyGuestCart, []byte(`{not json`)))
	assert.Empty(t, s.Load())

	require.NoError(t, st.Set(storage.KeyGuestCart, []byte(`[{"product_id":1,"quantity":-2},{"product_id":0,"quantity":1},{"product_id":2,"quantity":1}]`)))
	assert.Equal(t, map[uint]int{2: 1}, quantities(s.Load()))
}

func TestStoreSaveAndClear(t *testing.T) {
	st := storage.NewMemoryStore()
	s := NewStore(st, nil)

	require.NoError(t, s.Save(nil))
	raw, ok, err := st.Get(storage.KeyGuestCart)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", string(raw))

	require.NoError(t, s.Clear())
	_, ok, err = st.Get(storage.KeyGuestCart)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreLoadCapsQuantities(t *testing.T) {
	st := storage.NewMemoryStore()
	s := NewStore(st, nil)

	require.NoError(t, st.Set(storage.KeyGuestCart, []byte(`[{"product_id":1,"quantity":2147483000},{"product_id":1,"quantity":2000},{"product_id":2,"quantity":9000000000}]`)))
	assert.Equal(t, map[uint]int{1: MaxQuantity, 2: MaxQuantity}, quantities(s.Load()))
}

func TestStorePendingMarker(t *testing.T) {
	st := storage.NewMemoryStore()
	s := NewStore(st, nil)

	assert.False(t, s.Pending())
	require.NoError(t, s.SetPending(true))
	assert.True(t, s.Pending())
	require.NoError(t, s.SetPending(false))
	assert.False(t, s.Pending())

	require.NoError(t, s.SetPending(true))
	require.NoError(t, s.Clear())
	assert.False(t, s.Pending())
}

func TestAddLineRejectsOverflow(t *testing.T) {
	lines, err := addLine([]Line{}, product(1, "1"), MaxQuantity)
	require.NoError(t, err)

	lines, err = addLine(lines, product(1, "1"), 1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, map[uint]int{1: MaxQuantity}, quantities(lines))

	_, err = addLine(lines, product(2, "1"), 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

// Replaying any mutation sequence never yields duplicate or non-positive lines.
func TestLineOperationsKeepInvariants(t *testing.T) {
	add := func(id uint, qty int) func([]Line) []Line {
		return func(l []Line) []Line {
			out, err := addLine(l, product(id, "1"), qty)
			require.NoError(t, err)
			return out
		}
	}
	ops := []func([]Line) []Line{
		add(1, 1),
		add(2, 2),
		add(1, 3),
		func(l []Line) []Line { return setQuantity(l, 2, 9) },
		func(l []Line) []Line { return removeLine(l, 1) },
		func(l []Line) []Line { return removeLine(l, 7) },
		add(1, 1),
	}
	lines := []Line{}
	for _, op := range ops {
		lines = op(lines)
		seen := map[uint]bool{}
		for _, l := range lines {
			assert.False(t, seen[l.ProductID], "duplicate line %d", l.ProductID)
			assert.Positive(t, l.Quantity)
			seen[l.ProductID] = true
		}
	}
	assert.Equal(t, map[uint]int{1: 1, 2: 9}, quantities(lines))
}
