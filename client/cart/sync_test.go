package cart

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shopswift/storefront/client/api"
	"github.com/shopswift/storefront/client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 30 * time.Millisecond

type fakeRemote struct {
	mu         sync.Mutex
	serverCart *api.Cart
	cartErr    error
	syncErr    error
	block      chan struct{}

	calls     []string
	syncs     [][]api.SyncItem
	active    int
	maxActive int
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRemote) Cart(context.Context) (*api.Cart, error) {
	f.record("GET")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cartErr != nil {
		return nil, f.cartErr
	}
	if f.serverCart == nil {
		return &api.Cart{Items: []api.CartLine{}}, nil
	}
	return f.serverCart, nil
}

func (f *fakeRemote) AddToCart(_ context.Context, id uint, qty int) (*api.Cart, error) {
	f.record(fmt.Sprintf("POST %d %d", id, qty))
	return &api.Cart{}, nil
}

func (f *fakeRemote) UpdateCartItem(_ context.Context, id uint, qty int) (*api.Cart, error) {
	f.record(fmt.Sprintf("PUT %d %d", id, qty))
	return &api.Cart{}, nil
}

func (f *fakeRemote) RemoveCartItem(_ context.Context, id uint) (*api.Cart, error) {
	f.record(fmt.Sprintf("DELETE %d", id))
	return &api.Cart{}, nil
}

func (f *fakeRemote) SyncCart(ctx context.Context, items []api.SyncItem) (*api.Cart, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.syncs = append(f.syncs, items)
	block, err := f.block, f.syncErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return &api.Cart{}, err
}

func (f *fakeRemote) syncCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.syncs)
}

func (f *fakeRemote) lastSync() []api.SyncItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.syncs) == 0 {
		return nil
	}
	return f.syncs[len(f.syncs)-1]
}

func (f *fakeRemote) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func product(id uint, price string) api.Product {
	return api.Product{ID: id, Name: fmt.Sprintf("product-%d", id), Price: decimal.RequireFromString(price)}
}

func newSync(t *testing.T, remote *fakeRemote) (*Synchronizer, *storage.MemoryStore) {
	t.Helper()
	st := storage.NewMemoryStore()
	s := NewSynchronizer(st, remote, WithDebounce(testDebounce))
	t.Cleanup(s.Close)
	return s, st
}

func quantities(lines []Line) map[uint]int {
	out := make(map[uint]int, len(lines))
	for _, l := range lines {
		out[l.ProductID] = l.Quantity
	}
	return out
}

func TestGuestMutationsStayLocal(t *testing.T) {
	remote := &fakeRemote{}
	s, st := newSync(t, remote)

	require.NoError(t, s.AddLine(product(1, "2.50"), 1))
	require.NoError(t, s.AddLine(product(1, "2.50"), 1))
	require.NoError(t, s.AddLine(product(2, "1.00"), 3))
	require.NoError(t, s.SetQuantity(2, 5))
	require.NoError(t, s.AddLine(product(3, "4.00"), 1))
	require.NoError(t, s.RemoveLine(3))
	require.NoError(t, s.SetQuantity(9, 4))
	assert.ErrorIs(t, s.AddLine(product(4, "1.00"), 0), ErrInvalidQuantity)

	assert.Equal(t, map[uint]int{1: 2, 2: 5}, quantities(s.Lines()))
	assert.True(t, decimal.RequireFromString("10").Equal(s.Summary().TotalPrice))

	assert.Equal(t, quantities(s.Lines()), quantities(NewStore(st, nil).Load()))

	time.Sleep(3 * testDebounce)
	assert.Empty(t, remote.callList())
	assert.False(t, s.Pending())
}

func TestAuthenticatedSetQuantityZeroDeletes(t *testing.T) {
	remote := &fakeRemote{}
	s, _ := newSync(t, remote)
	s.Restore()

	require.NoError(t, s.AddLine(product(2, "1.00"), 1))
	require.NoError(t, s.SetQuantity(2, 0))

	assert.Empty(t, s.Lines())
	assert.Eventually(t, func() bool {
		for _, c := range remote.callList() {
			if c == "DELETE 2" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestDebounceCoalescesMutations(t *testing.T) {
	remote := &fakeRemote{}
	s, _ := newSync(t, remote)
	s.Restore()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AddLine(product(1, "1.00"), 1))
	}
	require.NoError(t, s.SetQuantity(1, 7))

	require.Eventually(t, func() bool { return remote.syncCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * testDebounce)
	assert.Equal(t, 1, remote.syncCount())
	assert.Equal(t, []api.SyncItem{{ProductID: 1, Quantity: 7}}, remote.lastSync())
	assert.False(t, s.Pending())
}

func TestOnLoginAdoptsNonEmptyServerCart(t *testing.T) {
	server := []api.CartLine{{ProductID: 5, ProductName: "Lamp", ProductPrice: decimal.RequireFromString("30"), Quantity: 1}}
	remote := &fakeRemote{serverCart: &api.Cart{Items: server}}
	s, st := newSync(t, remote)

	require.NoError(t, s.AddLine(product(1, "1.00"), 2))
	require.NoError(t, s.OnLogin(context.Background()))

	assert.Equal(t, server, s.Lines())
	assert.Equal(t, map[uint]int{5: 1}, quantities(NewStore(st, nil).Load()))
	assert.False(t, s.Pending())

	time.Sleep(3 * testDebounce)
	assert.Equal(t, 0, remote.syncCount())
}

func TestOnLoginPushesLocalCartWhenServerEmpty(t *testing.T) {
	remote := &fakeRemote{}
	s, _ := newSync(t, remote)

	require.NoError(t, s.AddLine(product(1, "1.00"), 2))
	require.NoError(t, s.AddLine(product(3, "1.00"), 1))
	require.NoError(t, s.OnLogin(context.Background()))

	assert.Equal(t, map[uint]int{1: 2, 3: 1}, quantities(s.Lines()))
	require.Eventually(t, func() bool { return remote.syncCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []api.SyncItem{{ProductID: 1, Quantity: 2}, {ProductID: 3, Quantity: 1}}, remote.lastSync())
}

func TestOnLoginFetchFailureKeepsLocal(t *testing.T) {
	remote := &fakeRemote{cartErr: errors.New("connection refused")}
	s, _ := newSync(t, remote)

	require.NoError(t, s.AddLine(product(1, "1.00"), 1))
	require.NoError(t, s.OnLogin(context.Background()))

	assert.Equal(t, map[uint]int{1: 1}, quantities(s.Lines()))
	assert.True(t, s.Pending())
	assert.True(t, s.Authenticated())
}

func TestSyncFailureStaysPendingUntilFlush(t *testing.T) {
	remote := &fakeRemote{syncErr: errors.New("503")}
	s, _ := newSync(t, remote)
	s.Restore()

	require.NoError(t, s.AddLine(product(1, "1.00"), 1))
	require.Eventually(t, func() bool { return remote.syncCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, s.Pending, time.Second, 5*time.Millisecond)

	time.Sleep(3 * testDebounce)
	assert.Equal(t, 1, remote.syncCount(), "failed push must not retry on its own")

	remote.mu.Lock()
	remote.syncErr = nil
	remote.mu.Unlock()
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 2, remote.syncCount())
	assert.False(t, s.Pending())
}

func TestInFlightPushIsNeverDoubled(t *testing.T) {
	block := make(chan struct{})
	remote := &fakeRemote{block: block}
	s, _ := newSync(t, remote)
	s.Restore()

	require.NoError(t, s.AddLine(product(1, "1.00"), 1))
	require.Eventually(t, func() bool { return remote.syncCount() == 1 }, time.Second, 5*time.Millisecond)

	// Mutate while the first push is blocked; its debounce fires mid-flight.
	require.NoError(t, s.AddLine(product(2, "1.00"), 4))
	time.Sleep(3 * testDebounce)
	assert.Equal(t, 1, remote.syncCount())

	remote.mu.Lock()
	remote.block = nil
	remote.mu.Unlock()
	close(block)

	require.Eventually(t, func() bool { return remote.syncCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []api.SyncItem{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 4}}, remote.lastSync())

	remote.mu.Lock()
	assert.Equal(t, 1, remote.maxActive)
	remote.mu.Unlock()
}

func TestOnLogoutClearsAndCancels(t *testing.T) {
	remote := &fakeRemote{}
	s, st := newSync(t, remote)
	s.Restore()

	require.NoError(t, s.AddLine(product(1, "1.00"), 1))
	require.NoError(t, s.OnLogout())

	assert.Empty(t, s.Lines())
	assert.False(t, s.Authenticated())
	_, ok, err := st.Get(storage.KeyGuestCart)
	require.NoError(t, err)
	assert.False(t, ok)

	time.Sleep(3 * testDebounce)
	assert.Equal(t, 0, remote.syncCount())
}

func TestFlushPushesImmediately(t *testing.T) {
	remote := &fakeRemote{}
	st := storage.NewMemoryStore()
	s := NewSynchronizer(st, remote, WithDebounce(time.Hour))
	defer s.Close()
	s.Restore()

	require.NoError(t, s.AddLine(product(1, "1.00"), 2))
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, remote.syncCount())
	assert.Equal(t, []api.SyncItem{{ProductID: 1, Quantity: 2}}, remote.lastSync())

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, remote.syncCount())
}

func TestReloadsOnExternalChange(t *testing.T) {
	changed := make(chan []Line, 1)
	st := storage.NewMemoryStore()
	s := NewSynchronizer(st, &fakeRemote{}, WithOnChange(func(lines []Line) {
		select {
		case changed <- lines:
		default:
		}
	}))
	defer s.Close()

	require.NoError(t, st.Touch(storage.KeyGuestCart, []byte(`[{"product_id":8,"quantity":3},{"product_id":8,"quantity":1}]`)))

	select {
	case lines := <-changed:
		assert.Equal(t, map[uint]int{8: 4}, quantities(lines))
	case <-time.After(time.Second):
		t.Fatal("external change not reconciled")
	}
	assert.Equal(t, map[uint]int{8: 4}, quantities(s.Lines()))
}

func TestCloseRejectsMutations(t *testing.T) {
	s, _ := newSync(t, &fakeRemote{})
	s.Close()
	assert.ErrorIs(t, s.AddLine(product(1, "1.00"), 1), ErrClosed)
}

func TestAddLineOverflowKeepsStoredLine(t *testing.T) {
	s, st := newSync(t, &fakeRemote{})

	require.NoError(t, s.AddLine(product(1, "1.00"), MaxQuantity))
	assert.ErrorIs(t, s.AddLine(product(1, "1.00"), 1), ErrInvalidQuantity)
	assert.ErrorIs(t, s.SetQuantity(1, MaxQuantity+1), ErrInvalidQuantity)

	assert.Equal(t, map[uint]int{1: MaxQuantity}, quantities(s.Lines()))
	assert.Equal(t, map[uint]int{1: MaxQuantity}, quantities(NewStore(st, nil).Load()))
}

// Random guest mutation sequences leave the cart equal to a plain map replay
// of the same sequence, both in memory and after reloading from storage.
func TestRandomMutationsMatchReplay(t *testing.T) {
	addSizes := []int{1, 2, 7, MaxQuantity - 1, MaxQuantity}
	setSizes := []int{-1, 0, 1, 5, MaxQuantity}

	for seed := uint64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed))
			s, st := newSync(t, &fakeRemote{})
			model := map[uint]int{}

			for step := 0; step < 200; step++ {
				id := uint(rng.IntN(5) + 1)
				switch rng.IntN(3) {
				case 0:
					qty := addSizes[rng.IntN(len(addSizes))]
					err := s.AddLine(product(id, "2.50"), qty)
					if model[id] > MaxQuantity-qty {
						require.ErrorIs(t, err, ErrInvalidQuantity, "step %d", step)
						break
					}
					require.NoError(t, err, "step %d", step)
					model[id] += qty
				case 1:
					qty := setSizes[rng.IntN(len(setSizes))]
					require.NoError(t, s.SetQuantity(id, qty), "step %d", step)
					if qty < 1 {
						delete(model, id)
					} else if _, ok := model[id]; ok {
						model[id] = qty
					}
				default:
					require.NoError(t, s.RemoveLine(id), "step %d", step)
					delete(model, id)
				}

				require.Equal(t, model, quantities(s.Lines()), "step %d", step)
				require.Equal(t, model, quantities(NewStore(st, nil).Load()), "step %d", step)
			}
		})
	}
}

func TestRestorePushesChangesLeftByEarlierRun(t *testing.T) {
	st := storage.NewMemoryStore()

	first := NewSynchronizer(st, &fakeRemote{}, WithDebounce(time.Hour))
	first.Restore()
	require.NoError(t, first.AddLine(product(1, "1.00"), 2))
	first.Close()

	remote := &fakeRemote{}
	second := NewSynchronizer(st, remote, WithDebounce(testDebounce))
	defer second.Close()
	second.Restore()

	require.Eventually(t, func() bool { return remote.syncCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []api.SyncItem{{ProductID: 1, Quantity: 2}}, remote.lastSync())
	require.Eventually(t, func() bool { return !NewStore(st, nil).Pending() }, time.Second, 5*time.Millisecond)
	assert.False(t, second.Pending())
}

func TestRestoreWithoutUnpushedChangesStaysQuiet(t *testing.T) {
	st := storage.NewMemoryStore()
	require.NoError(t, NewStore(st, nil).Save([]Line{{ProductID: 1, Quantity: 1}}))

	remote := &fakeRemote{}
	s := NewSynchronizer(st, remote, WithDebounce(testDebounce))
	defer s.Close()
	s.Restore()

	time.Sleep(3 * testDebounce)
	assert.Equal(t, 0, remote.syncCount())
	assert.False(t, s.Pending())
}
