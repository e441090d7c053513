package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopswift/storefront/client/api"
	"github.com/shopswift/storefront/client/storage"
	"go.uber.org/zap"
)

const (
	DefaultDebounce = 2 * time.Second

	mirrorTimeout = 10 * time.Second
	pushTimeout   = 15 * time.Second
)

// Remote is the server cart API.
type Remote interface {
	Cart(ctx context.Context) (*api.Cart, error)
	AddToCart(ctx context.Context, productID uint, quantity int) (*api.Cart, error)
	UpdateCartItem(ctx context.Context, productID uint, quantity int) (*api.Cart, error)
	RemoveCartItem(ctx context.Context, productID uint) (*api.Cart, error)
	SyncCart(ctx context.Context, items []api.SyncItem) (*api.Cart, error)
}

type Option func(*Synchronizer)

func WithDebounce(d time.Duration) Option {
	return func(s *Synchronizer) { s.debounce = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithOnChange registers fn to receive the cart after every local change,
// including reloads caused by another process.
func WithOnChange(fn func([]Line)) Option {
	return func(s *Synchronizer) { s.onChange = fn }
}

// Synchronizer owns the local cart. Mutations are applied to storage
// synchronously; server writes happen on background goroutines.
type Synchronizer struct {
	store    *Store
	remote   Remote
	changes  <-chan string
	debounce time.Duration
	logger   *zap.Logger
	onChange func([]Line)

	mu            sync.Mutex
	lines         []Line
	authenticated bool
	closed        bool
	unsynced      bool
	timer         *time.Timer
	inFlight      bool
	flightDone    chan struct{}
	followUp      bool

	// session scopes background work to one login; OnLogout and Close cancel it.
	session context.Context
	cancel  context.CancelFunc
	gen     uint64

	wg        sync.WaitGroup
	watchStop chan struct{}
}

// NewSynchronizer loads the cart from st and starts reconciling on external
// changes to it.
func NewSynchronizer(st storage.Store, remote Remote, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		remote:    remote,
		changes:   st.Changes(),
		debounce:  DefaultDebounce,
		logger:    zap.NewNop(),
		watchStop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = NewStore(st, s.logger)
	s.lines = s.store.Load()
	s.session, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.watch()
	return s
}

// Lines returns a copy of the current cart.
func (s *Synchronizer) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.lines)
}

func (s *Synchronizer) Summary() api.CartSummary {
	return api.Summarize(s.Lines())
}

func (s *Synchronizer) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Pending reports whether local state has not yet been pushed.
func (s *Synchronizer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsynced
}

// AddLine adds qty of p, accumulating onto an existing line.
func (s *Synchronizer) AddLine(p api.Product, qty int) error {
	if !validQuantity(qty) {
		return ErrInvalidQuantity
	}
	return s.mutate(func(lines []Line) ([]Line, error) {
		return addLine(lines, p, qty)
	}, func(ctx context.Context) error {
		_, err := s.remote.AddToCart(ctx, p.ID, qty)
		return err
	})
}

func (s *Synchronizer) RemoveLine(productID uint) error {
	return s.mutate(func(lines []Line) ([]Line, error) {
		return removeLine(lines, productID), nil
	}, func(ctx context.Context) error {
		_, err := s.remote.RemoveCartItem(ctx, productID)
		return err
	})
}

// SetQuantity overwrites the quantity of a line. Below one it removes the line.
func (s *Synchronizer) SetQuantity(productID uint, qty int) error {
	if qty < 1 {
		return s.RemoveLine(productID)
	}
	if qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	return s.mutate(func(lines []Line) ([]Line, error) {
		return setQuantity(lines, productID, qty), nil
	}, func(ctx context.Context) error {
		_, err := s.remote.UpdateCartItem(ctx, productID, qty)
		return err
	})
}

// mutate reads the stored cart, applies fn and writes it back. While
// authenticated it mirrors the change and schedules a full push. Nothing is
// written when fn fails.
func (s *Synchronizer) mutate(fn func([]Line) ([]Line, error), mirror func(context.Context) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	lines, err := fn(s.store.Load())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.store.Save(lines); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save cart: %w", err)
	}
	s.lines = lines

	if s.authenticated {
		s.setUnsyncedLocked(true)
		s.scheduleLocked()
		s.goLocked(func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
			defer cancel()
			if err := mirror(ctx); err != nil {
				s.logger.Warn("Cart mirror failed", zap.Error(err))
			}
		})
	}
	snapshot := clone(lines)
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// goLocked runs fn on a goroutine bound to the current session.
func (s *Synchronizer) goLocked(fn func(ctx context.Context)) {
	ctx := s.session
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

// scheduleLocked (re)arms the debounce timer, stopping a superseded one.
func (s *Synchronizer) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	gen := s.gen
	s.timer = time.AfterFunc(s.debounce, func() {
		s.push(gen)
	})
}

func (s *Synchronizer) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// push is the debounced timer callback.
func (s *Synchronizer) push(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.closed || !s.authenticated {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.followUp = true
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if !s.unsynced {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if _, err := s.pushNow(context.Background(), gen); err != nil {
		s.logger.Warn("Cart sync failed, will retry on next change", zap.Error(err))
	}
}

// pushNow sends the full cart unless the session changed or another push is
// already running, in which case started is false.
func (s *Synchronizer) pushNow(ctx context.Context, gen uint64) (started bool, err error) {
	s.mu.Lock()
	if gen != s.gen || s.inFlight {
		s.mu.Unlock()
		return false, nil
	}
	s.inFlight = true
	s.unsynced = false
	s.flightDone = make(chan struct{})
	done := s.flightDone
	items := toSyncItems(s.lines)
	session := s.session
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	stop := context.AfterFunc(session, cancel)
	defer stop()

	_, err = s.remote.SyncCart(ctx, items)

	s.mu.Lock()
	defer s.mu.Unlock()
	close(done)
	if gen != s.gen {
		return true, err
	}
	s.inFlight = false
	s.flightDone = nil
	if err != nil {
		s.setUnsyncedLocked(true)
	} else {
		s.logger.Debug("Cart synced", zap.Int("lines", len(items)))
		if !s.unsynced {
			s.setUnsyncedLocked(false)
		}
	}
	if s.followUp {
		s.followUp = false
		if s.unsynced && !s.closed {
			s.scheduleLocked()
		}
	}
	return true, err
}

// Flush cancels the pending timer and pushes now if local state is unsynced.
// It waits for an in-flight push first.
func (s *Synchronizer) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		s.stopTimerLocked()
		if !s.authenticated || !s.unsynced && !s.inFlight {
			s.mu.Unlock()
			return nil
		}
		if s.inFlight {
			done := s.flightDone
			s.followUp = false
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		gen := s.gen
		s.mu.Unlock()
		started, err := s.pushNow(ctx, gen)
		if started || err != nil {
			return err
		}
	}
}

// Restore marks the synchronizer authenticated without fetching the server
// cart, for a session carried over from an earlier run. Changes that run
// never pushed are scheduled for a push.
func (s *Synchronizer) Restore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.authenticated = true
	if s.store.Pending() {
		s.unsynced = true
		s.scheduleLocked()
	}
}

// OnLogin reconciles the local cart with the server cart. A non-empty server
// cart replaces the local one; otherwise local lines are kept and pushed.
// A failed fetch keeps local lines pending.
func (s *Synchronizer) OnLogin(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.authenticated = true
	s.mu.Unlock()

	remote, fetchErr := s.remote.Cart(ctx)

	s.mu.Lock()
	if !s.authenticated || s.closed {
		s.mu.Unlock()
		return nil
	}
	local := s.store.Load()
	switch {
	case fetchErr != nil:
		s.logger.Warn("Fetching server cart failed, keeping local cart", zap.Error(fetchErr))
		s.lines = local
		s.setUnsyncedLocked(len(local) > 0)
	case len(remote.Items) > 0:
		lines := sanitize(remote.Items)
		if err := s.store.Save(lines); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("save server cart: %w", err)
		}
		s.stopTimerLocked()
		s.lines = lines
		s.setUnsyncedLocked(false)
	default:
		s.lines = local
		s.setUnsyncedLocked(len(local) > 0)
		if s.unsynced {
			s.scheduleLocked()
		}
	}
	snapshot := clone(s.lines)
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// OnLogout drops pending and in-flight server work and empties the local cart.
func (s *Synchronizer) OnLogout() error {
	s.mu.Lock()
	s.endSessionLocked()
	s.authenticated = false
	s.lines = []Line{}
	var err error
	if !s.closed {
		err = s.store.Clear()
	}
	s.mu.Unlock()

	s.notify([]Line{})
	return err
}

// ClearLocal empties the local cart without touching the server, for when
// the server cart was already emptied (checkout).
func (s *Synchronizer) ClearLocal() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.stopTimerLocked()
	s.setUnsyncedLocked(false)
	s.lines = []Line{}
	err := s.store.Save(s.lines)
	s.mu.Unlock()

	s.notify([]Line{})
	return err
}

// setUnsyncedLocked records whether local state still needs a push, and
// persists it so a later run can finish the push.
func (s *Synchronizer) setUnsyncedLocked(pending bool) {
	s.unsynced = pending
	if s.closed {
		return
	}
	if err := s.store.SetPending(pending); err != nil {
		s.logger.Warn("Failed to record cart sync state", zap.Error(err))
	}
}

func (s *Synchronizer) endSessionLocked() {
	s.stopTimerLocked()
	s.cancel()
	s.gen++
	s.unsynced = false
	s.inFlight = false
	s.followUp = false
	s.flightDone = nil
	s.session, s.cancel = context.WithCancel(context.Background())
}

// Close stops timers, cancels background requests and stops watching storage.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimerLocked()
	s.cancel()
	s.gen++
	s.mu.Unlock()

	close(s.watchStop)
	s.wg.Wait()
}

func (s *Synchronizer) watch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.watchStop:
			return
		case key, ok := <-s.changes:
			if !ok {
				return
			}
			if key == storage.KeyGuestCart {
				s.reload()
			}
		}
	}
}

// reload replaces the in-memory view after another process wrote the cart.
func (s *Synchronizer) reload() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.lines = s.store.Load()
	snapshot := clone(s.lines)
	s.mu.Unlock()

	s.logger.Debug("Cart reloaded from storage", zap.Int("lines", len(snapshot)))
	s.notify(snapshot)
}

func (s *Synchronizer) notify(lines []Line) {
	if s.onChange != nil {
		s.onChange(lines)
	}
}
