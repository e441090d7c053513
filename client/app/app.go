// Package app wires the client components into one context object with an
// explicit lifecycle: New at start, Logout to end a session, Close on exit.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopswift/storefront/client/api"
	"github.com/shopswift/storefront/client/cart"
	"github.com/shopswift/storefront/client/session"
	"github.com/shopswift/storefront/client/storage"
	"go.uber.org/zap"
)

type Config struct {
	BaseURL string
	// StateDir holds the persisted session and guest cart. Empty keeps
	// state in memory.
	StateDir string
	Debounce time.Duration
	Timeout  time.Duration
	Logger   *zap.Logger
	// OnSessionExpired runs after a failed refresh cleared the session.
	OnSessionExpired func()
}

type App struct {
	Store   storage.Store
	Session *session.Manager
	API     *api.Client
	Cart    *cart.Synchronizer

	logger *zap.Logger
}

func New(cfg Config) (*App, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("app: base URL is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = cart.DefaultDebounce
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var st storage.Store
	if cfg.StateDir == "" {
		st = storage.NewMemoryStore()
	} else {
		fileStore, err := storage.NewFileStore(cfg.StateDir, logger.Named("storage"))
		if err != nil {
			return nil, err
		}
		st = fileStore
	}

	a := &App{Store: st, logger: logger}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	a.Session = session.NewManager(cfg.BaseURL, st,
		session.WithHTTPClient(httpClient),
		session.WithLogger(logger.Named("session")),
		session.WithSessionExpired(func() {
			a.sessionExpired()
			if cfg.OnSessionExpired != nil {
				cfg.OnSessionExpired()
			}
		}),
	)
	a.API = api.New(cfg.BaseURL, a.Session,
		api.WithPublicClient(httpClient),
		api.WithLogger(logger.Named("api")),
	)
	a.Cart = cart.NewSynchronizer(st, a.API,
		cart.WithDebounce(cfg.Debounce),
		cart.WithLogger(logger.Named("cart")),
	)

	if a.Session.IsAuthenticated() {
		a.Cart.Restore()
	}
	return a, nil
}

// sessionExpired drops cart server work once credentials are gone.
func (a *App) sessionExpired() {
	if err := a.Cart.OnLogout(); err != nil {
		a.logger.Warn("Failed to clear cart after session expiry", zap.Error(err))
	}
}

// Login authenticates, stores the session and reconciles the cart.
func (a *App) Login(ctx context.Context, email, password string) (*api.User, error) {
	res, err := a.API.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	tokens := session.Tokens{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}
	if err := a.Session.Save(tokens, res.User); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	if err := a.Cart.OnLogin(ctx); err != nil {
		return nil, err
	}
	// The cart fetch can end the session when the new tokens are rejected.
	if !a.Session.IsAuthenticated() {
		return nil, session.ErrUnauthenticated
	}
	a.logger.Info("Logged in", zap.String("email", res.User.Email))
	return &res.User, nil
}

// CurrentUser returns the stored user, or nil when anonymous.
func (a *App) CurrentUser() *api.User {
	var u api.User
	ok, err := a.Session.User(&u)
	if err != nil || !ok {
		return nil
	}
	return &u
}

// Logout revokes the refresh token (best effort), clears credentials and
// empties the local cart.
func (a *App) Logout(ctx context.Context) error {
	if rt := a.Session.RefreshToken(); rt != "" {
		if err := a.API.Logout(ctx, rt); err != nil {
			a.logger.Warn("Server logout failed", zap.Error(err))
		}
	}
	return errors.Join(a.Session.Clear(), a.Cart.OnLogout())
}

// PlaceOrder pushes unsynced cart state, then places the order. A successful
// order empties the local cart the same way the server empties its own.
func (a *App) PlaceOrder(ctx context.Context, idempotencyKey string) (*api.Order, bool, error) {
	if err := a.Cart.Flush(ctx); err != nil {
		return nil, false, fmt.Errorf("sync cart before checkout: %w", err)
	}
	order, created, err := a.API.PlaceOrder(ctx, idempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if err := a.Cart.ClearLocal(); err != nil {
		a.logger.Warn("Failed to clear local cart", zap.Error(err))
	}
	return order, created, nil
}

// Close flushes pending cart state and releases every component.
func (a *App) Close(ctx context.Context) error {
	flushErr := a.Cart.Flush(ctx)
	if flushErr != nil {
		a.logger.Warn("Cart flush on close failed", zap.Error(flushErr))
	}
	a.Cart.Close()
	return errors.Join(flushErr, a.Store.Close())
}
