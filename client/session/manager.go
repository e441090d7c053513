// Package session attaches bearer tokens to outgoing requests and refreshes
// an expired access token, retrying the failed request once.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopswift/storefront/client/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	RefreshPath = "/api/auth/refresh-token"

	maxRetries = 1
)

var (
	// ErrUnauthenticated means the session could not be refreshed and has been cleared.
	ErrUnauthenticated = errors.New("session: unauthenticated")

	errNoRefreshToken = errors.New("no refresh token stored")
)

// Tokens is the credential pair persisted by the manager.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type Option func(*Manager)

// WithHTTPClient sets the client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.http = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithSessionExpired registers the hook run after credentials are cleared.
func WithSessionExpired(fn func()) Option {
	return func(m *Manager) { m.onExpired = fn }
}

// Manager is the token manager. It is safe for concurrent use.
type Manager struct {
	baseURL   string
	store     storage.Store
	http      *http.Client
	logger    *zap.Logger
	onExpired func()

	refresh singleflight.Group
	mu      sync.Mutex // serialises credential writes
}

func NewManager(baseURL string, store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		store:   store,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AccessToken returns the stored access token or "".
func (m *Manager) AccessToken() string {
	tok, err := storage.GetString(m.store, storage.KeyAccessToken)
	if err != nil {
		m.logger.Warn("Failed to read access token", zap.Error(err))
		return ""
	}
	return tok
}

func (m *Manager) RefreshToken() string {
	tok, err := storage.GetString(m.store, storage.KeyRefreshToken)
	if err != nil {
		m.logger.Warn("Failed to read refresh token", zap.Error(err))
		return ""
	}
	return tok
}

func (m *Manager) IsAuthenticated() bool {
	return m.AccessToken() != ""
}

// Save persists tokens and, when user is non-nil, the user document.
func (m *Manager) Save(tokens Tokens, user any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := storage.SetString(m.store, storage.KeyAccessToken, tokens.AccessToken); err != nil {
		return err
	}
	if tokens.RefreshToken != "" {
		if err := storage.SetString(m.store, storage.KeyRefreshToken, tokens.RefreshToken); err != nil {
			return err
		}
	}
	if user != nil {
		return storage.SetJSON(m.store, storage.KeyUser, user)
	}
	return nil
}

// User decodes the stored user document into v.
func (m *Manager) User(v any) (bool, error) {
	return storage.GetJSON(m.store, storage.KeyUser, v)
}

// Clear removes every stored credential.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyUser} {
		if err := m.store.Delete(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// attempt is the per-request retry bookkeeping.
type attempt struct {
	n     int
	state State
	token string
}

func (m *Manager) transition(req *http.Request, a *attempt, next State) {
	m.logger.Debug("Auth state",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Stringer("from", a.state),
		zap.Stringer("to", next),
	)
	a.state = next
}

// Do sends req with the current access token. A 401 triggers one refresh and
// one retry; if the refresh fails the session is torn down and
// ErrUnauthenticated is returned.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	a := &attempt{state: StateUnauthenticated}
	for {
		out := req.Clone(req.Context())
		if body != nil {
			out.Body = io.NopCloser(bytes.NewReader(body))
			out.ContentLength = int64(len(body))
		}
		a.token = m.AccessToken()
		if a.token != "" {
			out.Header.Set("Authorization", "Bearer "+a.token)
			if a.n == 0 {
				m.transition(req, a, StateAttached)
			}
		}

		resp, err := m.http.Do(out)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized {
			if a.n > 0 || a.state == StateAttached {
				m.transition(req, a, StateSucceeded)
			}
			return resp, nil
		}
		drain(resp)

		if a.n >= maxRetries {
			m.transition(req, a, StateFailed)
			m.teardown("retried request rejected")
			return nil, ErrUnauthenticated
		}
		a.n++

		m.transition(req, a, StateRefreshing)
		if err := m.refreshFor(req.Context(), a.token); err != nil {
			m.transition(req, a, StateFailed)
			m.teardown(err.Error())
			return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		m.transition(req, a, StateRetried)
	}
}

// refreshFor obtains a new access token unless another request already
// replaced stale. Concurrent callers share one refresh call.
func (m *Manager) refreshFor(ctx context.Context, stale string) error {
	if current := m.AccessToken(); current != "" && current != stale {
		return nil
	}
	rt := m.RefreshToken()
	if rt == "" {
		return errNoRefreshToken
	}
	_, err, shared := m.refresh.Do(rt, func() (any, error) {
		if current := m.AccessToken(); current != "" && current != stale {
			return nil, nil
		}
		return nil, m.doRefresh(context.WithoutCancel(ctx), rt)
	})
	if shared {
		m.logger.Debug("Joined in-flight token refresh")
	}
	return err
}

func (m *Manager) doRefresh(ctx context.Context, refreshToken string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	payload, _ := json.Marshal(map[string]string{"refreshToken": refreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+RefreshPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("refresh request: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}

	var tokens Tokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if tokens.AccessToken == "" {
		return errors.New("refresh response carried no access token")
	}
	if err := m.Save(tokens, nil); err != nil {
		return fmt.Errorf("store refreshed tokens: %w", err)
	}
	m.logger.Info("Access token refreshed", zap.Bool("rotated", tokens.RefreshToken != ""))
	return nil
}

func (m *Manager) teardown(reason string) {
	m.logger.Warn("Session expired, clearing credentials", zap.String("reason", reason))
	if err := m.Clear(); err != nil {
		m.logger.Error("Failed to clear credentials", zap.Error(err))
	}
	if m.onExpired != nil {
		m.onExpired()
	}
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return b, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
