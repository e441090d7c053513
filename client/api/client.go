// Package api is a typed client for the storefront REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrAccessDenied is matched by errors for 403 responses.
var ErrAccessDenied = errors.New("access denied")

// Error is a non-2xx response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
}

func (e *Error) Is(target error) bool {
	return target == ErrAccessDenied && e.StatusCode == http.StatusForbidden
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Doer sends a request. *session.Manager and *http.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*Client)

// WithPublicClient sets the client used for endpoints that must not carry
// or refresh credentials (login, register, catalogue).
func WithPublicClient(c *http.Client) Option {
	return func(cl *Client) { cl.public = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

type Client struct {
	baseURL string
	authed  Doer
	public  Doer
	logger  *zap.Logger
}

// New returns a client whose authenticated calls go through authed.
func New(baseURL string, authed Doer, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		authed:  authed,
		public:  &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type call struct {
	method  string
	path    string
	query   url.Values
	body    any
	headers map[string]string
	out     any
}

// send performs c and decodes a 2xx body into c.out. It returns the status.
func (cl *Client) send(ctx context.Context, d Doer, c call) (int, error) {
	u := cl.baseURL + c.path
	if len(c.query) > 0 {
		u += "?" + c.query.Encode()
	}

	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		if err != nil {
			return 0, fmt.Errorf("encode %s %s: %w", c.method, c.path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, u, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", c.method, c.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read %s %s: %w", c.method, c.path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &Error{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if c.out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, c.out); err != nil {
		cl.logger.Warn("Malformed response body",
			zap.String("method", c.method),
			zap.String("path", c.path),
			zap.Error(err),
		)
		return resp.StatusCode, fmt.Errorf("decode %s %s: %w", c.method, c.path, err)
	}
	return resp.StatusCode, nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		return body.Message
	}
	return strings.TrimSpace(string(raw))
}

// Auth

func (cl *Client) Register(ctx context.Context, name, email, password string) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	_, err := cl.send(ctx, cl.public, call{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body:   map[string]string{"name": name, "email": email, "password": password},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (cl *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	_, err := cl.send(ctx, cl.public, call{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   map[string]string{"email": email, "password": password},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, errors.New("login response carried no access token")
	}
	return &out, nil
}

// Logout revokes refreshToken on the server.
func (cl *Client) Logout(ctx context.Context, refreshToken string) error {
	_, err := cl.send(ctx, cl.public, call{
		method: http.MethodPost,
		path:   "/api/auth/logout",
		body:   map[string]string{"refreshToken": refreshToken},
	})
	return err
}

// Products

func (cl *Client) Products(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Query != "" {
		v.Set("q", q.Query)
	}

	var out ProductPage
	if _, err := cl.send(ctx, cl.public, call{method: http.MethodGet, path: "/api/products", query: v, out: &out}); err != nil {
		return nil, err
	}
	out.normalize()
	return &out, nil
}

func (cl *Client) Product(ctx context.Context, id uint) (*Product, error) {
	var out Product
	path := "/api/products/" + strconv.FormatUint(uint64(id), 10)
	if _, err := cl.send(ctx, cl.public, call{method: http.MethodGet, path: path, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cart

func (cl *Client) cartCall(ctx context.Context, c call) (*Cart, error) {
	var out Cart
	c.out = &out
	if _, err := cl.send(ctx, cl.authed, c); err != nil {
		return nil, err
	}
	out.normalize()
	return &out, nil
}

func cartItemPath(productID uint) string {
	return "/api/cart/" + strconv.FormatUint(uint64(productID), 10)
}

func (cl *Client) Cart(ctx context.Context) (*Cart, error) {
	return cl.cartCall(ctx, call{method: http.MethodGet, path: "/api/cart/"})
}

func (cl *Client) AddToCart(ctx context.Context, productID uint, quantity int) (*Cart, error) {
	return cl.cartCall(ctx, call{
		method: http.MethodPost,
		path:   "/api/cart/",
		body:   SyncItem{ProductID: productID, Quantity: quantity},
	})
}

func (cl *Client) UpdateCartItem(ctx context.Context, productID uint, quantity int) (*Cart, error) {
	return cl.cartCall(ctx, call{
		method: http.MethodPut,
		path:   cartItemPath(productID),
		body:   map[string]int{"quantity": quantity},
	})
}

func (cl *Client) RemoveCartItem(ctx context.Context, productID uint) (*Cart, error) {
	return cl.cartCall(ctx, call{method: http.MethodDelete, path: cartItemPath(productID)})
}

func (cl *Client) ClearCart(ctx context.Context) error {
	_, err := cl.send(ctx, cl.authed, call{method: http.MethodDelete, path: "/api/cart/"})
	return err
}

// SyncCart replaces the server cart with items.
func (cl *Client) SyncCart(ctx context.Context, items []SyncItem) (*Cart, error) {
	if items == nil {
		items = []SyncItem{}
	}
	return cl.cartCall(ctx, call{method: http.MethodPost, path: "/api/cart/sync", body: items})
}

// Orders

// PlaceOrder turns the server cart into an order. created is false when the
// server replayed an earlier order for the same idempotency key.
func (cl *Client) PlaceOrder(ctx context.Context, idempotencyKey string) (order *Order, created bool, err error) {
	var out Order
	c := call{method: http.MethodPost, path: "/api/orders", out: &out}
	if idempotencyKey != "" {
		c.headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}
	status, err := cl.send(ctx, cl.authed, c)
	if err != nil {
		return nil, false, err
	}
	out.normalize()
	return &out, status == http.StatusCreated, nil
}

func (cl *Client) Orders(ctx context.Context, page, limit int) (*OrderPage, error) {
	v := url.Values{}
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var out OrderPage
	if _, err := cl.send(ctx, cl.authed, call{method: http.MethodGet, path: "/api/orders", query: v, out: &out}); err != nil {
		return nil, err
	}
	out.normalize()
	return &out, nil
}

func (cl *Client) Order(ctx context.Context, id string) (*Order, error) {
	var out Order
	if _, err := cl.send(ctx, cl.authed, call{method: http.MethodGet, path: "/api/orders/" + url.PathEscape(id), out: &out}); err != nil {
		return nil, err
	}
	out.normalize()
	return &out, nil
}

// Users

func (cl *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if _, err := cl.send(ctx, cl.authed, call{method: http.MethodGet, path: "/api/users/me", out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (cl *Client) ChangePassword(ctx context.Context, current, next string) error {
	_, err := cl.send(ctx, cl.authed, call{
		method: http.MethodPost,
		path:   "/api/users/me/password",
		body:   map[string]string{"current_password": current, "new_password": next},
	})
	return err
}
