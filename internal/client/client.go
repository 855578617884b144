// Package client is a typed HTTP client for the zknotes API.
package client

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

	"github.com/and161185/zknotes/internal/convert"
	"github.com/and161185/zknotes/internal/model"
	"github.com/gofrs/uuid/v5"
)

// APIError is returned for every non-2xx answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// Client talks to one server. It is safe for concurrent use once configured.
type Client struct {
	base  string
	hc    *http.Client
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithToken sets the bearer token sent on protected routes.
func WithToken(tok string) Option { return func(c *Client) { c.token = tok } }

// New constructs a client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, in convert.SignupRequest) (convert.UserResponse, error) {
	var out convert.UserResponse
	err := c.do(ctx, http.MethodPost, "/auth/signup", nil, in, &out)
	return out, err
}

// Challenge fetches the signature salt and a fresh nonce for username.
func (c *Client) Challenge(ctx context.Context, username string) (model.Challenge, error) {
	var out convert.ChallengeResponse
	q := url.Values{"username": {username}}
	if err := c.do(ctx, http.MethodGet, "/auth/challenge", q, nil, &out); err != nil {
		return model.Challenge{}, err
	}
	return convert.FromChallengeResponse(out)
}

// Login exchanges a signed nonce for a bearer token.
func (c *Client) Login(ctx context.Context, in convert.LoginRequest) (convert.LoginResponse, error) {
	var out convert.LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, in, &out)
	return out, err
}

// Notes returns one page-number window of the caller's notes.
func (c *Client) Notes(ctx context.Context, page, pageSize int) (convert.NotePageResponse, error) {
	var out convert.NotePageResponse
	q := url.Values{"page": {strconv.Itoa(page)}, "pageSize": {strconv.Itoa(pageSize)}}
	err := c.do(ctx, http.MethodGet, "/notes", q, nil, &out)
	return out, err
}

// NotesBefore returns notes after the (cursor, cursorID) key. With uuid.Nil only notes
// updated strictly before cursor are returned.
func (c *Client) NotesBefore(ctx context.Context, cursor time.Time, cursorID uuid.UUID, pageSize int) (convert.NoteCursorPageResponse, error) {
	var out convert.NoteCursorPageResponse
	q := url.Values{
		"cursor":   {cursor.UTC().Format(time.RFC3339Nano)},
		"pageSize": {strconv.Itoa(pageSize)},
	}
	if cursorID != uuid.Nil {
		q.Set("cursorId", cursorID.String())
	}
	err := c.do(ctx, http.MethodGet, "/notes", q, nil, &out)
	return out, err
}

// AddNote stores a new encrypted note.
func (c *Client) AddNote(ctx context.Context, in convert.NoteRequest) (convert.NoteResponse, error) {
	var out convert.NoteResponse
	err := c.do(ctx, http.MethodPost, "/notes", nil, in, &out)
	return out, err
}

// UpdateNote replaces both blobs of note id.
func (c *Client) UpdateNote(ctx context.Context, id uuid.UUID, in convert.NoteRequest) (convert.NoteResponse, error) {
	var out convert.NoteResponse
	err := c.do(ctx, http.MethodPut, "/notes/"+id.String(), nil, in, &out)
	return out, err
}

// DeleteNote removes note id.
func (c *Client) DeleteNote(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/notes/"+id.String(), nil, nil, nil)
}

// DeleteAccount removes the caller and every note they own.
func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/users/me", nil, nil, nil)
}

// Health reports whether the server answers /healthz with 200.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er convert.ErrorResponse
	if json.Unmarshal(b, &er) == nil && er.ErrorMessage != "" {
		return &APIError{Status: resp.StatusCode, Message: er.ErrorMessage}
	}
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(b))}
}
