// Package api is the client for the records API (schools and students).
// Every request carries the session token as a bearer credential.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/transcript-portal/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPerPage = 15

	contentTypeJSON = "application/json"
	maxBodyBytes    = 4 << 20
)

// TokenSource returns the current session token, or "" when signed out.
// session.Coordinator.GetToken satisfies it.
type TokenSource func() string

type Client struct {
	baseURL    string
	token      TokenSource
	httpClient *http.Client
	validate   *validator.Validate
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL string, token TokenSource, options ...ClientOption) *Client {
	if token == nil {
		token = func() string { return "" }
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		validate:   validator.New(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// WithTokenSource returns a copy of c that authenticates with token. The
// copy shares c's HTTP client and validator, so a server can keep one
// Client and bind each request's session token to it.
func (c *Client) WithTokenSource(token TokenSource) *Client {
	if token == nil {
		token = func() string { return "" }
	}
	cp := *c
	cp.token = token
	return &cp
}

func pageQuery(page, perPage int) url.Values {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("perPage", fmt.Sprint(perPage))
	return q
}

// do sends one request. A non-2xx response is returned as *APIError; out is
// left untouched in that case.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + path

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("[api %s] marshal: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("[api %s] new request: %w", op, err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: err.Error(), cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: err.Error(), cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		if len(data) == 0 || json.Unmarshal(data, apiErr) != nil {
			apiErr = &APIError{Message: http.StatusText(resp.StatusCode)}
		}
		apiErr.StatusCode = resp.StatusCode
		log.Debug().Str("op", op).Int("status", resp.StatusCode).Str("message", apiErr.Message).Msg("records api call failed")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("[api %s] decode response: %w", op, err)
	}
	return nil
}

func (c *Client) validateInput(op string, v any) error {
	if err := c.validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("[api %s] %w: %v", op, errors.ErrInvalidRequest, err)
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("[api %s] %w: %s", op, errors.ErrInvalidRequest, strings.Join(msgs, ", "))
	}
	return nil
}

func escape(id string) string {
	return url.PathEscape(id)
}
