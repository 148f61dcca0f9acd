package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	RouteLogin  = "/auth/login"
	RouteLogout = "/auth/logout"

	contentTypeJSON = "application/json"
	maxBodyBytes    = 1 << 20
)

// Client talks to the remote authentication API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		validate:   validator.New(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Login posts the credentials. A rejected login is not an error: it comes
// back as a response with Status false and the API's message. Errors are
// reserved for transport and decoding failures.
func (c *Client) Login(ctx context.Context, credentials Credentials) (*LoginResponse, error) {
	credentials.Email = strings.TrimSpace(credentials.Email)
	if msg := c.validateCredentials(credentials); msg != "" {
		return &LoginResponse{Status: false, Message: msg}, nil
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return nil, fmt.Errorf("[authapi Login] marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RouteLogin, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("[authapi Login] new request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[authapi Login] %w", err)
	}
	defer resp.Body.Close()

	var loginResp LoginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&loginResp); err != nil {
		return nil, fmt.Errorf("[authapi Login] decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if loginResp.Status && (loginResp.Data == nil || loginResp.Data.Token == "" || loginResp.Data.User == nil) {
		return nil, fmt.Errorf("[authapi Login] response missing user or token")
	}
	return &loginResp, nil
}

// Logout invalidates token on the server. The response body is ignored.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RouteLogout, nil)
	if err != nil {
		return fmt.Errorf("[authapi Logout] new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("[authapi Logout] %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("[authapi Logout] unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) validateCredentials(credentials Credentials) string {
	err := c.validate.Struct(credentials)
	if err == nil {
		return ""
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return "Invalid login request"
	}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return "Email and password are required"
		}
	}
	return "A valid email address is required"
}
