package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"servisca-quickmatch/internal/log"
)

type (
	// Client talks to the backend's task creation endpoint
	Client struct {
		baseURL string
		http    *http.Client
		logger  *slog.Logger
	}

	ClientOption func(*Client)

	// StatusError reports a non-2xx reply from the backend
	StatusError struct {
		Code int
		Body string
	}
)

const (
	createPath      = "/tasks/create"
	maxResponseSize = 1 << 20
	defaultTimeout  = 10 * time.Second
)

var (
	ErrMissingTaskID     = errors.New("response has no task_id")
	ErrMalformedResponse = errors.New("malformed response")
)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create sends one creation request. It does not retry
func (c *Client) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := c.baseURL + createPath
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("creating task", log.URL(url), log.UserID(req.UserID),
		slog.String("category", string(req.Category)))

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", createPath, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	return ParseCreateResponse(data)
}

// ParseCreateResponse extracts task_id, accepting a string or a number
func ParseCreateResponse(data []byte) (*CreateResponse, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedResponse
	}
	id := gjson.GetBytes(data, "task_id")
	switch id.Type {
	case gjson.String, gjson.Number:
	default:
		return nil, ErrMissingTaskID
	}
	if id.String() == "" {
		return nil, ErrMissingTaskID
	}
	return &CreateResponse{
		TaskID: id.String(),
		Raw:    json.RawMessage(data),
	}, nil
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}
