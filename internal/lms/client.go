package lms

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

	"github.com/rs/zerolog"

	"github.com/edusync/proctor/internal/model"
)

// ErrNotFound is returned when the LMS has no assessment with the given id.
var ErrNotFound = model.ErrAssessmentNotFound

const maxBody = 4 << 20

// Client talks to the LMS REST backend. A Client without a token is shared;
// WithToken derives a per-student copy that forwards the bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a client for baseURL (no trailing slash).
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "lms_client").Logger(),
	}
}

// WithToken returns a copy of c that authenticates as the token's owner.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// FetchAssessment implements session.Backend.
func (c *Client) FetchAssessment(ctx context.Context, id string) (*model.AssessmentRecord, error) {
	raw, status, err := c.do(ctx, http.MethodGet, "/api/Assessments/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("fetch assessment %s: lms status %d", id, status)
	}

	rec, err := decodeAssessment(raw)
	if err != nil {
		return nil, fmt.Errorf("decode assessment %s: %w", id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

// SubmitResult implements session.Backend.
func (c *Client) SubmitResult(ctx context.Context, result model.Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return err
	}

	_, status, err := c.do(ctx, http.MethodPost, "/api/Results", body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("submit result: lms status %d", status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("LMS request")

	return raw, resp.StatusCode, nil
}
