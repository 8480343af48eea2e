package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bookture/internal/config"
	"bookture/internal/progress"
)

// StatusError is returned for non-2xx daemon replies.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Code)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}

// Client talks to a running daemon over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for baseURL (for example http://127.0.0.1:7390).
// An empty token sends no Authorization header.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
}

// ClientFromConfig targets the configured bind address. When owner is set
// and a token maps to it, that token is used.
func ClientFromConfig(cfg *config.Config, owner string) *Client {
	bind := strings.TrimSpace(cfg.API.Bind)
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return NewClient("http://"+bind, TokenFor(cfg, owner))
}

// TokenFor returns the configured bearer token for owner, or the first
// token in sorted order when owner is empty.
func TokenFor(cfg *config.Config, owner string) string {
	if len(cfg.API.Tokens) == 0 {
		return ""
	}
	tokens := make([]string, 0, len(cfg.API.Tokens))
	for token := range cfg.API.Tokens {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return tokens[0]
	}
	for _, token := range tokens {
		if cfg.API.Tokens[token] == owner {
			return token
		}
	}
	return ""
}

// Health pings the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, "", nil)
}

// Status fetches daemon diagnostics.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var out DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit uploads the document at path. An empty title defaults to the file
// name on the daemon side.
func (c *Client) Submit(ctx context.Context, path, title string) (*IntakeResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer file.Close()

	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		err := func() error {
			if strings.TrimSpace(title) != "" {
				if err := form.WriteField("title", title); err != nil {
					return err
				}
			}
			part, err := form.CreateFormFile("document", filepath.Base(path))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, file); err != nil {
				return err
			}
			return form.Close()
		}()
		writer.CloseWithError(err)
	}()

	var out IntakeResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", body, form.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resume asks the intake guard to resume a job.
func (c *Client) Resume(ctx context.Context, id string) (*IntakeResponse, error) {
	var out IntakeResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/resume", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Jobs lists the caller's library.
func (c *Client) Jobs(ctx context.Context) (*JobListResponse, error) {
	var out JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Active reports the caller's running job, if any.
func (c *Client) Active(ctx context.Context) (*ActiveResponse, error) {
	var out ActiveResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/active", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Job fetches a job with its units.
func (c *Client) Job(ctx context.Context, id string) (*JobDetailResponse, error) {
	var out JobDetailResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetFavorite marks or unmarks a job in the caller's library.
func (c *Client) SetFavorite(ctx context.Context, id string, favorite bool) error {
	data, err := json.Marshal(FavoriteRequest{Favorite: favorite})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/api/jobs/"+url.PathEscape(id)+"/favorite",
		bytes.NewReader(data), "application/json", nil)
}

// Follow streams progress events for id, calling fn for each until fn
// returns false, the stream ends, or ctx is done.
func (c *Client) Follow(ctx context.Context, id string, fn func(progress.Event) bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/events", nil, "")
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var evt progress.Event
			if err := json.Unmarshal([]byte(data.String()), &evt); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			data.Reset()
			if !fn(evt) {
				return nil
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var payload ErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return &StatusError{Code: resp.StatusCode, Message: payload.Error}
	}
	return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}
