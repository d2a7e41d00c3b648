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

	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/storage"
)

// Client talks to a running edge device. It implements storage.JobStore so
// operator tools can work on the job store while the edge device holds it.
type Client struct {
	base string
	hc   *http.Client
}

var _ storage.JobStore = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), hc: &http.Client{Timeout: timeout}}
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	var out struct {
		Msg string `json:"msg"`
	}
	err := c.do(ctx, http.MethodGet, "/ping", nil, &out)
	return out.Msg, err
}

func (c *Client) Machines(ctx context.Context) ([]models.Machine, error) {
	var out []models.Machine
	err := c.do(ctx, http.MethodGet, "/machines", nil, &out)
	return out, err
}

func (c *Client) Machine(ctx context.Context, id string) (models.Machine, error) {
	var out models.Machine
	err := c.do(ctx, http.MethodGet, "/machine?id="+url.QueryEscape(id), nil, &out)
	return out, err
}

func (c *Client) GetAll(ctx context.Context) ([]models.Job, error) {
	var out []models.Job
	err := c.do(ctx, http.MethodGet, "/jobs", nil, &out)
	return out, err
}

func (c *Client) Search(ctx context.Context, field string, value any) ([]models.Job, error) {
	q := url.Values{"field": {field}, "value": {fmt.Sprint(value)}}
	var out []models.Job
	err := c.do(ctx, http.MethodGet, "/jobs?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) Insert(ctx context.Context, job models.Job) (models.Job, error) {
	var out models.Job
	err := c.do(ctx, http.MethodPost, "/jobs", job, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, jobID, field string, value any) error {
	return c.do(ctx, http.MethodPost, "/jobs/update", UpdateRequest{JobID: jobID, Field: field, Value: value}, nil)
}

func (c *Client) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %w", method, path, statusError(resp.StatusCode, e.Error))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError turns an error response back into the store's sentinels.
func statusError(code int, msg string) error {
	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, storage.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, storage.ErrDuplicate)
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w", msg, models.ErrFieldValue)
	}
	return fmt.Errorf("http %d: %s", code, msg)
}
