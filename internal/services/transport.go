package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ordersync/node/internal/models"
)

// SyncTransport pushes local changes to and pulls remote changes from
// the remote authority, table by table
type SyncTransport interface {
	Push(ctx context.Context, table string, items []models.PushItem) ([]models.PushResult, error)
	Pull(ctx context.Context, table string, since int64) ([]models.PullItem, error)
}

// HTTPTransport talks to the remote authority over HTTP. Transient
// failures (network errors, 5xx) are retried with exponential backoff;
// anything else fails the call immediately.
type HTTPTransport struct {
	baseURL    string
	apiKey     string
	nodeID     string
	client     *http.Client
	maxRetries uint64
}

// NewHTTPTransport creates a transport for the given remote authority
func NewHTTPTransport(baseURL, apiKey, nodeID string, timeout time.Duration, maxRetries int) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &HTTPTransport{
		baseURL:    baseURL,
		apiKey:     apiKey,
		nodeID:     nodeID,
		client:     &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
	}
}

// Push sends staged local changes and returns the remote's per-record verdicts
func (t *HTTPTransport) Push(ctx context.Context, table string, items []models.PushItem) ([]models.PushResult, error) {
	body, err := json.Marshal(models.PushRequest{NodeID: t.nodeID, Records: items})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/sync/%s/push", t.baseURL, table)

	var response models.PushResponse
	err = t.doWithRetry(ctx, "push", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return t.send(req, &response)
	})
	if err != nil {
		return nil, err
	}
	return response.Results, nil
}

// Pull fetches remote records with revision above the watermark
func (t *HTTPTransport) Pull(ctx context.Context, table string, since int64) ([]models.PullItem, error) {
	url := fmt.Sprintf("%s/sync/%s/pull?since=%s", t.baseURL, table, strconv.FormatInt(since, 10))

	var response models.PullResponse
	err := t.doWithRetry(ctx, "pull", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		return t.send(req, &response)
	})
	if err != nil {
		return nil, err
	}
	return response.Records, nil
}

func (t *HTTPTransport) doWithRetry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), t.maxRetries), ctx)

	if err := backoff.Retry(fn, policy); err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return nil
}

func (t *HTTPTransport) send(req *http.Request, out interface{}) error {
	if t.apiKey != "" {
		req.Header.Set("X-API-Key", t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("remote returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return backoff.Permanent(fmt.Errorf("remote returned %d: %s", resp.StatusCode, body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
