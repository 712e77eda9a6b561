// Package scheduler is the client for the external delayed-callback
// service used in event mode. The service's internals are out of
// scope; only the interface the engine depends on is specified.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the engine's view of the external scheduler, following
// bronivik_crm/internal/crmapi.BronivikClient's doGet/doPost
// helper-method shape since the corpus has no dedicated job-queue
// client library.
type Client interface {
	PublishOneShot(ctx context.Context, url string, body any, delay time.Duration, headers map[string]string) error
	PublishCron(ctx context.Context, url, cronExpression string, body any, headers map[string]string) (string, error)
	Cancel(ctx context.Context, id string) error
}

// HTTPClient is the production Client implementation.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retries int
}

// NewHTTPClient builds an HTTPClient against baseURL, authenticating
// with apiKey. retries (default 3 if retries <= 0) is sent to the
// service with each published message as its delivery retry count;
// the client itself sends every request once and does not retry.
func NewHTTPClient(baseURL, apiKey string, retries int) *HTTPClient {
	if retries <= 0 {
		retries = 3
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		retries: retries,
	}
}

type oneShotRequest struct {
	URL          string            `json:"url"`
	Body         any               `json:"body"`
	DelaySeconds int               `json:"delaySeconds"`
	Retries      int               `json:"retries"`
	Headers      map[string]string `json:"headers,omitempty"`
}

type cronRequest struct {
	URL            string            `json:"url"`
	CronExpression string            `json:"cronExpression"`
	Body           any               `json:"body"`
	Retries        int               `json:"retries"`
	Headers        map[string]string `json:"headers,omitempty"`
}

type cronResponse struct {
	ID string `json:"id"`
}

func (c *HTTPClient) PublishOneShot(ctx context.Context, url string, body any, delay time.Duration, headers map[string]string) error {
	req := oneShotRequest{
		URL:          url,
		Body:         body,
		DelaySeconds: int(delay / time.Second),
		Retries:      c.retries,
		Headers:      withAPIKey(headers, c.apiKey),
	}
	_, err := c.doPost(ctx, "/schedule/one-shot", req)
	return err
}

func (c *HTTPClient) PublishCron(ctx context.Context, url, cronExpression string, body any, headers map[string]string) (string, error) {
	req := cronRequest{
		URL:            url,
		CronExpression: cronExpression,
		Body:           body,
		Retries:        c.retries,
		Headers:        withAPIKey(headers, c.apiKey),
	}
	respBody, err := c.doPost(ctx, "/schedule/cron", req)
	if err != nil {
		return "", err
	}
	var resp cronResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("scheduler: decode cron response: %w", err)
	}
	return resp.ID, nil
}

func (c *HTTPClient) Cancel(ctx context.Context, id string) error {
	_, err := c.doPost(ctx, "/schedule/"+id+"/cancel", nil)
	return err
}

func withAPIKey(headers map[string]string, apiKey string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	if apiKey != "" {
		out["X-Api-Key"] = apiKey
	}
	return out
}

func (c *HTTPClient) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			return nil, fmt.Errorf("scheduler: encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("scheduler: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scheduler: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("scheduler: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("scheduler: %s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *HTTPClient) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}
