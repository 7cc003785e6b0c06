package search

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const maxBodyBytes = 2 << 20

// FetchRequest describes a single page retrieval through the Tor session.
type FetchRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Timeout time.Duration
}

// FetchResponse carries the outcome of a FetchRequest. Body is truncated to
// a sane bound so tool payloads stay small.
type FetchResponse struct {
	Status      int
	ContentType string
	Body        string
	FinalURL    string
}

// Fetch retrieves a URL through the appropriate transport. Onion targets go
// through the Tor proxy, clearnet targets go direct.
func (c *Client) Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, method, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.clientFor(req.URL).Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &FetchResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(body),
		FinalURL:    finalURL,
	}, nil
}

// Scrape fetches a page and reduces it to readable text.
func (c *Client) Scrape(ctx context.Context, target string) (string, error) {
	resp, err := c.Fetch(ctx, FetchRequest{URL: target})
	if err != nil {
		return "", err
	}
	if resp.Status != http.StatusOK {
		return "", fmt.Errorf("scrape %s: status %d", target, resp.Status)
	}
	return HTMLToText(resp.Body)
}
