// Package provider holds splash.Provider implementations for the runner.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxConfigBytes = 1 << 20

var ErrConfigTooLarge = errors.New("config response exceeds 1 MiB")

// HTTP fetches the config document with a GET request.
type HTTP struct {
	URL    string
	Client *http.Client
	Header http.Header
}

func NewHTTP(url string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTP{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTP) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range p.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("config request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConfigBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config response: %w", err)
	}
	if len(body) > maxConfigBytes {
		return nil, ErrConfigTooLarge
	}
	return body, nil
}
