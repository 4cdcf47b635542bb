package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBase  = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel = "gemini-2.0-flash"
)

type Client struct {
	apiKey  string
	http    *http.Client
	baseURL string
	model   string
	system  string
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBase,
		model:   defaultModel,
		system:  DefaultPersona,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// doJSON: POST con la API key en header, maneja 404 y 429 con Retry-After simple.
func (c *Client) doJSON(ctx context.Context, path string, in, out any) error {
	return c.post(ctx, path, in, out, true)
}

func (c *Client) post(ctx context.Context, path string, in, out any, retry bool) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gemini http: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests && retry {
		if ra := res.Header.Get("Retry-After"); ra != "" {
			if sec, _ := strconv.Atoi(ra); sec > 0 && sec <= 10 {
				select {
				case <-time.After(time.Duration(sec) * time.Second):
				case <-ctx.Done():
					return ctx.Err()
				}
				// un reintento
				return c.post(ctx, path, in, out, false)
			}
		}
	}

	if res.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &APIError{Status: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	return json.NewDecoder(res.Body).Decode(out)
}
