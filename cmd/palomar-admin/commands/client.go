package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// apiError is the error envelope returned by the admin API.
type apiError struct {
	Error string `json:"error"`
}

// apiClient is a thin JSON client for the palomar admin API.
type apiClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// newClient builds a client from the global flags, falling back to the
// PALOMAR_API_URL and PALOMAR_API_KEY environment variables.
func newClient() *apiClient {
	base := apiURL
	if base == "" {
		base = os.Getenv("PALOMAR_API_URL")
	}
	if base == "" {
		base = "http://localhost:8980"
	}

	key := apiKeyFlag
	if key == "" {
		key = os.Getenv("PALOMAR_API_KEY")
	}

	return &apiClient{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  key,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// send executes the request, surfaces API error envelopes as errors, and
// decodes a successful response into out when out is non-nil.
func (c *apiClient) send(req *http.Request, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var e apiError
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("%s", resp.Status)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.send(req, out)
}

func (c *apiClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *apiClient) post(ctx context.Context, path string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(buf), "application/json", out)
}

func (c *apiClient) del(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodDelete, path, nil, "", out)
}

// putText uploads a plain-text body, used for sieve scripts.
func (c *apiClient) putText(ctx context.Context, path string, body []byte, out interface{}) error {
	return c.do(ctx, http.MethodPut, path, bytes.NewReader(body), "text/plain", out)
}

// postRaw submits a raw RFC 822 message, optionally overriding the recipient.
func (c *apiClient) postRaw(ctx context.Context, path string, raw []byte, recipient string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "message/rfc822")
	if recipient != "" {
		req.Header.Set("X-Recipient", recipient)
	}
	return c.send(req, out)
}

// accountPath builds an /api/v1/accounts/{address} path with the address
// escaped for use as a path segment.
func accountPath(address, suffix string) string {
	return "/api/v1/accounts/" + url.PathEscape(address) + suffix
}
