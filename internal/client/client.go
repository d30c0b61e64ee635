// Package client is a small HTTP client for the statusboard JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dreamware/statusboard/internal/inventory"
	"github.com/dreamware/statusboard/internal/server"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// APIError is a non-2xx response from the server.
type APIError struct {
	URL     string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %s: %d", e.URL, e.Status)
	}
	return fmt.Sprintf("http %s: %d: %s", e.URL, e.Status, e.Message)
}

// Client talks to one statusboard server.
type Client struct {
	base string
}

// New returns a client for the server at base, e.g. "http://localhost:8080".
func New(base string) *Client {
	return &Client{base: strings.TrimRight(base, "/")}
}

// WebSocketURL returns the hub endpoint of the server.
func (c *Client) WebSocketURL() (string, error) {
	u, err := url.Parse(c.base + server.WebSocketPath)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// State fetches a full snapshot.
func (c *Client) State(ctx context.Context) (inventory.State, error) {
	var state inventory.State
	err := GetJSON(ctx, c.base+server.StatePath, &state)
	return state, err
}

// ZoneHealth fetches the derived health of every zone.
func (c *Client) ZoneHealth(ctx context.Context) (map[string]inventory.ServerStatus, error) {
	var out map[string]inventory.ServerStatus
	err := GetJSON(ctx, c.base+server.ZoneHealthPath, &out)
	return out, err
}

// ZoneHealthOf fetches the derived health of one zone.
func (c *Client) ZoneHealthOf(ctx context.Context, zoneID string) (inventory.ServerStatus, error) {
	var out map[string]inventory.ServerStatus
	target := c.base + server.ZoneHealthPath + "?" + url.Values{"zone": {zoneID}}.Encode()
	if err := GetJSON(ctx, target, &out); err != nil {
		return "", err
	}
	return out[zoneID], nil
}

// PublishStatus applies a status update through the HTTP API.
func (c *Client) PublishStatus(ctx context.Context, u inventory.StatusUpdate) error {
	return PostJSON(ctx, c.base+server.StatusUpdatePath, u, nil)
}

// Upload sends a YAML document as a multipart file.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (server.UploadResponse, error) {
	var out server.UploadResponse

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return out, err
	}
	if _, err := fw.Write(data); err != nil {
		return out, err
	}
	if err := mw.Close(); err != nil {
		return out, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+server.UploadPath, &buf)
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	err = do(req, &out)
	return out, err
}

// PostJSON posts body as JSON and decodes the response into out when out is
// non-nil.
func PostJSON(ctx context.Context, target string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req, out)
}

// GetJSON fetches target and decodes the JSON response into out.
func GetJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return do(req, out)
}

func do(req *http.Request, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{URL: req.URL.String(), Status: resp.StatusCode}
		var body server.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &body) == nil {
			apiErr.Message = body.Error
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
