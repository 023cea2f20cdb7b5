// Package imgbb implements services.ImageHost on the imgbb upload API: a
// form POST of the API key and the base64-encoded image, answered with the
// public URL under data.url.
package imgbb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/mobileauth-chat/internal/services"
)

// DefaultEndpoint is the public imgbb upload URL.
const DefaultEndpoint = "https://api.imgbb.com/1/upload"

const maxBody = 1 << 20

type uploadResponse struct {
	Data struct {
		URL string `json:"url"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

// Client uploads images to imgbb.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// New returns a client for endpoint. A nil hc gets a client with a 30s
// timeout.
func New(endpoint, apiKey string, hc *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{endpoint: endpoint, apiKey: apiKey, http: hc}
}

// Upload posts data and returns the hosted URL. Without an API key the host
// is reported unavailable; every upstream failure is a plain error.
func (c *Client) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: image upload service is not configured", services.ErrUnavailable)
	}

	form := url.Values{}
	form.Set("key", c.apiKey)
	form.Set("image", base64.StdEncoding.EncodeToString(data))
	if name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)); name != "" && name != "." {
		form.Set("name", name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("imgbb: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return "", fmt.Errorf("imgbb: %v", err)
	}
	defer resp.Body.Close()

	log.Debug().Int("status", resp.StatusCode).Int("bytes", len(data)).Msg("imgbb response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return "", fmt.Errorf("imgbb: status %d", resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&out); err != nil {
		return "", fmt.Errorf("imgbb: decode response: %w", err)
	}
	if out.Data.URL == "" {
		return "", errors.New("imgbb: response has no url")
	}
	return out.Data.URL, nil
}
