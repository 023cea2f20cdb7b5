// Package twofactor implements services.OTPProvider against the 2factor.in
// SMS OTP API.
//
//	send:   GET {base}/{key}/SMS/{mobile}/AUTOGEN3
//	verify: GET {base}/{key}/SMS/VERIFY/{sessionId}/{otp}
//
// Both endpoints answer {"Status": "...", "Details": "..."}. A Status other
// than "Success" is a provider refusal whose Details is passed through to the
// caller; anything that cannot be decoded is treated as the provider being
// unavailable.
package twofactor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/mobileauth-chat/internal/services"
)

// DefaultBaseURL is the public 2factor.in API root.
const DefaultBaseURL = "https://2factor.in/API/V1"

const maxBody = 64 << 10

type response struct {
	Status  string `json:"Status"`
	Details string `json:"Details"`
}

// Client talks to the 2factor.in API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New returns a client for baseURL authenticated by apiKey. A nil hc gets a
// client with timeout.
func New(baseURL, apiKey string, timeout time.Duration, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, http: hc}
}

// Send requests an auto-generated OTP for mobile and returns the provider's
// session ID.
func (c *Client) Send(ctx context.Context, mobile string) (string, error) {
	u := fmt.Sprintf("%s/%s/SMS/%s/AUTOGEN3", c.baseURL, url.PathEscape(c.apiKey), url.PathEscape(mobile))
	r, err := c.get(ctx, "send", u)
	if err != nil {
		return "", err
	}
	if r.Status != "Success" {
		return "", services.Rejected(services.ErrUpstreamRejected, orDefault(r.Details, "Failed to send OTP"))
	}
	if r.Details == "" {
		return "", fmt.Errorf("%w: 2factor.in returned no session id", services.ErrUnavailable)
	}
	return r.Details, nil
}

// Verify checks code against the provider session token.
func (c *Client) Verify(ctx context.Context, token, code string) error {
	u := fmt.Sprintf("%s/%s/SMS/VERIFY/%s/%s", c.baseURL, url.PathEscape(c.apiKey), url.PathEscape(token), url.PathEscape(code))
	r, err := c.get(ctx, "verify", u)
	if err != nil {
		return err
	}
	if r.Status != "Success" {
		return services.Rejected(services.ErrOtpInvalid, orDefault(r.Details, "OTP verification failed"))
	}
	return nil
}

func (c *Client) get(ctx context.Context, op, u string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", services.ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL embeds the API key; keep it out of the error text.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("%w: 2factor.in: %v", services.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	log.Debug().Str("op", op).Int("status", resp.StatusCode).Msg("2factor response")

	// Refusals come back as JSON with a 4xx status, so the body decides.
	var r response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&r); err != nil || r.Status == "" {
		return nil, fmt.Errorf("%w: invalid response from 2factor.in", services.ErrUnavailable)
	}
	return &r, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
