// Package identity looks up display metadata for wallet addresses. Every
// lookup is best effort: failures produce empty profiles, never errors to
// the projector.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RemoteProfile is one entry of the profile service's bulk response.
type RemoteProfile struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

type bulkResponse struct {
	Profiles map[string]RemoteProfile `json:"profiles"`
}

// Client talks to the external profile service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	log        *zap.Logger
}

func NewClient(baseURL string, timeoutMS, maxRetries int, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		maxRetries: maxRetries,
		log:        log,
	}
}

// Lookup fetches profiles for addresses in one request. Addresses the
// service does not know are absent from the result.
func (c *Client) Lookup(ctx context.Context, addresses []string) (map[string]RemoteProfile, error) {
	if c.baseURL == "" || len(addresses) == 0 {
		return map[string]RemoteProfile{}, nil
	}
	endpoint := fmt.Sprintf("%s/profiles?addresses=%s", c.baseURL, url.QueryEscape(strings.Join(addresses, ",")))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		out, retry, err := c.fetch(ctx, endpoint)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retry {
			break
		}
		c.log.Debug("profile lookup failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, lastErr
}

func (c *Client) fetch(ctx context.Context, endpoint string) (map[string]RemoteProfile, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("profile service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("profile service returned %d: %s", resp.StatusCode, string(body))
		return nil, resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, err
	}

	var out bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decode profiles: %w", err)
	}
	if out.Profiles == nil {
		out.Profiles = map[string]RemoteProfile{}
	}
	return out.Profiles, false, nil
}
