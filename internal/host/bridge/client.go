package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"snake-market/internal/host"
)

// TokenHeader carries the shared secret between host and service.
const TokenHeader = "X-Host-Token"

// Client calls the game host. It implements host.Granter, host.Notifier and
// Fetcher.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for the host at baseURL. Each call is bounded
// by timeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type grantRequest struct {
	PlayerID string `json:"player_id"`
	Item     string `json:"item,omitempty"`
	Ammo     string `json:"ammo,omitempty"`
	Amount   int    `json:"amount,omitempty"`
}

type hintRequest struct {
	PlayerID string  `json:"player_id"`
	Text     string  `json:"text"`
	Seconds  float64 `json:"seconds"`
}

type displaysResponse struct {
	Displays []DisplayState `json:"displays"`
}

// GrantItem implements host.Granter.
func (c *Client) GrantItem(ctx context.Context, playerID, kind string) error {
	return c.grant(ctx, grantRequest{PlayerID: playerID, Item: kind})
}

// GrantAmmo implements host.Granter.
func (c *Client) GrantAmmo(ctx context.Context, playerID, kind string, amount int) error {
	return c.grant(ctx, grantRequest{PlayerID: playerID, Ammo: kind, Amount: amount})
}

func (c *Client) grant(ctx context.Context, req grantRequest) error {
	resp, err := c.do(ctx, http.MethodPost, "/grant", req)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusConflict:
		return host.ErrInventoryFull
	case resp.StatusCode == http.StatusNotFound:
		return host.ErrPlayerNotFound
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return host.ErrUnknownGrant
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("grant: host returned %s", resp.Status)
	}
	return nil
}

// Notify implements host.Notifier.
func (c *Client) Notify(ctx context.Context, playerID, text string, d time.Duration) error {
	resp, err := c.do(ctx, http.MethodPost, "/hint", hintRequest{PlayerID: playerID, Text: text, Seconds: d.Seconds()})
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("hint: host returned %s", resp.Status)
	}
	return nil
}

// FetchDisplays implements Fetcher.
func (c *Client) FetchDisplays(ctx context.Context) ([]DisplayState, error) {
	resp, err := c.do(ctx, http.MethodGet, "/displays", nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("displays: host returned %s", resp.Status)
	}

	var out displaysResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode displays: %w", err)
	}
	return out.Displays, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
