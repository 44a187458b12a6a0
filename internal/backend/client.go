package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wallpanel"
	"wallpanel/internal/config"

	"github.com/cenkalti/backoff/v5"
)

// Domain errors surfaced to pollers and the slideshow.
var (
	ErrUnreachable = errors.New("backend unreachable")
	ErrBadResponse = errors.New("backend returned an unusable response")
	ErrNoAsset     = errors.New("no slideshow asset available")
)

// Doer is the request/response capability the client is built on.
// *http.Client satisfies it; tests supply their own.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the dashboard backend.
type Client struct {
	baseURL string
	http    Doer
}

// maxResponseBytes bounds status/config bodies; these are small JSON objects.
const maxResponseBytes = 1 << 20 // 1 MB

// NewClient builds a client against the given base URL. If doer is nil a
// default http.Client with the supplied timeout is used.
func NewClient(baseURL string, timeout time.Duration, doer Doer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    doer,
	}
}

// CheckUpdates polls the refresh-task status for one feed period.
// Transport and decode failures are both reported as errors; callers treat
// them identically (degraded, stop polling until resumed).
func (c *Client) CheckUpdates(ctx context.Context, periodKey string) (wallpanel.UpdateStatus, error) {
	var status wallpanel.UpdateStatus
	if err := c.getJSON(ctx, "/feed/check-updates/"+periodKey, &status); err != nil {
		return wallpanel.UpdateStatus{}, err
	}
	switch status.Status {
	case wallpanel.TaskRunning, wallpanel.TaskComplete, wallpanel.TaskError:
		return status, nil
	default:
		return wallpanel.UpdateStatus{}, fmt.Errorf("%w: unknown task status %q", ErrBadResponse, status.Status)
	}
}

// ForceRefresh asks the backend to regenerate a feed outside the normal
// polling cadence. The response is an ack only.
func (c *Client) ForceRefresh(ctx context.Context, periodKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/feed/force-refresh/"+periodKey, nil)
	if err != nil {
		return fmt.Errorf("build force-refresh request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: force-refresh status %d", ErrBadResponse, resp.StatusCode)
	}
	return nil
}

// assetResponse mirrors the backend's random-asset payload: exactly one of
// url or error is set.
type assetResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// RandomAsset fetches the next slideshow image reference. The backend
// answers 404 with an error payload when the photo library is empty; that is
// reported as ErrNoAsset, not as an unreachable backend.
func (c *Client) RandomAsset(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/random-asset", nil)
	if err != nil {
		return "", fmt.Errorf("build random-asset request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return "", fmt.Errorf("%w: random-asset status %d", ErrBadResponse, resp.StatusCode)
	}

	var asset assetResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&asset); err != nil {
		return "", fmt.Errorf("%w: decode random-asset: %v", ErrBadResponse, err)
	}
	if asset.URL == "" {
		if asset.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrNoAsset, asset.Error)
		}
		return "", ErrNoAsset
	}
	return asset.URL, nil
}

// RemoteConfig reads the backend's tunable intervals.
func (c *Client) RemoteConfig(ctx context.Context) (config.Remote, error) {
	var remote config.Remote
	if err := c.getJSON(ctx, "/config", &remote); err != nil {
		return config.Remote{}, err
	}
	return remote, nil
}

// RemoteConfigWithRetry fetches the remote config with exponential backoff,
// for startup where the backend may still be coming up.
func (c *Client) RemoteConfigWithRetry(ctx context.Context, maxTries uint) (config.Remote, error) {
	operation := func() (config.Remote, error) {
		return c.RemoteConfig(ctx)
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
	)
}

// getJSON performs a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s status %d", ErrBadResponse, path, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrBadResponse, path, err)
	}
	return nil
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxResponseBytes))
	_ = body.Close()
}
