// Package whoop reads recovery, sleep, workout and cycle records from the
// WHOOP developer API.
package whoop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultBaseURL   = "https://api.prod.whoop.com/developer/v1"
	defaultPageLimit = 25
	maxPages         = 100
)

// AccessTokener supplies bearer tokens.
type AccessTokener interface {
	AccessToken(ctx context.Context) (string, error)
}

type Client struct {
	BaseURL   string
	HTTP      *http.Client
	Tokens    AccessTokener
	PageLimit int

	now func() time.Time
}

func NewClient(tokens AccessTokener) *Client {
	return &Client{
		BaseURL:   DefaultBaseURL,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Tokens:    tokens,
		PageLimit: defaultPageLimit,
		now:       time.Now,
	}
}

// Records returns every record of kind in the window [now-days, now].
func (c *Client) Records(ctx context.Context, kind string, days int) (any, error) {
	switch kind {
	case KindRecovery:
		return fetchAll[Recovery](ctx, c, kind, days)
	case KindWorkout:
		return fetchAll[Workout](ctx, c, kind, days)
	case KindSleep:
		return fetchAll[Sleep](ctx, c, kind, days)
	case KindCycle:
		return fetchAll[Cycle](ctx, c, kind, days)
	default:
		return nil, fmt.Errorf("invalid data type %q, must be one of recovery, workout, sleep, cycle", kind)
	}
}

func fetchAll[T any](ctx context.Context, c *Client, kind string, days int) ([]T, error) {
	token, err := c.Tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	end := c.now().UTC()
	start := end.AddDate(0, 0, -days)
	limit := c.PageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	params := url.Values{}
	params.Set("start", start.Format(time.RFC3339))
	params.Set("end", end.Format(time.RFC3339))
	params.Set("limit", strconv.Itoa(limit))

	all := []T{}
	for i := 0; i < maxPages; i++ {
		var p page[T]
		if err := c.get(ctx, endpoints[kind], params, token, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Records...)
		if p.NextToken == "" {
			return all, nil
		}
		params.Set("nextToken", p.NextToken)
	}
	return all, fmt.Errorf("whoop: %s pagination did not finish after %d pages", kind, maxPages)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("whoop: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whoop: %s: status %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("whoop: %s: decode: %w", path, err)
	}
	return nil
}
