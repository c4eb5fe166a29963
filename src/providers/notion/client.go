// Package notion renders morning journaling pages from a Notion database.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Protocol-Lattice/go-companion/src/concurrent"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	APIVersion     = "2022-06-28"
	pageSize       = 100
	maxPages       = 50
	fetchWorkers   = 4
)

type Client struct {
	BaseURL    string
	HTTP       *http.Client
	Token      string
	DatabaseID string

	now func() time.Time
}

func NewClient(token, databaseID string) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		Token:      token,
		DatabaseID: databaseID,
		now:        time.Now,
	}
}

type page struct {
	ID          string `json:"id"`
	CreatedTime string `json:"created_time"`
}

type richText struct {
	PlainText string `json:"plain_text"`
	Text      struct {
		Content string `json:"content"`
	} `json:"text"`
}

type textBlock struct {
	RichText []richText `json:"rich_text"`
}

type block struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	HasChildren bool       `json:"has_children"`
	Heading2    *textBlock `json:"heading_2,omitempty"`
	Paragraph   *textBlock `json:"paragraph,omitempty"`
}

type list[T any] struct {
	Results    []T    `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// Entries renders every journaling page created in the last days, newest
// first.
func (c *Client) Entries(ctx context.Context, days int) (string, error) {
	pages, err := c.queryPages(ctx, days)
	if err != nil {
		return "", err
	}
	if len(pages) == 0 {
		return fmt.Sprintf("No journaling entries found in the last %d days.", days), nil
	}

	rendered, err := concurrent.ParallelMap(ctx, pages, c.renderPage, fetchWorkers)
	if err != nil {
		return "", err
	}
	return strings.Join(rendered, "\n"), nil
}

func (c *Client) queryPages(ctx context.Context, days int) ([]page, error) {
	since := c.now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	body := map[string]any{
		"filter": map[string]any{
			"timestamp":    "created_time",
			"created_time": map[string]any{"on_or_after": since},
		},
		"sorts":     []map[string]any{{"timestamp": "created_time", "direction": "descending"}},
		"page_size": pageSize,
	}

	var pages []page
	for i := 0; i < maxPages; i++ {
		var res list[page]
		if err := c.do(ctx, http.MethodPost, "/databases/"+c.DatabaseID+"/query", body, &res); err != nil {
			return nil, err
		}
		pages = append(pages, res.Results...)
		if !res.HasMore || res.NextCursor == "" {
			return pages, nil
		}
		body["start_cursor"] = res.NextCursor
	}
	return pages, fmt.Errorf("notion: database query did not finish after %d pages", maxPages)
}

func (c *Client) children(ctx context.Context, id string) ([]block, error) {
	params := url.Values{}
	params.Set("page_size", fmt.Sprint(pageSize))

	var blocks []block
	for i := 0; i < maxPages; i++ {
		var res list[block]
		if err := c.do(ctx, http.MethodGet, "/blocks/"+id+"/children?"+params.Encode(), nil, &res); err != nil {
			return nil, err
		}
		blocks = append(blocks, res.Results...)
		if !res.HasMore || res.NextCursor == "" {
			return blocks, nil
		}
		params.Set("start_cursor", res.NextCursor)
	}
	return blocks, fmt.Errorf("notion: children of %s did not finish after %d pages", id, maxPages)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Notion-Version", APIVersion)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notion: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notion: %s: status %d: %s", path, resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("notion: %s: decode: %w", path, err)
	}
	return nil
}
