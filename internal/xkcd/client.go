// Package xkcd fetches comic metadata from the xkcd JSON API.
package xkcd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mentionbot/internal/fetch"
	"github.com/mentionbot/internal/retry"
)

const defaultBaseURL = "https://xkcd.com"

// Comic is the metadata for one comic. Day, Month and Year are strings
// on the wire.
type Comic struct {
	Num        int    `json:"num"`
	Title      string `json:"title"`
	Img        string `json:"img"`
	Alt        string `json:"alt"`
	Transcript string `json:"transcript"`
	Day        string `json:"day"`
	Month      string `json:"month"`
	Year       string `json:"year"`
}

// URL returns the comic's page address.
func (c *Comic) URL() string {
	return fmt.Sprintf("%s/%d", defaultBaseURL, c.Num)
}

// Date returns the publication date, or the zero time when the wire
// fields do not parse.
func (c *Comic) Date() time.Time {
	day, err1 := strconv.Atoi(c.Day)
	month, err2 := strconv.Atoi(c.Month)
	year, err3 := strconv.Atoi(c.Year)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// Client fetches comics with the same bounded-retry policy as the
// GitHub client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	retryConfig retry.Config
	callTimeout time.Duration
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	CallTimeout time.Duration
	Retry       retry.Config
}

// NewClient creates an xkcd API client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.BaseDelay == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	return &Client{
		httpClient:  &http.Client{},
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		retryConfig: opts.Retry,
		callTimeout: opts.CallTimeout,
	}
}

// Comic fetches one comic by number.
func (c *Client) Comic(ctx context.Context, num int) (*Comic, error) {
	resource := fmt.Sprintf("xkcd %d", num)
	var comic *Comic

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		url := fmt.Sprintf("%s/%d/info.0.json", c.baseURL, num)
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", "MentionBot")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fetch.Transient(resource, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			comic = &Comic{}
			if err := json.NewDecoder(resp.Body).Decode(comic); err != nil {
				return fmt.Errorf("decode %s: %w", resource, err)
			}
			return nil
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return &fetch.Error{Kind: fetch.ErrNotFound, Resource: resource, Status: resp.StatusCode}
		case resp.StatusCode == http.StatusForbidden:
			return &fetch.Error{Kind: fetch.ErrForbidden, Resource: resource, Status: resp.StatusCode}
		default:
			return &fetch.Error{Kind: fetch.ErrTransient, Resource: resource, Status: resp.StatusCode}
		}
	}

	result := retry.WithBackoff(ctx, c.retryConfig, operation, fetch.Retryable)
	if !result.Success {
		return nil, result.LastError
	}
	return comic, nil
}
