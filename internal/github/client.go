package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mentionbot/internal/fetch"
	"github.com/mentionbot/internal/retry"
)

const defaultBaseURL = "https://api.github.com"

// Ranking picks the winning repository from a name search. The default
// prefers the highest star count, breaking ties by earliest creation
// date; callers may substitute their own policy.
type Ranking func(candidates []Repo) *Repo

// DefaultRanking orders by stars descending, then by creation date
// ascending.
func DefaultRanking(candidates []Repo) *Repo {
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Stars != candidates[j].Stars {
			return candidates[i].Stars > candidates[j].Stars
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return &candidates[0]
}

// Options configures a Client.
type Options struct {
	// Token is a personal access token. Ignored when AppID and
	// AppPrivateKey are set, in which case the client authenticates as
	// a GitHub App with short-lived signed JWTs.
	Token         string
	AppID         string
	AppPrivateKey string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	// CallTimeout bounds each individual HTTP request (default 30s).
	CallTimeout time.Duration

	// RequestsPerSecond paces outgoing calls (default 10).
	RequestsPerSecond float64

	Retry   retry.Config
	Ranking Ranking
}

// Client is a thin, retrying wrapper around the GitHub REST API. It
// holds no caching policy; callers layer caching on top.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	auth        authSource
	limiter     *rate.Limiter
	retryConfig retry.Config
	callTimeout time.Duration
	ranking     Ranking
}

// NewClient creates a GitHub API client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.BaseDelay == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Ranking == nil {
		opts.Ranking = DefaultRanking
	}

	auth, err := newAuthSource(opts)
	if err != nil {
		return nil, fmt.Errorf("github auth: %w", err)
	}

	return &Client{
		httpClient:  &http.Client{},
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		auth:        auth,
		limiter:     rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		retryConfig: opts.Retry,
		callTimeout: opts.CallTimeout,
		ranking:     opts.Ranking,
	}, nil
}

// Issue fetches an issue or pull request by number. The issues endpoint
// serves both; when the payload carries a pull_request marker the full
// pull request is fetched so that draft/merged state is available.
func (c *Client) Issue(ctx context.Context, owner, repo string, number int) (*Entity, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)

	var payload issuePayload
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}
	if payload.PullRequest == nil {
		entity := payload.Entity
		entity.Kind = EntityIssue
		return &entity, nil
	}

	var pr Entity
	if err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number), &pr); err != nil {
		return nil, err
	}
	pr.Kind = EntityPullRequest
	return &pr, nil
}

// Commit fetches a commit by SHA or SHA prefix. The returned summary
// carries the full SHA even when the request used a prefix.
func (c *Client) Commit(ctx context.Context, owner, repo, sha string) (*Commit, error) {
	var payload commitPayload
	path := fmt.Sprintf("/repos/%s/%s/commits/%s", owner, repo, sha)
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.summary(), nil
}

// Comment fetches a single comment. The anchor is the fragment prefix
// from the comment URL and selects the endpoint: "issuecomment-" for
// issue/PR conversation comments, "discussion_r" for review comments.
func (c *Client) Comment(ctx context.Context, owner, repo, anchor string, id int64) (*Comment, error) {
	var path string
	switch anchor {
	case "issuecomment-":
		path = fmt.Sprintf("/repos/%s/%s/issues/comments/%d", owner, repo, id)
	case "discussion_r":
		path = fmt.Sprintf("/repos/%s/%s/pulls/comments/%d", owner, repo, id)
	default:
		return nil, fetch.NotFound(fmt.Sprintf("%s/%s comment %s%d", owner, repo, anchor, id))
	}

	var comment Comment
	if err := c.getJSON(ctx, path, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// FileContent fetches raw file content at the given revision.
func (c *Client) FileContent(ctx context.Context, owner, repo, rev, path string) (string, error) {
	p := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s",
		owner, repo, strings.TrimPrefix(path, "/"), url.QueryEscape(rev))
	return c.getRaw(ctx, p)
}

// SearchMostPopular resolves a bare repository name to its most popular
// namesake. Zero candidates yield an ambiguous-repository error.
func (c *Client) SearchMostPopular(ctx context.Context, name string) (*Repo, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("sort", "stars")
	q.Set("order", "desc")
	q.Set("per_page", "20")

	var payload searchPayload
	if err := c.getJSON(ctx, "/search/repositories?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	candidates := make([]Repo, 0, len(payload.Items))
	for _, item := range payload.Items {
		if strings.EqualFold(item.Name, name) && item.Owner != nil {
			candidates = append(candidates, item)
		}
	}
	winner := c.ranking(candidates)
	if winner == nil {
		return nil, &fetch.Error{Kind: fetch.ErrAmbiguousRepo, Resource: "repository " + name}
	}
	return winner, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.get(ctx, path, "application/vnd.github.v3+json", func(body io.Reader) error {
		return json.NewDecoder(body).Decode(out)
	})
}

func (c *Client) getRaw(ctx context.Context, path string) (string, error) {
	var content string
	err := c.get(ctx, path, "application/vnd.github.raw+json", func(body io.Reader) error {
		raw, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		content = string(raw)
		return nil
	})
	return content, err
}

// get runs one API call with pacing, per-call timeout, and bounded
// retry on transient failures. Definitive 404/410/403 responses map to
// terminal errors and are never retried.
func (c *Client) get(ctx context.Context, path, accept string, decode func(io.Reader) error) error {
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fetch.Transient(path, err)
		}
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", "MentionBot")
		authorization, err := c.auth.authorization()
		if err != nil {
			return fmt.Errorf("authorization: %w", err)
		}
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fetch.Transient(path, err)
		}
		defer resp.Body.Close()

		if err := classifyStatus(resp, path); err != nil {
			return err
		}
		if err := decode(resp.Body); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}

	result := retry.WithBackoff(ctx, c.retryConfig, operation, fetch.Retryable)
	if !result.Success {
		return result.LastError
	}
	return nil
}

func classifyStatus(resp *http.Response, resource string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &fetch.Error{Kind: fetch.ErrNotFound, Resource: resource, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusForbidden:
		// A 403 with a Retry-After header or an exhausted rate limit is
		// GitHub's secondary rate limiting, not an access denial.
		if resp.Header.Get("Retry-After") != "" || resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return &fetch.Error{Kind: fetch.ErrTransient, Resource: resource, Status: resp.StatusCode}
		}
		return &fetch.Error{Kind: fetch.ErrForbidden, Resource: resource, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusUnauthorized:
		return &fetch.Error{Kind: fetch.ErrForbidden, Resource: resource, Status: resp.StatusCode}
	default:
		return &fetch.Error{Kind: fetch.ErrTransient, Resource: resource, Status: resp.StatusCode}
	}
}
