package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentionbot/internal/fetch"
	"github.com/mentionbot/internal/retry"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Options{
		Token:             "test-token",
		BaseURL:           server.URL,
		Retry:             fastRetry(),
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	return client
}

func TestIssueFetch(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/o/r/issues/42", r.URL.Path)
		assert.Equal(t, "token test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{
			"number": 42, "title": "broken", "state": "open",
			"html_url": "https://github.com/o/r/issues/42",
			"user": {"login": "someone"}
		}`))
	}))

	entity, err := client.Issue(context.Background(), "o", "r", 42)
	require.NoError(t, err)
	assert.Equal(t, EntityIssue, entity.Kind)
	assert.Equal(t, "broken", entity.Title)
	assert.Equal(t, "someone", entity.User.Login)
}

func TestIssueFallsThroughToPullRequest(t *testing.T) {
	var pullsHit atomic.Bool
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/o/r/issues/7":
			w.Write([]byte(`{"number": 7, "title": "a pr", "pull_request": {"url": "x"}}`))
		case "/repos/o/r/pulls/7":
			pullsHit.Store(true)
			w.Write([]byte(`{
				"number": 7, "title": "a pr", "state": "closed", "merged": true,
				"additions": 10, "deletions": 2, "changed_files": 3
			}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	entity, err := client.Issue(context.Background(), "o", "r", 7)
	require.NoError(t, err)
	assert.True(t, pullsHit.Load())
	assert.Equal(t, EntityPullRequest, entity.Kind)
	assert.True(t, entity.Merged)
	assert.Equal(t, 10, entity.Additions)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"number": 1}`))
	}))

	_, err := client.Issue(context.Background(), "o", "r", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.Issue(context.Background(), "o", "r", 1)
	require.Error(t, err)
	assert.Equal(t, fetch.ErrNotFound, fetch.KindOf(err))
	assert.Equal(t, int64(1), calls.Load())
}

func TestForbiddenIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.Issue(context.Background(), "o", "r", 1)
	require.Error(t, err)
	assert.Equal(t, fetch.ErrForbidden, fetch.KindOf(err))
	assert.Equal(t, int64(1), calls.Load())
}

func TestSecondaryRateLimitIsTransient(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"number": 1}`))
	}))

	_, err := client.Issue(context.Background(), "o", "r", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestCommitCanonicalizesSHA(t *testing.T) {
	const fullSHA = "0123456789abcdef0123456789abcdef01234567"
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/o/r/commits/0123abc", r.URL.Path)
		w.Write([]byte(`{
			"sha": "` + fullSHA + `",
			"html_url": "https://github.com/o/r/commit/` + fullSHA + `",
			"commit": {
				"message": "fix things",
				"committer": {"date": "2024-03-01T12:00:00Z"},
				"verification": {"verified": true}
			},
			"stats": {"additions": 5, "deletions": 1},
			"files": [{"filename": "a.go"}, {"filename": "b.go"}]
		}`))
	}))

	commit, err := client.Commit(context.Background(), "o", "r", "0123abc")
	require.NoError(t, err)
	assert.Equal(t, fullSHA, commit.SHA)
	assert.Equal(t, "fix things", commit.Message)
	assert.True(t, commit.Signed)
	assert.Equal(t, 2, commit.FilesChanged)
}

func TestCommentEndpointSelection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/o/r/issues/comments/11":
			w.Write([]byte(`{"body": "conversation", "user": {"login": "a"}}`))
		case "/repos/o/r/pulls/comments/22":
			w.Write([]byte(`{"body": "review", "user": {"login": "b"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	issue, err := client.Comment(context.Background(), "o", "r", "issuecomment-", 11)
	require.NoError(t, err)
	assert.Equal(t, "conversation", issue.Body)

	review, err := client.Comment(context.Background(), "o", "r", "discussion_r", 22)
	require.NoError(t, err)
	assert.Equal(t, "review", review.Body)

	_, err = client.Comment(context.Background(), "o", "r", "unknown-", 33)
	require.Error(t, err)
	assert.Equal(t, fetch.ErrNotFound, fetch.KindOf(err))
}

func TestFileContentRequestsRawMediaType(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github.raw+json", r.Header.Get("Accept"))
		assert.Equal(t, "/repos/o/r/contents/src/main.zig", r.URL.Path)
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		w.Write([]byte("const std = @import(\"std\");\n"))
	}))

	content, err := client.FileContent(context.Background(), "o", "r", "main", "src/main.zig")
	require.NoError(t, err)
	assert.Contains(t, content, "@import")
}

func TestSearchMostPopularRanking(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/repositories", r.URL.Path)
		assert.Equal(t, "rust", r.URL.Query().Get("q"))
		w.Write([]byte(`{"items": [
			{"name": "rust", "full_name": "old/rust", "stargazers_count": 500,
			 "created_at": "2010-01-01T00:00:00Z", "owner": {"login": "old"}},
			{"name": "rust", "full_name": "rust-lang/rust", "stargazers_count": 90000,
			 "created_at": "2010-06-16T00:00:00Z", "owner": {"login": "rust-lang"}},
			{"name": "rust-analyzer", "full_name": "rust-lang/rust-analyzer",
			 "stargazers_count": 99999, "created_at": "2018-01-01T00:00:00Z",
			 "owner": {"login": "rust-lang"}}
		]}`))
	}))

	repo, err := client.SearchMostPopular(context.Background(), "rust")
	require.NoError(t, err)
	// The analyzer repo has more stars but does not match the name
	// exactly, so it never competes.
	assert.Equal(t, "rust-lang/rust", repo.FullName)
}

func TestSearchMostPopularTieBreaksByAge(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": [
			{"name": "thing", "full_name": "younger/thing", "stargazers_count": 100,
			 "created_at": "2020-01-01T00:00:00Z", "owner": {"login": "younger"}},
			{"name": "thing", "full_name": "older/thing", "stargazers_count": 100,
			 "created_at": "2015-01-01T00:00:00Z", "owner": {"login": "older"}}
		]}`))
	}))

	repo, err := client.SearchMostPopular(context.Background(), "thing")
	require.NoError(t, err)
	assert.Equal(t, "older/thing", repo.FullName)
}

func TestSearchMostPopularNoCandidates(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": []}`))
	}))

	_, err := client.SearchMostPopular(context.Background(), "noexist")
	require.Error(t, err)
	assert.Equal(t, fetch.ErrAmbiguousRepo, fetch.KindOf(err))
}
