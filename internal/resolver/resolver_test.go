package resolver

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentionbot/internal/fetch"
	"github.com/mentionbot/internal/github"
	"github.com/mentionbot/internal/refs"
	"github.com/mentionbot/internal/ttrcache"
	"github.com/mentionbot/internal/xkcd"
)

type fakeGitHub struct {
	issueCalls   atomic.Int64
	searchCalls  atomic.Int64
	contentCalls atomic.Int64

	issues   map[string]*github.Entity
	commits  map[string]*github.Commit
	comments map[string]*github.Comment
	files    map[string]string
	repos    map[string]*github.Repo
}

func issueKey(owner, repo string, number int) string {
	return owner + "/" + repo + "#" + strconv.Itoa(number)
}

func (f *fakeGitHub) Issue(_ context.Context, owner, repo string, number int) (*github.Entity, error) {
	f.issueCalls.Add(1)
	entity, ok := f.issues[issueKey(owner, repo, number)]
	if !ok {
		return nil, fetch.NotFound("issue")
	}
	return entity, nil
}

func (f *fakeGitHub) Commit(_ context.Context, owner, repo, sha string) (*github.Commit, error) {
	commit, ok := f.commits[owner+"/"+repo+"@"+sha]
	if !ok {
		return nil, fetch.NotFound("commit")
	}
	return commit, nil
}

func (f *fakeGitHub) Comment(_ context.Context, owner, repo, anchor string, id int64) (*github.Comment, error) {
	comment, ok := f.comments[anchor]
	if !ok {
		return nil, fetch.NotFound("comment")
	}
	return comment, nil
}

func (f *fakeGitHub) FileContent(_ context.Context, owner, repo, rev, path string) (string, error) {
	f.contentCalls.Add(1)
	content, ok := f.files[path]
	if !ok {
		return "", fetch.NotFound("file")
	}
	return content, nil
}

func (f *fakeGitHub) SearchMostPopular(_ context.Context, name string) (*github.Repo, error) {
	f.searchCalls.Add(1)
	repo, ok := f.repos[name]
	if !ok {
		return nil, &fetch.Error{Kind: fetch.ErrAmbiguousRepo, Resource: "repository " + name}
	}
	return repo, nil
}

type fakeComics struct {
	calls  atomic.Int64
	comics map[int]*xkcd.Comic
}

func (f *fakeComics) Comic(_ context.Context, num int) (*xkcd.Comic, error) {
	f.calls.Add(1)
	comic, ok := f.comics[num]
	if !ok {
		return nil, fetch.NotFound("comic")
	}
	return comic, nil
}

func newTestResolver(gh *fakeGitHub, comics *fakeComics) *Resolver {
	cache := ttrcache.New[any](30*time.Minute, 128)
	return New(cache, gh, comics)
}

func TestResolvePreservesOrderAndIsolatesFailures(t *testing.T) {
	gh := &fakeGitHub{
		issues: map[string]*github.Entity{
			"ghostty-org/ghostty#1234": {Kind: github.EntityIssue, Number: 1234, Title: "Find a way"},
		},
	}
	r := newTestResolver(gh, &fakeComics{})

	references := []refs.Reference{
		{Kind: refs.KindEntity, Owner: "ghostty-org", Repo: "ghostty", Number: 1234},
		{Kind: refs.KindEntity, Owner: "ghostty-org", Repo: "ghostty", Number: 9999},
	}
	outcomes := r.Resolve(context.Background(), references)

	require.Len(t, outcomes, 2)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "Find a way", outcomes[0].Payload.Entity.Title)

	require.Error(t, outcomes[1].Err)
	assert.Nil(t, outcomes[1].Payload)
	assert.Equal(t, fetch.ErrNotFound, fetch.KindOf(outcomes[1].Err))
}

func TestResolveCachesAcrossCalls(t *testing.T) {
	gh := &fakeGitHub{
		issues: map[string]*github.Entity{
			"ghostty-org/ghostty#7": {Kind: github.EntityIssue, Number: 7},
		},
	}
	r := newTestResolver(gh, &fakeComics{})
	ref := refs.Reference{Kind: refs.KindEntity, Owner: "ghostty-org", Repo: "ghostty", Number: 7}

	for i := 0; i < 5; i++ {
		outcomes := r.Resolve(context.Background(), []refs.Reference{ref})
		require.NoError(t, outcomes[0].Err)
	}
	assert.Equal(t, int64(1), gh.issueCalls.Load())
}

func TestResolveDisambiguatesBareName(t *testing.T) {
	gh := &fakeGitHub{
		repos: map[string]*github.Repo{
			"rust": {Name: "rust", FullName: "rust-lang/rust", Owner: &github.User{Login: "rust-lang"}},
		},
		issues: map[string]*github.Entity{
			"rust-lang/rust#105586": {Kind: github.EntityIssue, Number: 105586},
		},
	}
	r := newTestResolver(gh, &fakeComics{})

	references := []refs.Reference{
		{Kind: refs.KindEntity, Repo: "rust", NeedsLookup: true, Number: 105586},
	}
	outcomes := r.Resolve(context.Background(), references)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "rust-lang", outcomes[0].Payload.Ref.Owner)
	assert.False(t, outcomes[0].Payload.Ref.NeedsLookup)

	// A second mention of the same bare name reuses the cached search.
	r.Resolve(context.Background(), references)
	assert.Equal(t, int64(1), gh.searchCalls.Load())
}

func TestResolveBareNameWithNoMatch(t *testing.T) {
	r := newTestResolver(&fakeGitHub{}, &fakeComics{})

	outcomes := r.Resolve(context.Background(), []refs.Reference{
		{Kind: refs.KindEntity, Repo: "noexist", NeedsLookup: true, Number: 1},
	})
	require.Error(t, outcomes[0].Err)
	assert.Equal(t, fetch.ErrAmbiguousRepo, fetch.KindOf(outcomes[0].Err))
}

func TestResolveCodeRange(t *testing.T) {
	gh := &fakeGitHub{
		files: map[string]string{
			"src/main.zig": "one\ntwo\nthree\nfour\nfive\n",
		},
	}
	r := newTestResolver(gh, &fakeComics{})

	ref := refs.Reference{
		Kind: refs.KindCodeRange, Owner: "ghostty-org", Repo: "ghostty",
		Rev: "main", Path: "src/main.zig", Start: 2, End: 4,
	}
	outcomes := r.Resolve(context.Background(), []refs.Reference{ref})
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, []string{"two", "three", "four"}, outcomes[0].Payload.Snippet.Lines)
}

func TestResolveCodeRangeOutOfBounds(t *testing.T) {
	gh := &fakeGitHub{
		files: map[string]string{
			// 40 lines.
			"short.go": repeatLines(40),
		},
	}
	r := newTestResolver(gh, &fakeComics{})

	ref := refs.Reference{
		Kind: refs.KindCodeRange, Owner: "o", Repo: "r",
		Rev: "main", Path: "short.go", Start: 50, End: 60,
	}
	outcomes := r.Resolve(context.Background(), []refs.Reference{ref})
	require.Error(t, outcomes[0].Err)
	assert.Equal(t, fetch.ErrRangeOutOfBounds, fetch.KindOf(outcomes[0].Err))
}

func TestResolveCodeRangeSpansShareOneFetch(t *testing.T) {
	gh := &fakeGitHub{
		files: map[string]string{"a.go": repeatLines(100)},
	}
	r := newTestResolver(gh, &fakeComics{})

	base := refs.Reference{Kind: refs.KindCodeRange, Owner: "o", Repo: "r", Rev: "v1", Path: "a.go"}
	first := base
	first.Start, first.End = 1, 10
	second := base
	second.Start, second.End = 50, 60

	outcomes := r.Resolve(context.Background(), []refs.Reference{first, second})
	require.NoError(t, outcomes[0].Err)
	require.NoError(t, outcomes[1].Err)
	assert.Equal(t, int64(1), gh.contentCalls.Load())
}

func TestResolveCommentIncludesParent(t *testing.T) {
	gh := &fakeGitHub{
		comments: map[string]*github.Comment{
			"issuecomment-": {Body: "looks good", User: github.User{Login: "reviewer"}},
		},
		issues: map[string]*github.Entity{
			"o/r#42": {Kind: github.EntityIssue, Number: 42, Title: "parent"},
		},
	}
	r := newTestResolver(gh, &fakeComics{})

	ref := refs.Reference{
		Kind: refs.KindComment, Owner: "o", Repo: "r",
		Number: 42, Anchor: "issuecomment-", CommentID: 99,
	}
	outcomes := r.Resolve(context.Background(), []refs.Reference{ref})
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "looks good", outcomes[0].Payload.Comment.Body)
	require.NotNil(t, outcomes[0].Payload.CommentEntity)
	assert.Equal(t, "parent", outcomes[0].Payload.CommentEntity.Title)
}

func TestResolveComic(t *testing.T) {
	comics := &fakeComics{
		comics: map[int]*xkcd.Comic{
			927: {Num: 927, Title: "Standards"},
		},
	}
	r := newTestResolver(&fakeGitHub{}, comics)

	ref := refs.Reference{Kind: refs.KindComic, Comic: 927}
	outcomes := r.Resolve(context.Background(), []refs.Reference{ref})
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "Standards", outcomes[0].Payload.Comic.Title)

	r.Resolve(context.Background(), []refs.Reference{ref})
	assert.Equal(t, int64(1), comics.calls.Load())
}

func TestResolveFailureNotCached(t *testing.T) {
	gh := &fakeGitHub{issues: map[string]*github.Entity{}}
	r := newTestResolver(gh, &fakeComics{})
	ref := refs.Reference{Kind: refs.KindEntity, Owner: "o", Repo: "r", Number: 1}

	r.Resolve(context.Background(), []refs.Reference{ref})
	r.Resolve(context.Background(), []refs.Reference{ref})
	assert.Equal(t, int64(2), gh.issueCalls.Load())
}

func repeatLines(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += "line " + strconv.Itoa(i+1) + "\n"
	}
	return out
}
