// Package resolver turns parsed references into render-ready payloads,
// consulting the shared TTR cache before the remote clients.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mentionbot/internal/fetch"
	"github.com/mentionbot/internal/github"
	"github.com/mentionbot/internal/refs"
	"github.com/mentionbot/internal/ttrcache"
	"github.com/mentionbot/internal/xkcd"
)

// GitHubClient is the subset of the GitHub client the resolver needs.
type GitHubClient interface {
	Issue(ctx context.Context, owner, repo string, number int) (*github.Entity, error)
	Commit(ctx context.Context, owner, repo, sha string) (*github.Commit, error)
	Comment(ctx context.Context, owner, repo, anchor string, id int64) (*github.Comment, error)
	FileContent(ctx context.Context, owner, repo, rev, path string) (string, error)
	SearchMostPopular(ctx context.Context, name string) (*github.Repo, error)
}

// ComicClient fetches xkcd comics.
type ComicClient interface {
	Comic(ctx context.Context, num int) (*xkcd.Comic, error)
}

// Snippet is a sliced file range ready for rendering.
type Snippet struct {
	Owner string
	Repo  string
	Rev   string
	Path  string
	Start int
	End   int
	Lines []string
}

// Payload is the resolved data for one reference; exactly one of the
// pointer fields matching Ref.Kind is set.
type Payload struct {
	Ref     refs.Reference
	Entity  *github.Entity
	Commit  *github.Commit
	Comment *github.Comment
	// CommentEntity is the comment's parent issue or pull request.
	CommentEntity *github.Entity
	Snippet       *Snippet
	Comic         *xkcd.Comic
}

// Outcome is the per-reference result: a payload or a classified
// failure, never both.
type Outcome struct {
	Ref     refs.Reference
	Payload *Payload
	Err     error
}

// Resolver coordinates the parser's output against the cache and the
// remote clients. The cache is injected so tests can substitute a
// fresh one per case.
type Resolver struct {
	cache  *ttrcache.Cache[any]
	gh     GitHubClient
	comics ComicClient
}

// New creates a resolver around the given shared cache and clients.
func New(cache *ttrcache.Cache[any], gh GitHubClient, comics ComicClient) *Resolver {
	return &Resolver{cache: cache, gh: gh, comics: comics}
}

// Resolve produces one outcome per reference, preserving input order.
// References resolve concurrently; a failure in one never aborts its
// siblings.
func (r *Resolver) Resolve(ctx context.Context, references []refs.Reference) []Outcome {
	outcomes := make([]Outcome, len(references))
	var wg sync.WaitGroup
	for i, ref := range references {
		wg.Add(1)
		go func(i int, ref refs.Reference) {
			defer wg.Done()
			payload, err := r.resolveOne(ctx, ref)
			if err != nil {
				log.Debug().
					Str("kind", ref.Kind.String()).
					Str("error_kind", fetch.KindOf(err).String()).
					Err(err).
					Msg("reference resolution failed")
			}
			outcomes[i] = Outcome{Ref: ref, Payload: payload, Err: err}
		}(i, ref)
	}
	wg.Wait()
	return outcomes
}

func (r *Resolver) resolveOne(ctx context.Context, ref refs.Reference) (*Payload, error) {
	if ref.NeedsLookup {
		owner, err := r.lookupOwner(ctx, ref.Repo)
		if err != nil {
			return nil, err
		}
		ref.Owner = owner
		ref.NeedsLookup = false
	}

	switch ref.Kind {
	case refs.KindEntity:
		entity, err := cached(ctx, r.cache, ref.Key(), func(ctx context.Context) (*github.Entity, error) {
			return r.gh.Issue(ctx, ref.Owner, ref.Repo, ref.Number)
		})
		if err != nil {
			return nil, err
		}
		return &Payload{Ref: ref, Entity: entity}, nil

	case refs.KindCommit:
		commit, err := cached(ctx, r.cache, ref.Key(), func(ctx context.Context) (*github.Commit, error) {
			return r.gh.Commit(ctx, ref.Owner, ref.Repo, ref.SHA)
		})
		if err != nil {
			return nil, err
		}
		return &Payload{Ref: ref, Commit: commit}, nil

	case refs.KindComment:
		comment, err := cached(ctx, r.cache, ref.Key(), func(ctx context.Context) (*github.Comment, error) {
			return r.gh.Comment(ctx, ref.Owner, ref.Repo, ref.Anchor, ref.CommentID)
		})
		if err != nil {
			return nil, err
		}
		parentKey := fmt.Sprintf("entity:%s/%s#%d",
			strings.ToLower(ref.Owner), strings.ToLower(ref.Repo), ref.Number)
		parent, err := cached(ctx, r.cache, parentKey, func(ctx context.Context) (*github.Entity, error) {
			return r.gh.Issue(ctx, ref.Owner, ref.Repo, ref.Number)
		})
		if err != nil {
			return nil, err
		}
		return &Payload{Ref: ref, Comment: comment, CommentEntity: parent}, nil

	case refs.KindCodeRange:
		snippet, err := r.resolveCodeRange(ctx, ref)
		if err != nil {
			return nil, err
		}
		return &Payload{Ref: ref, Snippet: snippet}, nil

	case refs.KindComic:
		comic, err := cached(ctx, r.cache, ref.Key(), func(ctx context.Context) (*xkcd.Comic, error) {
			return r.comics.Comic(ctx, ref.Comic)
		})
		if err != nil {
			return nil, err
		}
		return &Payload{Ref: ref, Comic: comic}, nil

	default:
		return nil, fetch.NotFound(fmt.Sprintf("unsupported reference kind %s", ref.Kind))
	}
}

// lookupOwner disambiguates a bare repository name through the cache
// using a repository-search key with the same sliding policy as entity
// lookups.
func (r *Resolver) lookupOwner(ctx context.Context, name string) (string, error) {
	key := "repo-search:" + strings.ToLower(name)
	repo, err := cached(ctx, r.cache, key, func(ctx context.Context) (*github.Repo, error) {
		return r.gh.SearchMostPopular(ctx, name)
	})
	if err != nil {
		return "", err
	}
	return repo.Owner.Login, nil
}

// resolveCodeRange caches whole-file content per (repo, rev, path) so
// different line spans over the same file share one fetch, then slices
// the requested span.
func (r *Resolver) resolveCodeRange(ctx context.Context, ref refs.Reference) (*Snippet, error) {
	key := fmt.Sprintf("content:%s/%s@%s/%s",
		strings.ToLower(ref.Owner), strings.ToLower(ref.Repo), ref.Rev, ref.Path)
	content, err := cached(ctx, r.cache, key, func(ctx context.Context) (string, error) {
		return r.gh.FileContent(ctx, ref.Owner, ref.Repo, ref.Rev, ref.Path)
	})
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if ref.Start < 1 || ref.End > len(lines) {
		return nil, &fetch.Error{
			Kind:     fetch.ErrRangeOutOfBounds,
			Resource: fmt.Sprintf("%s/%s@%s/%s lines %d-%d", ref.Owner, ref.Repo, ref.Rev, ref.Path, ref.Start, ref.End),
		}
	}
	return &Snippet{
		Owner: ref.Owner,
		Repo:  ref.Repo,
		Rev:   ref.Rev,
		Path:  ref.Path,
		Start: ref.Start,
		End:   ref.End,
		Lines: lines[ref.Start-1 : ref.End],
	}, nil
}

// cached is a typed view over the shared any-valued cache.
func cached[V any](ctx context.Context, cache *ttrcache.Cache[any], key string, fetcher func(ctx context.Context) (V, error)) (V, error) {
	value, err := cache.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetcher(ctx)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return value.(V), nil
}
