package refs

import (
	"fmt"
	"strings"
)

// Kind identifies what a parsed reference points at.
type Kind int

const (
	// KindEntity covers issues, pull requests, and discussions; the
	// distinction is only known after fetching.
	KindEntity Kind = iota
	KindCommit
	KindCodeRange
	KindComment
	KindComic
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindCommit:
		return "commit"
	case KindCodeRange:
		return "code"
	case KindComment:
		return "comment"
	case KindComic:
		return "comic"
	default:
		return "unknown"
	}
}

// Reference is a single parsed mention. It is a value object: immutable
// once parsed and compared structurally for deduplication.
type Reference struct {
	Kind Kind

	// Owner and Repo identify the repository. When NeedsLookup is set,
	// Owner is empty and Repo holds a bare name that must be
	// disambiguated by popularity search before the reference can be
	// resolved.
	Owner       string
	Repo        string
	NeedsLookup bool

	// Number is the issue/PR/discussion number for KindEntity and the
	// parent entity number for KindComment.
	Number int

	// SHA is the commit hash prefix (7-40 hex chars) for KindCommit.
	SHA string

	// Comic is the comic number for KindComic.
	Comic int

	// Anchor and CommentID locate a comment within its parent entity
	// for KindComment (e.g. anchor "issuecomment-", id 123456).
	Anchor    string
	CommentID int64

	// Rev, Path, Start and End describe a file slice for KindCodeRange.
	// Start and End are 1-indexed and inclusive; End equals Start for
	// single-line references.
	Rev   string
	Path  string
	Start int
	End   int

	// SuppressEmbed is set when the reference came from a full URL, in
	// which case the source message's own embed should be suppressed.
	SuppressEmbed bool
}

// Key returns the normalized cache key for a fully disambiguated
// reference. Two references differing only in textual form (prefix
// alias vs explicit owner) produce the same key.
func (r Reference) Key() string {
	repo := strings.ToLower(r.Owner) + "/" + strings.ToLower(r.Repo)
	switch r.Kind {
	case KindEntity:
		return fmt.Sprintf("entity:%s#%d", repo, r.Number)
	case KindCommit:
		return fmt.Sprintf("commit:%s@%s", repo, strings.ToLower(r.SHA))
	case KindCodeRange:
		return fmt.Sprintf("code:%s@%s/%s#L%d-L%d", repo, r.Rev, r.Path, r.Start, r.End)
	case KindComment:
		return fmt.Sprintf("comment:%s#%d/%s%d", repo, r.Number, r.Anchor, r.CommentID)
	case KindComic:
		return fmt.Sprintf("comic:%d", r.Comic)
	default:
		return fmt.Sprintf("unknown:%s", repo)
	}
}

// dedupKey is the structural identity used to collapse duplicates
// within one message. Unlike Key it tolerates undisambiguated names.
func (r Reference) dedupKey() string {
	if r.NeedsLookup {
		return fmt.Sprintf("%s:?/%s:%d:%s:%d", r.Kind, strings.ToLower(r.Repo), r.Number, strings.ToLower(r.SHA), r.Comic)
	}
	c := r
	c.SuppressEmbed = false
	return c.Key()
}
