// Package format renders resolved references as chat markdown.
package format

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mentionbot/internal/fetch"
	"github.com/mentionbot/internal/github"
	"github.com/mentionbot/internal/refs"
	"github.com/mentionbot/internal/resolver"
	"github.com/mentionbot/internal/xkcd"
)

// maxMessageLength is the chat platform's hard content limit.
const maxMessageLength = 2000

// truncationTarget leaves room for the omission note.
const truncationTarget = 1970

const omissionNote = "-# Some mentions were omitted"

// stateEmoji maps an entity's state to its marker. The set mirrors
// GitHub's own iconography.
func stateEmoji(entity *github.Entity) string {
	if entity.Kind == github.EntityPullRequest {
		switch {
		case entity.Draft:
			return "📝"
		case entity.Merged:
			return "🟣"
		case entity.Closed():
			return "🔴"
		default:
			return "🟢"
		}
	}
	switch {
	case entity.Closed() && entity.StateReason == "completed":
		return "✅"
	case entity.Closed():
		return "⚪"
	default:
		return "🟢"
	}
}

// langSubstitutions maps file extensions to the highlighter name the
// chat platform understands.
var langSubstitutions = map[string]string{
	"el":  "lisp",
	"pyi": "py",
	"fnl": "clojure",
	"m":   "objc",
}

// Outcomes renders one block per outcome and joins them, truncating
// from the end when the result exceeds the platform limit.
func Outcomes(outcomes []resolver.Outcome) string {
	blocks := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		if block := Outcome(outcome); block != "" {
			blocks = append(blocks, block)
		}
	}

	if len(strings.Join(blocks, "\n")) > maxMessageLength {
		for len(blocks) > 0 && len(strings.Join(blocks, "\n")) > truncationTarget {
			blocks = blocks[:len(blocks)-1]
		}
		blocks = append(blocks, omissionNote)
	}
	return strings.Join(blocks, "\n")
}

// Outcome renders a single resolved reference, or a short failure
// notice when resolution failed terminally. Transient failures render
// nothing; the mention is silently skipped.
func Outcome(outcome resolver.Outcome) string {
	if outcome.Err != nil {
		return failureNotice(outcome.Ref, outcome.Err)
	}
	payload := outcome.Payload
	switch payload.Ref.Kind {
	case refs.KindEntity:
		return Entity(payload.Entity, payload.Ref.Owner, payload.Ref.Repo)
	case refs.KindCommit:
		return Commit(payload.Commit, payload.Ref.Owner, payload.Ref.Repo)
	case refs.KindComment:
		return Comment(payload.Comment, payload.CommentEntity)
	case refs.KindCodeRange:
		return Snippet(payload.Snippet)
	case refs.KindComic:
		return Comic(payload.Comic)
	default:
		return ""
	}
}

// failureNotice renders terminal failures the reader should know
// about. Missing entities and unresolvable bare names stay silent;
// they are usually false-positive mentions, not real references.
func failureNotice(ref refs.Reference, err error) string {
	switch fetch.KindOf(err) {
	case fetch.ErrNotFound:
		if ref.Kind == refs.KindComic {
			return fmt.Sprintf("-# xkcd #%d does not exist", ref.Comic)
		}
		return ""
	case fetch.ErrRangeOutOfBounds:
		return fmt.Sprintf("-# Lines %d-%d are out of range for `%s`", ref.Start, ref.End, ref.Path)
	case fetch.ErrForbidden:
		return fmt.Sprintf("-# Could not resolve %s (not accessible)", describe(ref))
	default:
		return ""
	}
}

// describe names a reference the way the user wrote it, roughly.
func describe(ref refs.Reference) string {
	repo := ref.Repo
	if ref.Owner != "" {
		repo = ref.Owner + "/" + ref.Repo
	}
	switch ref.Kind {
	case refs.KindCommit:
		return fmt.Sprintf("`%s@%s`", repo, shortSHA(ref.SHA))
	case refs.KindCodeRange:
		return fmt.Sprintf("`%s` in `%s`", ref.Path, repo)
	case refs.KindComic:
		return fmt.Sprintf("`xkcd#%d`", ref.Comic)
	default:
		return fmt.Sprintf("`%s#%d`", repo, ref.Number)
	}
}

// Entity renders an issue or pull request headline with attribution
// subtext and, for pull requests, a diff-size note.
func Entity(entity *github.Entity, owner, repo string) string {
	headline := fmt.Sprintf("%s **%s [#%d](<%s>):** %s",
		stateEmoji(entity), entity.Kind, entity.Number, entity.HTMLURL, EscapeSpecial(entity.Title))

	repoURL := fmt.Sprintf("https://github.com/%s/%s", owner, repo)
	subtext := fmt.Sprintf("-# by %s in [`%s/%s`](<%s>) on %s (%s)",
		userLink(&entity.User), owner, repo, repoURL,
		Timestamp(entity.CreatedAt, "D"), Timestamp(entity.CreatedAt, "R"))

	block := headline + "\n" + subtext
	if entity.Kind == github.EntityPullRequest {
		// Diff stats only arrive on the pulls endpoint; zeros mean the
		// fetch went through the issues endpoint fallback.
		if note := DiffNote(entity.Additions, entity.Deletions, entity.ChangedFiles); note != "" {
			block += "\n-# " + note
		}
	}
	return block
}

// Commit renders a commit headline with author/committer attribution.
func Commit(commit *github.Commit, owner, repo string) string {
	title := commit.Message
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	heading := fmt.Sprintf("🔗 **Commit [`%s`](<%s>):** %s",
		shortSHA(commit.SHA), commit.HTMLURL, EscapeSpecial(title))

	committer := commit.Committer
	// web-flow is GitHub's committer for all commits made through the
	// web UI, so show the author instead.
	if committer != nil && committer.Login == "web-flow" {
		committer = commit.Author
	}

	subtext := "-# authored by "
	if commit.Author != nil && committer != nil && commit.Author.Login != committer.Login {
		subtext += userLink(commit.Author) + ", committed by "
	}
	if commit.Signed {
		subtext += "🔏 "
	}
	if committer != nil {
		subtext += userLink(committer)
	} else {
		subtext += "an unknown user"
	}

	repoURL := fmt.Sprintf("https://github.com/%s/%s", owner, repo)
	subtext += fmt.Sprintf(" in [`%s/%s`](<%s>)", owner, repo, repoURL)
	if !commit.Date.IsZero() {
		subtext += fmt.Sprintf(" on %s (%s)", Timestamp(commit.Date, "D"), Timestamp(commit.Date, "R"))
	}

	block := heading + "\n" + subtext
	if note := DiffNote(commit.Additions, commit.Deletions, commit.FilesChanged); note != "" {
		block += "\n-# " + note
	}
	return block
}

// Comment renders a comment as a quoted block under its parent
// entity's headline.
func Comment(comment *github.Comment, parent *github.Entity) string {
	header := fmt.Sprintf("%s **Comment on [%s](<%s>)** by %s (%s)",
		stateEmoji(parent), EscapeSpecial(parent.Title), comment.HTMLURL,
		userLink(&comment.User), Timestamp(comment.CreatedAt, "R"))

	body := strings.TrimSpace(comment.Body)
	quoted := "> " + strings.ReplaceAll(body, "\n", "\n> ")
	return header + "\n" + quoted
}

// Snippet renders a code range as a linked header plus a fenced block.
func Snippet(snippet *resolver.Snippet) string {
	repoPath := snippet.Owner + "/" + snippet.Repo
	repoURL := "https://github.com/" + repoPath
	treeURL := fmt.Sprintf("%s/tree/%s", repoURL, snippet.Rev)
	fileURL := fmt.Sprintf("%s/blob/%s/%s", repoURL, snippet.Rev, snippet.Path)

	var rangeInfo string
	if snippet.End > snippet.Start {
		rangeInfo = fmt.Sprintf("[lines %d-%d](<%s#L%d-L%d>)",
			snippet.Start, snippet.End, fileURL, snippet.Start, snippet.End)
	} else {
		rangeInfo = fmt.Sprintf("[line %d](<%s#L%d>)", snippet.Start, fileURL, snippet.Start)
	}

	refType := "branch"
	if isHex(snippet.Rev) {
		refType = "revision"
	}

	unquoted := snippet.Path
	if u, err := url.PathUnescape(snippet.Path); err == nil {
		unquoted = u
	}

	lang := snippet.Path
	if i := strings.LastIndexByte(lang, '.'); i >= 0 {
		lang = lang[i+1:]
	} else {
		lang = ""
	}
	if sub, ok := langSubstitutions[lang]; ok {
		lang = sub
	}

	body := Dedent(snippet.Lines)
	return fmt.Sprintf("[`%s`](<%s>), %s\n-# Repo: [`%s`](<%s>), %s: [`%s`](<%s>)\n```%s\n%s\n```",
		unquoted, fileURL, rangeInfo, repoPath, repoURL, refType, snippet.Rev, treeURL,
		lang, strings.Join(body, "\n"))
}

// Comic renders an xkcd comic with its image and alt text.
func Comic(comic *xkcd.Comic) string {
	block := fmt.Sprintf("**[%s](<%s>)**\n%s", EscapeSpecial(comic.Title), comic.URL(), comic.Img)
	footer := comic.Alt
	if date := comic.Date(); !date.IsZero() {
		footer += " • " + date.Format("January 2, 2006")
	}
	if footer != "" {
		block += "\n-# " + EscapeSpecial(footer)
	}
	return block
}

// DiffNote summarizes a change's size, or returns the empty string
// when the stats are unavailable.
func DiffNote(additions, deletions, changedFiles int) string {
	if changedFiles == 0 || (additions == 0 && deletions == 0) {
		return ""
	}
	files := "files"
	if changedFiles == 1 {
		files = "file"
	}
	return fmt.Sprintf("+%d -%d in %d %s", additions, deletions, changedFiles, files)
}

// Timestamp renders a platform dynamic timestamp. "D" shows the full
// date, "R" the relative time.
func Timestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

// EscapeSpecial escapes markdown control characters in free text.
func EscapeSpecial(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\', '`', '*', '_', '~', '|', '[', ']', '<', '>':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Dedent strips the longest common leading whitespace from the lines.
func Dedent(lines []string) []string {
	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix = indent
			first = false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if prefix == "" {
		return lines
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = strings.TrimPrefix(line, prefix)
	}
	return out
}

func userLink(user *github.User) string {
	if user == nil || user.Login == "" {
		return "an unknown user"
	}
	return fmt.Sprintf("[%s](<%s>)", EscapeSpecial(user.Login), user.HTMLURL)
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
