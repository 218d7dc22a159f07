package refs

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// maxReferences bounds how many references a single message may yield.
const maxReferences = 10

var (
	// Fenced blocks and inline code are blanked out before scanning so
	// that mentions inside code never resolve.
	codeBlockPattern = regexp.MustCompile("(?s)```.*?```|`[^`\n]+`")

	commentPattern = regexp.MustCompile(
		`(?i)https?://(?:www\.)?github\.com/([a-z0-9\-]+)/([a-z0-9\-._]+)/` +
			`(issues|discussions|pull)/(\d{1,6})/?#(\w+?-?)(\d+)\b`)

	codeLinkPattern = regexp.MustCompile(
		`https?://(?:www\.)?github\.com/([a-zA-Z0-9\-]+)/([a-zA-Z0-9\-._]+)/blob/` +
			`([^/\s]+)/([^?#\s]+)(?:\?[^#\s]*)?#L(\d+)(?:C\d+)?(?:-L(\d+)(?:C\d+)?)?`)

	comicPattern = regexp.MustCompile(`(?i)\bxkcd#(\d{1,6})\b`)

	entityPattern = regexp.MustCompile(
		`(?i)(\bhttps?://(?:www\.)?github\.com/)?` +
			`(\b[a-z0-9\-]+/)?` +
			`(\b[a-z0-9\-._]+)?` +
			`(/(?:issues|pull|discussions)/|#)` +
			`(\d{1,6})\b`)

	commitPattern = regexp.MustCompile(
		`(?i)(\bhttps?://(?:www\.)?github\.com/)?` +
			`\b(?:([a-z0-9\-]+/)?([a-z0-9\-._]+)(@|/commit/|/blob/))?` +
			`([a-f0-9]{7,40})\b`)

	// Trailing context that disqualifies an entity number match, e.g.
	// "#123.4" (a version) or "#123#" (a fragment chain).
	entityTrailPattern = regexp.MustCompile(`^(\.\d|/?#)`)
)

// Parser turns raw message text into typed references. It is pure: no
// network access, no cache access, and it never fails.
type Parser struct {
	defaultOwner string
	defaultRepo  string
	prefixes     map[string][2]string
}

// NewParser builds a parser for the given default repository and prefix
// table. Prefix keys are matched case-insensitively; values must be
// "owner/repo" pairs (invalid entries are ignored).
func NewParser(defaultOwner, defaultRepo string, prefixes map[string]string) *Parser {
	table := make(map[string][2]string, len(prefixes))
	for prefix, target := range prefixes {
		owner, repo, ok := strings.Cut(target, "/")
		if !ok || owner == "" || repo == "" {
			continue
		}
		table[strings.ToLower(prefix)] = [2]string{owner, repo}
	}
	return &Parser{
		defaultOwner: defaultOwner,
		defaultRepo:  defaultRepo,
		prefixes:     table,
	}
}

type span struct{ start, end int }

type candidate struct {
	span
	ref Reference
}

// Parse scans text left to right and returns the ordered, deduplicated
// references it mentions. A span consumed by one pattern is never
// reconsidered by a lower-priority one; duplicates collapse to the
// first occurrence, keeping the embed-suppression flag if any duplicate
// carried it.
func (p *Parser) Parse(text string) []Reference {
	text = blankCodeBlocks(text)

	var consumed []span
	var found []candidate

	scan := func(re *regexp.Regexp, convert func(text string, m []int) (Reference, bool)) {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			s := span{m[0], m[1]}
			if overlaps(consumed, s) {
				continue
			}
			ref, ok := convert(text, m)
			if !ok {
				continue
			}
			consumed = append(consumed, s)
			found = append(found, candidate{span: s, ref: ref})
		}
	}

	// Priority order: most specific URL forms first, then short text
	// forms. The comic pattern outranks the entity pattern so that
	// "xkcd#123" is never consumed as a bare repository mention.
	scan(commentPattern, p.convertComment)
	scan(codeLinkPattern, p.convertCodeLink)
	scan(comicPattern, p.convertComic)
	scan(entityPattern, p.convertEntity)
	scan(commitPattern, p.convertCommit)

	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })

	out := make([]Reference, 0, len(found))
	seen := make(map[string]int, len(found))
	for _, c := range found {
		key := c.ref.dedupKey()
		if i, ok := seen[key]; ok {
			if c.ref.SuppressEmbed {
				out[i].SuppressEmbed = true
			}
			continue
		}
		if len(out) == maxReferences {
			break
		}
		seen[key] = len(out)
		out = append(out, c.ref)
	}
	return out
}

func blankCodeBlocks(text string) string {
	// Replace with spaces to keep byte offsets stable.
	return codeBlockPattern.ReplaceAllStringFunc(text, func(block string) string {
		return strings.Repeat(" ", len(block))
	})
}

func overlaps(consumed []span, s span) bool {
	for _, c := range consumed {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}

func group(text string, m []int, i int) string {
	if m[2*i] < 0 {
		return ""
	}
	return text[m[2*i]:m[2*i+1]]
}

// resolveRepo applies the prefix table and default-repository rules to
// a raw (owner, repo) pair. The returned reference fields are zero and
// ok is false for invalid combinations like "owner/#123".
func (p *Parser) resolveRepo(owner, repo string) (resolvedOwner, resolvedRepo string, needsLookup, ok bool) {
	owner = strings.TrimSuffix(owner, "/")
	switch {
	case owner == "" && repo == "":
		return p.defaultOwner, p.defaultRepo, false, true
	case owner == "":
		if pair, found := p.prefixes[strings.ToLower(repo)]; found {
			return pair[0], pair[1], false, true
		}
		return "", repo, true, true
	case repo == "":
		return "", "", false, false
	default:
		return owner, repo, false, true
	}
}

func (p *Parser) convertEntity(text string, m []int) (Reference, bool) {
	site := group(text, m, 1)
	owner := group(text, m, 2)
	repo := group(text, m, 3)
	sep := group(text, m, 4)
	number, _ := strconv.Atoi(group(text, m, 5))

	// URL forms must use a URL separator and plain forms must use "#".
	if (site != "") == (sep == "#") {
		return Reference{}, false
	}
	if entityTrailPattern.MatchString(text[m[1]:]) {
		return Reference{}, false
	}
	if owner == "" {
		// Single-digit bare mentions like "#1" are almost always false
		// positives unless they came from a full URL.
		if repo == "" && number < 10 && site == "" {
			return Reference{}, false
		}
		if strings.EqualFold(repo, "xkcd") {
			return Reference{}, false
		}
	}

	ro, rr, needs, ok := p.resolveRepo(owner, repo)
	if !ok {
		return Reference{}, false
	}
	return Reference{
		Kind:          KindEntity,
		Owner:         ro,
		Repo:          rr,
		NeedsLookup:   needs,
		Number:        number,
		SuppressEmbed: site != "",
	}, true
}

func (p *Parser) convertCommit(text string, m []int) (Reference, bool) {
	site := group(text, m, 1)
	owner := group(text, m, 2)
	repo := group(text, m, 3)
	sep := group(text, m, 4)
	sha := group(text, m, 5)

	if sep == "/blob/" {
		// A code link, handled by the higher-priority pattern.
		return Reference{}, false
	}
	if (site != "") != (sep == "/commit/") {
		return Reference{}, false
	}
	if site != "" && owner == "" {
		return Reference{}, false
	}

	ro, rr, needs, ok := p.resolveRepo(owner, repo)
	if !ok {
		return Reference{}, false
	}
	return Reference{
		Kind:          KindCommit,
		Owner:         ro,
		Repo:          rr,
		NeedsLookup:   needs,
		SHA:           strings.ToLower(sha),
		SuppressEmbed: site != "",
	}, true
}

func (p *Parser) convertCodeLink(text string, m []int) (Reference, bool) {
	start, _ := strconv.Atoi(group(text, m, 5))
	end := start
	if raw := group(text, m, 6); raw != "" {
		end, _ = strconv.Atoi(raw)
	}
	if end < start {
		start, end = end, start
	}
	return Reference{
		Kind:          KindCodeRange,
		Owner:         group(text, m, 1),
		Repo:          group(text, m, 2),
		Rev:           group(text, m, 3),
		Path:          strings.TrimSuffix(group(text, m, 4), "/"),
		Start:         start,
		End:           end,
		SuppressEmbed: true,
	}, true
}

func (p *Parser) convertComment(text string, m []int) (Reference, bool) {
	number, _ := strconv.Atoi(group(text, m, 4))
	id, _ := strconv.ParseInt(group(text, m, 6), 10, 64)
	return Reference{
		Kind:          KindComment,
		Owner:         group(text, m, 1),
		Repo:          group(text, m, 2),
		Number:        number,
		Anchor:        strings.ToLower(group(text, m, 5)),
		CommentID:     id,
		SuppressEmbed: true,
	}, true
}

func (p *Parser) convertComic(text string, m []int) (Reference, bool) {
	comic, _ := strconv.Atoi(group(text, m, 1))
	return Reference{Kind: KindComic, Comic: comic}, true
}
