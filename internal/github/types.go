package github

import "time"

// User is a GitHub account reference.
type User struct {
	Login   string `json:"login"`
	HTMLURL string `json:"html_url"`
}

// EntityKind distinguishes issues from pull requests once fetched.
type EntityKind string

const (
	EntityIssue       EntityKind = "Issue"
	EntityPullRequest EntityKind = "Pull Request"
)

// Entity is a fetched issue or pull request.
type Entity struct {
	Kind        EntityKind
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	HTMLURL     string    `json:"html_url"`
	User        User      `json:"user"`
	CreatedAt   time.Time `json:"created_at"`
	State       string    `json:"state"`
	StateReason string    `json:"state_reason"`
	Draft       bool      `json:"draft"`
	Merged      bool      `json:"merged"`

	// Diff stats, only populated from the pulls endpoint.
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	ChangedFiles int `json:"changed_files"`
}

// Closed reports whether the entity is in the closed state.
func (e *Entity) Closed() bool { return e.State == "closed" }

// issuePayload is the wire shape of the issues endpoint; the
// pull_request marker tells issues and PRs apart.
type issuePayload struct {
	Entity
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
}

// Commit is a fetched commit summary.
type Commit struct {
	SHA          string
	Message      string
	HTMLURL      string
	Author       *User
	Committer    *User
	Date         time.Time
	Additions    int
	Deletions    int
	FilesChanged int
	Signed       bool
}

// commitPayload is the wire shape of the commits endpoint.
type commitPayload struct {
	SHA       string `json:"sha"`
	HTMLURL   string `json:"html_url"`
	Author    *User  `json:"author"`
	Committer *User  `json:"committer"`
	Commit    struct {
		Message   string `json:"message"`
		Committer *struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
		Verification *struct {
			Verified bool `json:"verified"`
		} `json:"verification"`
	} `json:"commit"`
	Stats struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
	} `json:"stats"`
	Files []struct {
		Filename string `json:"filename"`
	} `json:"files"`
}

func (p *commitPayload) summary() *Commit {
	c := &Commit{
		SHA:          p.SHA,
		Message:      p.Commit.Message,
		HTMLURL:      p.HTMLURL,
		Author:       p.Author,
		Committer:    p.Committer,
		Additions:    p.Stats.Additions,
		Deletions:    p.Stats.Deletions,
		FilesChanged: len(p.Files),
	}
	if p.Commit.Committer != nil {
		c.Date = p.Commit.Committer.Date
	}
	if p.Commit.Verification != nil {
		c.Signed = p.Commit.Verification.Verified
	}
	return c
}

// Comment is a fetched issue or review comment.
type Comment struct {
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// Repo is a repository hit from the popularity search.
type Repo struct {
	Name      string    `json:"name"`
	FullName  string    `json:"full_name"`
	Stars     int       `json:"stargazers_count"`
	CreatedAt time.Time `json:"created_at"`
	Owner     *User     `json:"owner"`
}

type searchPayload struct {
	Items []Repo `json:"items"`
}
