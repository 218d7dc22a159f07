package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentionbot/internal/chat"
	"github.com/mentionbot/internal/fetch"
	"github.com/mentionbot/internal/github"
	"github.com/mentionbot/internal/refs"
	"github.com/mentionbot/internal/resolver"
	"github.com/mentionbot/internal/responder"
	"github.com/mentionbot/internal/ttrcache"
	"github.com/mentionbot/internal/xkcd"
)

type stubGitHub struct {
	entity *github.Entity
}

func (s *stubGitHub) Issue(_ context.Context, _, _ string, _ int) (*github.Entity, error) {
	if s.entity == nil {
		return nil, fetch.NotFound("issue")
	}
	return s.entity, nil
}

func (s *stubGitHub) Commit(_ context.Context, _, _, _ string) (*github.Commit, error) {
	return nil, fetch.NotFound("commit")
}

func (s *stubGitHub) Comment(_ context.Context, _, _, _ string, _ int64) (*github.Comment, error) {
	return nil, fetch.NotFound("comment")
}

func (s *stubGitHub) FileContent(_ context.Context, _, _, _, _ string) (string, error) {
	return "", fetch.NotFound("file")
}

func (s *stubGitHub) SearchMostPopular(_ context.Context, name string) (*github.Repo, error) {
	return nil, &fetch.Error{Kind: fetch.ErrAmbiguousRepo, Resource: name}
}

type stubComics struct{}

func (stubComics) Comic(_ context.Context, num int) (*xkcd.Comic, error) {
	return &xkcd.Comic{Num: num, Title: "Standards"}, nil
}

type recordingMessenger struct {
	mu         sync.Mutex
	posts      []string
	suppressed []string
}

func (m *recordingMessenger) Post(_ context.Context, _, content string, _ chat.PostOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, content)
	return "reply-1", nil
}

func (m *recordingMessenger) Edit(_ context.Context, _ chat.MessageRef, _ string) error { return nil }

func (m *recordingMessenger) Delete(_ context.Context, _ chat.MessageRef) error { return nil }

func (m *recordingMessenger) RemoveActions(_ context.Context, _ chat.MessageRef) error { return nil }

func (m *recordingMessenger) SuppressEmbeds(_ context.Context, ref chat.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppressed = append(m.suppressed, ref.ID)
	return nil
}

func newTestBot(t *testing.T, gh resolver.GitHubClient) (*Bot, *recordingMessenger) {
	t.Helper()
	parser := refs.NewParser("ghostty-org", "ghostty", nil)
	cache := ttrcache.New[any](30*time.Minute, 64)
	messenger := &recordingMessenger{}
	b := New(parser, resolver.New(cache, gh, stubComics{}), messenger, Windows{
		Entity: responder.Windows{Tracking: time.Second, Action: time.Second},
		Comic:  responder.Windows{Tracking: time.Second, Action: time.Second},
	})
	return b, messenger
}

func TestMessageWithMentionGetsReply(t *testing.T) {
	gh := &stubGitHub{entity: &github.Entity{
		Kind: github.EntityIssue, Number: 1234, Title: "Find a way", State: "open",
	}}
	b, messenger := newTestBot(t, gh)

	err := b.HandleMessageCreated(context.Background(), chat.MessageCreated{
		Ref:      chat.MessageRef{Channel: "ch", ID: "msg-1"},
		AuthorID: "user-1",
		Text:     "have a look at #1234",
	})
	require.NoError(t, err)

	require.Len(t, messenger.posts, 1)
	assert.Contains(t, messenger.posts[0], "Find a way")
	assert.Equal(t, 1, b.Controller().Len())
}

func TestMessageWithoutMentionIsIgnored(t *testing.T) {
	b, messenger := newTestBot(t, &stubGitHub{})

	err := b.HandleMessageCreated(context.Background(), chat.MessageCreated{
		Ref:  chat.MessageRef{Channel: "ch", ID: "msg-1"},
		Text: "nothing to see here",
	})
	require.NoError(t, err)
	assert.Empty(t, messenger.posts)
	assert.Equal(t, 0, b.Controller().Len())
}

func TestBotAuthorsAreIgnored(t *testing.T) {
	gh := &stubGitHub{entity: &github.Entity{Kind: github.EntityIssue, Number: 1, State: "open"}}
	b, messenger := newTestBot(t, gh)

	err := b.HandleMessageCreated(context.Background(), chat.MessageCreated{
		Ref:         chat.MessageRef{Channel: "ch", ID: "msg-1"},
		AuthorIsBot: true,
		Text:        "see #1234",
	})
	require.NoError(t, err)
	assert.Empty(t, messenger.posts)
}

func TestURLMentionSuppressesSourceEmbeds(t *testing.T) {
	gh := &stubGitHub{entity: &github.Entity{
		Kind: github.EntityIssue, Number: 1234, Title: "linked", State: "open",
	}}
	b, messenger := newTestBot(t, gh)

	err := b.HandleMessageCreated(context.Background(), chat.MessageCreated{
		Ref:  chat.MessageRef{Channel: "ch", ID: "msg-1"},
		Text: "https://github.com/ghostty-org/ghostty/issues/1234",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-1"}, messenger.suppressed)
}

func TestUnresolvableMentionPostsNothing(t *testing.T) {
	// Missing issues render no failure notice.
	b, messenger := newTestBot(t, &stubGitHub{})

	err := b.HandleMessageCreated(context.Background(), chat.MessageCreated{
		Ref:  chat.MessageRef{Channel: "ch", ID: "msg-1"},
		Text: "see #1234",
	})
	require.NoError(t, err)
	assert.Empty(t, messenger.posts)
}
