// Package bot wires the mention pipeline: inbound chat events are
// parsed for references, resolved through the cache, rendered, and
// posted as supervised replies.
package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mentionbot/internal/chat"
	"github.com/mentionbot/internal/format"
	"github.com/mentionbot/internal/refs"
	"github.com/mentionbot/internal/resolver"
	"github.com/mentionbot/internal/responder"
)

// Windows groups the response deadlines per mention class.
type Windows struct {
	// Entity applies to issue/PR/commit/code/comment mentions.
	Entity responder.Windows
	// Comic applies to messages mentioning only comics.
	Comic responder.Windows
}

// DefaultWindows mirrors the platform defaults: a day of tracking with
// a 30 second delete button for entity mentions, an hour of both for
// comics.
func DefaultWindows() Windows {
	return Windows{
		Entity: responder.Windows{Tracking: 24 * time.Hour, Action: 30 * time.Second},
		Comic:  responder.Windows{Tracking: time.Hour, Action: time.Hour},
	}
}

// Bot runs the parse, resolve, respond pipeline.
type Bot struct {
	parser     *refs.Parser
	resolver   *resolver.Resolver
	messenger  chat.Messenger
	controller *responder.Controller
	windows    Windows
}

// New assembles a bot. The responder controller is created internally
// so that source edits re-run this bot's own pipeline.
func New(parser *refs.Parser, res *resolver.Resolver, messenger chat.Messenger, windows Windows) *Bot {
	b := &Bot{
		parser:    parser,
		resolver:  res,
		messenger: messenger,
		windows:   windows,
	}
	b.controller = responder.New(messenger, b.render)
	return b
}

// Controller exposes the response controller for event routing and
// tests.
func (b *Bot) Controller() *responder.Controller { return b.controller }

// render runs the read-only part of the pipeline: text in, rendered
// reply content out. Empty content means no references survived.
func (b *Bot) render(ctx context.Context, text string) (string, error) {
	references := b.parser.Parse(text)
	if len(references) == 0 {
		return "", nil
	}
	outcomes := b.resolver.Resolve(ctx, references)
	return format.Outcomes(outcomes), nil
}

// HandleMessageCreated processes one inbound message end to end. Bot
// authors and mention-free messages produce no reply.
func (b *Bot) HandleMessageCreated(ctx context.Context, ev chat.MessageCreated) error {
	if ev.AuthorIsBot {
		return nil
	}
	references := b.parser.Parse(ev.Text)
	if len(references) == 0 {
		return nil
	}

	outcomes := b.resolver.Resolve(ctx, references)
	content := format.Outcomes(outcomes)
	if content == "" {
		return nil
	}

	if suppressSource(references) {
		if err := b.messenger.SuppressEmbeds(ctx, ev.Ref); err != nil {
			log.Warn().Err(err).Str("source", ev.Ref.ID).Msg("failed to suppress source embeds")
		}
	}

	replyID, err := b.messenger.Post(ctx, ev.Ref.Channel, content, chat.PostOptions{
		Actions:        []string{chat.ActionFreeze, chat.ActionDelete},
		SuppressEmbeds: true,
		ReplyTo:        ev.Ref.ID,
	})
	if err != nil {
		return err
	}

	windows := b.windows.Entity
	if comicsOnly(references) {
		windows = b.windows.Comic
	}
	reply := chat.MessageRef{Channel: ev.Ref.Channel, ID: replyID}
	response := b.controller.Track(ctx, ev.Ref, reply, ev.AuthorID, windows)

	log.Debug().
		Str("response", response.ID).
		Str("source", ev.Ref.ID).
		Int("references", len(references)).
		Msg("posted mention reply")
	return nil
}

// HandleMessageUpdated routes a source edit to its tracked response.
func (b *Bot) HandleMessageUpdated(ev chat.MessageUpdated) {
	b.controller.HandleSourceEdited(ev)
}

// HandleMessageDeleted routes a source delete to its tracked response.
func (b *Bot) HandleMessageDeleted(ev chat.MessageDeleted) {
	b.controller.HandleSourceDeleted(ev)
}

// HandleInteraction routes an action press to its tracked response.
func (b *Bot) HandleInteraction(ev chat.ComponentInteraction) {
	b.controller.HandleInteraction(ev)
}

func suppressSource(references []refs.Reference) bool {
	for _, ref := range references {
		if ref.SuppressEmbed {
			return true
		}
	}
	return false
}

func comicsOnly(references []refs.Reference) bool {
	for _, ref := range references {
		if ref.Kind != refs.KindComic {
			return false
		}
	}
	return true
}
