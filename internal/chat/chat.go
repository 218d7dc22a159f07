// Package chat defines the boundary with the chat platform: the
// Messenger operations the bot produces and the inbound event types it
// consumes. Platform adapters implement Messenger; the core never
// imports a platform SDK.
package chat

import "context"

// Action names for the interactive affordances attached to replies.
const (
	// ActionFreeze detaches a reply from its source message so later
	// edits and deletes leave it in place.
	ActionFreeze = "freeze"
	// ActionDelete removes the reply immediately.
	ActionDelete = "delete"
)

// MessageRef locates a message on the platform.
type MessageRef struct {
	Channel string
	ID      string
}

// PostOptions carries the optional parts of a post operation.
type PostOptions struct {
	// Actions lists the interactive affordances to attach.
	Actions []string
	// SuppressEmbeds asks the platform not to unfurl links in the
	// posted content.
	SuppressEmbeds bool
	// ReplyTo threads the post under a source message.
	ReplyTo string
}

// Messenger is the outbound operation surface.
type Messenger interface {
	Post(ctx context.Context, channel, content string, opts PostOptions) (messageID string, err error)
	Edit(ctx context.Context, ref MessageRef, content string) error
	Delete(ctx context.Context, ref MessageRef) error
	// RemoveActions strips the interactive affordances from a posted
	// message, leaving its content.
	RemoveActions(ctx context.Context, ref MessageRef) error
	// SuppressEmbeds hides the embeds of an existing message, used on
	// source messages whose links the bot has already expanded.
	SuppressEmbeds(ctx context.Context, ref MessageRef) error
}

// MessageCreated is an inbound new-message event.
type MessageCreated struct {
	Ref         MessageRef
	AuthorID    string
	AuthorIsBot bool
	Text        string
}

// MessageUpdated is an inbound edit event.
type MessageUpdated struct {
	Ref  MessageRef
	Text string
}

// MessageDeleted is an inbound delete event.
type MessageDeleted struct {
	Ref MessageRef
}

// ComponentInteraction is an inbound action press on a bot reply.
type ComponentInteraction struct {
	ResponseID string
	Action     string
	UserID     string
}
