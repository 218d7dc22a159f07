// Package responder supervises posted replies. Each reply gets a
// state machine running on its own goroutine that reacts to source
// message edits and deletes, action presses, and two deadlines: the
// tracking window, after which the reply detaches from its source, and
// the action window, after which the interactive buttons disappear.
package responder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mentionbot/internal/chat"
)

// State is the lifecycle state of one tracked response.
type State int

const (
	// StateActive responses mirror source edits and deletes.
	StateActive State = iota
	// StateFrozen responses ignore source mutations permanently; the
	// delete action still works until the action deadline.
	StateFrozen
	// StateExpired responses outlived their tracking window.
	StateExpired
	// StateDeleted responses have been removed from the channel.
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFrozen:
		return "frozen"
	case StateExpired:
		return "expired"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Windows holds the two deadlines measured from post time.
type Windows struct {
	Tracking time.Duration
	Action   time.Duration
}

// Reprocessor re-runs the mention pipeline on edited source text. An
// empty content result means the edit removed every mention and the
// reply should be deleted.
type Reprocessor func(ctx context.Context, text string) (content string, err error)

type eventKind int

const (
	eventEdit eventKind = iota
	eventDelete
	eventAction
)

type event struct {
	kind   eventKind
	text   string
	action string
	userID string
}

// Response is one supervised reply.
type Response struct {
	ID       string
	Source   chat.MessageRef
	Reply    chat.MessageRef
	AuthorID string

	controller *Controller
	windows    Windows
	createdAt  time.Time

	events chan event
	done   chan struct{}

	mu    sync.Mutex
	state State
}

// State returns the current lifecycle state.
func (r *Response) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Response) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// deliver hands an event to the owning goroutine, dropping it if the
// response has already terminated.
func (r *Response) deliver(ev event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// Done exposes termination for tests and shutdown sequencing.
func (r *Response) Done() <-chan struct{} { return r.done }

// Controller indexes live responses and routes inbound events to them.
type Controller struct {
	messenger chat.Messenger
	reprocess Reprocessor
	now       func() time.Time

	mu       sync.Mutex
	byID     map[string]*Response
	bySource map[string]*Response
}

// New creates a controller posting through messenger and re-rendering
// edited sources through reprocess.
func New(messenger chat.Messenger, reprocess Reprocessor) *Controller {
	return &Controller{
		messenger: messenger,
		reprocess: reprocess,
		now:       time.Now,
		byID:      make(map[string]*Response),
		bySource:  make(map[string]*Response),
	}
}

// Track registers a freshly posted reply and starts its supervisor
// goroutine.
func (c *Controller) Track(ctx context.Context, source, reply chat.MessageRef, authorID string, windows Windows) *Response {
	r := &Response{
		ID:         uuid.NewString(),
		Source:     source,
		Reply:      reply,
		AuthorID:   authorID,
		controller: c,
		windows:    windows,
		createdAt:  c.now(),
		events:     make(chan event),
		done:       make(chan struct{}),
		state:      StateActive,
	}

	c.mu.Lock()
	c.byID[r.ID] = r
	c.bySource[source.ID] = r
	c.mu.Unlock()

	go r.run(ctx)
	return r
}

// Len reports how many responses are currently tracked.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

func (c *Controller) forget(r *Response) {
	c.mu.Lock()
	delete(c.byID, r.ID)
	delete(c.bySource, r.Source.ID)
	c.mu.Unlock()
}

// HandleSourceEdited routes a source edit to its response, if any is
// still tracked.
func (c *Controller) HandleSourceEdited(ev chat.MessageUpdated) {
	if r := c.bySourceID(ev.Ref.ID); r != nil {
		r.deliver(event{kind: eventEdit, text: ev.Text})
	}
}

// HandleSourceDeleted routes a source delete to its response.
func (c *Controller) HandleSourceDeleted(ev chat.MessageDeleted) {
	if r := c.bySourceID(ev.Ref.ID); r != nil {
		r.deliver(event{kind: eventDelete})
	}
}

// HandleInteraction routes an action press. Unknown response IDs are
// ignored; the response may simply have terminated already.
func (c *Controller) HandleInteraction(ev chat.ComponentInteraction) {
	c.mu.Lock()
	r := c.byID[ev.ResponseID]
	c.mu.Unlock()
	if r != nil {
		r.deliver(event{kind: eventAction, action: ev.Action, userID: ev.UserID})
	}
}

func (c *Controller) bySourceID(id string) *Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bySource[id]
}

// run owns the response until a terminal state. All state transitions
// happen here; external callers only deliver events.
func (r *Response) run(ctx context.Context) {
	defer close(r.done)
	defer r.controller.forget(r)

	trackingTimer := time.NewTimer(r.windows.Tracking)
	defer trackingTimer.Stop()
	actionTimer := time.NewTimer(r.windows.Action)
	defer actionTimer.Stop()

	actionsOpen := true
	for {
		select {
		case <-ctx.Done():
			return

		case <-trackingTimer.C:
			if r.State() == StateActive {
				r.setState(StateExpired)
			}
			// A frozen response past its action window has nothing
			// left to react to either way.
			if !actionsOpen {
				return
			}

		case <-actionTimer.C:
			actionsOpen = false
			if err := r.controller.messenger.RemoveActions(ctx, r.Reply); err != nil {
				log.Warn().Err(err).Str("reply", r.Reply.ID).Msg("failed to remove reply actions")
			}
			if r.State() != StateActive {
				return
			}

		case ev := <-r.events:
			if terminal := r.handle(ctx, ev, actionsOpen); terminal {
				return
			}
		}
	}
}

func (r *Response) handle(ctx context.Context, ev event, actionsOpen bool) bool {
	switch ev.kind {
	case eventEdit:
		if r.State() != StateActive {
			return false
		}
		content, err := r.controller.reprocess(ctx, ev.text)
		if err != nil {
			log.Warn().Err(err).Str("source", r.Source.ID).Msg("failed to reprocess edited message")
			return false
		}
		if content == "" {
			// Every mention was edited out.
			r.delete(ctx)
			return true
		}
		if err := r.controller.messenger.Edit(ctx, r.Reply, content); err != nil {
			log.Warn().Err(err).Str("reply", r.Reply.ID).Msg("failed to edit reply")
		}
		return false

	case eventDelete:
		if r.State() != StateActive {
			return false
		}
		r.delete(ctx)
		return true

	case eventAction:
		if ev.userID != "" && r.AuthorID != "" && ev.userID != r.AuthorID {
			return false
		}
		if !actionsOpen {
			// Late presses are silent no-ops.
			return false
		}
		switch ev.action {
		case chat.ActionFreeze:
			if r.State() == StateActive {
				r.setState(StateFrozen)
			}
			return false
		case chat.ActionDelete:
			// Works regardless of state until the action deadline.
			r.delete(ctx)
			return true
		default:
			return false
		}
	}
	return false
}

func (r *Response) delete(ctx context.Context) {
	if err := r.controller.messenger.Delete(ctx, r.Reply); err != nil {
		log.Warn().Err(err).Str("reply", r.Reply.ID).Msg("failed to delete reply")
	}
	r.setState(StateDeleted)
}
