// Package chatclient composes the session, the duplex channel, the REST
// client, presence tracking, and the timeline into the chat client's
// controller.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/duochat/duochat/internal/api"
	"github.com/duochat/duochat/internal/attach"
	"github.com/duochat/duochat/internal/config"
	"github.com/duochat/duochat/internal/conn"
	"github.com/duochat/duochat/internal/presence"
	"github.com/duochat/duochat/internal/session"
	"github.com/duochat/duochat/internal/timeline"
	"github.com/duochat/duochat/pkg/wire"
)

// ErrNoPeerSelected is returned by send operations when no peer is
// selected.
var ErrNoPeerSelected = errors.New("no peer selected")

// ErrNotLoggedIn is returned by operations that need an authenticated
// identity.
var ErrNotLoggedIn = errors.New("not logged in")

// directory adapts the REST client to the presence tracker.
type directory struct {
	api *api.Client
}

func (d directory) People(ctx context.Context) ([]presence.Person, error) {
	people, err := d.api.People(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]presence.Person, len(people))
	for i, p := range people {
		out[i] = presence.Person{ID: p.ID, Username: p.Username}
	}
	return out, nil
}

// Controller owns the connection lifetime and the timeline identity. It
// selects the active peer, forces reconnects on peer switch, triggers
// history fetches, and runs the send paths.
type Controller struct {
	session  *session.Session
	api      *api.Client
	conn     *conn.Manager
	presence *presence.Tracker
	timeline *timeline.Timeline

	mu      sync.Mutex
	compose string
	onError func(error)
}

// New wires a Controller for the given endpoints.
func New(cfg *config.Config) (*Controller, error) {
	sess := session.New()

	apiClient, err := api.New(cfg.APIBaseURL)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		session:  sess,
		api:      apiClient,
		conn:     conn.NewManager(cfg.WSEndpoint, sess, conn.Options{}),
		presence: presence.NewTracker(sess, directory{apiClient}),
		timeline: timeline.New(apiClient, sess),
	}

	c.conn.OnPresence(func(frame wire.PresenceFrame) {
		if err := c.presence.UpdateOnline(context.Background(), frame.Online); err != nil {
			c.reportError(err)
		}
	})
	c.conn.OnMessage(func(msg wire.Message) {
		c.timeline.AppendConfirmed(msg)
	})

	return c, nil
}

// OnError registers a callback for failures that happen outside a direct
// call path (presence refreshes, async file sends). Without one, failures
// are logged.
func (c *Controller) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// OnTimelineChange registers the scroll-to-latest cue.
func (c *Controller) OnTimelineChange(fn func()) {
	c.timeline.OnChange(fn)
}

// Restore recovers the identity bound to a previously stored session
// cookie. It reports false, without error, when there is none.
func (c *Controller) Restore(ctx context.Context) (bool, error) {
	userID, username, err := c.api.Profile(ctx)
	if errors.Is(err, api.ErrUnauthenticated) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.session.SetIdentity(userID, username)
	return true, nil
}

// Login authenticates and records the identity.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	id, err := c.api.Login(ctx, username, password)
	if err != nil {
		return err
	}
	c.session.SetIdentity(id, username)
	return nil
}

// Register creates an account and records the identity.
func (c *Controller) Register(ctx context.Context, username, password string) error {
	id, err := c.api.Register(ctx, username, password)
	if err != nil {
		return err
	}
	c.session.SetIdentity(id, username)
	return nil
}

// Start opens the duplex channel.
func (c *Controller) Start(ctx context.Context) error {
	return c.conn.Open(ctx)
}

// SelectPeer switches the conversation: it bumps the selection
// generation, forces a fresh channel, replaces the timeline with the
// peer's authoritative history, and clears the compose input. A history
// result that resolves after a newer selection is discarded.
func (c *Controller) SelectPeer(ctx context.Context, peerID string) error {
	gen := c.session.SelectPeer(peerID)

	if err := c.conn.Reconnect(); err != nil {
		// The reconnect loop is armed; the history is still worth
		// fetching over REST.
		c.reportError(fmt.Errorf("reconnect on peer switch: %w", err))
	}

	if err := c.timeline.Replace(ctx, peerID, gen); err != nil {
		if errors.Is(err, timeline.ErrStaleFetch) {
			return nil
		}
		return err
	}

	c.mu.Lock()
	c.compose = ""
	c.mu.Unlock()
	return nil
}

// SetCompose sets the compose input.
func (c *Controller) SetCompose(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compose = text
}

// Compose returns the compose input.
func (c *Controller) Compose() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compose
}

// SendText transmits the compose input to the selected peer, appends the
// optimistic copy to the timeline, and clears the compose input. The
// optimistic entry stays until the next authoritative history replaces
// it.
func (c *Controller) SendText() (wire.Message, error) {
	ident, ok := c.session.Identity()
	if !ok {
		return wire.Message{}, ErrNotLoggedIn
	}
	peer := c.session.SelectedPeer()
	if peer == "" {
		return wire.Message{}, ErrNoPeerSelected
	}
	text := c.Compose()

	frame := wire.SendFrame{Recipient: peer, Text: text}
	if err := c.conn.Send(frame); err != nil {
		return wire.Message{}, err
	}

	msg := c.timeline.AppendOptimistic(ident.ID, peer, text)
	c.SetCompose("")
	return msg, nil
}

// SendFile encodes the file off-thread; the completion callback transmits
// it and then re-fetches the history, because the attachment key is only
// known once the backend persists it. done, if non-nil, is invoked when
// the whole path has finished.
func (c *Controller) SendFile(ctx context.Context, path string, done func(error)) error {
	if _, ok := c.session.Identity(); !ok {
		return ErrNotLoggedIn
	}
	peer := c.session.SelectedPeer()
	if peer == "" {
		return ErrNoPeerSelected
	}

	finish := func(err error) {
		if err != nil {
			c.reportError(err)
		}
		if done != nil {
			done(err)
		}
	}

	attach.EncodeAsync(path, func(payload wire.FilePayload, err error) {
		if err != nil {
			finish(err)
			return
		}

		frame := wire.SendFrame{Recipient: peer, File: &payload}
		if err := c.conn.Send(frame); err != nil {
			finish(err)
			return
		}

		gen := c.session.Generation()
		if err := c.timeline.Replace(ctx, peer, gen); err != nil && !errors.Is(err, timeline.ErrStaleFetch) {
			finish(err)
			return
		}
		finish(nil)
	})
	return nil
}

// Logout invalidates the credentials, clears the identity, and tears the
// channel down.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.api.Logout(ctx); err != nil {
		return err
	}
	c.session.ClearIdentity()
	c.conn.Shutdown()
	return nil
}

// Identity returns the authenticated identity, if any.
func (c *Controller) Identity() (session.Identity, bool) {
	return c.session.Identity()
}

// SelectedPeer returns the currently selected peer id.
func (c *Controller) SelectedPeer() string {
	return c.session.SelectedPeer()
}

// Online returns the online peers, excluding self.
func (c *Controller) Online() map[string]string {
	return c.presence.Online()
}

// Offline returns the offline peers.
func (c *Controller) Offline() map[string]string {
	return c.presence.Offline()
}

// Messages returns the deduplicated timeline for the selected peer.
func (c *Controller) Messages() []wire.Message {
	return c.timeline.Messages()
}

// IsConnected reports whether the duplex channel is open.
func (c *Controller) IsConnected() bool {
	return c.conn.IsConnected()
}

func (c *Controller) reportError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
		return
	}
	log.Printf("chatclient: %v", err)
}
