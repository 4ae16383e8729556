// Package timeline keeps the ordered, deduplicated message sequence for
// the currently selected peer.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/duochat/duochat/pkg/wire"
)

// ErrStaleFetch is returned when a history fetch resolves after the peer
// selection has moved on; the result is discarded instead of overwriting
// the newer peer's timeline.
var ErrStaleFetch = errors.New("stale history fetch discarded")

// History fetches the authoritative ordered message history with a peer,
// oldest first.
type History interface {
	Messages(ctx context.Context, peerID string) ([]wire.Message, error)
}

// Selection exposes the current peer selection and its generation.
type Selection interface {
	SelectedPeer() string
	Current(gen uint64) bool
}

// Timeline is the per-peer message sequence. It is replaced wholesale on
// peer switch and on authoritative fetches; in between, optimistic and
// confirmed entries are appended. The rendered view is always
// deduplicated by id.
type Timeline struct {
	history History
	sel     Selection

	mu       sync.RWMutex
	msgs     []wire.Message
	onChange func()
}

// New creates an empty Timeline.
func New(history History, sel Selection) *Timeline {
	return &Timeline{history: history, sel: sel}
}

// OnChange registers the scroll-to-latest cue, invoked after every
// timeline mutation.
func (l *Timeline) OnChange(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

// Replace fetches the authoritative history for peerID and replaces the
// timeline with it. gen is the selection generation the fetch was issued
// under; if the selection has moved on by the time the fetch resolves, the
// result is dropped and ErrStaleFetch is returned. Never merges with
// existing optimistic entries.
func (l *Timeline) Replace(ctx context.Context, peerID string, gen uint64) error {
	msgs, err := l.history.Messages(ctx, peerID)
	if err != nil {
		return fmt.Errorf("failed to fetch history for %s: %w", peerID, err)
	}

	l.mu.Lock()
	if !l.sel.Current(gen) {
		l.mu.Unlock()
		return ErrStaleFetch
	}
	l.msgs = msgs
	l.mu.Unlock()

	l.notify()
	return nil
}

// AppendOptimistic appends a locally-originated text message immediately
// after send, before any acknowledgment. Its temporary id is the current
// time in milliseconds; the next authoritative replace supersedes it.
func (l *Timeline) AppendOptimistic(selfID, peerID, text string) wire.Message {
	msg := wire.Message{
		ID:        strconv.FormatInt(time.Now().UnixMilli(), 10),
		Sender:    selfID,
		Recipient: peerID,
		Text:      text,
	}

	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()

	l.notify()
	return msg
}

// AppendConfirmed appends an incoming message, but only when its sender is
// the currently selected peer. It reports whether the message was kept.
func (l *Timeline) AppendConfirmed(msg wire.Message) bool {
	l.mu.Lock()
	if msg.Sender != l.sel.SelectedPeer() {
		l.mu.Unlock()
		return false
	}
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()

	l.notify()
	return true
}

// Clear empties the timeline, e.g. when no peer is selected.
func (l *Timeline) Clear() {
	l.mu.Lock()
	l.msgs = nil
	l.mu.Unlock()

	l.notify()
}

// Messages returns the rendered view: the sequence deduplicated by id,
// first occurrence winning.
func (l *Timeline) Messages() []wire.Message {
	l.mu.RLock()
	msgs := append([]wire.Message(nil), l.msgs...)
	l.mu.RUnlock()

	return wire.DistinctByID(msgs)
}

// Len returns the number of entries before deduplication.
func (l *Timeline) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}

func (l *Timeline) notify() {
	l.mu.RLock()
	fn := l.onChange
	l.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
