// Package presence merges the live online-roster push with the persisted
// user directory into two disjoint sets: online and offline peers.
package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/duochat/duochat/pkg/wire"
)

// Person is one entry of the user directory.
type Person struct {
	ID       string
	Username string
}

// Directory fetches the full list of known users.
type Directory interface {
	People(ctx context.Context) ([]Person, error)
}

// IdentitySource exposes the local user id, read at projection time.
type IdentitySource interface {
	SelfID() string
}

// Tracker keeps the online and offline sets. The stored online set keeps
// the local identity for bookkeeping; exclusion of self happens when the
// sets are read, not when they are written.
type Tracker struct {
	self IdentitySource
	dir  Directory

	mu      sync.RWMutex
	online  map[string]string
	offline map[string]string
}

// NewTracker creates a Tracker over the given identity and directory.
func NewTracker(self IdentitySource, dir Directory) *Tracker {
	return &Tracker{
		self:    self,
		dir:     dir,
		online:  make(map[string]string),
		offline: make(map[string]string),
	}
}

// UpdateOnline replaces the online set wholesale from a roster push, then
// refetches the directory and recomputes the offline set as
// directory minus online minus self. The directory is fetched fresh on
// every roster change.
func (t *Tracker) UpdateOnline(ctx context.Context, roster []wire.Peer) error {
	online := make(map[string]string, len(roster))
	for _, p := range roster {
		online[p.UserID] = p.Username
	}

	people, err := t.dir.People(ctx)
	if err != nil {
		// Still apply the roster; the stale offline set is recomputed
		// against it so the disjointness invariant holds.
		t.apply(online, nil, false)
		return fmt.Errorf("failed to fetch directory: %w", err)
	}

	t.apply(online, people, true)
	return nil
}

func (t *Tracker) apply(online map[string]string, people []Person, replaceDirectory bool) {
	selfID := t.self.SelfID()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.online = online

	if replaceDirectory {
		offline := make(map[string]string, len(people))
		for _, p := range people {
			if p.ID == selfID {
				continue
			}
			if _, ok := online[p.ID]; ok {
				continue
			}
			offline[p.ID] = p.Username
		}
		t.offline = offline
		return
	}

	for id := range t.offline {
		if _, ok := online[id]; ok {
			delete(t.offline, id)
		}
	}
}

// Online returns the online set excluding the local identity.
func (t *Tracker) Online() map[string]string {
	selfID := t.self.SelfID()

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]string, len(t.online))
	for id, name := range t.online {
		if id == selfID {
			continue
		}
		out[id] = name
	}
	return out
}

// Offline returns the offline set: every known user that is neither online
// nor the local identity.
func (t *Tracker) Offline() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]string, len(t.offline))
	for id, name := range t.offline {
		out[id] = name
	}
	return out
}
