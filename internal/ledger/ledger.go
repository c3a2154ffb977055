// Package ledger tracks optimistic in-flight actions by correlation id until
// the server confirms or rejects them.
package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrDuplicateID = errors.New("correlation id already used")

type Kind int

const (
	KindChatMessage Kind = iota
	KindFileUpload
)

func (k Kind) String() string {
	if k == KindFileUpload {
		return "file_upload"
	}
	return "chat_message"
}

// PendingAction joins a locally rendered placeholder to its eventual server
// outcome.
type PendingAction struct {
	CorrelationID string
	Kind          Kind
	CreatedAt     time.Time
	Placeholder   any
}

type Ledger struct {
	mu      sync.Mutex
	entries map[string]PendingAction
	// seen enforces that a correlation id is never reused within the
	// session, even after resolve/reject.
	seen map[string]struct{}
}

func New() *Ledger {
	return &Ledger{
		entries: make(map[string]PendingAction),
		seen:    make(map[string]struct{}),
	}
}

// NewID returns a collision-resistant client-generated correlation id.
func NewID() string {
	return uuid.NewString()
}

func (l *Ledger) Register(id string, kind Kind, placeholder any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.seen[id]; dup {
		return ErrDuplicateID
	}
	l.seen[id] = struct{}{}
	l.entries[id] = PendingAction{
		CorrelationID: id,
		Kind:          kind,
		CreatedAt:     time.Now(),
		Placeholder:   placeholder,
	}
	log.Debug().Str("module", "ledger").Str("id", id).Str("kind", kind.String()).Msg("registered pending action")
	return nil
}

// Resolve removes and returns the entry so the caller can finalize its
// placeholder. Lookup is O(1).
func (l *Ledger) Resolve(id string) (PendingAction, bool) {
	return l.take(id)
}

// Reject removes and returns the entry for rollback.
func (l *Ledger) Reject(id string) (PendingAction, bool) {
	return l.take(id)
}

func (l *Ledger) take(id string) (PendingAction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pa, ok := l.entries[id]
	if ok {
		delete(l.entries, id)
	}
	return pa, ok
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Expire removes entries older than maxAge and returns them for rollback.
// The source protocol never expires pending sends; this sweep is our policy
// so a silent server cannot leak placeholders forever. maxAge <= 0 disables it.
func (l *Ledger) Expire(maxAge time.Duration) []PendingAction {
	if maxAge <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-maxAge)
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []PendingAction
	for id, pa := range l.entries {
		if pa.CreatedAt.Before(cutoff) {
			delete(l.entries, id)
			out = append(out, pa)
		}
	}
	return out
}
