package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterResolve(t *testing.T) {
	l := New()
	id := NewID()
	require.NoError(t, l.Register(id, KindChatMessage, "placeholder"))
	require.Equal(t, 1, l.Len())

	pa, ok := l.Resolve(id)
	require.True(t, ok)
	assert.Equal(t, id, pa.CorrelationID)
	assert.Equal(t, KindChatMessage, pa.Kind)
	assert.Equal(t, "placeholder", pa.Placeholder)
	assert.Equal(t, 0, l.Len())

	_, ok = l.Resolve(id)
	assert.False(t, ok, "resolve must remove the entry")
}

func TestResolveTouchesOnlyMatchingEntry(t *testing.T) {
	l := New()
	a, b := NewID(), NewID()
	require.NoError(t, l.Register(a, KindChatMessage, "a"))
	require.NoError(t, l.Register(b, KindFileUpload, "b"))

	pa, ok := l.Resolve(a)
	require.True(t, ok)
	assert.Equal(t, "a", pa.Placeholder)

	pb, ok := l.Reject(b)
	require.True(t, ok)
	assert.Equal(t, "b", pb.Placeholder)
}

func TestCorrelationIDNeverReused(t *testing.T) {
	l := New()
	id := NewID()
	require.NoError(t, l.Register(id, KindChatMessage, nil))
	_, ok := l.Resolve(id)
	require.True(t, ok)

	assert.ErrorIs(t, l.Register(id, KindChatMessage, nil), ErrDuplicateID)
}

func TestExpire(t *testing.T) {
	l := New()
	oldID, newID := NewID(), NewID()
	require.NoError(t, l.Register(oldID, KindFileUpload, "stale"))

	// Backdate the first entry past the cutoff.
	l.mu.Lock()
	pa := l.entries[oldID]
	pa.CreatedAt = time.Now().Add(-time.Hour)
	l.entries[oldID] = pa
	l.mu.Unlock()

	require.NoError(t, l.Register(newID, KindChatMessage, "fresh"))

	expired := l.Expire(time.Minute)
	require.Len(t, expired, 1)
	assert.Equal(t, oldID, expired[0].CorrelationID)
	assert.Equal(t, 1, l.Len())

	assert.Nil(t, l.Expire(0), "zero maxAge disables the sweep")
}
