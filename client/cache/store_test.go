package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSnapshotIsolation(t *testing.T) {
	st := NewStore()
	st.Apply(func(s Snapshot) Snapshot {
		return LoadConversations(s, []ConversationEntry{{Id: 1, UnreadCount: 1}})
	})

	before := st.Snapshot()
	st.Apply(func(s Snapshot) Snapshot {
		return IncrementUnread(s, 1)
	})

	// An earlier snapshot never observes later writes
	assert.Equal(t, int64(1), before.Conversations[0].UnreadCount)
	assert.Equal(t, int64(2), st.Snapshot().Conversations[0].UnreadCount)
}

func TestStoreConcurrentApply(t *testing.T) {
	st := NewStore()
	st.Apply(func(s Snapshot) Snapshot {
		return LoadConversations(s, []ConversationEntry{{Id: 1}})
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Apply(func(s Snapshot) Snapshot {
				return IncrementUnread(s, 1)
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), st.Snapshot().Conversations[0].UnreadCount)
}

func TestStoreAccessors(t *testing.T) {
	st := NewStore()
	_, loaded := st.MessagesFor(1)
	assert.False(t, loaded)

	st.Apply(func(s Snapshot) Snapshot {
		s = LoadConversations(s, []ConversationEntry{{Id: 1}})
		return LoadMessages(s, 1, []MessageEntry{{Id: 10, ConversationId: 1}})
	})

	page, loaded := st.MessagesFor(1)
	require.True(t, loaded)
	assert.Len(t, page, 1)
	assert.Len(t, st.Conversations(), 1)
}
