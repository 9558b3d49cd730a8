package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mbeoliero/vesper/client/cache"
	"github.com/mbeoliero/vesper/pkg/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(selfId string) (*Bridge, *cache.Store) {
	store := cache.NewStore()
	store.Apply(func(s cache.Snapshot) cache.Snapshot {
		s = cache.LoadConversations(s, []cache.ConversationEntry{
			{Id: 1, PairKey: "di_alice:bob", PeerUserId: "bob", UnreadCount: 0},
		})
		return cache.LoadMessages(s, 1, nil)
	})
	return New(nil, store, selfId), store
}

func frame(t *testing.T, event string, payload interface{}) *EventFrame {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &EventFrame{Event: event, RoomId: "conv:1", Payload: data}
}

func TestInboundMessageIncrementsUnreadOnce(t *testing.T) {
	b, store := newTestBridge("alice")
	ctx := context.Background()

	ev := frame(t, constant.EventMessageNew, messagePayload{
		Id: 42, ConversationId: 1, SenderId: "bob", Content: "ct", SendAt: 100,
	})
	b.Dispatch(ctx, ev)
	b.Dispatch(ctx, ev) // duplicate delivery

	snap := store.Snapshot()
	msgs, _ := snap.MessagesFor(1)
	require.Len(t, msgs, 1)
	conv, _ := snap.ConversationById(1)
	assert.Equal(t, int64(1), conv.UnreadCount)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, int64(42), conv.LastMessage.MessageId)
}

func TestDuplicateDeliveryUnloadedPageIncrementsOnce(t *testing.T) {
	b, store := newTestBridge("alice")
	ctx := context.Background()

	// Conversation listed but its message page never loaded
	store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.UpsertConversation(s, cache.ConversationEntry{
			Id: 2, PairKey: "di_alice:carol", PeerUserId: "carol",
		})
	})

	ev := frame(t, constant.EventMessageNew, messagePayload{
		Id: 55, ConversationId: 2, SenderId: "carol", Content: "ct", SendAt: 200,
	})
	b.Dispatch(ctx, ev)
	b.Dispatch(ctx, ev)

	snap := store.Snapshot()
	_, loaded := snap.MessagesFor(2)
	assert.False(t, loaded)

	conv, _ := snap.ConversationById(2)
	assert.Equal(t, int64(1), conv.UnreadCount)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, int64(55), conv.LastMessage.MessageId)
}

func TestOwnEchoConfirmsPendingWithoutUnread(t *testing.T) {
	b, store := newTestBridge("alice")
	ctx := context.Background()

	store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.AppendMessage(s, cache.MessageEntry{
			TempId: 7001, ConversationId: 1, ClientMsgId: "cm-1",
			SenderId: "alice", PlainText: "hi", PendingState: cache.PendingSending,
		})
	})

	b.Dispatch(ctx, frame(t, constant.EventMessageNew, messagePayload{
		Id: 42, ConversationId: 1, ClientMsgId: "cm-1", SenderId: "alice", Content: "ct",
	}))

	snap := store.Snapshot()
	msgs, _ := snap.MessagesFor(1)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(42), msgs[0].Id)
	assert.Equal(t, "hi", msgs[0].PlainText)

	conv, _ := snap.ConversationById(1)
	assert.Zero(t, conv.UnreadCount)
}

func TestStatusEventsOutOfOrder(t *testing.T) {
	b, store := newTestBridge("alice")
	ctx := context.Background()

	b.Dispatch(ctx, frame(t, constant.EventMessageNew, messagePayload{
		Id: 42, ConversationId: 1, SenderId: "alice", ClientMsgId: "cm-1",
	}))
	b.Dispatch(ctx, frame(t, constant.EventMessageStatus, statusPayload{
		ConversationId: 1, MessageId: 42, RecipientId: "bob", Status: constant.StatusSeen,
	}))
	b.Dispatch(ctx, frame(t, constant.EventMessageStatus, statusPayload{
		ConversationId: 1, MessageId: 42, RecipientId: "bob", Status: constant.StatusDelivered,
	}))

	msg, ok := store.Snapshot().FindMessage(1, 42)
	require.True(t, ok)
	assert.Equal(t, int32(constant.StatusSeen), msg.StatusFor("bob"))
}

func TestOwnReadReceiptResetsUnread(t *testing.T) {
	b, store := newTestBridge("alice")
	ctx := context.Background()

	store.Apply(func(s cache.Snapshot) cache.Snapshot {
		s = cache.IncrementUnread(s, 1)
		s = cache.IncrementUnread(s, 1)
		return cache.IncrementUnread(s, 1)
	})

	// The peer's receipt does not clear the viewer's counter
	b.Dispatch(ctx, frame(t, constant.EventConversationRead, readPayload{ConversationId: 1, UserId: "bob"}))
	conv, _ := store.Snapshot().ConversationById(1)
	assert.Equal(t, int64(3), conv.UnreadCount)

	b.Dispatch(ctx, frame(t, constant.EventConversationRead, readPayload{ConversationId: 1, UserId: "alice"}))
	conv, _ = store.Snapshot().ConversationById(1)
	assert.Zero(t, conv.UnreadCount)
}

func TestUncachedConversationIsNoop(t *testing.T) {
	b, store := newTestBridge("alice")
	ctx := context.Background()
	before := store.Snapshot()

	b.Dispatch(ctx, frame(t, constant.EventMessageNew, messagePayload{
		Id: 99, ConversationId: 77, SenderId: "bob",
	}))

	msgs, loaded := store.Snapshot().MessagesFor(77)
	assert.False(t, loaded)
	assert.Empty(t, msgs)
	// Conversation list untouched as well
	assert.Equal(t, before.Conversations, store.Snapshot().Conversations)
}

func TestDeleteUndoAndReactionEvents(t *testing.T) {
	b, store := newTestBridge("alice")
	ctx := context.Background()

	b.Dispatch(ctx, frame(t, constant.EventMessageNew, messagePayload{
		Id: 42, ConversationId: 1, SenderId: "bob",
	}))

	b.Dispatch(ctx, frame(t, constant.EventMessageDeleted, deletePayload{ConversationId: 1, MessageId: 42}))
	msg, _ := store.Snapshot().FindMessage(1, 42)
	assert.True(t, msg.Deleted)

	b.Dispatch(ctx, frame(t, constant.EventMessageUndeleted, deletePayload{ConversationId: 1, MessageId: 42}))
	msg, _ = store.Snapshot().FindMessage(1, 42)
	assert.False(t, msg.Deleted)

	b.Dispatch(ctx, frame(t, constant.EventMessageReaction, reactionPayload{
		ConversationId: 1, MessageId: 42, UserId: "bob", Emoji: "\U0001f44d",
	}))
	b.Dispatch(ctx, frame(t, constant.EventMessageReaction, reactionPayload{
		ConversationId: 1, MessageId: 42, UserId: "bob", Emoji: "❤️",
	}))
	msg, _ = store.Snapshot().FindMessage(1, 42)
	require.Len(t, msg.Reactions, 1)
	assert.Equal(t, "❤️", msg.Reactions[0].Emoji)
}

func TestUnknownEventAndMalformedPayloadDropped(t *testing.T) {
	b, store := newTestBridge("alice")
	ctx := context.Background()
	before := store.Snapshot()

	b.Dispatch(ctx, &EventFrame{Event: "totally.unknown", Payload: json.RawMessage(`{}`)})
	b.Dispatch(ctx, &EventFrame{Event: constant.EventMessageNew, Payload: json.RawMessage(`not json`)})
	b.Dispatch(ctx, &EventFrame{Event: constant.EventMessageStatus, Payload: json.RawMessage(`{"message_id":0}`)})

	assert.Equal(t, before, store.Snapshot())
}

func TestConversationCreatedInsertsEntry(t *testing.T) {
	b, store := newTestBridge("alice")
	ctx := context.Background()

	b.Dispatch(ctx, frame(t, constant.EventConversationCreated, conversationPayload{
		Id: 5, PairKey: "di_alice:dave", PeerUserId: "dave",
	}))

	conv, ok := store.Snapshot().ConversationById(5)
	require.True(t, ok)
	assert.Equal(t, "dave", conv.PeerUserId)
}
