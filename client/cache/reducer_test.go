package cache

import (
	"testing"

	"github.com/mbeoliero/vesper/pkg/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedSnapshot() Snapshot {
	s := NewSnapshot()
	s = LoadConversations(s, []ConversationEntry{
		{Id: 1, PairKey: "di_alice:bob", PeerUserId: "bob", UnreadCount: 3},
		{Id: 2, PairKey: "di_alice:carol", PeerUserId: "carol", UnreadCount: 5},
	})
	s = LoadMessages(s, 1, []MessageEntry{
		{Id: 10, ConversationId: 1, SenderId: "bob", Content: "c10", SendAt: 100},
		{Id: 11, ConversationId: 1, SenderId: "alice", Content: "c11", SendAt: 200},
	})
	return s
}

func TestAppendMessage(t *testing.T) {
	s := loadedSnapshot()

	next := AppendMessage(s, MessageEntry{Id: 12, ConversationId: 1, SenderId: "bob", Content: "c12"})
	msgs, _ := next.MessagesFor(1)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(12), msgs[2].Id)

	// Original snapshot untouched
	orig, _ := s.MessagesFor(1)
	assert.Len(t, orig, 2)
}

func TestAppendMessageDuplicateIsNoop(t *testing.T) {
	s := loadedSnapshot()
	ev := MessageEntry{Id: 12, ConversationId: 1, SenderId: "bob"}

	once := AppendMessage(s, ev)
	twice := AppendMessage(once, ev)

	msgs, _ := twice.MessagesFor(1)
	assert.Len(t, msgs, 3)
	assert.Equal(t, once, twice)
}

func TestAppendMessageUnloadedConversationIsNoop(t *testing.T) {
	s := loadedSnapshot()
	next := AppendMessage(s, MessageEntry{Id: 50, ConversationId: 99, SenderId: "dave"})
	assert.Equal(t, s, next)
}

func TestUnloadMessagesDropsSettledPage(t *testing.T) {
	s := loadedSnapshot()
	next := UnloadMessages(s, 1)

	_, loaded := next.MessagesFor(1)
	assert.False(t, loaded)
	// Unloading an already-unloaded conversation is a no-op
	assert.Equal(t, next, UnloadMessages(next, 1))
}

func TestUnloadMessagesRetainsPendingEntries(t *testing.T) {
	s := loadedSnapshot()
	s = AppendMessage(s, MessageEntry{
		TempId: 7001, ConversationId: 1, ClientMsgId: "cm-1",
		SenderId: "alice", PlainText: "in flight", PendingState: PendingSending,
	})

	next := UnloadMessages(s, 1)

	// Settled messages go, the unresolved send stays and keeps the page loaded
	msgs, loaded := next.MessagesFor(1)
	require.True(t, loaded)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(7001), msgs[0].TempId)

	// The retained entry can still resolve to failed
	failed := FailPending(next, 1, 7001)
	msgs, _ = failed.MessagesFor(1)
	require.Len(t, msgs, 1)
	assert.Equal(t, PendingFailed, msgs[0].PendingState)
	assert.Equal(t, "in flight", msgs[0].PlainText)
}

func TestAppendMessageOwnEchoConfirmsPending(t *testing.T) {
	s := loadedSnapshot()
	s = AppendMessage(s, MessageEntry{
		TempId: 7001, ConversationId: 1, ClientMsgId: "cm-1",
		SenderId: "alice", PlainText: "hi", PendingState: PendingSending,
	})

	// Own broadcast echo carries the authoritative id and the client msg id
	next := AppendMessage(s, MessageEntry{
		Id: 42, ConversationId: 1, ClientMsgId: "cm-1", SenderId: "alice", Content: "ct",
	})

	msgs, _ := next.MessagesFor(1)
	require.Len(t, msgs, 3)
	confirmed := msgs[2]
	assert.Equal(t, int64(42), confirmed.Id)
	assert.Zero(t, confirmed.TempId)
	assert.Equal(t, PendingSent, confirmed.PendingState)
	assert.Equal(t, "hi", confirmed.PlainText)
}

func TestConfirmPendingPreservesPosition(t *testing.T) {
	s := loadedSnapshot()
	s = AppendMessage(s, MessageEntry{
		TempId: 7001, ConversationId: 1, ClientMsgId: "cm-1",
		SenderId: "alice", PlainText: "first", PendingState: PendingSending,
	})
	s = AppendMessage(s, MessageEntry{Id: 12, ConversationId: 1, SenderId: "bob", Content: "later"})

	next := ConfirmPending(s, 1, 7001, MessageEntry{
		Id: 42, ConversationId: 1, ClientMsgId: "cm-1", SenderId: "alice", Content: "ct",
	})

	msgs, _ := next.MessagesFor(1)
	require.Len(t, msgs, 4)
	// The confirmed entry stays at index 2, before bob's later message
	assert.Equal(t, int64(42), msgs[2].Id)
	assert.Equal(t, int64(12), msgs[3].Id)
	assert.Equal(t, "first", msgs[2].PlainText)
}

func TestConfirmPendingAbsentTempIdIsNoop(t *testing.T) {
	s := loadedSnapshot()
	next := ConfirmPending(s, 1, 9999, MessageEntry{Id: 42, ConversationId: 1})
	assert.Equal(t, s, next)
}

func TestConfirmAfterEchoKeepsDeliveredStatus(t *testing.T) {
	// The race of property interest: echo confirms the pending entry, the
	// peer's delivered receipt lands, then the HTTP acknowledgment returns.
	s := loadedSnapshot()
	s = AppendMessage(s, MessageEntry{
		TempId: 7001, ConversationId: 1, ClientMsgId: "cm-1",
		SenderId: "alice", PlainText: "hi", PendingState: PendingSending,
	})
	s = AppendMessage(s, MessageEntry{
		Id: 42, ConversationId: 1, ClientMsgId: "cm-1", SenderId: "alice", Content: "ct",
	})
	s = ApplyStatus(s, 1, 42, "bob", constant.StatusDelivered)

	// Late acknowledgment: temp id is gone, nothing changes
	next := ConfirmPending(s, 1, 7001, MessageEntry{
		Id: 42, ConversationId: 1, ClientMsgId: "cm-1", SenderId: "alice", Content: "ct",
	})

	msg, ok := next.FindMessage(1, 42)
	require.True(t, ok)
	assert.Equal(t, int32(constant.StatusDelivered), msg.StatusFor("bob"))
	assert.Equal(t, PendingSent, msg.PendingState)
}

func TestFailPendingKeepsEntryVisible(t *testing.T) {
	s := loadedSnapshot()
	s = AppendMessage(s, MessageEntry{
		TempId: 7001, ConversationId: 1, ClientMsgId: "cm-1",
		SenderId: "alice", PlainText: "doomed", PendingState: PendingSending,
	})

	next := FailPending(s, 1, 7001)
	again := FailPending(next, 1, 7001)

	msgs, _ := again.MessagesFor(1)
	require.Len(t, msgs, 3)
	assert.Equal(t, PendingFailed, msgs[2].PendingState)
	assert.Equal(t, "doomed", msgs[2].PlainText)
	assert.Equal(t, next, again)
}

func TestApplyEditIdempotent(t *testing.T) {
	s := loadedSnapshot()
	ev := EditEvent{ConversationId: 1, MessageId: 10, Content: "ct2", KeyForSender: "ks2", KeyForRecipient: "kr2"}

	once := ApplyEdit(s, ev)
	twice := ApplyEdit(once, ev)

	msg, ok := twice.FindMessage(1, 10)
	require.True(t, ok)
	assert.True(t, msg.Edited)
	assert.Equal(t, "ct2", msg.Content)
	assert.Equal(t, once, twice)
}

func TestApplyEditUnknownMessageIsNoop(t *testing.T) {
	s := loadedSnapshot()
	next := ApplyEdit(s, EditEvent{ConversationId: 1, MessageId: 999, Content: "x"})
	assert.Equal(t, s, next)
}

func TestSetDeletedIdempotentToggle(t *testing.T) {
	s := loadedSnapshot()

	deleted := SetDeleted(s, 1, 10, true)
	deletedAgain := SetDeleted(deleted, 1, 10, true)
	assert.Equal(t, deleted, deletedAgain)

	msg, _ := deletedAgain.FindMessage(1, 10)
	assert.True(t, msg.Deleted)

	restored := SetDeleted(deletedAgain, 1, 10, false)
	msg, _ = restored.FindMessage(1, 10)
	assert.False(t, msg.Deleted)
}

func TestUpsertReactionReplacesSameUser(t *testing.T) {
	s := loadedSnapshot()

	s = UpsertReaction(s, 1, 10, "bob", "\U0001f44d")
	s = UpsertReaction(s, 1, 10, "bob", "❤️")
	s = UpsertReaction(s, 1, 10, "alice", "\U0001f44d")

	msg, _ := s.FindMessage(1, 10)
	require.Len(t, msg.Reactions, 2)
	assert.Equal(t, "❤️", msg.Reactions[0].Emoji)
	assert.Equal(t, "bob", msg.Reactions[0].UserId)

	// Same reaction twice is a no-op
	again := UpsertReaction(s, 1, 10, "alice", "\U0001f44d")
	assert.Equal(t, s, again)
}

func TestStatusMonotonicOutOfOrder(t *testing.T) {
	s := loadedSnapshot()

	s = ApplyStatus(s, 1, 11, "bob", constant.StatusSeen)
	s = ApplyStatus(s, 1, 11, "bob", constant.StatusDelivered)

	msg, _ := s.FindMessage(1, 11)
	assert.Equal(t, int32(constant.StatusSeen), msg.StatusFor("bob"))
}

func TestStatusNeverDuplicatesRecipientRows(t *testing.T) {
	s := loadedSnapshot()

	s = ApplyStatus(s, 1, 11, "bob", constant.StatusDelivered)
	s = ApplyStatus(s, 1, 11, "bob", constant.StatusSeen)
	s = ApplyStatus(s, 1, 11, "bob", constant.StatusSeen)

	msg, _ := s.FindMessage(1, 11)
	require.Len(t, msg.Statuses, 1)
	assert.Equal(t, int32(constant.StatusSeen), msg.Statuses[0].Status)
}

func TestResetUnreadScopedToOneConversation(t *testing.T) {
	s := loadedSnapshot()

	next := ResetUnread(s, 1)
	again := ResetUnread(next, 1)

	conv, _ := again.ConversationById(1)
	assert.Zero(t, conv.UnreadCount)
	other, _ := again.ConversationById(2)
	assert.Equal(t, int64(5), other.UnreadCount)
	assert.Equal(t, next, again)
}

func TestIncrementUnread(t *testing.T) {
	s := loadedSnapshot()
	next := IncrementUnread(s, 2)

	conv, _ := next.ConversationById(2)
	assert.Equal(t, int64(6), conv.UnreadCount)
	untouched, _ := next.ConversationById(1)
	assert.Equal(t, int64(3), untouched.UnreadCount)
}

func TestSetLastMessageLastWriteWins(t *testing.T) {
	s := loadedSnapshot()

	s = SetLastMessage(s, 1, MessageSummary{MessageId: 20, SenderId: "bob", SendAt: 500})
	// An older summary arriving later still wins by arrival order
	s = SetLastMessage(s, 1, MessageSummary{MessageId: 19, SenderId: "alice", SendAt: 400})

	conv, _ := s.ConversationById(1)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, int64(19), conv.LastMessage.MessageId)
}

func TestUpsertConversationInsertsAtHead(t *testing.T) {
	s := loadedSnapshot()

	next := UpsertConversation(s, ConversationEntry{Id: 3, PairKey: "di_alice:dave", PeerUserId: "dave"})
	require.Len(t, next.Conversations, 3)
	assert.Equal(t, int64(3), next.Conversations[0].Id)

	// Upserting an existing id refreshes in place
	refreshed := UpsertConversation(next, ConversationEntry{Id: 1, PairKey: "di_alice:bob", PeerUserId: "bob", UnreadCount: 9})
	require.Len(t, refreshed.Conversations, 3)
	conv, _ := refreshed.ConversationById(1)
	assert.Equal(t, int64(9), conv.UnreadCount)
}
