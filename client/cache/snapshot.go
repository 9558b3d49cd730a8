// Package cache holds the client's conversation and message state and the
// reducer functions that merge incoming events into it. Reducers are pure:
// they take a snapshot and an event and return a new snapshot, so they are
// safe to call redundantly when an optimistic update and a real-time echo
// describe the same change.
package cache

import "github.com/mbeoliero/vesper/pkg/constant"

// Pending lifecycle tags for optimistic entries
const (
	PendingSending = "sending"
	PendingSent    = "sent"
	PendingFailed  = "failed"
)

// StatusEntry is one recipient's delivery state for a message
type StatusEntry struct {
	RecipientId string
	Status      int32
}

// ReactionEntry is one user's reaction to a message
type ReactionEntry struct {
	UserId string
	Emoji  string
}

// MessageSummary is the last-message pointer on a conversation entry
type MessageSummary struct {
	MessageId int64
	SenderId  string
	MsgType   int32
	SendAt    int64
}

// MessageEntry is one message in a conversation's cached page. Content is
// the wire content (ciphertext envelope or attachment URL); PlainText is
// set only for locally composed messages whose plaintext is already known.
type MessageEntry struct {
	Id              int64
	TempId          int64
	ConversationId  int64
	ClientMsgId     string
	SenderId        string
	MsgType         int32
	Content         string
	KeyForSender    string
	KeyForRecipient string
	PlainText       string
	ParentId        int64
	Deleted         bool
	Edited          bool
	SendAt          int64
	PendingState    string
	Statuses        []StatusEntry
	Reactions       []ReactionEntry
}

// IsPending reports whether the entry still awaits server confirmation or
// has failed
func (m *MessageEntry) IsPending() bool {
	return m.PendingState == PendingSending || m.PendingState == PendingFailed
}

// StatusFor returns the cached rank for a recipient, 0 when none
func (m *MessageEntry) StatusFor(recipientId string) int32 {
	for _, st := range m.Statuses {
		if st.RecipientId == recipientId {
			return st.Status
		}
	}
	return 0
}

// ConversationEntry is one conversation in the cached list
type ConversationEntry struct {
	Id          int64
	PairKey     string
	PeerUserId  string
	UnreadCount int64
	LastMessage *MessageSummary
	UpdatedAt   int64
}

// Snapshot is the whole cached client state. Messages holds one
// append-ordered page per locally loaded conversation; a conversation absent
// from the map is not loaded and events for it are dropped.
type Snapshot struct {
	Conversations []ConversationEntry
	Messages      map[int64][]MessageEntry
}

// NewSnapshot returns an empty snapshot
func NewSnapshot() Snapshot {
	return Snapshot{Messages: make(map[int64][]MessageEntry)}
}

// clone copies the snapshot structure. Message and conversation entries are
// value types; slices are copied so the original snapshot is never mutated.
func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		Conversations: make([]ConversationEntry, len(s.Conversations)),
		Messages:      make(map[int64][]MessageEntry, len(s.Messages)),
	}
	copy(out.Conversations, s.Conversations)
	for convId, msgs := range s.Messages {
		page := make([]MessageEntry, len(msgs))
		copy(page, msgs)
		out.Messages[convId] = page
	}
	return out
}

// MessagesFor returns the cached page for a conversation and whether the
// conversation is loaded
func (s Snapshot) MessagesFor(conversationId int64) ([]MessageEntry, bool) {
	msgs, ok := s.Messages[conversationId]
	return msgs, ok
}

// ConversationById finds a conversation entry by id
func (s Snapshot) ConversationById(conversationId int64) (ConversationEntry, bool) {
	for _, conv := range s.Conversations {
		if conv.Id == conversationId {
			return conv, true
		}
	}
	return ConversationEntry{}, false
}

// FindMessage locates a message by id within a conversation's page
func (s Snapshot) FindMessage(conversationId, messageId int64) (MessageEntry, bool) {
	for _, msg := range s.Messages[conversationId] {
		if msg.Id == messageId {
			return msg, true
		}
	}
	return MessageEntry{}, false
}

// statusRankValid reports whether the rank is a known delivery state
func statusRankValid(status int32) bool {
	return status >= constant.StatusSent && status <= constant.StatusSeen
}
