package cache

// Reducer functions. Each takes the current snapshot plus one event and
// returns the next snapshot. All are idempotent and tolerate events for
// conversations or messages that are not locally cached.

// LoadConversations replaces the conversation list with a freshly fetched
// page
func LoadConversations(s Snapshot, entries []ConversationEntry) Snapshot {
	out := s.clone()
	out.Conversations = make([]ConversationEntry, len(entries))
	copy(out.Conversations, entries)
	return out
}

// LoadMessages replaces a conversation's cached page with a freshly fetched
// one, marking the conversation as locally loaded.
func LoadMessages(s Snapshot, conversationId int64, msgs []MessageEntry) Snapshot {
	out := s.clone()
	page := make([]MessageEntry, len(msgs))
	copy(page, msgs)
	out.Messages[conversationId] = page
	return out
}

// UnloadMessages drops a conversation's cached page. Entries still awaiting
// a send resolution are retained and keep the conversation loaded, so an
// in-flight send closed mid-way still lands its confirmation or failure.
// Once none remain the page unloads fully and later message events for the
// conversation become no-ops.
func UnloadMessages(s Snapshot, conversationId int64) Snapshot {
	page, loaded := s.Messages[conversationId]
	if !loaded {
		return s
	}

	var pending []MessageEntry
	for _, msg := range page {
		if msg.IsPending() {
			pending = append(pending, msg)
		}
	}

	out := s.clone()
	if len(pending) == 0 {
		delete(out.Messages, conversationId)
	} else {
		out.Messages[conversationId] = pending
	}
	return out
}

// UpsertConversation inserts a conversation at the head of the list or
// refreshes it in place when already present.
func UpsertConversation(s Snapshot, entry ConversationEntry) Snapshot {
	out := s.clone()
	for i := range out.Conversations {
		if out.Conversations[i].Id == entry.Id {
			out.Conversations[i] = entry
			return out
		}
	}
	out.Conversations = append([]ConversationEntry{entry}, out.Conversations...)
	return out
}

// AppendMessage merges a new message into its conversation's page. The page
// must already be loaded, otherwise the event is dropped. A message already
// present by id is a duplicate delivery and the event is a no-op. A pending
// entry with the same client msg id is this sender's own echo: the pending
// entry is confirmed in place instead of appending a duplicate bubble.
func AppendMessage(s Snapshot, msg MessageEntry) Snapshot {
	page, loaded := s.Messages[msg.ConversationId]
	if !loaded {
		return s
	}

	for i := range page {
		if msg.Id != 0 && page[i].Id == msg.Id {
			return s
		}
		if msg.ClientMsgId != "" && page[i].ClientMsgId == msg.ClientMsgId && page[i].IsPending() {
			return confirmAt(s, msg.ConversationId, i, msg)
		}
	}

	out := s.clone()
	out.Messages[msg.ConversationId] = append(out.Messages[msg.ConversationId], msg)
	return out
}

// ConfirmPending swaps a pending entry for the server-confirmed message,
// matched by temp id, preserving its position in the list. A missing temp id
// means the entry was already confirmed (own echo arrived first); the event
// is a no-op so a late acknowledgment never disturbs state the echo built.
func ConfirmPending(s Snapshot, conversationId, tempId int64, confirmed MessageEntry) Snapshot {
	page, loaded := s.Messages[conversationId]
	if !loaded {
		return s
	}

	for i := range page {
		if page[i].TempId == tempId && page[i].IsPending() {
			return confirmAt(s, conversationId, i, confirmed)
		}
	}
	return s
}

// confirmAt replaces the entry at index i with the confirmed message while
// keeping position, locally known plaintext and any delivery state that
// raced ahead of the confirmation.
func confirmAt(s Snapshot, conversationId int64, i int, confirmed MessageEntry) Snapshot {
	out := s.clone()
	page := out.Messages[conversationId]
	prev := page[i]

	confirmed.TempId = 0
	confirmed.PendingState = PendingSent
	if confirmed.PlainText == "" {
		confirmed.PlainText = prev.PlainText
	}
	// Keep the higher of any statuses recorded on both sides of the race
	for _, st := range prev.Statuses {
		merged := false
		for j := range confirmed.Statuses {
			if confirmed.Statuses[j].RecipientId == st.RecipientId {
				if st.Status > confirmed.Statuses[j].Status {
					confirmed.Statuses[j].Status = st.Status
				}
				merged = true
				break
			}
		}
		if !merged {
			confirmed.Statuses = append(confirmed.Statuses, st)
		}
	}

	page[i] = confirmed
	return out
}

// FailPending flips a pending entry to failed, keeping it visible with its
// content so the user can retry. Idempotent; a no-op once confirmed.
func FailPending(s Snapshot, conversationId, tempId int64) Snapshot {
	page, loaded := s.Messages[conversationId]
	if !loaded {
		return s
	}

	for i := range page {
		if page[i].TempId == tempId && page[i].IsPending() {
			if page[i].PendingState == PendingFailed {
				return s
			}
			out := s.clone()
			out.Messages[conversationId][i].PendingState = PendingFailed
			return out
		}
	}
	return s
}

// RetryPending flips a failed entry back to sending ahead of a resubmit.
// No-op unless the entry exists and is currently failed.
func RetryPending(s Snapshot, conversationId, tempId int64) Snapshot {
	page, loaded := s.Messages[conversationId]
	if !loaded {
		return s
	}

	for i := range page {
		if page[i].TempId == tempId && page[i].PendingState == PendingFailed {
			out := s.clone()
			out.Messages[conversationId][i].PendingState = PendingSending
			return out
		}
	}
	return s
}

// EditEvent carries a message edit
type EditEvent struct {
	ConversationId  int64
	MessageId       int64
	Content         string
	KeyForSender    string
	KeyForRecipient string
	PlainText       string
}

// ApplyEdit replaces a message's content and keys in place and sets the
// edited flag. Unknown messages are a no-op.
func ApplyEdit(s Snapshot, ev EditEvent) Snapshot {
	page, loaded := s.Messages[ev.ConversationId]
	if !loaded {
		return s
	}

	for i := range page {
		if page[i].Id == ev.MessageId {
			out := s.clone()
			msg := &out.Messages[ev.ConversationId][i]
			msg.Content = ev.Content
			msg.KeyForSender = ev.KeyForSender
			msg.KeyForRecipient = ev.KeyForRecipient
			msg.PlainText = ev.PlainText
			msg.Edited = true
			return out
		}
	}
	return s
}

// ReplaceMessage swaps a message entry in place by id, keeping position.
// Used to roll back an optimistic edit when the server rejects it. No-op
// when the message is not cached.
func ReplaceMessage(s Snapshot, conversationId, messageId int64, entry MessageEntry) Snapshot {
	page, loaded := s.Messages[conversationId]
	if !loaded {
		return s
	}

	for i := range page {
		if page[i].Id == messageId {
			out := s.clone()
			out.Messages[conversationId][i] = entry
			return out
		}
	}
	return s
}

// SetDeleted toggles a message's soft-delete flag in place. Applying the
// same event twice yields the same state.
func SetDeleted(s Snapshot, conversationId, messageId int64, deleted bool) Snapshot {
	page, loaded := s.Messages[conversationId]
	if !loaded {
		return s
	}

	for i := range page {
		if page[i].Id == messageId {
			if page[i].Deleted == deleted {
				return s
			}
			out := s.clone()
			out.Messages[conversationId][i].Deleted = deleted
			return out
		}
	}
	return s
}

// UpsertReaction records a user's reaction on a message, replacing any
// earlier reaction from the same user. Never produces two rows per user.
func UpsertReaction(s Snapshot, conversationId, messageId int64, userId, emoji string) Snapshot {
	page, loaded := s.Messages[conversationId]
	if !loaded {
		return s
	}

	for i := range page {
		if page[i].Id != messageId {
			continue
		}

		for j, r := range page[i].Reactions {
			if r.UserId == userId {
				if r.Emoji == emoji {
					return s
				}
				out := s.clone()
				out.Messages[conversationId][i].Reactions = cloneReactions(page[i].Reactions)
				out.Messages[conversationId][i].Reactions[j].Emoji = emoji
				return out
			}
		}

		out := s.clone()
		out.Messages[conversationId][i].Reactions = append(
			cloneReactions(page[i].Reactions), ReactionEntry{UserId: userId, Emoji: emoji})
		return out
	}
	return s
}

// ApplyStatus advances a recipient's delivery state on a message. Strictly
// forward-only: a rank at or below the cached one is ignored, so status
// events arriving out of order never regress seen back to delivered.
func ApplyStatus(s Snapshot, conversationId, messageId int64, recipientId string, status int32) Snapshot {
	if !statusRankValid(status) {
		return s
	}

	page, loaded := s.Messages[conversationId]
	if !loaded {
		return s
	}

	for i := range page {
		if page[i].Id != messageId {
			continue
		}

		for j, st := range page[i].Statuses {
			if st.RecipientId == recipientId {
				if status <= st.Status {
					return s
				}
				out := s.clone()
				out.Messages[conversationId][i].Statuses = cloneStatuses(page[i].Statuses)
				out.Messages[conversationId][i].Statuses[j].Status = status
				return out
			}
		}

		out := s.clone()
		out.Messages[conversationId][i].Statuses = append(
			cloneStatuses(page[i].Statuses), StatusEntry{RecipientId: recipientId, Status: status})
		return out
	}
	return s
}

// ResetUnread zeroes one conversation's unread counter, leaving every other
// conversation untouched. Idempotent.
func ResetUnread(s Snapshot, conversationId int64) Snapshot {
	for i := range s.Conversations {
		if s.Conversations[i].Id == conversationId {
			if s.Conversations[i].UnreadCount == 0 {
				return s
			}
			out := s.clone()
			out.Conversations[i].UnreadCount = 0
			return out
		}
	}
	return s
}

// IncrementUnread bumps one conversation's unread counter by one. Callers
// invoke it once per genuinely new inbound message, never for own messages
// or duplicate deliveries.
func IncrementUnread(s Snapshot, conversationId int64) Snapshot {
	for i := range s.Conversations {
		if s.Conversations[i].Id == conversationId {
			out := s.clone()
			out.Conversations[i].UnreadCount++
			return out
		}
	}
	return s
}

// SetLastMessage overwrites a conversation's last-message pointer. Last
// write wins by arrival order; the reducer does not compare timestamps.
func SetLastMessage(s Snapshot, conversationId int64, summary MessageSummary) Snapshot {
	for i := range s.Conversations {
		if s.Conversations[i].Id == conversationId {
			out := s.clone()
			out.Conversations[i].LastMessage = &summary
			if summary.SendAt > out.Conversations[i].UpdatedAt {
				out.Conversations[i].UpdatedAt = summary.SendAt
			}
			return out
		}
	}
	return s
}

func cloneStatuses(in []StatusEntry) []StatusEntry {
	out := make([]StatusEntry, len(in))
	copy(out, in)
	return out
}

func cloneReactions(in []ReactionEntry) []ReactionEntry {
	out := make([]ReactionEntry, len(in))
	copy(out, in)
	return out
}
