package client

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/vesper/client/cache"
	"github.com/mbeoliero/vesper/client/codec"
	"github.com/mbeoliero/vesper/client/keyring"
	"github.com/mbeoliero/vesper/pkg/constant"
	"github.com/mbeoliero/vesper/pkg/errcode"
	"github.com/mbeoliero/vesper/pkg/idgen"
)

// Placeholder texts rendered when a message body cannot be shown
const (
	PlaceholderUnavailable = "message unavailable"
	PlaceholderDeleted     = "message deleted"
)

// Messenger is the optimistic send pipeline. Every outgoing message becomes
// a pending cache entry before the transport sees it; the entry is later
// confirmed by the acknowledgment or the own real-time echo, whichever
// lands first, or flipped to failed.
type Messenger struct {
	userId    string
	keys      *keyring.KeyPair
	transport Transport
	store     *cache.Store
	tempIds   idgen.TempIdGenerator

	peerKeyMu sync.RWMutex
	peerKeys  map[string]*keyring.PublicKey
}

// NewMessenger creates a messenger for one authenticated user
func NewMessenger(userId string, keys *keyring.KeyPair, transport Transport, store *cache.Store) *Messenger {
	return &Messenger{
		userId:    userId,
		keys:      keys,
		transport: transport,
		store:     store,
		peerKeys:  make(map[string]*keyring.PublicKey),
	}
}

// Store exposes the cache for readers
func (m *Messenger) Store() *cache.Store {
	return m.store
}

// OpenConversation opens (or re-opens) the direct conversation with a peer
// and loads its first message page into the cache.
func (m *Messenger) OpenConversation(ctx context.Context, peerUserId string) (*ConversationInfo, error) {
	conv, err := m.transport.CreateConversation(ctx, peerUserId)
	if err != nil {
		return nil, err
	}

	msgs, err := m.transport.ListMessages(ctx, conv.Id, 1, 50)
	if err != nil {
		return nil, err
	}

	entries := make([]cache.MessageEntry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, toCacheEntry(msg))
	}

	m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		s = cache.UpsertConversation(s, toConversationEntry(conv))
		return cache.LoadMessages(s, conv.Id, entries)
	})
	return conv, nil
}

// CloseConversation drops a conversation's message page from the cache
func (m *Messenger) CloseConversation(conversationId int64) {
	m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.UnloadMessages(s, conversationId)
	})
}

// RefreshConversations reloads the conversation list page into the cache
func (m *Messenger) RefreshConversations(ctx context.Context, page, pageSize int) error {
	convs, err := m.transport.ListConversations(ctx, page, pageSize)
	if err != nil {
		return err
	}

	entries := make([]cache.ConversationEntry, 0, len(convs))
	for _, conv := range convs {
		entries = append(entries, toConversationEntry(conv))
	}
	m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.LoadConversations(s, entries)
	})
	return nil
}

// SendText encrypts plaintext for both parties and runs the optimistic
// pipeline. parentId links a reply, 0 for none. Returns the temp id of the
// optimistic entry; on transport failure the entry is flipped to failed and
// the error is returned once to this call site. No automatic retry.
func (m *Messenger) SendText(ctx context.Context, conversationId int64, plaintext string, parentId int64) (int64, error) {
	recipientKey, err := m.recipientKey(ctx, conversationId)
	if err != nil {
		return 0, err
	}

	envelope, err := codec.Encrypt(plaintext, m.keys.Public(), recipientKey)
	if err != nil {
		return 0, err
	}

	req := &SendMessageRequest{
		ConversationId:  conversationId,
		ClientMsgId:     uuid.New().String(),
		MsgType:         constant.MsgTypeText,
		Content:         envelope.Content,
		KeyForSender:    envelope.KeyForSender,
		KeyForRecipient: envelope.KeyForRecipient,
		ParentId:        parentId,
	}
	return m.submit(ctx, req, plaintext)
}

// SendMedia uploads an attachment and sends its URL as the message content.
// Media content bypasses the encryption envelope; the URL is carried as-is.
func (m *Messenger) SendMedia(ctx context.Context, conversationId int64, msgType int32, filename string, data []byte, uploader Uploader) (int64, error) {
	if !constant.IsMediaType(msgType) {
		return 0, errcode.ErrInvalidParam
	}

	mediaURL, err := uploader.Upload(ctx, filename, data)
	if err != nil {
		return 0, err
	}

	req := &SendMessageRequest{
		ConversationId: conversationId,
		ClientMsgId:    uuid.New().String(),
		MsgType:        msgType,
		Content:        mediaURL,
	}
	return m.submit(ctx, req, mediaURL)
}

// submit inserts the optimistic entry at the tail of the conversation's
// page, pushes the request through the transport and reconciles the result.
func (m *Messenger) submit(ctx context.Context, req *SendMessageRequest, plaintext string) (int64, error) {
	tempId := m.tempIds.Next()
	pending := cache.MessageEntry{
		TempId:          tempId,
		ConversationId:  req.ConversationId,
		ClientMsgId:     req.ClientMsgId,
		SenderId:        m.userId,
		MsgType:         req.MsgType,
		Content:         req.Content,
		KeyForSender:    req.KeyForSender,
		KeyForRecipient: req.KeyForRecipient,
		ParentId:        req.ParentId,
		PlainText:       plaintext,
		PendingState:    cache.PendingSending,
	}

	m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		if _, loaded := s.MessagesFor(req.ConversationId); !loaded {
			s = cache.LoadMessages(s, req.ConversationId, nil)
		}
		return cache.AppendMessage(s, pending)
	})

	resp, err := m.transport.SendMessage(ctx, req)
	if err != nil {
		log.CtxWarn(ctx, "send failed: conversation_id=%d, temp_id=%d, error=%v", req.ConversationId, tempId, err)
		m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
			return cache.FailPending(s, req.ConversationId, tempId)
		})
		return tempId, err
	}

	confirmed := toCacheEntry(resp)
	confirmed.PlainText = plaintext
	m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		s = cache.ConfirmPending(s, req.ConversationId, tempId, confirmed)
		return cache.SetLastMessage(s, req.ConversationId, cache.MessageSummary{
			MessageId: resp.Id,
			SenderId:  resp.SenderId,
			MsgType:   resp.MsgType,
			SendAt:    resp.SendAt,
		})
	})
	return tempId, nil
}

// Retry resubmits a failed pending entry with its original content and
// client msg id. Retrying a message the server already accepted is safe:
// the service deduplicates by client msg id.
func (m *Messenger) Retry(ctx context.Context, conversationId, tempId int64) error {
	snap := m.store.Snapshot()
	page, loaded := snap.MessagesFor(conversationId)
	if !loaded {
		return errcode.ErrMessageNotFound
	}

	for _, msg := range page {
		if msg.TempId != tempId {
			continue
		}
		if msg.PendingState != cache.PendingFailed {
			return nil
		}

		req := &SendMessageRequest{
			ConversationId:  conversationId,
			ClientMsgId:     msg.ClientMsgId,
			MsgType:         msg.MsgType,
			Content:         msg.Content,
			KeyForSender:    msg.KeyForSender,
			KeyForRecipient: msg.KeyForRecipient,
			ParentId:        msg.ParentId,
		}

		m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
			return cache.RetryPending(s, conversationId, tempId)
		})

		resp, err := m.transport.SendMessage(ctx, req)
		if err != nil {
			m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
				return cache.FailPending(s, conversationId, tempId)
			})
			return err
		}

		confirmed := toCacheEntry(resp)
		confirmed.PlainText = msg.PlainText
		m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
			return cache.ConfirmPending(s, conversationId, tempId, confirmed)
		})
		return nil
	}
	return errcode.ErrMessageNotFound
}

// EditText re-encrypts new plaintext and applies the edit optimistically,
// rolling the entry back if the server rejects it.
func (m *Messenger) EditText(ctx context.Context, conversationId, messageId int64, plaintext string) error {
	prev, ok := m.store.Snapshot().FindMessage(conversationId, messageId)
	if !ok {
		return errcode.ErrMessageNotFound
	}

	recipientKey, err := m.recipientKey(ctx, conversationId)
	if err != nil {
		return err
	}
	envelope, err := codec.Encrypt(plaintext, m.keys.Public(), recipientKey)
	if err != nil {
		return err
	}

	m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.ApplyEdit(s, cache.EditEvent{
			ConversationId:  conversationId,
			MessageId:       messageId,
			Content:         envelope.Content,
			KeyForSender:    envelope.KeyForSender,
			KeyForRecipient: envelope.KeyForRecipient,
			PlainText:       plaintext,
		})
	})

	_, err = m.transport.EditMessage(ctx, &EditMessageRequest{
		MessageId:       messageId,
		Content:         envelope.Content,
		KeyForSender:    envelope.KeyForSender,
		KeyForRecipient: envelope.KeyForRecipient,
	})
	if err != nil {
		m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
			return cache.ReplaceMessage(s, conversationId, messageId, prev)
		})
		return err
	}
	return nil
}

// Delete soft-deletes a message, optimistically flagging it locally
func (m *Messenger) Delete(ctx context.Context, conversationId, messageId int64) error {
	return m.setDeleted(ctx, conversationId, messageId, true, m.transport.DeleteMessage)
}

// UndoDelete restores a soft-deleted message
func (m *Messenger) UndoDelete(ctx context.Context, conversationId, messageId int64) error {
	return m.setDeleted(ctx, conversationId, messageId, false, m.transport.UndoDeleteMessage)
}

func (m *Messenger) setDeleted(ctx context.Context, conversationId, messageId int64, deleted bool, submit func(context.Context, int64) error) error {
	m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.SetDeleted(s, conversationId, messageId, deleted)
	})

	if err := submit(ctx, messageId); err != nil {
		m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
			return cache.SetDeleted(s, conversationId, messageId, !deleted)
		})
		return err
	}
	return nil
}

// React upserts the caller's reaction, optimistically
func (m *Messenger) React(ctx context.Context, conversationId, messageId int64, emoji string) error {
	m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.UpsertReaction(s, conversationId, messageId, m.userId, emoji)
	})
	return m.transport.ReactMessage(ctx, messageId, emoji)
}

// AcknowledgeDelivered sends the delivered receipt for an inbound message
func (m *Messenger) AcknowledgeDelivered(ctx context.Context, messageId int64) error {
	return m.transport.MarkDelivered(ctx, messageId)
}

// MarkRead issues the read receipt for a conversation and zeroes its local
// unread counter.
func (m *Messenger) MarkRead(ctx context.Context, conversationId int64) error {
	if err := m.transport.MarkRead(ctx, conversationId); err != nil {
		return err
	}
	m.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.ResetUnread(s, conversationId)
	})
	return nil
}

// Render produces the display text for a cache entry: locally known
// plaintext when available, the URL for media, otherwise a decrypt with the
// wrapped key matching the viewer's role. Decryption failure renders a
// placeholder instead of propagating.
func (m *Messenger) Render(msg cache.MessageEntry) string {
	if msg.Deleted {
		return PlaceholderDeleted
	}
	if msg.PlainText != "" {
		return msg.PlainText
	}
	if constant.IsMediaType(msg.MsgType) {
		return msg.Content
	}

	wrappedKey := msg.KeyForRecipient
	if msg.SenderId == m.userId {
		wrappedKey = msg.KeyForSender
	}

	plaintext, err := codec.Decrypt(msg.Content, wrappedKey, m.keys)
	if err != nil {
		if !errors.Is(err, errcode.ErrDecryptionFailure) {
			log.Warn("render failed: message_id=%d, error=%v", msg.Id, err)
		}
		return PlaceholderUnavailable
	}
	return plaintext
}

// recipientKey resolves and caches the peer's public key for a conversation
func (m *Messenger) recipientKey(ctx context.Context, conversationId int64) (*keyring.PublicKey, error) {
	conv, ok := m.store.Snapshot().ConversationById(conversationId)
	if !ok || conv.PeerUserId == "" {
		return nil, errcode.ErrConvNotFound
	}

	m.peerKeyMu.RLock()
	key, cached := m.peerKeys[conv.PeerUserId]
	m.peerKeyMu.RUnlock()
	if cached {
		return key, nil
	}

	user, err := m.transport.GetUser(ctx, conv.PeerUserId)
	if err != nil {
		return nil, err
	}
	key, err = keyring.ImportPublicKey(user.PublicKey)
	if err != nil {
		return nil, err
	}

	m.peerKeyMu.Lock()
	m.peerKeys[conv.PeerUserId] = key
	m.peerKeyMu.Unlock()
	return key, nil
}

func toCacheEntry(msg *MessageInfo) cache.MessageEntry {
	return cache.MessageEntry{
		Id:              msg.Id,
		ConversationId:  msg.ConversationId,
		ClientMsgId:     msg.ClientMsgId,
		SenderId:        msg.SenderId,
		MsgType:         msg.MsgType,
		Content:         msg.Content,
		KeyForSender:    msg.KeyForSender,
		KeyForRecipient: msg.KeyForRecipient,
		ParentId:        msg.ParentId,
		Deleted:         msg.Deleted,
		Edited:          msg.Edited,
		SendAt:          msg.SendAt,
	}
}

func toConversationEntry(conv *ConversationInfo) cache.ConversationEntry {
	entry := cache.ConversationEntry{
		Id:          conv.Id,
		PairKey:     conv.PairKey,
		PeerUserId:  conv.PeerUserId,
		UnreadCount: conv.UnreadCount,
		UpdatedAt:   conv.UpdatedAt,
	}
	if conv.LastMessage != nil {
		entry.LastMessage = &cache.MessageSummary{
			MessageId: conv.LastMessage.MessageId,
			SenderId:  conv.LastMessage.SenderId,
			MsgType:   conv.LastMessage.MsgType,
			SendAt:    conv.LastMessage.SendAt,
		}
	}
	return entry
}
