package client

import (
	"context"
	"testing"

	"github.com/mbeoliero/vesper/client/cache"
	"github.com/mbeoliero/vesper/client/codec"
	"github.com/mbeoliero/vesper/client/keyring"
	"github.com/mbeoliero/vesper/pkg/constant"
	"github.com/mbeoliero/vesper/pkg/errcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport lets each test override exactly the calls it exercises
type fakeTransport struct {
	createConversation func(ctx context.Context, peerUserId string) (*ConversationInfo, error)
	listConversations  func(ctx context.Context, page, pageSize int) ([]*ConversationInfo, error)
	listMessages       func(ctx context.Context, conversationId int64, page, pageSize int) ([]*MessageInfo, error)
	sendMessage        func(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error)
	editMessage        func(ctx context.Context, req *EditMessageRequest) (*MessageInfo, error)
	deleteMessage      func(ctx context.Context, messageId int64) error
	undoDeleteMessage  func(ctx context.Context, messageId int64) error
	reactMessage       func(ctx context.Context, messageId int64, emoji string) error
	markDelivered      func(ctx context.Context, messageId int64) error
	markRead           func(ctx context.Context, conversationId int64) error
	getUser            func(ctx context.Context, userId string) (*UserInfo, error)
}

func (f *fakeTransport) CreateConversation(ctx context.Context, peerUserId string) (*ConversationInfo, error) {
	return f.createConversation(ctx, peerUserId)
}

func (f *fakeTransport) ListConversations(ctx context.Context, page, pageSize int) ([]*ConversationInfo, error) {
	return f.listConversations(ctx, page, pageSize)
}

func (f *fakeTransport) ListMessages(ctx context.Context, conversationId int64, page, pageSize int) ([]*MessageInfo, error) {
	if f.listMessages == nil {
		return nil, nil
	}
	return f.listMessages(ctx, conversationId, page, pageSize)
}

func (f *fakeTransport) SendMessage(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error) {
	return f.sendMessage(ctx, req)
}

func (f *fakeTransport) EditMessage(ctx context.Context, req *EditMessageRequest) (*MessageInfo, error) {
	return f.editMessage(ctx, req)
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, messageId int64) error {
	return f.deleteMessage(ctx, messageId)
}

func (f *fakeTransport) UndoDeleteMessage(ctx context.Context, messageId int64) error {
	return f.undoDeleteMessage(ctx, messageId)
}

func (f *fakeTransport) ReactMessage(ctx context.Context, messageId int64, emoji string) error {
	return f.reactMessage(ctx, messageId, emoji)
}

func (f *fakeTransport) MarkDelivered(ctx context.Context, messageId int64) error {
	return f.markDelivered(ctx, messageId)
}

func (f *fakeTransport) MarkRead(ctx context.Context, conversationId int64) error {
	return f.markRead(ctx, conversationId)
}

func (f *fakeTransport) GetUser(ctx context.Context, userId string) (*UserInfo, error) {
	return f.getUser(ctx, userId)
}

type fakeUploader struct {
	url string
	err error
}

func (f *fakeUploader) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	return f.url, f.err
}

const testConvId int64 = 7

// newTestMessenger builds a messenger for alice with bob's conversation
// loaded and bob's key published through the fake transport.
func newTestMessenger(t *testing.T, transport *fakeTransport) (*Messenger, *keyring.KeyPair) {
	t.Helper()

	aliceKeys, err := keyring.Generate()
	require.NoError(t, err)
	bobKeys, err := keyring.Generate()
	require.NoError(t, err)

	if transport.getUser == nil {
		transport.getUser = func(ctx context.Context, userId string) (*UserInfo, error) {
			return &UserInfo{Id: userId, PublicKey: bobKeys.Public().Encode()}, nil
		}
	}

	store := cache.NewStore()
	store.Apply(func(s cache.Snapshot) cache.Snapshot {
		s = cache.LoadConversations(s, []cache.ConversationEntry{
			{Id: testConvId, PairKey: "di_alice:bob", PeerUserId: "bob", UnreadCount: 2},
		})
		return cache.LoadMessages(s, testConvId, nil)
	})

	return NewMessenger("alice", aliceKeys, transport, store), bobKeys
}

func TestSendTextOptimisticConfirm(t *testing.T) {
	var sent *SendMessageRequest
	transport := &fakeTransport{
		sendMessage: func(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error) {
			sent = req
			return &MessageInfo{
				Id:              42,
				ConversationId:  req.ConversationId,
				ClientMsgId:     req.ClientMsgId,
				SenderId:        "alice",
				MsgType:         req.MsgType,
				Content:         req.Content,
				KeyForSender:    req.KeyForSender,
				KeyForRecipient: req.KeyForRecipient,
				SendAt:          1000,
			}, nil
		},
	}
	m, _ := newTestMessenger(t, transport)

	tempId, err := m.SendText(context.Background(), testConvId, "hello", 0)
	require.NoError(t, err)
	require.NotNil(t, sent)

	// The wire never carries plaintext
	assert.NotEqual(t, "hello", sent.Content)
	assert.NotEmpty(t, sent.KeyForSender)
	assert.NotEmpty(t, sent.KeyForRecipient)

	page, _ := m.Store().Snapshot().MessagesFor(testConvId)
	require.Len(t, page, 1)
	assert.Equal(t, int64(42), page[0].Id)
	assert.Equal(t, int64(0), page[0].TempId)
	assert.Equal(t, cache.PendingSent, page[0].PendingState)
	assert.Equal(t, "hello", page[0].PlainText)
	assert.NotZero(t, tempId)

	conv, _ := m.Store().Snapshot().ConversationById(testConvId)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, int64(42), conv.LastMessage.MessageId)
}

func TestSendTextFailureKeepsBubble(t *testing.T) {
	transport := &fakeTransport{
		sendMessage: func(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error) {
			return nil, errcode.ErrSendFailed
		},
	}
	m, _ := newTestMessenger(t, transport)

	tempId, err := m.SendText(context.Background(), testConvId, "hello", 0)
	assert.ErrorIs(t, err, errcode.ErrSendFailed)

	page, _ := m.Store().Snapshot().MessagesFor(testConvId)
	require.Len(t, page, 1)
	assert.Equal(t, cache.PendingFailed, page[0].PendingState)
	assert.Equal(t, tempId, page[0].TempId)
	assert.Equal(t, "hello", page[0].PlainText)
}

// The own echo and a delivered receipt can both land on the cache before the
// HTTP acknowledgment returns. The final state must be delivered, not sent.
func TestSendTextEchoBeforeAckKeepsDelivered(t *testing.T) {
	var m *Messenger
	transport := &fakeTransport{}
	transport.sendMessage = func(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error) {
		msg := &MessageInfo{
			Id:             42,
			ConversationId: req.ConversationId,
			ClientMsgId:    req.ClientMsgId,
			SenderId:       "alice",
			MsgType:        req.MsgType,
			Content:        req.Content,
			SendAt:         1000,
		}
		// Real-time events overtake the acknowledgment
		m.Store().Apply(func(s cache.Snapshot) cache.Snapshot {
			return cache.AppendMessage(s, cache.MessageEntry{
				Id:             msg.Id,
				ConversationId: msg.ConversationId,
				ClientMsgId:    msg.ClientMsgId,
				SenderId:       msg.SenderId,
				Content:        msg.Content,
				SendAt:         msg.SendAt,
			})
		})
		m.Store().Apply(func(s cache.Snapshot) cache.Snapshot {
			return cache.ApplyStatus(s, msg.ConversationId, msg.Id, "bob", constant.StatusDelivered)
		})
		return msg, nil
	}
	m, _ = newTestMessenger(t, transport)

	_, err := m.SendText(context.Background(), testConvId, "hello", 0)
	require.NoError(t, err)

	page, _ := m.Store().Snapshot().MessagesFor(testConvId)
	require.Len(t, page, 1)
	assert.Equal(t, cache.PendingSent, page[0].PendingState)
	assert.Equal(t, int32(constant.StatusDelivered), page[0].StatusFor("bob"))
	assert.Equal(t, "hello", page[0].PlainText)
}

func TestCloseConversationMidFlightKeepsFailure(t *testing.T) {
	var m *Messenger
	transport := &fakeTransport{}
	transport.sendMessage = func(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error) {
		// The conversation is closed while the send is still in flight
		m.CloseConversation(testConvId)
		return nil, errcode.ErrSendFailed
	}
	m, _ = newTestMessenger(t, transport)

	tempId, err := m.SendText(context.Background(), testConvId, "hello", 0)
	require.ErrorIs(t, err, errcode.ErrSendFailed)

	// The optimistic entry survives the close and resolves to failed
	page, loaded := m.Store().Snapshot().MessagesFor(testConvId)
	require.True(t, loaded)
	require.Len(t, page, 1)
	assert.Equal(t, tempId, page[0].TempId)
	assert.Equal(t, cache.PendingFailed, page[0].PendingState)
	assert.Equal(t, "hello", page[0].PlainText)
}

func TestCloseConversationMidFlightConfirmsSuccess(t *testing.T) {
	var m *Messenger
	transport := &fakeTransport{}
	transport.sendMessage = func(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error) {
		m.CloseConversation(testConvId)
		return &MessageInfo{
			Id:             42,
			ConversationId: req.ConversationId,
			ClientMsgId:    req.ClientMsgId,
			SenderId:       "alice",
			Content:        req.Content,
			SendAt:         1000,
		}, nil
	}
	m, _ = newTestMessenger(t, transport)

	_, err := m.SendText(context.Background(), testConvId, "hello", 0)
	require.NoError(t, err)

	page, loaded := m.Store().Snapshot().MessagesFor(testConvId)
	require.True(t, loaded)
	require.Len(t, page, 1)
	assert.Equal(t, int64(42), page[0].Id)
	assert.Equal(t, cache.PendingSent, page[0].PendingState)
}

func TestRetryFailedSend(t *testing.T) {
	calls := 0
	transport := &fakeTransport{
		sendMessage: func(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error) {
			calls++
			if calls == 1 {
				return nil, errcode.ErrSendFailed
			}
			return &MessageInfo{
				Id:             43,
				ConversationId: req.ConversationId,
				ClientMsgId:    req.ClientMsgId,
				SenderId:       "alice",
				Content:        req.Content,
				SendAt:         1001,
			}, nil
		},
	}
	m, _ := newTestMessenger(t, transport)

	tempId, err := m.SendText(context.Background(), testConvId, "hello", 0)
	require.Error(t, err)

	firstClientMsgId := ""
	page, _ := m.Store().Snapshot().MessagesFor(testConvId)
	firstClientMsgId = page[0].ClientMsgId

	require.NoError(t, m.Retry(context.Background(), testConvId, tempId))
	assert.Equal(t, 2, calls)

	page, _ = m.Store().Snapshot().MessagesFor(testConvId)
	require.Len(t, page, 1)
	assert.Equal(t, int64(43), page[0].Id)
	assert.Equal(t, cache.PendingSent, page[0].PendingState)
	assert.Equal(t, firstClientMsgId, page[0].ClientMsgId)
	assert.Equal(t, "hello", page[0].PlainText)
}

func TestRetryUnknownTempId(t *testing.T) {
	m, _ := newTestMessenger(t, &fakeTransport{})
	err := m.Retry(context.Background(), testConvId, 12345)
	assert.ErrorIs(t, err, errcode.ErrMessageNotFound)
}

func TestSendMediaSkipsEnvelope(t *testing.T) {
	var sent *SendMessageRequest
	transport := &fakeTransport{
		sendMessage: func(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error) {
			sent = req
			return &MessageInfo{
				Id:             44,
				ConversationId: req.ConversationId,
				ClientMsgId:    req.ClientMsgId,
				SenderId:       "alice",
				MsgType:        req.MsgType,
				Content:        req.Content,
				SendAt:         1002,
			}, nil
		},
	}
	m, _ := newTestMessenger(t, transport)
	uploader := &fakeUploader{url: "https://cdn.example.com/cat.png"}

	_, err := m.SendMedia(context.Background(), testConvId, constant.MsgTypeImage, "cat.png", []byte{1, 2, 3}, uploader)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/cat.png", sent.Content)
	assert.Empty(t, sent.KeyForSender)
	assert.Empty(t, sent.KeyForRecipient)
}

func TestSendMediaRejectsTextType(t *testing.T) {
	m, _ := newTestMessenger(t, &fakeTransport{})
	_, err := m.SendMedia(context.Background(), testConvId, constant.MsgTypeText, "x.txt", nil, &fakeUploader{})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)
}

func TestEditTextRollbackOnReject(t *testing.T) {
	transport := &fakeTransport{
		editMessage: func(ctx context.Context, req *EditMessageRequest) (*MessageInfo, error) {
			return nil, errcode.ErrNotSender
		},
	}
	m, _ := newTestMessenger(t, transport)

	original := cache.MessageEntry{
		Id:             50,
		ConversationId: testConvId,
		SenderId:       "alice",
		Content:        "old-envelope",
		PlainText:      "old",
	}
	m.Store().Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.AppendMessage(s, original)
	})

	err := m.EditText(context.Background(), testConvId, 50, "new text")
	assert.ErrorIs(t, err, errcode.ErrNotSender)

	got, ok := m.Store().Snapshot().FindMessage(testConvId, 50)
	require.True(t, ok)
	assert.Equal(t, "old-envelope", got.Content)
	assert.Equal(t, "old", got.PlainText)
	assert.False(t, got.Edited)
}

func TestEditTextApplied(t *testing.T) {
	transport := &fakeTransport{
		editMessage: func(ctx context.Context, req *EditMessageRequest) (*MessageInfo, error) {
			return &MessageInfo{Id: req.MessageId, Content: req.Content, Edited: true}, nil
		},
	}
	m, _ := newTestMessenger(t, transport)

	m.Store().Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.AppendMessage(s, cache.MessageEntry{
			Id: 50, ConversationId: testConvId, SenderId: "alice", PlainText: "old",
		})
	})

	require.NoError(t, m.EditText(context.Background(), testConvId, 50, "new text"))

	got, _ := m.Store().Snapshot().FindMessage(testConvId, 50)
	assert.True(t, got.Edited)
	assert.Equal(t, "new text", got.PlainText)
	assert.Equal(t, "new text", m.Render(got))
}

func TestDeleteRollbackOnError(t *testing.T) {
	transport := &fakeTransport{
		deleteMessage: func(ctx context.Context, messageId int64) error {
			return errcode.ErrNotSender
		},
	}
	m, _ := newTestMessenger(t, transport)
	m.Store().Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.AppendMessage(s, cache.MessageEntry{Id: 60, ConversationId: testConvId, SenderId: "alice"})
	})

	err := m.Delete(context.Background(), testConvId, 60)
	assert.ErrorIs(t, err, errcode.ErrNotSender)

	got, _ := m.Store().Snapshot().FindMessage(testConvId, 60)
	assert.False(t, got.Deleted)
}

func TestMarkReadResetsLocalUnread(t *testing.T) {
	marked := int64(0)
	transport := &fakeTransport{
		markRead: func(ctx context.Context, conversationId int64) error {
			marked = conversationId
			return nil
		},
	}
	m, _ := newTestMessenger(t, transport)

	require.NoError(t, m.MarkRead(context.Background(), testConvId))
	assert.Equal(t, testConvId, marked)

	conv, _ := m.Store().Snapshot().ConversationById(testConvId)
	assert.Equal(t, int64(0), conv.UnreadCount)
}

func TestMarkReadTransportFailureKeepsUnread(t *testing.T) {
	transport := &fakeTransport{
		markRead: func(ctx context.Context, conversationId int64) error {
			return errcode.ErrSendFailed
		},
	}
	m, _ := newTestMessenger(t, transport)

	assert.Error(t, m.MarkRead(context.Background(), testConvId))
	conv, _ := m.Store().Snapshot().ConversationById(testConvId)
	assert.Equal(t, int64(2), conv.UnreadCount)
}

func TestRenderFallbacks(t *testing.T) {
	m, _ := newTestMessenger(t, &fakeTransport{})

	assert.Equal(t, PlaceholderDeleted, m.Render(cache.MessageEntry{Deleted: true}))
	assert.Equal(t, "known", m.Render(cache.MessageEntry{PlainText: "known"}))
	assert.Equal(t, "https://x/y.png", m.Render(cache.MessageEntry{
		MsgType: constant.MsgTypeImage, Content: "https://x/y.png",
	}))
	assert.Equal(t, PlaceholderUnavailable, m.Render(cache.MessageEntry{
		MsgType: constant.MsgTypeText, Content: "garbage", KeyForRecipient: "garbage",
	}))
}

// Full exchange: alice composes, the envelope crosses the wire, bob decrypts
// with his key, the delivered receipt comes back and lands on alice's cache.
func TestSalaamEndToEnd(t *testing.T) {
	var wire *MessageInfo
	transport := &fakeTransport{
		sendMessage: func(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error) {
			wire = &MessageInfo{
				Id:              42,
				ConversationId:  req.ConversationId,
				ClientMsgId:     req.ClientMsgId,
				SenderId:        "alice",
				MsgType:         req.MsgType,
				Content:         req.Content,
				KeyForSender:    req.KeyForSender,
				KeyForRecipient: req.KeyForRecipient,
				SendAt:          2000,
			}
			return wire, nil
		},
	}
	alice, bobKeys := newTestMessenger(t, transport)

	_, err := alice.SendText(context.Background(), testConvId, "Salaam", 0)
	require.NoError(t, err)
	require.NotNil(t, wire)
	assert.NotEqual(t, "Salaam", wire.Content)

	// Alice rereads her own message through the sender-wrapped key
	confirmed, ok := alice.Store().Snapshot().FindMessage(testConvId, 42)
	require.True(t, ok)
	confirmed.PlainText = ""
	assert.Equal(t, "Salaam", alice.Render(confirmed))

	// Bob decrypts the wire copy through the recipient-wrapped key
	plaintext, err := codec.Decrypt(wire.Content, wire.KeyForRecipient, bobKeys)
	require.NoError(t, err)
	assert.Equal(t, "Salaam", plaintext)

	// Bob's delivered receipt advances alice's view of the message
	alice.Store().Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.ApplyStatus(s, testConvId, 42, "bob", constant.StatusDelivered)
	})
	got, _ := alice.Store().Snapshot().FindMessage(testConvId, 42)
	assert.Equal(t, int32(constant.StatusDelivered), got.StatusFor("bob"))
}

func TestOpenConversationLoadsPage(t *testing.T) {
	transport := &fakeTransport{
		createConversation: func(ctx context.Context, peerUserId string) (*ConversationInfo, error) {
			return &ConversationInfo{Id: 99, PairKey: "di_alice:dana", PeerUserId: peerUserId}, nil
		},
		listMessages: func(ctx context.Context, conversationId int64, page, pageSize int) ([]*MessageInfo, error) {
			return []*MessageInfo{
				{Id: 1, ConversationId: conversationId, SenderId: "dana", SendAt: 10},
				{Id: 2, ConversationId: conversationId, SenderId: "alice", SendAt: 20},
			}, nil
		},
	}
	m, _ := newTestMessenger(t, transport)

	conv, err := m.OpenConversation(context.Background(), "dana")
	require.NoError(t, err)
	assert.Equal(t, int64(99), conv.Id)

	page, loaded := m.Store().Snapshot().MessagesFor(99)
	require.True(t, loaded)
	require.Len(t, page, 2)
	assert.Equal(t, int64(1), page[0].Id)

	got, ok := m.Store().Snapshot().ConversationById(99)
	require.True(t, ok)
	assert.Equal(t, "dana", got.PeerUserId)

	m.CloseConversation(99)
	_, loaded = m.Store().Snapshot().MessagesFor(99)
	assert.False(t, loaded)
}

func TestSendTextUnknownConversation(t *testing.T) {
	m, _ := newTestMessenger(t, &fakeTransport{})
	_, err := m.SendText(context.Background(), 404, "hello", 0)
	assert.ErrorIs(t, err, errcode.ErrConvNotFound)
}
