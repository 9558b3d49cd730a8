// Package bridge connects the client to the real-time event stream and
// routes inbound events into the cache reducers. It tolerates duplicate
// delivery and events for conversations that are not locally cached; the
// reducers' idempotence makes redundant routing harmless.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/vesper/client/cache"
	"github.com/mbeoliero/vesper/pkg/constant"
)

// EventFrame is the push envelope from the bridge server
type EventFrame struct {
	Event   string          `json:"event"`
	RoomId  string          `json:"room_id"`
	Payload json.RawMessage `json:"payload"`
}

type clientFrame struct {
	Action string `json:"action"`
	RoomId string `json:"room_id"`
}

// messagePayload mirrors the server's message shape
type messagePayload struct {
	Id              int64  `json:"id"`
	ConversationId  int64  `json:"conversation_id"`
	ClientMsgId     string `json:"client_msg_id"`
	SenderId        string `json:"sender_id"`
	MsgType         int32  `json:"msg_type"`
	Content         string `json:"content"`
	KeyForSender    string `json:"key_for_sender"`
	KeyForRecipient string `json:"key_for_recipient"`
	ParentId        int64  `json:"parent_id"`
	Deleted         bool   `json:"deleted"`
	Edited          bool   `json:"edited"`
	SendAt          int64  `json:"send_at"`
}

type statusPayload struct {
	ConversationId int64  `json:"conversation_id"`
	MessageId      int64  `json:"message_id"`
	RecipientId    string `json:"recipient_id"`
	Status         int32  `json:"status"`
}

type readPayload struct {
	ConversationId int64  `json:"conversation_id"`
	UserId         string `json:"user_id"`
}

type reactionPayload struct {
	ConversationId int64  `json:"conversation_id"`
	MessageId      int64  `json:"message_id"`
	UserId         string `json:"user_id"`
	Emoji          string `json:"emoji"`
}

type deletePayload struct {
	ConversationId int64 `json:"conversation_id"`
	MessageId      int64 `json:"message_id"`
}

type conversationPayload struct {
	Id               int64  `json:"id"`
	PairKey          string `json:"pair_key"`
	ConversationType int32  `json:"conversation_type"`
	PeerUserId       string `json:"peer_user_id"`
	UnreadCount      int64  `json:"unread_count"`
	UpdatedAt        int64  `json:"updated_at"`
}

// Bridge routes events from one WebSocket connection into the store
type Bridge struct {
	conn    *websocket.Conn
	store   *cache.Store
	selfId  string
	writeMu sync.Mutex
	closed  sync.Once
	done    chan struct{}
}

// Dial opens the socket and returns a bridge ready to Run. Reconnect and
// backoff are the caller's concern.
func Dial(ctx context.Context, wsURL, token string, platformId int, store *cache.Store, selfId string) (*Bridge, error) {
	url := fmt.Sprintf("%s?token=%s&platform_id=%d", wsURL, token, platformId)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial event bridge: %w", err)
	}
	return New(conn, store, selfId), nil
}

// New wraps an established connection
func New(conn *websocket.Conn, store *cache.Store, selfId string) *Bridge {
	return &Bridge{
		conn:   conn,
		store:  store,
		selfId: selfId,
		done:   make(chan struct{}),
	}
}

// Run reads frames until the connection drops or ctx is cancelled. Blocking.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return nil
		default:
		}

		_, data, err := b.conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame EventFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.CtxDebug(ctx, "drop malformed frame: %v", err)
			continue
		}
		b.Dispatch(ctx, &frame)
	}
}

// JoinConversation subscribes to a conversation's room. Called when the
// conversation is opened.
func (b *Bridge) JoinConversation(conversationId int64) error {
	return b.send(clientFrame{Action: "join", RoomId: conversationRoom(conversationId)})
}

// LeaveConversation unsubscribes from a conversation's room
func (b *Bridge) LeaveConversation(conversationId int64) error {
	return b.send(clientFrame{Action: "leave", RoomId: conversationRoom(conversationId)})
}

// Close tears down the connection
func (b *Bridge) Close() error {
	var err error
	b.closed.Do(func() {
		close(b.done)
		err = b.conn.Close()
	})
	return err
}

func (b *Bridge) send(frame clientFrame) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteJSON(frame)
}

func conversationRoom(conversationId int64) string {
	return constant.ConversationRoomPrefix + strconv.FormatInt(conversationId, 10)
}

// Dispatch validates one event frame and routes it to the matching reducer.
// Unknown events and malformed payloads are dropped, never fatal.
func (b *Bridge) Dispatch(ctx context.Context, frame *EventFrame) {
	switch frame.Event {
	case constant.EventMessageNew:
		b.onMessageNew(ctx, frame.Payload)
	case constant.EventMessageEdited:
		b.onMessageEdited(ctx, frame.Payload)
	case constant.EventMessageDeleted:
		b.onMessageDeleted(ctx, frame.Payload, true)
	case constant.EventMessageUndeleted:
		b.onMessageDeleted(ctx, frame.Payload, false)
	case constant.EventMessageReaction:
		b.onReaction(ctx, frame.Payload)
	case constant.EventMessageStatus:
		b.onStatus(ctx, frame.Payload)
	case constant.EventConversationRead:
		b.onRead(ctx, frame.Payload)
	case constant.EventConversationCreated:
		b.onConversationCreated(ctx, frame.Payload)
	default:
		log.CtxDebug(ctx, "drop unknown event: %s", frame.Event)
	}
}

func (b *Bridge) onMessageNew(ctx context.Context, payload json.RawMessage) {
	var p messagePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ConversationId == 0 {
		log.CtxDebug(ctx, "drop bad message payload: %v", err)
		return
	}

	entry := cache.MessageEntry{
		Id:              p.Id,
		ConversationId:  p.ConversationId,
		ClientMsgId:     p.ClientMsgId,
		SenderId:        p.SenderId,
		MsgType:         p.MsgType,
		Content:         p.Content,
		KeyForSender:    p.KeyForSender,
		KeyForRecipient: p.KeyForRecipient,
		ParentId:        p.ParentId,
		Deleted:         p.Deleted,
		Edited:          p.Edited,
		SendAt:          p.SendAt,
	}

	inbound := p.SenderId != b.selfId
	b.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		// Duplicate detection must survive page unload: the message cache is
		// empty for unloaded conversations, but the last-message pointer is
		// written on every delivery and outlives the page.
		_, alreadySeen := s.FindMessage(p.ConversationId, p.Id)
		if !alreadySeen {
			if conv, ok := s.ConversationById(p.ConversationId); ok &&
				conv.LastMessage != nil && conv.LastMessage.MessageId == p.Id {
				alreadySeen = true
			}
		}

		s = cache.AppendMessage(s, entry)
		s = cache.SetLastMessage(s, p.ConversationId, cache.MessageSummary{
			MessageId: p.Id,
			SenderId:  p.SenderId,
			MsgType:   p.MsgType,
			SendAt:    p.SendAt,
		})
		// One increment per genuinely new inbound message; duplicate
		// deliveries and own echoes never bump the counter
		if inbound && !alreadySeen {
			s = cache.IncrementUnread(s, p.ConversationId)
		}
		return s
	})
}

func (b *Bridge) onMessageEdited(ctx context.Context, payload json.RawMessage) {
	var p messagePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Id == 0 {
		log.CtxDebug(ctx, "drop bad edit payload: %v", err)
		return
	}

	b.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.ApplyEdit(s, cache.EditEvent{
			ConversationId:  p.ConversationId,
			MessageId:       p.Id,
			Content:         p.Content,
			KeyForSender:    p.KeyForSender,
			KeyForRecipient: p.KeyForRecipient,
		})
	})
}

func (b *Bridge) onMessageDeleted(ctx context.Context, payload json.RawMessage, deleted bool) {
	var p deletePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.MessageId == 0 {
		log.CtxDebug(ctx, "drop bad delete payload: %v", err)
		return
	}

	b.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.SetDeleted(s, p.ConversationId, p.MessageId, deleted)
	})
}

func (b *Bridge) onReaction(ctx context.Context, payload json.RawMessage) {
	var p reactionPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.MessageId == 0 || p.UserId == "" {
		log.CtxDebug(ctx, "drop bad reaction payload: %v", err)
		return
	}

	b.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.UpsertReaction(s, p.ConversationId, p.MessageId, p.UserId, p.Emoji)
	})
}

func (b *Bridge) onStatus(ctx context.Context, payload json.RawMessage) {
	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.MessageId == 0 || p.RecipientId == "" {
		log.CtxDebug(ctx, "drop bad status payload: %v", err)
		return
	}

	b.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.ApplyStatus(s, p.ConversationId, p.MessageId, p.RecipientId, p.Status)
	})
}

func (b *Bridge) onRead(ctx context.Context, payload json.RawMessage) {
	var p readPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ConversationId == 0 {
		log.CtxDebug(ctx, "drop bad read payload: %v", err)
		return
	}

	// Only the viewer's own read receipt clears the local counter; the
	// peer's receipt affects message statuses, delivered separately as
	// status events.
	if p.UserId != b.selfId {
		return
	}
	b.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.ResetUnread(s, p.ConversationId)
	})
}

func (b *Bridge) onConversationCreated(ctx context.Context, payload json.RawMessage) {
	var p conversationPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Id == 0 {
		log.CtxDebug(ctx, "drop bad conversation payload: %v", err)
		return
	}

	b.store.Apply(func(s cache.Snapshot) cache.Snapshot {
		return cache.UpsertConversation(s, cache.ConversationEntry{
			Id:          p.Id,
			PairKey:     p.PairKey,
			PeerUserId:  p.PeerUserId,
			UnreadCount: p.UnreadCount,
			UpdatedAt:   p.UpdatedAt,
		})
	})
}
