package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/vesper/internal/entity"
	"github.com/mbeoliero/vesper/internal/repository"
	"github.com/mbeoliero/vesper/pkg/constant"
	"github.com/mbeoliero/vesper/pkg/errcode"
	"github.com/mbeoliero/vesper/pkg/idgen"
	"gorm.io/gorm"
)

// EventPusher broadcasts events to real-time rooms: a per-conversation room
// for message traffic and a per-user room for cross-conversation
// notifications.
type EventPusher interface {
	PushToConversation(ctx context.Context, conversationId int64, event string, payload interface{})
	PushToUsers(ctx context.Context, userIds []string, event string, payload interface{})
}

// ReadPayload is the payload for conversation.read events
type ReadPayload struct {
	ConversationId int64  `json:"conversation_id"`
	UserId         string `json:"user_id"`
}

// StatusPayload is the payload for message.status events
type StatusPayload struct {
	ConversationId int64  `json:"conversation_id"`
	MessageId      int64  `json:"message_id"`
	RecipientId    string `json:"recipient_id"`
	Status         int32  `json:"status"`
}

// ReactionPayload is the payload for message.reaction events
type ReactionPayload struct {
	ConversationId int64  `json:"conversation_id"`
	MessageId      int64  `json:"message_id"`
	UserId         string `json:"user_id"`
	Emoji          string `json:"emoji"`
}

// DeletePayload is the payload for message.deleted / message.undeleted events
type DeletePayload struct {
	ConversationId int64 `json:"conversation_id"`
	MessageId      int64 `json:"message_id"`
}

// MessageService handles message-related business logic
type MessageService struct {
	msgRepo    *repository.MessageRepo
	convRepo   *repository.ConversationRepo
	statusRepo *repository.StatusRepo
	repos      *repository.Repositories
	pusher     EventPusher
}

// NewMessageService creates a new MessageService
func NewMessageService(repos *repository.Repositories) *MessageService {
	return &MessageService{
		msgRepo:    repos.Message,
		convRepo:   repos.Conversation,
		statusRepo: repos.Status,
		repos:      repos,
	}
}

// SetPusher sets the event pusher
func (s *MessageService) SetPusher(pusher EventPusher) {
	s.pusher = pusher
}

// SendMessageRequest represents send message request. Content is opaque:
// ciphertext plus two wrapped keys for text, a bare attachment URL for
// media types.
type SendMessageRequest struct {
	ConversationId  int64  `json:"conversation_id"`
	ClientMsgId     string `json:"client_msg_id"`
	MsgType         int32  `json:"msg_type"`
	Content         string `json:"content"`
	KeyForSender    string `json:"key_for_sender,omitempty"`
	KeyForRecipient string `json:"key_for_recipient,omitempty"`
	ParentId        int64  `json:"parent_id,omitempty"`
}

// Send persists a message with a server-assigned id and timestamp, bumps
// unread counters and the last-message pointer, and broadcasts to the
// conversation room.
func (s *MessageService) Send(ctx context.Context, senderId string, req *SendMessageRequest) (*entity.Message, error) {
	if req.ConversationId == 0 || req.ClientMsgId == "" || req.Content == "" {
		return nil, errcode.ErrInvalidParam
	}
	if req.MsgType == constant.MsgTypeText && (req.KeyForSender == "" || req.KeyForRecipient == "") {
		return nil, errcode.ErrInvalidParam
	}

	if err := s.requireParticipant(ctx, senderId, req.ConversationId); err != nil {
		return nil, err
	}

	// Idempotency: a retried client_msg_id returns the original row
	existingMsg, err := s.msgRepo.GetByClientMsgId(ctx, senderId, req.ClientMsgId)
	if err != nil {
		log.CtxError(ctx, "check idempotency failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	if existingMsg != nil {
		log.CtxDebug(ctx, "duplicate message: client_msg_id=%s", req.ClientMsgId)
		return existingMsg, nil
	}

	msgId, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "allocate message id failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	msg := &entity.Message{
		Id:              msgId,
		ConversationId:  req.ConversationId,
		ClientMsgId:     req.ClientMsgId,
		SenderId:        senderId,
		MsgType:         req.MsgType,
		Content:         req.Content,
		KeyForSender:    req.KeyForSender,
		KeyForRecipient: req.KeyForRecipient,
		ParentId:        req.ParentId,
		SendAt:          entity.NowUnixMilli(),
	}

	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.msgRepo.Create(ctx, tx, msg); err != nil {
			return err
		}
		if err := s.convRepo.UpdateLastMessage(ctx, tx, req.ConversationId, msg); err != nil {
			return err
		}
		return s.convRepo.IncrementUnread(ctx, tx, req.ConversationId, senderId)
	})
	if err != nil {
		if e, ok := err.(*errcode.Error); ok {
			return nil, e
		}
		log.CtxError(ctx, "send message failed: %v", err)
		return nil, errcode.ErrSendFailed
	}

	if s.pusher != nil {
		s.pusher.PushToConversation(ctx, req.ConversationId, constant.EventMessageNew, msg.ToMessageInfo())
	}

	log.CtxInfo(ctx, "message sent: sender_id=%s, conversation_id=%d, message_id=%d", senderId, req.ConversationId, msg.Id)
	return msg, nil
}

// EditMessageRequest represents edit message request. The client re-runs
// the codec, so edits carry fresh ciphertext and wrapped keys.
type EditMessageRequest struct {
	MessageId       int64  `json:"message_id"`
	Content         string `json:"content"`
	KeyForSender    string `json:"key_for_sender,omitempty"`
	KeyForRecipient string `json:"key_for_recipient,omitempty"`
}

// Edit replaces a message's content and wrapped keys and sets the edited flag
func (s *MessageService) Edit(ctx context.Context, userId string, req *EditMessageRequest) (*entity.Message, error) {
	if req.MessageId == 0 || req.Content == "" {
		return nil, errcode.ErrInvalidParam
	}

	msg, err := s.requireOwnMessage(ctx, userId, req.MessageId)
	if err != nil {
		return nil, err
	}

	if err := s.msgRepo.UpdateContent(ctx, req.MessageId, req.Content, req.KeyForSender, req.KeyForRecipient); err != nil {
		log.CtxError(ctx, "edit message failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	msg.Content = req.Content
	msg.KeyForSender = req.KeyForSender
	msg.KeyForRecipient = req.KeyForRecipient
	msg.Edited = true

	if s.pusher != nil {
		s.pusher.PushToConversation(ctx, msg.ConversationId, constant.EventMessageEdited, msg.ToMessageInfo())
	}

	log.CtxInfo(ctx, "message edited: user_id=%s, message_id=%d", userId, req.MessageId)
	return msg, nil
}

// Delete soft-deletes a message. Content is retained for the undo window.
func (s *MessageService) Delete(ctx context.Context, userId string, messageId int64) error {
	return s.setDeleted(ctx, userId, messageId, true, constant.EventMessageDeleted)
}

// UndoDelete clears the soft-delete flag
func (s *MessageService) UndoDelete(ctx context.Context, userId string, messageId int64) error {
	return s.setDeleted(ctx, userId, messageId, false, constant.EventMessageUndeleted)
}

func (s *MessageService) setDeleted(ctx context.Context, userId string, messageId int64, deleted bool, event string) error {
	msg, err := s.requireOwnMessage(ctx, userId, messageId)
	if err != nil {
		return err
	}

	if err := s.msgRepo.SetDeleted(ctx, messageId, deleted); err != nil {
		log.CtxError(ctx, "set deleted failed: message_id=%d, error=%v", messageId, err)
		return errcode.ErrInternalServer
	}

	if s.pusher != nil {
		s.pusher.PushToConversation(ctx, msg.ConversationId, event, &DeletePayload{
			ConversationId: msg.ConversationId,
			MessageId:      messageId,
		})
	}

	log.CtxInfo(ctx, "message delete flag set: message_id=%d, deleted=%v", messageId, deleted)
	return nil
}

// ReactRequest represents a reaction upsert
type ReactRequest struct {
	MessageId int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// React upserts the caller's reaction to a message. A second reaction from
// the same user replaces the first.
func (s *MessageService) React(ctx context.Context, userId string, req *ReactRequest) error {
	if req.MessageId == 0 || req.Emoji == "" {
		return errcode.ErrInvalidParam
	}

	msg, err := s.msgRepo.GetById(ctx, req.MessageId)
	if err != nil {
		log.CtxError(ctx, "get message failed: %v", err)
		return errcode.ErrInternalServer
	}
	if msg == nil {
		return errcode.ErrMessageNotFound
	}
	if err := s.requireParticipant(ctx, userId, msg.ConversationId); err != nil {
		return err
	}

	if err := s.msgRepo.UpsertReaction(ctx, &entity.MessageReaction{
		MessageId: req.MessageId,
		UserId:    userId,
		Emoji:     req.Emoji,
	}); err != nil {
		log.CtxError(ctx, "upsert reaction failed: %v", err)
		return errcode.ErrInternalServer
	}

	if s.pusher != nil {
		s.pusher.PushToConversation(ctx, msg.ConversationId, constant.EventMessageReaction, &ReactionPayload{
			ConversationId: msg.ConversationId,
			MessageId:      req.MessageId,
			UserId:         userId,
			Emoji:          req.Emoji,
		})
	}

	return nil
}

// MarkDelivered records a delivered receipt for one message and recipient.
// Forward-only: a late delivered never regresses a seen row, and the
// broadcast carries the winning rank.
func (s *MessageService) MarkDelivered(ctx context.Context, userId string, messageId int64) error {
	msg, err := s.msgRepo.GetById(ctx, messageId)
	if err != nil {
		log.CtxError(ctx, "get message failed: %v", err)
		return errcode.ErrInternalServer
	}
	if msg == nil {
		return errcode.ErrMessageNotFound
	}
	if err := s.requireParticipant(ctx, userId, msg.ConversationId); err != nil {
		return err
	}

	stored, err := s.statusRepo.Advance(ctx, messageId, userId, constant.StatusDelivered)
	if err != nil {
		log.CtxError(ctx, "advance status failed: %v", err)
		return errcode.ErrInternalServer
	}

	if s.pusher != nil {
		s.pusher.PushToConversation(ctx, msg.ConversationId, constant.EventMessageStatus, &StatusPayload{
			ConversationId: msg.ConversationId,
			MessageId:      messageId,
			RecipientId:    userId,
			Status:         stored.Status,
		})
	}

	return nil
}

// List pulls one page of messages, send time ascending
func (s *MessageService) List(ctx context.Context, userId string, conversationId int64, page, pageSize int) ([]*entity.Message, error) {
	if err := s.requireParticipant(ctx, userId, conversationId); err != nil {
		return nil, err
	}

	messages, err := s.msgRepo.List(ctx, conversationId, page, pageSize)
	if err != nil {
		log.CtxError(ctx, "list messages failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	return messages, nil
}

// requireParticipant verifies the caller is an active participant of the
// conversation
func (s *MessageService) requireParticipant(ctx context.Context, userId string, conversationId int64) error {
	conv, err := s.convRepo.GetById(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: %v", err)
		return errcode.ErrInternalServer
	}
	if conv == nil {
		return errcode.ErrConvNotFound
	}

	p, err := s.convRepo.GetParticipant(ctx, conversationId, userId)
	if err != nil {
		log.CtxError(ctx, "get participant failed: %v", err)
		return errcode.ErrInternalServer
	}
	if p == nil {
		return errcode.ErrNotParticipant
	}
	if !p.IsActive() {
		return errcode.ErrParticipantLeft
	}

	return nil
}

// requireOwnMessage loads a message and verifies the caller sent it
func (s *MessageService) requireOwnMessage(ctx context.Context, userId string, messageId int64) (*entity.Message, error) {
	msg, err := s.msgRepo.GetById(ctx, messageId)
	if err != nil {
		log.CtxError(ctx, "get message failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	if msg == nil {
		return nil, errcode.ErrMessageNotFound
	}
	if msg.SenderId != userId {
		return nil, errcode.ErrNotSender
	}
	return msg, nil
}
