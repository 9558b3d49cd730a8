package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/vesper/internal/entity"
	"github.com/mbeoliero/vesper/internal/repository"
	"github.com/mbeoliero/vesper/pkg/constant"
	"github.com/mbeoliero/vesper/pkg/errcode"
	"gorm.io/gorm"
)

// ConversationService handles conversation-related business logic
type ConversationService struct {
	convRepo   *repository.ConversationRepo
	statusRepo *repository.StatusRepo
	userRepo   *repository.UserRepo
	repos      *repository.Repositories
	pusher     EventPusher
}

// NewConversationService creates a new ConversationService
func NewConversationService(repos *repository.Repositories) *ConversationService {
	return &ConversationService{
		convRepo:   repos.Conversation,
		statusRepo: repos.Status,
		userRepo:   repos.User,
		repos:      repos,
	}
}

// SetPusher sets the event pusher
func (s *ConversationService) SetPusher(pusher EventPusher) {
	s.pusher = pusher
}

// CreateConversationRequest represents create conversation request
type CreateConversationRequest struct {
	PeerUserId string `json:"peer_user_id"`
}

// CreateDirect opens the direct conversation between the caller and a peer.
// Idempotent: both parties, in either order, land on the same row.
func (s *ConversationService) CreateDirect(ctx context.Context, userId string, req *CreateConversationRequest) (*entity.ConversationInfo, error) {
	if req.PeerUserId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if req.PeerUserId == userId {
		return nil, errcode.ErrSelfConversation
	}

	// Peer must exist
	if _, err := s.userRepo.GetById(ctx, req.PeerUserId); err != nil {
		return nil, errcode.ErrUserNotFound
	}

	pairKey := entity.GenDirectPairKey(userId, req.PeerUserId)

	existing, err := s.convRepo.GetByPairKey(ctx, pairKey)
	if err != nil {
		log.CtxError(ctx, "get conversation by pair key failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	created := existing == nil

	var conv *entity.Conversation
	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		var txErr error
		conv, txErr = s.convRepo.CreateIdempotent(ctx, tx, &entity.Conversation{
			PairKey:          pairKey,
			ConversationType: constant.ConversationTypeDirect,
			CreatorId:        userId,
		}, []string{userId, req.PeerUserId})
		return txErr
	})
	if err != nil {
		log.CtxError(ctx, "create conversation failed: user_id=%s, peer=%s, error=%v", userId, req.PeerUserId, err)
		return nil, errcode.ErrInternalServer
	}

	// Notify the peer on their personal room only when the row is new
	if created && s.pusher != nil {
		s.pusher.PushToUsers(ctx, []string{req.PeerUserId}, constant.EventConversationCreated,
			conv.ToConversationInfo(req.PeerUserId, 0))
	}

	log.CtxInfo(ctx, "direct conversation opened: pair_key=%s, conversation_id=%d", pairKey, conv.Id)
	return conv.ToConversationInfo(userId, 0), nil
}

// List lists the caller's conversations ordered by last-message time
// descending.
func (s *ConversationService) List(ctx context.Context, userId string, page, pageSize int) ([]*entity.ConversationInfo, error) {
	convs, unreads, err := s.convRepo.ListByUser(ctx, userId, page, pageSize)
	if err != nil {
		log.CtxError(ctx, "list conversations failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}

	result := make([]*entity.ConversationInfo, 0, len(convs))
	for i, conv := range convs {
		result = append(result, conv.ToConversationInfo(userId, unreads[i]))
	}
	return result, nil
}

// Get gets one conversation the caller participates in
func (s *ConversationService) Get(ctx context.Context, userId string, conversationId int64) (*entity.ConversationInfo, error) {
	conv, p, err := s.requireParticipant(ctx, userId, conversationId)
	if err != nil {
		return nil, err
	}
	return conv.ToConversationInfo(userId, p.UnreadCount), nil
}

// MarkRead acknowledges the conversation as read: the caller's unread
// counter drops to zero and every message they had not seen advances to
// seen, broadcast to the conversation room.
func (s *ConversationService) MarkRead(ctx context.Context, userId string, conversationId int64) error {
	if _, _, err := s.requireParticipant(ctx, userId, conversationId); err != nil {
		return err
	}

	if err := s.convRepo.ResetUnread(ctx, conversationId, userId); err != nil {
		log.CtxError(ctx, "reset unread failed: %v", err)
		return errcode.ErrInternalServer
	}

	unseen, err := s.statusRepo.ListUnseenMessageIds(ctx, conversationId, userId)
	if err != nil {
		log.CtxError(ctx, "list unseen messages failed: %v", err)
		return errcode.ErrInternalServer
	}

	stored, err := s.statusRepo.AdvanceForMessages(ctx, unseen, userId, constant.StatusSeen)
	if err != nil {
		log.CtxError(ctx, "advance seen statuses failed: %v", err)
		return errcode.ErrInternalServer
	}

	if s.pusher != nil {
		s.pusher.PushToConversation(ctx, conversationId, constant.EventConversationRead, &ReadPayload{
			ConversationId: conversationId,
			UserId:         userId,
		})
		for _, st := range stored {
			s.pusher.PushToConversation(ctx, conversationId, constant.EventMessageStatus, &StatusPayload{
				ConversationId: conversationId,
				MessageId:      st.MessageId,
				RecipientId:    st.RecipientId,
				Status:         st.Status,
			})
		}
	}

	log.CtxInfo(ctx, "conversation marked read: conversation_id=%d, user_id=%s, seen=%d", conversationId, userId, len(stored))
	return nil
}

// Leave soft-leaves a conversation. The row survives for the other
// participants; the leaver's participant record is stamped.
func (s *ConversationService) Leave(ctx context.Context, userId string, conversationId int64) error {
	if _, _, err := s.requireParticipant(ctx, userId, conversationId); err != nil {
		return err
	}

	if err := s.convRepo.Leave(ctx, conversationId, userId); err != nil {
		log.CtxError(ctx, "leave conversation failed: %v", err)
		return errcode.ErrInternalServer
	}

	log.CtxInfo(ctx, "conversation left: conversation_id=%d, user_id=%s", conversationId, userId)
	return nil
}

// requireParticipant loads the conversation and verifies the caller is an
// active participant. Every conversation-scoped operation goes through this
// check; a non-participant gets a rejection with no partial state change.
func (s *ConversationService) requireParticipant(ctx context.Context, userId string, conversationId int64) (*entity.Conversation, *entity.ConversationParticipant, error) {
	conv, err := s.convRepo.GetById(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: %v", err)
		return nil, nil, errcode.ErrInternalServer
	}
	if conv == nil {
		return nil, nil, errcode.ErrConvNotFound
	}

	p, err := s.convRepo.GetParticipant(ctx, conversationId, userId)
	if err != nil {
		log.CtxError(ctx, "get participant failed: %v", err)
		return nil, nil, errcode.ErrInternalServer
	}
	if p == nil {
		return nil, nil, errcode.ErrNotParticipant
	}
	if !p.IsActive() {
		return nil, nil, errcode.ErrParticipantLeft
	}

	return conv, p, nil
}
