package repository

import (
	"context"
	"errors"

	"github.com/mbeoliero/vesper/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB, rdb *redis.Client) *ConversationRepo {
	return &ConversationRepo{db: db, rdb: rdb}
}

// CreateIdempotent creates a conversation keyed by pair key. On conflict it
// returns the existing row instead of erroring, so creating the same
// unordered user pair twice (in either order) yields one conversation.
func (r *ConversationRepo) CreateIdempotent(ctx context.Context, tx *gorm.DB, conv *entity.Conversation, participantIds []string) (*entity.Conversation, error) {
	now := entity.NowUnixMilli()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pair_key"}},
		DoNothing: true,
	}).Create(conv).Error; err != nil {
		return nil, err
	}

	// DoNothing leaves conv.Id zero on conflict; fetch the winning row either way
	var existing entity.Conversation
	if err := tx.WithContext(ctx).Where("pair_key = ?", conv.PairKey).First(&existing).Error; err != nil {
		return nil, err
	}

	for _, userId := range participantIds {
		p := &entity.ConversationParticipant{
			ConversationId: existing.Id,
			UserId:         userId,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"left_at":    0, // rejoining revives a soft-left row
				"updated_at": now,
			}),
		}).Create(p).Error; err != nil {
			return nil, err
		}
	}

	return &existing, nil
}

// GetById gets a conversation by id
func (r *ConversationRepo) GetById(ctx context.Context, conversationId int64) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", conversationId).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// GetByPairKey gets a conversation by its canonical pair key
func (r *ConversationRepo) GetByPairKey(ctx context.Context, pairKey string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("pair_key = ?", pairKey).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// GetParticipant gets the participant row for (conversation, user)
func (r *ConversationRepo) GetParticipant(ctx context.Context, conversationId int64, userId string) (*entity.ConversationParticipant, error) {
	var p entity.ConversationParticipant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetParticipants gets all participant rows for a conversation
func (r *ConversationRepo) GetParticipants(ctx context.Context, conversationId int64) ([]*entity.ConversationParticipant, error) {
	var ps []*entity.ConversationParticipant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Find(&ps).Error
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// ListByUser lists a user's conversations ordered by last-message time
// descending, with the viewer's unread count joined in.
func (r *ConversationRepo) ListByUser(ctx context.Context, userId string, page, pageSize int) ([]*entity.Conversation, []int64, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	if page < 1 {
		page = 1
	}

	type convWithUnread struct {
		entity.Conversation
		UnreadCount int64
	}

	var rows []*convWithUnread
	err := r.db.WithContext(ctx).
		Table("conversations c").
		Select("c.*, cp.unread_count").
		Joins("JOIN conversation_participants cp ON cp.conversation_id = c.id").
		Where("cp.user_id = ? AND cp.left_at = 0", userId).
		Order("c.last_message_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, nil, err
	}

	convs := make([]*entity.Conversation, 0, len(rows))
	unreads := make([]int64, 0, len(rows))
	for _, row := range rows {
		conv := row.Conversation
		convs = append(convs, &conv)
		unreads = append(unreads, row.UnreadCount)
	}
	return convs, unreads, nil
}

// UpdateLastMessage overwrites the conversation's last-message pointer.
// Last-write-wins by call order.
func (r *ConversationRepo) UpdateLastMessage(ctx context.Context, tx *gorm.DB, conversationId int64, msg *entity.Message) error {
	return tx.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ?", conversationId).
		Updates(map[string]interface{}{
			"last_message_id": msg.Id,
			"last_message_at": msg.SendAt,
			"last_sender_id":  msg.SenderId,
			"updated_at":      entity.NowUnixMilli(),
		}).Error
}

// IncrementUnread increments the unread counter for every active participant
// except the sender. Applied exactly once per new inbound message.
func (r *ConversationRepo) IncrementUnread(ctx context.Context, tx *gorm.DB, conversationId int64, senderId string) error {
	return tx.WithContext(ctx).
		Model(&entity.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id <> ? AND left_at = 0", conversationId, senderId).
		Updates(map[string]interface{}{
			"unread_count": gorm.Expr("unread_count + 1"),
			"updated_at":   entity.NowUnixMilli(),
		}).Error
}

// ResetUnread zeroes the unread counter for one participant. Idempotent.
func (r *ConversationRepo) ResetUnread(ctx context.Context, conversationId int64, userId string) error {
	return r.db.WithContext(ctx).
		Model(&entity.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		Updates(map[string]interface{}{
			"unread_count": 0,
			"updated_at":   entity.NowUnixMilli(),
		}).Error
}

// Leave soft-leaves a conversation: the participant row is stamped, never
// deleted, and the conversation itself survives for the remaining party.
func (r *ConversationRepo) Leave(ctx context.Context, conversationId int64, userId string) error {
	now := entity.NowUnixMilli()
	return r.db.WithContext(ctx).
		Model(&entity.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ? AND left_at = 0", conversationId, userId).
		Updates(map[string]interface{}{
			"left_at":    now,
			"updated_at": now,
		}).Error
}
