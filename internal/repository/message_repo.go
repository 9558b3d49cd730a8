package repository

import (
	"context"
	"errors"

	"github.com/mbeoliero/vesper/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB, rdb *redis.Client) *MessageRepo {
	return &MessageRepo{db: db, rdb: rdb}
}

// Create creates a new message. The caller assigns the id and send time.
func (r *MessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *entity.Message) error {
	now := entity.NowUnixMilli()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	return tx.WithContext(ctx).Create(msg).Error
}

// GetByClientMsgId gets message by sender_id and client_msg_id (for idempotency check)
func (r *MessageRepo) GetByClientMsgId(ctx context.Context, senderId, clientMsgId string) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND client_msg_id = ?", senderId, clientMsgId).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// GetById gets a message by id
func (r *MessageRepo) GetById(ctx context.Context, messageId int64) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).Where("id = ?", messageId).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// List pulls one page of a conversation's messages ordered by send time
// ascending. Soft-deleted rows are returned with their flag set; the client
// decides how to render them.
func (r *MessageRepo) List(ctx context.Context, conversationId int64, page, pageSize int) ([]*entity.Message, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	if page < 1 {
		page = 1
	}

	var messages []*entity.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("send_at ASC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// UpdateContent replaces ciphertext and wrapped keys on edit and sets the
// edited flag.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageId int64, content, keyForSender, keyForRecipient string) error {
	return r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("id = ?", messageId).
		Updates(map[string]interface{}{
			"content":           content,
			"key_for_sender":    keyForSender,
			"key_for_recipient": keyForRecipient,
			"edited":            true,
			"updated_at":        entity.NowUnixMilli(),
		}).Error
}

// SetDeleted toggles the soft-delete flag. Content is retained so the
// delete can be undone. Idempotent.
func (r *MessageRepo) SetDeleted(ctx context.Context, messageId int64, deleted bool) error {
	return r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("id = ?", messageId).
		Updates(map[string]interface{}{
			"deleted":    deleted,
			"updated_at": entity.NowUnixMilli(),
		}).Error
}

// UpsertReaction stores a user's reaction to a message, replacing any
// previous reaction from the same user.
func (r *MessageRepo) UpsertReaction(ctx context.Context, reaction *entity.MessageReaction) error {
	now := entity.NowUnixMilli()
	reaction.CreatedAt = now
	reaction.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"emoji":      reaction.Emoji,
			"updated_at": now,
		}),
	}).Create(reaction).Error
}

// GetReactions gets all reactions for a message
func (r *MessageRepo) GetReactions(ctx context.Context, messageId int64) ([]*entity.MessageReaction, error) {
	var reactions []*entity.MessageReaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageId).
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	return reactions, nil
}
