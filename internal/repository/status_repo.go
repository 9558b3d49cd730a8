package repository

import (
	"context"

	"github.com/mbeoliero/vesper/internal/entity"
	"github.com/mbeoliero/vesper/pkg/constant"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusRepo is the repository for per-recipient delivery status
type StatusRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewStatusRepo creates a new StatusRepo
func NewStatusRepo(db *gorm.DB, rdb *redis.Client) *StatusRepo {
	return &StatusRepo{db: db, rdb: rdb}
}

// Advance upserts the status row for (message, recipient). The GREATEST
// guard keeps status forward-only even when receipts arrive out of order:
// a late "delivered" never overwrites "seen". Returns the stored row.
func (r *StatusRepo) Advance(ctx context.Context, messageId int64, recipientId string, status int32) (*entity.MessageStatus, error) {
	row := &entity.MessageStatus{
		MessageId:   messageId,
		RecipientId: recipientId,
		Status:      status,
		UpdatedAt:   entity.NowUnixMilli(),
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "message_id"}, {Name: "recipient_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     gorm.Expr("GREATEST(status, ?)", status),
			"updated_at": row.UpdatedAt,
		}),
	}).Create(row).Error
	if err != nil {
		return nil, err
	}

	// Re-read so the caller broadcasts the winning rank, not the input
	var stored entity.MessageStatus
	err = r.db.WithContext(ctx).
		Where("message_id = ? AND recipient_id = ?", messageId, recipientId).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// AdvanceForMessages advances the status of many messages at once for one
// recipient (marking a whole conversation delivered or seen).
func (r *StatusRepo) AdvanceForMessages(ctx context.Context, messageIds []int64, recipientId string, status int32) ([]*entity.MessageStatus, error) {
	result := make([]*entity.MessageStatus, 0, len(messageIds))
	for _, id := range messageIds {
		stored, err := r.Advance(ctx, id, recipientId, status)
		if err != nil {
			return nil, err
		}
		result = append(result, stored)
	}
	return result, nil
}

// GetByMessage gets all status rows for a message
func (r *StatusRepo) GetByMessage(ctx context.Context, messageId int64) ([]*entity.MessageStatus, error) {
	var rows []*entity.MessageStatus
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageId).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListUnseenMessageIds lists ids of messages in a conversation that the
// recipient has not yet seen, used by the read-receipt path.
func (r *StatusRepo) ListUnseenMessageIds(ctx context.Context, conversationId int64, recipientId string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Table("messages m").
		Select("m.id").
		Joins("LEFT JOIN message_statuses ms ON ms.message_id = m.id AND ms.recipient_id = ?", recipientId).
		Where("m.conversation_id = ? AND m.sender_id <> ? AND (ms.status IS NULL OR ms.status < ?)",
			conversationId, recipientId, constant.StatusSeen).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
