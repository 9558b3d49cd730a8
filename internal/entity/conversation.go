package entity

// Conversation represents a conversation. PairKey is unique, which makes
// create-by-pair-key idempotent: re-creating the same unordered user pair
// returns the existing row.
type Conversation struct {
	Id               int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	PairKey          string `json:"pair_key" gorm:"column:pair_key;uniqueIndex"`
	ConversationType int32  `json:"conversation_type" gorm:"column:conversation_type"`
	CreatorId        string `json:"creator_id" gorm:"column:creator_id"`
	LastMessageId    int64  `json:"last_message_id" gorm:"column:last_message_id"`
	LastMessageAt    int64  `json:"last_message_at" gorm:"column:last_message_at"`
	LastSenderId     string `json:"last_sender_id" gorm:"column:last_sender_id"`
	CreatedAt        int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt        int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// ConversationParticipant binds a user to a conversation. Exactly one row
// per (conversation, user). UnreadCount is incremented by the send path and
// reset by the read-receipt path; nothing else touches it.
type ConversationParticipant struct {
	Id             int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId int64  `json:"conversation_id" gorm:"column:conversation_id;uniqueIndex:idx_conv_user"`
	UserId         string `json:"user_id" gorm:"column:user_id;uniqueIndex:idx_conv_user"`
	UnreadCount    int64  `json:"unread_count" gorm:"column:unread_count"`
	ArchivedAt     int64  `json:"archived_at" gorm:"column:archived_at"`
	LeftAt         int64  `json:"left_at" gorm:"column:left_at"`
	CreatedAt      int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt      int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for ConversationParticipant
func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

// IsActive reports whether the participant is still in the conversation
func (p *ConversationParticipant) IsActive() bool {
	return p.LeftAt == 0
}

// ConversationInfo represents conversation info for API response
type ConversationInfo struct {
	Id               int64           `json:"id"`
	PairKey          string          `json:"pair_key"`
	ConversationType int32           `json:"conversation_type"`
	PeerUserId       string          `json:"peer_user_id,omitempty"`
	UnreadCount      int64           `json:"unread_count"`
	LastMessage      *MessageSummary `json:"last_message,omitempty"`
	UpdatedAt        int64           `json:"updated_at"`
}

// MessageSummary is the last-message pointer carried on a conversation
type MessageSummary struct {
	MessageId int64  `json:"message_id"`
	SenderId  string `json:"sender_id"`
	MsgType   int32  `json:"msg_type"`
	SendAt    int64  `json:"send_at"`
}

// ToConversationInfo converts a Conversation plus the viewer's participant
// row into the API shape. viewerId is used to derive the peer of a direct
// conversation from the pair key.
func (c *Conversation) ToConversationInfo(viewerId string, unread int64) *ConversationInfo {
	info := &ConversationInfo{
		Id:               c.Id,
		PairKey:          c.PairKey,
		ConversationType: c.ConversationType,
		UnreadCount:      unread,
		UpdatedAt:        c.UpdatedAt,
	}
	if a, b, ok := DirectPairKeyPeers(c.PairKey); ok {
		if a == viewerId {
			info.PeerUserId = b
		} else {
			info.PeerUserId = a
		}
	}
	if c.LastMessageId != 0 {
		info.LastMessage = &MessageSummary{
			MessageId: c.LastMessageId,
			SenderId:  c.LastSenderId,
			SendAt:    c.LastMessageAt,
		}
	}
	return info
}
