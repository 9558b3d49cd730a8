package entity

// Message represents a message. Content is opaque to the server: for text
// messages it is the base64 ciphertext produced by the client codec, with
// the symmetric content key wrapped twice in KeyForSender/KeyForRecipient.
// For media messages Content is the attachment URL and both key fields are
// empty.
type Message struct {
	Id              int64  `json:"id" gorm:"column:id;primaryKey"`
	ConversationId  int64  `json:"conversation_id" gorm:"column:conversation_id;index"`
	ClientMsgId     string `json:"client_msg_id" gorm:"column:client_msg_id;index"`
	SenderId        string `json:"sender_id" gorm:"column:sender_id"`
	MsgType         int32  `json:"msg_type" gorm:"column:msg_type"`
	Content         string `json:"content" gorm:"column:content;type:text"`
	KeyForSender    string `json:"key_for_sender" gorm:"column:key_for_sender;type:text"`
	KeyForRecipient string `json:"key_for_recipient" gorm:"column:key_for_recipient;type:text"`
	ParentId        int64  `json:"parent_id" gorm:"column:parent_id"`
	Deleted         bool   `json:"deleted" gorm:"column:deleted"`
	Edited          bool   `json:"edited" gorm:"column:edited"`
	SendAt          int64  `json:"send_at" gorm:"column:send_at"`
	CreatedAt       int64  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt       int64  `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// MessageInfo represents message info for API response
type MessageInfo struct {
	Id              int64  `json:"id"`
	ConversationId  int64  `json:"conversation_id"`
	ClientMsgId     string `json:"client_msg_id"`
	SenderId        string `json:"sender_id"`
	MsgType         int32  `json:"msg_type"`
	Content         string `json:"content"`
	KeyForSender    string `json:"key_for_sender,omitempty"`
	KeyForRecipient string `json:"key_for_recipient,omitempty"`
	ParentId        int64  `json:"parent_id,omitempty"`
	Deleted         bool   `json:"deleted"`
	Edited          bool   `json:"edited"`
	SendAt          int64  `json:"send_at"`
}

// ToMessageInfo converts Message to MessageInfo
func (m *Message) ToMessageInfo() *MessageInfo {
	return &MessageInfo{
		Id:              m.Id,
		ConversationId:  m.ConversationId,
		ClientMsgId:     m.ClientMsgId,
		SenderId:        m.SenderId,
		MsgType:         m.MsgType,
		Content:         m.Content,
		KeyForSender:    m.KeyForSender,
		KeyForRecipient: m.KeyForRecipient,
		ParentId:        m.ParentId,
		Deleted:         m.Deleted,
		Edited:          m.Edited,
		SendAt:          m.SendAt,
	}
}

// MessageReaction maps (message, user) to an emoji. A second reaction from
// the same user replaces the first.
type MessageReaction struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId int64  `json:"message_id" gorm:"column:message_id;uniqueIndex:idx_msg_user"`
	UserId    string `json:"user_id" gorm:"column:user_id;uniqueIndex:idx_msg_user"`
	Emoji     string `json:"emoji" gorm:"column:emoji"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for MessageReaction
func (MessageReaction) TableName() string {
	return "message_reactions"
}

// MessageStatus records delivery state per (message, recipient). Status is
// one of the constant.Status* ranks and only ever advances.
type MessageStatus struct {
	Id          int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId   int64  `json:"message_id" gorm:"column:message_id;uniqueIndex:idx_msg_recipient"`
	RecipientId string `json:"recipient_id" gorm:"column:recipient_id;uniqueIndex:idx_msg_recipient"`
	Status      int32  `json:"status" gorm:"column:status"`
	UpdatedAt   int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for MessageStatus
func (MessageStatus) TableName() string {
	return "message_statuses"
}
