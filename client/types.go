// Package client is the messaging client core: the optimistic send
// pipeline, the cache store it feeds, and the collaborator contracts it
// talks to. Encryption happens here; the transport only ever carries
// ciphertext.
package client

// UserInfo is a user profile as returned by the service. PublicKey is the
// key directory entry used to compose messages to this user.
type UserInfo struct {
	Id        string `json:"id"`
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar"`
	PublicKey string `json:"public_key"`
}

// MessageSummary is the last-message pointer on a conversation
type MessageSummary struct {
	MessageId int64  `json:"message_id"`
	SenderId  string `json:"sender_id"`
	MsgType   int32  `json:"msg_type"`
	SendAt    int64  `json:"send_at"`
}

// ConversationInfo is a conversation as returned by the service
type ConversationInfo struct {
	Id               int64           `json:"id"`
	PairKey          string          `json:"pair_key"`
	ConversationType int32           `json:"conversation_type"`
	PeerUserId       string          `json:"peer_user_id"`
	UnreadCount      int64           `json:"unread_count"`
	LastMessage      *MessageSummary `json:"last_message,omitempty"`
	UpdatedAt        int64           `json:"updated_at"`
}

// MessageInfo is a message as returned by the service. Content is opaque:
// the encrypted envelope for text, an attachment URL for media.
type MessageInfo struct {
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

// SendMessageRequest is the submit shape for a new message
type SendMessageRequest struct {
	ConversationId  int64  `json:"conversation_id"`
	ClientMsgId     string `json:"client_msg_id"`
	MsgType         int32  `json:"msg_type"`
	Content         string `json:"content"`
	KeyForSender    string `json:"key_for_sender,omitempty"`
	KeyForRecipient string `json:"key_for_recipient,omitempty"`
	ParentId        int64  `json:"parent_id,omitempty"`
}

// EditMessageRequest is the submit shape for an edit
type EditMessageRequest struct {
	MessageId       int64  `json:"message_id"`
	Content         string `json:"content"`
	KeyForSender    string `json:"key_for_sender,omitempty"`
	KeyForRecipient string `json:"key_for_recipient,omitempty"`
}
