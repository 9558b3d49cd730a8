package client

import "context"

// Transport is the persistence collaborator. Implementations submit
// operations to the service; the core never sees how. The server assigns
// authoritative message ids and timestamps.
type Transport interface {
	// CreateConversation opens the direct conversation with a peer.
	// Idempotent by pair key: repeated calls return the same conversation.
	CreateConversation(ctx context.Context, peerUserId string) (*ConversationInfo, error)

	// ListConversations pages the caller's conversations, last-message time
	// descending.
	ListConversations(ctx context.Context, page, pageSize int) ([]*ConversationInfo, error)

	// ListMessages pages one conversation's messages, send time ascending
	ListMessages(ctx context.Context, conversationId int64, page, pageSize int) ([]*MessageInfo, error)

	// SendMessage submits an encrypted envelope or attachment URL
	SendMessage(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error)

	// EditMessage replaces a message's content and wrapped keys
	EditMessage(ctx context.Context, req *EditMessageRequest) (*MessageInfo, error)

	DeleteMessage(ctx context.Context, messageId int64) error
	UndoDeleteMessage(ctx context.Context, messageId int64) error
	ReactMessage(ctx context.Context, messageId int64, emoji string) error

	// MarkDelivered acknowledges receipt of one message
	MarkDelivered(ctx context.Context, messageId int64) error

	// MarkRead acknowledges a whole conversation as read
	MarkRead(ctx context.Context, conversationId int64) error

	// GetUser fetches a profile; the key directory rides on it
	GetUser(ctx context.Context, userId string) (*UserInfo, error)
}

// Uploader is the attachment collaborator: raw media in, stable URL out.
// Media content is carried as that URL and is not run through the
// encryption envelope.
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}
