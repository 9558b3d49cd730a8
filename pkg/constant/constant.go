package constant

// Conversation types
const (
	ConversationTypeDirect = 1
	ConversationTypeGroup  = 2
)

// Message types
const (
	MsgTypeText  = 1
	MsgTypeImage = 2
	MsgTypeAudio = 3
	MsgTypeVideo = 4
)

// IsMediaType reports whether the message type carries an attachment URL
// instead of an encrypted envelope.
func IsMediaType(msgType int32) bool {
	return msgType == MsgTypeImage || msgType == MsgTypeAudio || msgType == MsgTypeVideo
}

// Delivery status ranks, strictly ordered. A status row never moves to a
// lower rank for the same (message, recipient).
const (
	StatusSent      = 1
	StatusDelivered = 2
	StatusSeen      = 3
)

// StatusName converts a status rank to its wire name
func StatusName(status int32) string {
	switch status {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusSeen:
		return "seen"
	default:
		return "unknown"
	}
}

// Online status
const (
	StatusOffline = 0
	StatusOnline  = 1
)

// Platform Ids
const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWindows = 3
	PlatformIdMacOS   = 4
	PlatformIdWeb     = 5
)

// Conversation Id prefixes
const (
	DirectConversationPrefix = "di_"
	GroupConversationPrefix  = "gr_"
)

// Real-time room prefixes. Every conversation has a room; every user has a
// personal room for cross-conversation notifications.
const (
	ConversationRoomPrefix = "conv:"
	UserRoomPrefix         = "user:"
)

// Real-time event names carried in EventFrame.Event
const (
	EventMessageNew          = "message.new"
	EventMessageEdited       = "message.edited"
	EventMessageDeleted      = "message.deleted"
	EventMessageUndeleted    = "message.undeleted"
	EventMessageReaction     = "message.reaction"
	EventMessageStatus       = "message.status"
	EventConversationRead    = "conversation.read"
	EventConversationCreated = "conversation.created"
)

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyToken       = "token:%s:%d"     // token:{user_id}:{platform_id}
	redisKeyOnline      = "online:%s"       // online:{user_id}
	redisKeyOnlineConns = "online:conns:%s" // online:conns:{user_id}
	redisKeyUser        = "user:%s"         // user:{user_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "vesper:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyToken() string       { return redisKeyPrefix + redisKeyToken }
func RedisKeyOnline() string      { return redisKeyPrefix + redisKeyOnline }
func RedisKeyOnlineConns() string { return redisKeyPrefix + redisKeyOnlineConns }
func RedisKeyUser() string        { return redisKeyPrefix + redisKeyUser }
