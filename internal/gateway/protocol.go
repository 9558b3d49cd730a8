package gateway

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/mbeoliero/vesper/pkg/constant"
)

// EventFrame is the server-to-client push envelope. Event names the change,
// RoomId names the room it happened in, Payload is the event-specific body.
type EventFrame struct {
	Event   string          `json:"event"`
	RoomId  string          `json:"room_id"`
	Payload json.RawMessage `json:"payload"`
}

// ClientFrame is the client-to-server envelope. Clients only manage room
// subscriptions over the socket; all message operations go over HTTP.
type ClientFrame struct {
	Action string `json:"action"`
	RoomId string `json:"room_id"`
}

// Client frame actions
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
	ActionPing  = "ping"
)

// NewEventFrame marshals a payload into an event frame for a room
func NewEventFrame(event, roomId string, payload interface{}) (*EventFrame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &EventFrame{Event: event, RoomId: roomId, Payload: data}, nil
}

// ConversationRoom returns the room id for a conversation
func ConversationRoom(conversationId int64) string {
	return constant.ConversationRoomPrefix + strconv.FormatInt(conversationId, 10)
}

// UserRoom returns the personal room id for a user
func UserRoom(userId string) string {
	return constant.UserRoomPrefix + userId
}

// ParseConversationRoom extracts the conversation id from a room id.
// Returns 0 and false for user rooms or malformed ids.
func ParseConversationRoom(roomId string) (int64, bool) {
	if !strings.HasPrefix(roomId, constant.ConversationRoomPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(roomId[len(constant.ConversationRoomPrefix):], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Timeouts for the socket loops
const (
	// WriteWait is the time allowed to flush one frame to the peer
	WriteWait = 10 * time.Second

	// PongWait is the time allowed between pongs before the read side gives up
	PongWait = 30 * time.Second

	// PingPeriod is the interval between pings. Must be less than PongWait.
	PingPeriod = (PongWait * 9) / 10
)

// Handshake query parameter keys
const (
	QueryToken      = "token"
	QueryPlatformId = "platform_id"
)
