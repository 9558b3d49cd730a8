package gateway

import (
	"context"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/vesper/internal/config"
	"github.com/mbeoliero/vesper/internal/repository"
	"github.com/redis/go-redis/v9"
)

// WsServer is the real-time event bridge. Services hand it events through
// the EventPusher interface; it fans them out to room members over a pool
// of push workers.
type WsServer struct {
	cfg            *config.Config
	roomMap        *RoomMap
	convRepo       *repository.ConversationRepo
	registerChan   chan *Client
	unregisterChan chan *Client
	pushChan       chan *pushTask
	onlineUserNum  atomic.Int64
	onlineConnNum  atomic.Int64
	maxConnNum     int64
}

// pushTask is one event bound for a set of rooms
type pushTask struct {
	roomIds []string
	frame   *EventFrame
}

// NewWsServer creates the bridge server
func NewWsServer(cfg *config.Config, rdb *redis.Client, convRepo *repository.ConversationRepo) *WsServer {
	return &WsServer{
		cfg:            cfg,
		roomMap:        NewRoomMap(rdb),
		convRepo:       convRepo,
		registerChan:   make(chan *Client, 1000),
		unregisterChan: make(chan *Client, 1000),
		pushChan:       make(chan *pushTask, cfg.WebSocket.PushChannelSize),
		maxConnNum:     cfg.WebSocket.MaxConnNum,
	}
}

// Run starts the event loop and the push workers
func (s *WsServer) Run(ctx context.Context) {
	go s.eventLoop(ctx)

	workerNum := s.cfg.WebSocket.PushWorkerNum
	if workerNum <= 0 {
		workerNum = 10
	}
	for i := 0; i < workerNum; i++ {
		go s.pushLoop(ctx)
	}
	log.Info("started %d push workers", workerNum)
}

// eventLoop serializes client registration and unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.registerChan:
			s.registerClient(ctx, client)
		case client := <-s.unregisterChan:
			s.unregisterClient(ctx, client)
		}
	}
}

// pushLoop drains the push channel and delivers frames to room members
func (s *WsServer) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.pushChan:
			s.processPushTask(ctx, task)
		}
	}
}

func (s *WsServer) processPushTask(ctx context.Context, task *pushTask) {
	for _, roomId := range task.roomIds {
		frame := *task.frame
		frame.RoomId = roomId
		for _, client := range s.roomMap.Members(roomId) {
			if err := client.SendFrame(&frame); err != nil {
				log.CtxDebug(ctx, "push frame failed: room_id=%s, conn_id=%s, error=%v", roomId, client.ConnId, err)
			}
		}
	}
}

// registerClient puts a new client into its personal room
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	userRoom := UserRoom(client.UserId)
	wasOnline := len(s.roomMap.Members(userRoom)) > 0

	s.roomMap.Join(userRoom, client)
	s.roomMap.SetOnline(ctx, client.UserId)
	s.onlineConnNum.Add(1)
	if !wasOnline {
		s.onlineUserNum.Add(1)
	}

	log.CtxInfo(ctx, "client registered: user_id=%s, platform_id=%d, conn_id=%s, online_users=%d, online_conns=%d",
		client.UserId, client.PlatformId, client.ConnId, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	userOffline := s.roomMap.Drop(ctx, client)
	s.onlineConnNum.Add(-1)
	if userOffline {
		s.onlineUserNum.Add(-1)
	}

	log.CtxInfo(ctx, "client unregistered: user_id=%s, conn_id=%s, user_offline=%v, online_users=%d, online_conns=%d",
		client.UserId, client.ConnId, userOffline, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// UnregisterClient queues a client for unregistration
func (s *WsServer) UnregisterClient(client *Client) {
	select {
	case s.unregisterChan <- client:
	default:
		log.Warn("unregister channel full: user_id=%s", client.UserId)
	}
}

// JoinRoom subscribes a client to a conversation room after verifying the
// user is an active participant. User rooms are never joined on request;
// registration handles them.
func (s *WsServer) JoinRoom(ctx context.Context, client *Client, roomId string) {
	conversationId, ok := ParseConversationRoom(roomId)
	if !ok {
		log.CtxDebug(ctx, "join rejected, bad room: user_id=%s, room_id=%s", client.UserId, roomId)
		return
	}

	p, err := s.convRepo.GetParticipant(ctx, conversationId, client.UserId)
	if err != nil {
		log.CtxWarn(ctx, "join check failed: user_id=%s, room_id=%s, error=%v", client.UserId, roomId, err)
		return
	}
	if p == nil || !p.IsActive() {
		log.CtxDebug(ctx, "join rejected, not a participant: user_id=%s, room_id=%s", client.UserId, roomId)
		return
	}

	s.roomMap.Join(roomId, client)
	log.CtxDebug(ctx, "room joined: user_id=%s, room_id=%s", client.UserId, roomId)
}

// LeaveRoom unsubscribes a client from a conversation room
func (s *WsServer) LeaveRoom(ctx context.Context, client *Client, roomId string) {
	if _, ok := ParseConversationRoom(roomId); !ok {
		return
	}
	s.roomMap.Leave(roomId, client)
	log.CtxDebug(ctx, "room left: user_id=%s, room_id=%s", client.UserId, roomId)
}

// RefreshPresence extends the user's online TTL
func (s *WsServer) RefreshPresence(ctx context.Context, client *Client) {
	s.roomMap.SetOnline(ctx, client.UserId)
}

// PushToConversation broadcasts an event to the conversation's room
func (s *WsServer) PushToConversation(ctx context.Context, conversationId int64, event string, payload interface{}) {
	s.enqueue(ctx, []string{ConversationRoom(conversationId)}, event, payload)
}

// PushToUsers broadcasts an event to each user's personal room
func (s *WsServer) PushToUsers(ctx context.Context, userIds []string, event string, payload interface{}) {
	roomIds := make([]string, 0, len(userIds))
	for _, userId := range userIds {
		roomIds = append(roomIds, UserRoom(userId))
	}
	s.enqueue(ctx, roomIds, event, payload)
}

func (s *WsServer) enqueue(ctx context.Context, roomIds []string, event string, payload interface{}) {
	frame, err := NewEventFrame(event, roomIds[0], payload)
	if err != nil {
		log.CtxError(ctx, "marshal event failed: event=%s, error=%v", event, err)
		return
	}

	select {
	case s.pushChan <- &pushTask{roomIds: roomIds, frame: frame}:
	default:
		log.CtxWarn(ctx, "push channel full, event dropped: event=%s, room_id=%s", event, frame.RoomId)
	}
}

// OnlineUserCount returns the number of online users on this instance
func (s *WsServer) OnlineUserCount() int64 {
	return s.onlineUserNum.Load()
}

// OnlineConnCount returns the number of open connections on this instance
func (s *WsServer) OnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// IsOnline reports user presence, local map first then Redis
func (s *WsServer) IsOnline(ctx context.Context, userId string) bool {
	return s.roomMap.IsOnline(ctx, userId)
}
