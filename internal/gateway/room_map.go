package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbeoliero/vesper/pkg/constant"
	"github.com/redis/go-redis/v9"
)

// RoomMap tracks which clients are subscribed to which rooms. A client sits
// in its personal user room from connect to disconnect and joins
// conversation rooms on demand.
type RoomMap struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]*Client // roomId -> connId -> client
	byConn  map[string]map[string]bool    // connId -> roomIds, for disconnect cleanup
	rdb     *redis.Client
	userTTL time.Duration
}

// NewRoomMap creates a new RoomMap
func NewRoomMap(rdb *redis.Client) *RoomMap {
	return &RoomMap{
		rooms:   make(map[string]map[string]*Client),
		byConn:  make(map[string]map[string]bool),
		rdb:     rdb,
		userTTL: 60 * time.Second,
	}
}

// Join subscribes a client to a room. Idempotent.
func (m *RoomMap) Join(roomId string, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomId]
	if !ok {
		room = make(map[string]*Client, 4)
		m.rooms[roomId] = room
	}
	room[client.ConnId] = client

	joined, ok := m.byConn[client.ConnId]
	if !ok {
		joined = make(map[string]bool, 4)
		m.byConn[client.ConnId] = joined
	}
	joined[roomId] = true
}

// Leave unsubscribes a client from a room
func (m *RoomMap) Leave(roomId string, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(roomId, client.ConnId)
}

func (m *RoomMap) leaveLocked(roomId, connId string) {
	if room, ok := m.rooms[roomId]; ok {
		delete(room, connId)
		if len(room) == 0 {
			delete(m.rooms, roomId)
		}
	}
	if joined, ok := m.byConn[connId]; ok {
		delete(joined, roomId)
		if len(joined) == 0 {
			delete(m.byConn, connId)
		}
	}
}

// Drop removes a client from every room it joined. Returns true when this
// was the user's last connection (user went offline).
func (m *RoomMap) Drop(ctx context.Context, client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for roomId := range m.byConn[client.ConnId] {
		m.leaveLocked(roomId, client.ConnId)
	}

	userRoom := UserRoom(client.UserId)
	if _, stillOnline := m.rooms[userRoom]; stillOnline {
		return false
	}
	m.setOffline(ctx, client.UserId)
	return true
}

// Members returns a snapshot of the clients in a room
func (m *RoomMap) Members(roomId string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomId]
	if !ok {
		return nil
	}
	clients := make([]*Client, 0, len(room))
	for _, c := range room {
		clients = append(clients, c)
	}
	return clients
}

// RoomCount returns the number of live rooms
func (m *RoomMap) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// ConnCount returns the number of tracked connections
func (m *RoomMap) ConnCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byConn)
}

// IsOnline checks whether a user has any live connection, consulting Redis
// so presence works across instances.
func (m *RoomMap) IsOnline(ctx context.Context, userId string) bool {
	m.mu.RLock()
	_, local := m.rooms[UserRoom(userId)]
	m.mu.RUnlock()
	if local {
		return true
	}

	if m.rdb != nil {
		key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
		exists, _ := m.rdb.Exists(ctx, key).Result()
		return exists > 0
	}
	return false
}

// SetOnline marks a user online in Redis with a TTL refreshed by pings
func (m *RoomMap) SetOnline(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}
	key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
	m.rdb.Set(ctx, key, "1", m.userTTL)
}

func (m *RoomMap) setOffline(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}
	key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
	m.rdb.Del(ctx, key)
}
