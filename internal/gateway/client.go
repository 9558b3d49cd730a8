package gateway

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"
)

// Client is one connected socket. It carries the authenticated identity and
// forwards room subscription requests to the server.
type Client struct {
	conn       Conn
	UserId     string
	PlatformId int
	ConnId     string
	server     *WsServer
	closed     atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewClient creates a client for an upgraded connection
func NewClient(conn Conn, userId string, platformId int, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:       conn,
		UserId:     userId,
		PlatformId: platformId,
		ConnId:     connId,
		server:     server,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// readLoop consumes client frames until the connection drops. Blocking; the
// handler runs it on the upgrade goroutine.
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(c.ctx, "client read loop panic: user_id=%s, error=%v", c.UserId, r)
		}
		c.Close()
		c.server.UnregisterClient(c)
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read frame error: user_id=%s, error=%v", c.UserId, err)
			return
		}

		if c.closed.Load() {
			return
		}

		if err := c.handleFrame(message); err != nil {
			log.CtxWarn(c.ctx, "handle frame error: user_id=%s, error=%v", c.UserId, err)
			return
		}
	}
}

// handleFrame dispatches one client frame
func (c *Client) handleFrame(message []byte) error {
	var frame ClientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return ErrInvalidFrame
	}

	switch frame.Action {
	case ActionJoin:
		c.server.JoinRoom(c.ctx, c, frame.RoomId)
	case ActionLeave:
		c.server.LeaveRoom(c.ctx, c, frame.RoomId)
	case ActionPing:
		c.server.RefreshPresence(c.ctx, c)
	default:
		return ErrInvalidFrame
	}
	return nil
}

// SendFrame pushes one event frame to this connection
func (c *Client) SendFrame(frame *EventFrame) error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(data)
}

// Close tears down the connection
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	return c.conn.Close()
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
