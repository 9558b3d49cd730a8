package router

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/vesper/internal/config"
	"github.com/mbeoliero/vesper/internal/gateway"
	"github.com/mbeoliero/vesper/internal/handler"
	"github.com/mbeoliero/vesper/internal/middleware"
	"github.com/mbeoliero/vesper/internal/service"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Auth         *handler.AuthHandler
	User         *handler.UserHandler
	Message      *handler.MessageHandler
	Conversation *handler.ConversationHandler
}

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, handlers *Handlers, authService *service.AuthService, wsServer *gateway.WsServer) {
	cfg := config.GlobalConfig

	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Health check
	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth routes
	authGroup := h.Group("/auth")
	{
		authGroup.POST("/register", handlers.Auth.Register)
		authGroup.POST("/login", handlers.Auth.Login)
		authGroup.POST("/logout", middleware.JWTAuth(authService), handlers.Auth.Logout)
	}

	// User routes; /info/:user_id is the key directory lookup
	userGroup := h.Group("/user", middleware.JWTAuth(authService))
	{
		userGroup.GET("/info", handlers.User.GetUserInfo)
		userGroup.GET("/info/:user_id", handlers.User.GetUserInfoById)
		userGroup.PUT("/update", handlers.User.UpdateUserInfo)
	}

	// Conversation routes
	convGroup := h.Group("/conversation", middleware.JWTAuth(authService))
	{
		convGroup.POST("/create", handlers.Conversation.Create)
		convGroup.GET("/list", handlers.Conversation.List)
		convGroup.GET("/info", handlers.Conversation.Get)
		convGroup.POST("/mark_read", handlers.Conversation.MarkRead)
		convGroup.POST("/leave", handlers.Conversation.Leave)
	}

	// Message routes
	msgGroup := h.Group("/msg", middleware.JWTAuth(authService))
	{
		msgGroup.POST("/send", handlers.Message.Send)
		msgGroup.GET("/list", handlers.Message.List)
		msgGroup.PUT("/edit", handlers.Message.Edit)
		msgGroup.POST("/delete", handlers.Message.Delete)
		msgGroup.POST("/undo_delete", handlers.Message.UndoDelete)
		msgGroup.POST("/react", handlers.Message.React)
		msgGroup.POST("/delivered", handlers.Message.MarkDelivered)
	}

	// WebSocket bridge endpoint
	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleConnection(ctx, c, upgrader)
	})
}

// checkOrigin validates the Origin header against allowed origins
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	origin := string(ctx.Request.Header.Peek("Origin"))

	// No origin header means same-origin or a non-browser client
	if origin == "" {
		return true
	}

	if len(allowedOrigins) == 0 {
		return false
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			return true
		}
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}

	return false
}
