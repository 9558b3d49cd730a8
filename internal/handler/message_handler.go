package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/vesper/internal/middleware"
	"github.com/mbeoliero/vesper/internal/service"
	"github.com/mbeoliero/vesper/pkg/errcode"
	"github.com/mbeoliero/vesper/pkg/response"
)

// MessageHandler handles message-related requests
type MessageHandler struct {
	msgService *service.MessageService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(msgService *service.MessageService) *MessageHandler {
	return &MessageHandler{msgService: msgService}
}

// Send handles send message request. Retries with the same client_msg_id
// return the original message.
func (h *MessageHandler) Send(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req service.SendMessageRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	msg, err := h.msgService.Send(ctx, userId, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, msg.ToMessageInfo())
}

// List handles list messages request
func (h *MessageHandler) List(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId, err := strconv.ParseInt(c.Query("conversation_id"), 10, 64)
	if err != nil || conversationId <= 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	messages, err := h.msgService.List(ctx, userId, conversationId, page, pageSize)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	infos := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		infos = append(infos, msg.ToMessageInfo())
	}
	response.Success(ctx, c, infos)
}

// Edit handles edit message request
func (h *MessageHandler) Edit(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req service.EditMessageRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	msg, err := h.msgService.Edit(ctx, userId, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, msg.ToMessageInfo())
}

// MessageIdRequest carries a bare message id
type MessageIdRequest struct {
	MessageId int64 `json:"message_id"`
}

// Delete handles soft-delete message request
func (h *MessageHandler) Delete(ctx context.Context, c *app.RequestContext) {
	h.withMessageId(ctx, c, h.msgService.Delete)
}

// UndoDelete handles undo-delete message request
func (h *MessageHandler) UndoDelete(ctx context.Context, c *app.RequestContext) {
	h.withMessageId(ctx, c, h.msgService.UndoDelete)
}

// MarkDelivered handles the delivered receipt for one message
func (h *MessageHandler) MarkDelivered(ctx context.Context, c *app.RequestContext) {
	h.withMessageId(ctx, c, h.msgService.MarkDelivered)
}

func (h *MessageHandler) withMessageId(ctx context.Context, c *app.RequestContext, fn func(context.Context, string, int64) error) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req MessageIdRequest
	if err := c.BindAndValidate(&req); err != nil || req.MessageId <= 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := fn(ctx, userId, req.MessageId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// React handles reaction upsert request
func (h *MessageHandler) React(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req service.ReactRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.msgService.React(ctx, userId, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}
