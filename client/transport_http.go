package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	hertzclient "github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/mbeoliero/vesper/pkg/errcode"
)

// HTTPTransport implements Transport over the service's REST surface
type HTTPTransport struct {
	baseURL    string
	httpClient *hertzclient.Client
	token      string
}

// HTTPTransportOption configures the transport
type HTTPTransportOption func(*HTTPTransport)

// WithHertzClient sets a custom hertz client
func WithHertzClient(httpClient *hertzclient.Client) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.httpClient = httpClient
	}
}

// WithToken sets the bearer token
func WithToken(token string) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.token = token
	}
}

// NewHTTPTransport creates a transport against a base URL
func NewHTTPTransport(baseURL string, opts ...HTTPTransportOption) (*HTTPTransport, error) {
	httpClient, err := hertzclient.NewClient(
		hertzclient.WithDialTimeout(10*time.Second),
		hertzclient.WithClientReadTimeout(30*time.Second),
		hertzclient.WithWriteTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	t := &HTTPTransport{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// SetToken replaces the bearer token after a login
func (t *HTTPTransport) SetToken(token string) {
	t.token = token
}

// apiResponse is the service's uniform envelope
type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	req := &protocol.Request{}
	resp := &protocol.Response{}

	req.SetMethod(method)
	req.SetRequestURI(t.baseURL + path)
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		req.SetBody(jsonBody)
	}

	if err := t.httpClient.Do(ctx, req, resp); err != nil {
		return errcode.ErrSendFailed.Wrap(err)
	}

	var api apiResponse
	if err := json.Unmarshal(resp.Body(), &api); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if api.Code != 0 {
		return errcode.New(api.Code, api.Msg)
	}

	if result != nil && len(api.Data) > 0 {
		if err := json.Unmarshal(api.Data, result); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func (t *HTTPTransport) get(ctx context.Context, path string, params map[string]string, result interface{}) error {
	if len(params) > 0 {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		path += "?" + query.Encode()
	}
	return t.do(ctx, consts.MethodGet, path, nil, result)
}

// CreateConversation opens the direct conversation with a peer
func (t *HTTPTransport) CreateConversation(ctx context.Context, peerUserId string) (*ConversationInfo, error) {
	var result ConversationInfo
	body := map[string]string{"peer_user_id": peerUserId}
	if err := t.do(ctx, consts.MethodPost, "/conversation/create", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListConversations pages the caller's conversations
func (t *HTTPTransport) ListConversations(ctx context.Context, page, pageSize int) ([]*ConversationInfo, error) {
	var result []*ConversationInfo
	params := map[string]string{
		"page":      strconv.Itoa(page),
		"page_size": strconv.Itoa(pageSize),
	}
	if err := t.get(ctx, "/conversation/list", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListMessages pages one conversation's messages
func (t *HTTPTransport) ListMessages(ctx context.Context, conversationId int64, page, pageSize int) ([]*MessageInfo, error) {
	var result []*MessageInfo
	params := map[string]string{
		"conversation_id": strconv.FormatInt(conversationId, 10),
		"page":            strconv.Itoa(page),
		"page_size":       strconv.Itoa(pageSize),
	}
	if err := t.get(ctx, "/msg/list", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SendMessage submits a message envelope
func (t *HTTPTransport) SendMessage(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error) {
	var result MessageInfo
	if err := t.do(ctx, consts.MethodPost, "/msg/send", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EditMessage submits an edit
func (t *HTTPTransport) EditMessage(ctx context.Context, req *EditMessageRequest) (*MessageInfo, error) {
	var result MessageInfo
	if err := t.do(ctx, consts.MethodPut, "/msg/edit", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteMessage soft-deletes a message
func (t *HTTPTransport) DeleteMessage(ctx context.Context, messageId int64) error {
	return t.do(ctx, consts.MethodPost, "/msg/delete", map[string]int64{"message_id": messageId}, nil)
}

// UndoDeleteMessage restores a soft-deleted message
func (t *HTTPTransport) UndoDeleteMessage(ctx context.Context, messageId int64) error {
	return t.do(ctx, consts.MethodPost, "/msg/undo_delete", map[string]int64{"message_id": messageId}, nil)
}

// ReactMessage upserts the caller's reaction
func (t *HTTPTransport) ReactMessage(ctx context.Context, messageId int64, emoji string) error {
	body := map[string]interface{}{"message_id": messageId, "emoji": emoji}
	return t.do(ctx, consts.MethodPost, "/msg/react", body, nil)
}

// MarkDelivered acknowledges receipt of one message
func (t *HTTPTransport) MarkDelivered(ctx context.Context, messageId int64) error {
	return t.do(ctx, consts.MethodPost, "/msg/delivered", map[string]int64{"message_id": messageId}, nil)
}

// MarkRead acknowledges a conversation as read
func (t *HTTPTransport) MarkRead(ctx context.Context, conversationId int64) error {
	return t.do(ctx, consts.MethodPost, "/conversation/mark_read", map[string]int64{"conversation_id": conversationId}, nil)
}

// GetUser fetches a user profile with its published public key
func (t *HTTPTransport) GetUser(ctx context.Context, userId string) (*UserInfo, error) {
	var result UserInfo
	if err := t.get(ctx, "/user/info/"+userId, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
