// Package response renders the service's uniform JSON envelope. Handlers
// return business errors through errcode values; anything else surfaces as
// an internal error with its message preserved.
package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/vesper/pkg/errcode"
)

// Response is the envelope every endpoint returns. Code 0 means success.
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// Success writes a code-0 envelope with the payload
func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, Response{Msg: "success", Data: data})
}

// Error writes an error envelope. errcode values keep their code and
// message; other errors map to the internal-server code. The HTTP status
// stays 200 for business errors; clients branch on the envelope code.
func Error(ctx context.Context, c *app.RequestContext, err error) {
	var e *errcode.Error
	if !errors.As(err, &e) {
		e = errcode.New(errcode.ErrInternalServer.Code, err.Error())
	}
	ErrorWithCode(ctx, c, e)
}

// ErrorWithCode writes an error envelope for a known errcode value
func ErrorWithCode(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	status := http.StatusOK
	if e.Code == errcode.ErrUnauthorized.Code || e.Code == errcode.ErrTokenInvalid.Code {
		status = http.StatusUnauthorized
	}
	c.JSON(status, Response{Code: e.Code, Msg: e.Msg})
}
