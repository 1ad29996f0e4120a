package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/middleware/common"
)

// Writer writes pooled responses to a gin context.
type Writer struct {
	c         *gin.Context
	withTime  bool
	requestID string
	lang      string
}

// NewWriter creates a new response writer for the given context.
// The request ID set by the RequestID middleware is attached automatically.
func NewWriter(c *gin.Context) *Writer {
	return &Writer{
		c:         c,
		requestID: common.GetRequestID(c.Request.Context()),
		lang:      c.GetHeader("Accept-Language"),
	}
}

// WithTimestamp enables automatic timestamp in responses.
func (w *Writer) WithTimestamp() *Writer {
	w.withTime = true
	return w
}

// WithRequestID overrides the request ID for responses.
func (w *Writer) WithRequestID(requestID string) *Writer {
	w.requestID = requestID
	return w
}

// WithLang sets the language for error messages.
func (w *Writer) WithLang(lang string) *Writer {
	w.lang = lang
	return w
}

func (w *Writer) write(r *Response) {
	defer Release(r)
	if w.withTime {
		r.Timestamp = time.Now().UnixMilli()
	}
	if w.requestID != "" {
		r.RequestID = w.requestID
	}
	w.c.JSON(r.HTTPStatus(), r)
}

// OK sends a successful response with data.
func (w *Writer) OK(data interface{}) {
	w.write(Success(data))
}

// OKWithMessage sends a successful response with custom message.
func (w *Writer) OKWithMessage(message string, data interface{}) {
	w.write(SuccessWithMessage(message, data))
}

// PageOK sends a paginated response.
func (w *Writer) PageOK(list interface{}, total int64, page, pageSize int) {
	w.write(Page(list, total, page, pageSize))
}

// Fail sends an error response. Errors that are not *errors.Errno become ErrInternal.
func (w *Writer) Fail(err error) {
	e := errors.FromError(err)
	if e.HTTPStatus() >= 500 {
		logger.Errorw("request failed",
			"request_id", w.requestID,
			"path", w.c.Request.URL.Path,
			"error", err.Error(),
		)
	}
	w.write(ErrWithLang(e, w.lang))
}

// OK writes data with the default writer.
func OK(c *gin.Context, data interface{}) {
	NewWriter(c).OK(data)
}

// Fail writes err with the default writer and aborts the handler chain.
func Fail(c *gin.Context, err error) {
	NewWriter(c).Fail(err)
	c.Abort()
}
