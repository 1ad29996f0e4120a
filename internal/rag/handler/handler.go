// Package handler provides HTTP handlers for the RAG service.
package handler

import (
	"context"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/internal/rag/biz"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/middleware/common"
	"github.com/kart-io/bhasha/pkg/utils/response"
	"github.com/kart-io/bhasha/pkg/utils/validator"
)

// maxPageLimit 列表接口单页上限。
const maxPageLimit = 100

// Pagination 列表接口的分页信息。
type Pagination struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

func newPagination(total int64, limit, offset, n int) Pagination {
	return Pagination{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+n) < total,
	}
}

// MessageResponse 只携带提示信息的响应。
type MessageResponse struct {
	Message string `json:"message"`
}

// pageParams 解析 limit/offset 查询参数。
func pageParams(c *gin.Context, defaultLimit int) (limit, offset int, err error) {
	limit, offset = defaultLimit, 0

	if s := c.Query("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit <= 0 || limit > maxPageLimit {
			return 0, 0, errors.ErrInvalidParam.WithMessagef("limit must be between 1 and %d", maxPageLimit)
		}
	}
	if s := c.Query("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return 0, 0, errors.ErrInvalidParam.WithMessage("offset must not be negative")
		}
	}
	return limit, offset, nil
}

// bindJSON 绑定并校验请求体。失败时返回 400，提示同时带英文与孟加拉文，
// 由 response 按 Accept-Language 选择。
func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		v := validator.Global()
		response.Fail(c, errors.ErrInvalidParam.WithMessages(
			v.Translate(err, validator.LangEN), v.Translate(err, validator.LangBN)))
		return false
	}
	return true
}

func ownerID(c *gin.Context) string {
	return common.GetOwnerID(c.Request.Context())
}

// readUpload 读取 multipart 文件，超过 maxSize 时不读入内存。
func readUpload(fh *multipart.FileHeader, maxSize int64) (*biz.UploadRequest, error) {
	if fh.Filename == "" {
		return nil, errors.ErrInvalidParam.WithMessage("file name is required")
	}
	if maxSize > 0 && fh.Size > maxSize {
		return nil, errors.ErrFileTooLarge.WithMessagef("file %s exceeds %d bytes", fh.Filename, maxSize)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errors.ErrBadRequest.WithCause(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.ErrBadRequest.WithCause(err)
	}
	return &biz.UploadRequest{FileName: fh.Filename, Data: data}, nil
}

// resolveChat 校验会话归属；chatID 为空时以问题为标题创建新会话。
func resolveChat(ctx context.Context, memory *biz.Memory, owner, chatID, question string) (string, bool, error) {
	if chatID != "" {
		if _, err := memory.GetChat(ctx, owner, chatID); err != nil {
			return "", false, err
		}
		return chatID, false, nil
	}

	chat, err := memory.CreateSession(ctx, owner, question)
	if err != nil {
		return "", false, err
	}
	logger.Infow("Created new chat session", "chat_id", chat.ID, "owner_id", owner)
	return chat.ID, true, nil
}
