package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/internal/rag/biz"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/utils/response"
)

const (
	defaultChatLimit    = 20
	defaultMessageLimit = 50
)

// ChatHandler handles chat sessions.
type ChatHandler struct {
	orchestrator *biz.Orchestrator
	memory       *biz.Memory
	docs         *biz.DocumentService
	maxFileSize  int64
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(orchestrator *biz.Orchestrator, memory *biz.Memory, docs *biz.DocumentService, maxFileSize int64) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		memory:       memory,
		docs:         docs,
		maxFileSize:  maxFileSize,
	}
}

// ChatMessage is the AI reply of SendMessage.
type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatRAGMetadata summarizes how the reply was produced.
type ChatRAGMetadata struct {
	Approach        biz.Approach `json:"approach"`
	SourcesUsed     int          `json:"sources_used"`
	Confidence      float64      `json:"confidence"`
	Language        string       `json:"language"`
	ResponseTime    float64      `json:"response_time"`
	ChunksRetrieved int          `json:"chunks_retrieved"`
}

// ChatResponse is returned by SendMessage.
type ChatResponse struct {
	Message        ChatMessage     `json:"message"`
	RAGMetadata    ChatRAGMetadata `json:"rag_metadata"`
	ChatID         string          `json:"chat_id"`
	CreatedNewChat bool            `json:"created_new_chat"`
	DocumentIDs    []string        `json:"document_ids,omitempty"`
}

// ChatListResponse is returned by List.
type ChatListResponse struct {
	Chats      []*model.Chat `json:"chats"`
	Pagination Pagination    `json:"pagination"`
}

// MessageListResponse is returned by Messages.
type MessageListResponse struct {
	Messages   []*model.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// SendMessage answers a multipart message. Attached files are ingested first
// and restrict retrieval to themselves.
//
// Form fields: content (required), chat_id, files.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	content := c.PostForm("content")
	if content == "" {
		response.Fail(c, errors.ErrInvalidParam.WithMessage("content is required"))
		return
	}

	ctx := c.Request.Context()
	owner := ownerID(c)

	var documentIDs []string
	if form, err := c.MultipartForm(); err == nil {
		for _, fh := range form.File["files"] {
			req, err := readUpload(fh, h.maxFileSize)
			if err != nil {
				response.Fail(c, err)
				return
			}
			req.OwnerID = owner

			result, err := h.docs.Upload(ctx, req)
			if err != nil {
				response.Fail(c, err)
				return
			}
			documentIDs = append(documentIDs, result.DocumentID)
		}
	}

	chatID, created, err := resolveChat(ctx, h.memory, owner, c.PostForm("chat_id"), content)
	if err != nil {
		response.Fail(c, err)
		return
	}

	answer := h.orchestrator.Ask(ctx, &biz.AskRequest{
		Question:    content,
		ChatID:      chatID,
		OwnerID:     owner,
		DocumentIDs: documentIDs,
	})

	response.OK(c, &ChatResponse{
		Message: ChatMessage{
			ID:        answer.MessageID,
			Content:   answer.Answer,
			Role:      model.RoleAI,
			CreatedAt: time.Now(),
		},
		RAGMetadata: ChatRAGMetadata{
			Approach:        answer.ApproachUsed,
			SourcesUsed:     len(answer.Sources),
			Confidence:      answer.Confidence,
			Language:        answer.Language,
			ResponseTime:    answer.ResponseTime,
			ChunksRetrieved: answer.ChunksRetrieved,
		},
		ChatID:         chatID,
		CreatedNewChat: created,
		DocumentIDs:    documentIDs,
	})
}

// List returns the chats of the caller, most recently updated first.
func (h *ChatHandler) List(c *gin.Context) {
	limit, offset, err := pageParams(c, defaultChatLimit)
	if err != nil {
		response.Fail(c, err)
		return
	}

	list, err := h.memory.ListChats(c.Request.Context(), ownerID(c), limit, offset)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, &ChatListResponse{
		Chats:      list.Chats,
		Pagination: newPagination(list.Total, limit, offset, len(list.Chats)),
	})
}

// Messages returns a page of chat history in chronological order. Offset
// counts from the newest message.
func (h *ChatHandler) Messages(c *gin.Context) {
	limit, offset, err := pageParams(c, defaultMessageLimit)
	if err != nil {
		response.Fail(c, err)
		return
	}

	ctx := c.Request.Context()
	chatID := c.Param("id")
	if _, err := h.memory.GetChat(ctx, ownerID(c), chatID); err != nil {
		response.Fail(c, err)
		return
	}

	history, err := h.memory.GetHistory(ctx, chatID, limit, offset)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, &MessageListResponse{
		Messages:   history.Messages,
		Pagination: newPagination(history.Total, limit, offset, len(history.Messages)),
	})
}

// Delete removes a chat of the caller with its messages.
func (h *ChatHandler) Delete(c *gin.Context) {
	if err := h.memory.DeleteChat(c.Request.Context(), ownerID(c), c.Param("id")); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, &MessageResponse{Message: "Chat deleted successfully"})
}
