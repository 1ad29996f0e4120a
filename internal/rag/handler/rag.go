package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/bhasha/internal/rag/biz"
	"github.com/kart-io/bhasha/pkg/utils/response"
)

// RAGHandler handles question answering and feedback requests.
type RAGHandler struct {
	orchestrator *biz.Orchestrator
	memory       *biz.Memory
	evaluation   *biz.EvaluationService
}

// NewRAGHandler creates a new RAGHandler.
func NewRAGHandler(orchestrator *biz.Orchestrator, memory *biz.Memory, evaluation *biz.EvaluationService) *RAGHandler {
	return &RAGHandler{
		orchestrator: orchestrator,
		memory:       memory,
		evaluation:   evaluation,
	}
}

// AskRequest represents a question.
type AskRequest struct {
	Question    string   `json:"question" binding:"required,notblank,max=4000"`
	ChatID      string   `json:"chat_id" binding:"omitempty,ulid"`
	DocumentIDs []string `json:"document_ids" binding:"omitempty,max=50,dive,ulid"`
}

// AskResponse is the answer with the chat it was stored in.
type AskResponse struct {
	*biz.Answer
	CreatedNewChat bool `json:"created_new_chat"`
}

// FeedbackRequest rates an AI message.
type FeedbackRequest struct {
	MessageID string `json:"message_id" binding:"required,ulid"`
	Feedback  string `json:"feedback" binding:"required,oneof=helpful not_helpful partial"`
}

// Ask answers a question. A chat is created when chat_id is empty.
// Answer failures are reported inside a successful response.
func (h *RAGHandler) Ask(c *gin.Context) {
	var req AskRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	owner := ownerID(c)

	chatID, created, err := resolveChat(ctx, h.memory, owner, req.ChatID, req.Question)
	if err != nil {
		response.Fail(c, err)
		return
	}

	answer := h.orchestrator.Ask(ctx, &biz.AskRequest{
		Question:    req.Question,
		ChatID:      chatID,
		OwnerID:     owner,
		DocumentIDs: req.DocumentIDs,
	})
	response.OK(c, &AskResponse{Answer: answer, CreatedNewChat: created})
}

// Feedback stores user feedback for an AI message.
func (h *RAGHandler) Feedback(c *gin.Context) {
	var req FeedbackRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.evaluation.StoreFeedback(c.Request.Context(), req.MessageID, req.Feedback); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, &MessageResponse{Message: "Feedback submitted successfully"})
}

// EvaluationStats returns aggregated evaluation scores and feedback counts.
func (h *RAGHandler) EvaluationStats(c *gin.Context) {
	stats, err := h.evaluation.Stats(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, stats)
}
