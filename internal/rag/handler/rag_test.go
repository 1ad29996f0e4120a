package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsk(t *testing.T) {
	fx := newFixture(t)
	fx.upload(t, "u1", "story.txt", storyText)

	var first AskResponse
	decode(t, fx.postJSON(t, "/v1/rag/ask", "u1", AskRequest{Question: "How did Anupam travel?"}), http.StatusOK, &first)

	assert.True(t, first.CreatedNewChat)
	assert.NotEmpty(t, first.ChatID)
	assert.NotEmpty(t, first.MessageID)
	assert.Equal(t, "Anupam travelled by train.", first.Answer.Answer)
	assert.Equal(t, "en", first.Language)
	assert.NotEmpty(t, first.Sources)

	t.Run("沿用已有会话", func(t *testing.T) {
		var next AskResponse
		w := fx.postJSON(t, "/v1/rag/ask", "u1", AskRequest{Question: "Where did he go?", ChatID: first.ChatID})
		decode(t, w, http.StatusOK, &next)
		assert.False(t, next.CreatedNewChat)
		assert.Equal(t, first.ChatID, next.ChatID)
	})

	t.Run("其他用户的会话", func(t *testing.T) {
		w := fx.postJSON(t, "/v1/rag/ask", "u2", AskRequest{Question: "Where did he go?", ChatID: first.ChatID})
		decode(t, w, http.StatusNotFound, nil)
	})

	t.Run("缺少问题", func(t *testing.T) {
		decode(t, fx.postJSON(t, "/v1/rag/ask", "u1", map[string]string{"chat_id": first.ChatID}), http.StatusBadRequest, nil)
	})
}

func TestFeedback(t *testing.T) {
	fx := newFixture(t)
	fx.upload(t, "u1", "story.txt", storyText)

	var answer AskResponse
	decode(t, fx.postJSON(t, "/v1/rag/ask", "u1", AskRequest{Question: "How did Anupam travel?"}), http.StatusOK, &answer)
	require.NotEmpty(t, answer.MessageID)

	tests := []struct {
		name     string
		req      FeedbackRequest
		wantCode int
	}{
		{"有效反馈", FeedbackRequest{MessageID: answer.MessageID, Feedback: "helpful"}, http.StatusOK},
		{"覆盖反馈", FeedbackRequest{MessageID: answer.MessageID, Feedback: "partial"}, http.StatusOK},
		{"无效反馈类型", FeedbackRequest{MessageID: answer.MessageID, Feedback: "great"}, http.StatusBadRequest},
		{"消息不存在", FeedbackRequest{MessageID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Feedback: "helpful"}, http.StatusNotFound},
		{"消息 ID 格式错误", FeedbackRequest{MessageID: "missing", Feedback: "helpful"}, http.StatusBadRequest},
		{"缺少字段", FeedbackRequest{Feedback: "helpful"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decode(t, fx.postJSON(t, "/v1/rag/feedback", "u1", tt.req), tt.wantCode, nil)
		})
	}

	var stats map[string]any
	decode(t, fx.get("/v1/rag/evaluation/stats", "u1"), http.StatusOK, &stats)
	assert.NotEmpty(t, stats)
}

func TestAskValidationLocalized(t *testing.T) {
	fx := newFixture(t)

	tests := []struct {
		name    string
		lang    string
		body    string
		wantMsg string
	}{
		{"英文提示", "en", `{"question":"  "}`, "question must not be blank"},
		{"孟加拉文提示", "bn-BD", `{}`, "question আবশ্যক"},
		{"会话 ID 格式错误", "bn", `{"question":"কেমন আছ?","chat_id":"abc"}`, "chat_id একটি বৈধ আইডি নয়"},
		{"JSON 格式错误", "en", `{"question":`, "unexpected EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/rag/ask", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept-Language", tt.lang)
			env := decode(t, fx.do(req, "u1"), http.StatusBadRequest, nil)
			assert.Equal(t, tt.wantMsg, env.Message)
		})
	}
}
