package biz

import (
	"fmt"
	"strings"

	"github.com/kart-io/bhasha/internal/pkg/rag/textutil"
)

// DefaultRAGPrompt 基于检索上下文回答的提示词模板。
const DefaultRAGPrompt = `You are a helpful AI assistant that answers questions based on the provided context from Bengali and English documents.

Key Instructions:
1. Answer in the SAME LANGUAGE as the question
2. If the question is in Bengali (বাংলা), answer in Bengali
3. If the question is in English, answer in English
4. Base your answer ONLY on the provided context
5. If you cannot find the answer in the context, say "আমি প্রদত্ত প্রসঙ্গে এই প্রশ্নের উত্তর খুঁজে পাচ্ছি না।" (Bengali) or "I cannot find the answer to this question in the provided context." (English)
6. Be concise and direct in your answers
7. Cite relevant parts of the context when possible

Context from documents:
{{context}}

Previous conversation context:
{{conversation_context}}

Question: {{question}}

Answer:`

// DefaultFallbackPrompt 检索结果不相关时使用通用知识回答的提示词模板。
const DefaultFallbackPrompt = `You are a helpful AI assistant. Answer the following question to the best of your ability.

Important Instructions:
1. Answer in the SAME LANGUAGE as the question
2. If the question is in Bengali (বাংলা), answer in Bengali
3. If the question is in English, answer in English
4. Be helpful and informative
5. If you don't know something, admit it honestly

Question: {{question}}

Answer:`

const (
	noContextFound  = "No relevant context found."
	unknownDocument = "Unknown Document"

	// conversationTurns 提示词中保留的最近对话条数。
	conversationTurns = 3
)

// Canned apologies returned when answering fails.
const (
	errorAnswerBengali = "দুঃখিত, আপনার প্রশ্নের উত্তর দিতে আমার কিছু সমস্যা হচ্ছে। অনুগ্রহ করে আবার চেষ্টা করুন।"
	errorAnswerEnglish = "Sorry, I'm having trouble answering your question right now. Please try again."
)

// PromptBuilder 根据模板渲染提示词。
type PromptBuilder struct {
	ragTemplate      string
	fallbackTemplate string
}

// NewPromptBuilder 创建提示词构建器，模板为空时使用默认模板。
func NewPromptBuilder(ragTemplate, fallbackTemplate string) *PromptBuilder {
	if ragTemplate == "" {
		ragTemplate = DefaultRAGPrompt
	}
	if fallbackTemplate == "" {
		fallbackTemplate = DefaultFallbackPrompt
	}
	return &PromptBuilder{ragTemplate: ragTemplate, fallbackTemplate: fallbackTemplate}
}

// RAG 渲染带检索上下文与对话上下文的提示词。
func (b *PromptBuilder) RAG(question string, chunks []RetrievedChunk, recent []Turn) string {
	r := strings.NewReplacer(
		"{{context}}", FormatContext(chunks),
		"{{conversation_context}}", FormatConversation(recent),
		"{{question}}", question,
	)
	return r.Replace(b.ragTemplate)
}

// Fallback 渲染通用知识提示词。
func (b *PromptBuilder) Fallback(question string) string {
	return strings.ReplaceAll(b.fallbackTemplate, "{{question}}", question)
}

// FormatContext 将检索结果格式化为编号的来源列表。
func FormatContext(chunks []RetrievedChunk) string {
	if len(chunks) == 0 {
		return noContextFound
	}

	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		title := c.DocumentTitle
		if title == "" {
			title = unknownDocument
		}
		parts = append(parts, fmt.Sprintf("Source %d (Similarity: %.2f, Document: %s):\n%s\n",
			i+1, c.Similarity, title, c.Content))
	}
	return strings.Join(parts, "\n")
}

// FormatConversation 取最近三条消息，格式为 "ROLE: content"。
func FormatConversation(recent []Turn) string {
	if len(recent) == 0 {
		return ""
	}
	if len(recent) > conversationTurns {
		recent = recent[len(recent)-conversationTurns:]
	}

	lines := make([]string, 0, len(recent))
	for _, t := range recent {
		lines = append(lines, strings.ToUpper(t.Role)+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

// ErrorAnswer 返回与问题语言一致的致歉回答。
func ErrorAnswer(language textutil.Language) string {
	if language == textutil.LanguageBengali {
		return errorAnswerBengali
	}
	return errorAnswerEnglish
}
