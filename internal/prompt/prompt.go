// Package prompt assembles the text sent to the language model.
package prompt

import (
	"strings"

	"acm-chatbot/backend/internal/models"
	"acm-chatbot/backend/internal/session"
)

// DefaultSystemPrompt is used for clients without a custom system prompt.
const DefaultSystemPrompt = `You are an AI customer service assistant.
Your role is to provide helpful information about products, services, pricing, and policies based on the context provided.

Guidelines:
- ALWAYS check the provided context first before answering
- If the context contains relevant information (even partially), USE it to answer
- Be helpful, friendly, and professional

FORMATTING RULES:
- When listing multiple items, use numbered markdown lists (1., 2., 3.)
- Use **bold text** for important terms like service names, prices, or key information
- Keep paragraphs short and scannable

IMPORTANT:
- The context below contains information from the knowledge base
- If no relevant context is provided, politely say you don't have that information
- Never make up information that's not in the context`

// Assemble builds the prompt from its sections in a fixed order: system
// prompt, conversation so far, context, user question, answer cue. The
// result depends only on its inputs and nothing is truncated.
func Assemble(systemPrompt string, history []session.Turn, context, query string) string {
	var b strings.Builder

	b.WriteString(systemPrompt)
	b.WriteString("\n\nConversation so far:\n")
	for _, turn := range history {
		switch turn.Role {
		case models.RoleUser:
			b.WriteString("User: ")
			b.WriteString(turn.Content)
			b.WriteString("\n")
		case models.RoleAssistant:
			b.WriteString("Assistant: ")
			b.WriteString(turn.Content)
			b.WriteString("\n\n")
		}
	}

	b.WriteString("\n\nContext:\n")
	b.WriteString(context)
	b.WriteString("\n\nUser question:\n")
	b.WriteString(query)
	b.WriteString("\n\nAnswer:")

	return b.String()
}

// SystemPromptFor returns custom when set, otherwise DefaultSystemPrompt.
func SystemPromptFor(custom *string) string {
	if custom != nil && strings.TrimSpace(*custom) != "" {
		return *custom
	}
	return DefaultSystemPrompt
}
