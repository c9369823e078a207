package lib

import (
	"context"
	"fmt"
	"strings"

	"chatrelay/m/v2/app/ai"
	"chatrelay/m/v2/app/models"
)

const (
	NoMessagesSummary    = "No messages yet."
	summaryInstruction   = "Summarize the following conversation:\n"
	noContextPlaceholder = "none"
)

// RenderTranscript renders messages one per line as "<role label>: <content>".
func RenderTranscript(messages []models.MongoChatMessage) string {
	lines := make([]string, 0, len(messages))
	for _, message := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", message.Role.Label(), message.Content))
	}
	return strings.Join(lines, "\n")
}

// Summarize asks the AI for a summary of the chronological messages.
func Summarize(ctx context.Context, completer ai.Completer, messages []models.MongoChatMessage) string {
	if len(messages) == 0 {
		return NoMessagesSummary
	}
	return completer.Complete(ctx, summaryInstruction+RenderTranscript(messages))
}

// BuildPrompt assembles the chat prompt from the session context, recent history and the new message.
func BuildPrompt(sessionContext string, history []models.MongoChatMessage, text string) string {
	if sessionContext == "" {
		sessionContext = noContextPlaceholder
	}
	var b strings.Builder
	b.WriteString("History:\n")
	b.WriteString(sessionContext)
	b.WriteString("\n\n")
	for _, message := range history {
		fmt.Fprintf(&b, "%s: %s\n", message.Role.Label(), message.Content)
	}
	b.WriteString("\nUser message:\n")
	b.WriteString(text)
	return b.String()
}
