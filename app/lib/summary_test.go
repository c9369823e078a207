package lib

import (
	"context"
	"testing"

	"chatrelay/m/v2/app/models"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeEmptySkipsAI(t *testing.T) {
	completer := &fakeCompleter{reply: "should not be used"}

	assert.Equal(t, NoMessagesSummary, Summarize(context.Background(), completer, nil))
	assert.Empty(t, completer.prompts)
}

func TestSummarizeDelegatesTranscript(t *testing.T) {
	completer := &fakeCompleter{reply: "short summary"}
	messages := []models.MongoChatMessage{
		{Role: models.UserRole, Content: "hi"},
		{Role: models.AssistantRole, Content: "hello!"},
	}

	assert.Equal(t, "short summary", Summarize(context.Background(), completer, messages))
	assert.Equal(t, []string{summaryInstruction + "User: hi\nAssistant: hello!"}, completer.prompts)
}

func TestBuildPrompt(t *testing.T) {
	history := []models.MongoChatMessage{
		{Role: models.UserRole, Content: "what is go?"},
		{Role: models.AssistantRole, Content: "a language"},
		{Role: models.UserRole, Content: "tell more"},
	}

	prompt := BuildPrompt("", history, "tell more")
	assert.Equal(t, "History:\nnone\n\nUser: what is go?\nAssistant: a language\nUser: tell more\n\nUser message:\ntell more", prompt)

	prompt = BuildPrompt("we talked about go", nil, "hi")
	assert.Equal(t, "History:\nwe talked about go\n\n\nUser message:\nhi", prompt)
}
