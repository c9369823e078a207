// package to connect to AI API
package ai

import (
	"context"
	"net/http"
	"time"

	"chatrelay/m/v2/app/config"
	"chatrelay/m/v2/app/models"

	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

const (
	TIMEOUT = 60 * time.Second

	NoResponseText = "No response from the assistant."
	AIErrorText    = "The assistant is unavailable right now, please try again later."

	referer = "https://github.com/chatrelay"
	title   = "chatrelay"
)

// Completer turns a prompt into generated text, never failing.
type Completer interface {
	Complete(ctx context.Context, prompt string) string
}

type API struct {
	client *openai.Client
	model  string
}

// NewAPI creates new AI API
func NewAPI(cfg config.AI) *API {
	return NewAPIWithHTTPClient(cfg, &http.Client{
		Timeout:   TIMEOUT,
		Transport: withOpenRouterHeaders(http.DefaultTransport),
	})
}

func NewAPIWithHTTPClient(cfg config.AI, httpClient *http.Client) *API {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = httpClient
	return &API{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

func withOpenRouterHeaders(next http.RoundTripper) http.RoundTripper {
	return models.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req = req.Clone(req.Context())
		req.Header.Set("HTTP-Referer", referer)
		req.Header.Set("X-Title", title)
		return next.RoundTrip(req)
	})
}

// Complete sends prompt as a single user message and returns the first choice.
func (a *API) Complete(ctx context.Context, prompt string) string {
	content, err := a.complete(ctx, prompt)
	if err != nil {
		log.Errorf("Complete: AI request failed: %v", err)
		return AIErrorText
	}
	if content == "" {
		log.Warn("Complete: AI returned no choices")
		return NoResponseText
	}
	return content
}

func (a *API) complete(ctx context.Context, prompt string) (string, error) {
	timeNow := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", err
	}
	log.Debugf("Complete: model %s answered in %s, tokens: %d", a.model, time.Since(timeNow), resp.Usage.TotalTokens)
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// IsAvailable checks whether AI API is available
func (a *API) IsAvailable(ctx context.Context) bool {
	_, err := a.complete(ctx, "Reply only \"OK\"")
	if err != nil {
		log.Errorf("PING: API error: %+v", err)
		return false
	}
	return true
}
