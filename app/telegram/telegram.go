// main package to control telegram bot
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatrelay/m/v2/app/config"
	"chatrelay/m/v2/app/db/redis"
	"chatrelay/m/v2/app/lib"
	"chatrelay/m/v2/app/models"
	"chatrelay/m/v2/app/util"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"gopkg.in/cenkalti/backoff.v1"
)

const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

type Bot struct {
	*telego.Bot
	Dispatcher    *Dispatcher
	Cache         redis.Client
	WebhookSecret string
}

func NewBot(cfg *config.Config) (*telego.Bot, error) {
	bot, err := telego.NewBot(cfg.TelegramBotToken, util.GetBotLoggerOption(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	botInfo, err := bot.GetMe()
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}
	log.Infof("Bot info: %+v", botInfo)
	cfg.BotName = botInfo.Username
	return bot, nil
}

// RegisterWebhook points Telegram at baseURL+path, retrying with exponential backoff.
func (b *Bot) RegisterWebhook(baseURL, path string, maxElapsed time.Duration) error {
	params := &telego.SetWebhookParams{
		URL:            baseURL + path,
		SecretToken:    b.WebhookSecret,
		AllowedUpdates: []string{"message"},
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxElapsed
	return backoff.RetryNotify(func() error {
		return b.SetWebhook(params)
	}, policy, func(err error, wait time.Duration) {
		log.Warnf("RegisterWebhook: setWebhook failed, retrying in %s: %v", wait, err)
	})
}

// Handler acknowledges every update with {"status":"ok"}; failures are only logged.
func (b *Bot) Handler(ctx *fasthttp.RequestCtx) {
	if b.WebhookSecret != "" && string(ctx.Request.Header.Peek(SecretTokenHeader)) != b.WebhookSecret {
		log.Warnf("Webhook called with invalid secret token from %s", ctx.RemoteIP())
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		return
	}
	defer acknowledge(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Recovered from panic while handling update: %v", r)
		}
	}()

	var update telego.Update
	if err := json.Unmarshal(ctx.PostBody(), &update); err != nil {
		log.Warnf("Failed to parse update: %v", err)
		return
	}
	if update.Message == nil {
		log.Debugf("Ignoring update %d without message", update.UpdateID)
		return
	}
	if !redis.MarkUpdateProcessed(context.Background(), b.Cache, update.UpdateID) {
		log.Infof("Update %d was already processed", update.UpdateID)
		return
	}
	b.handleMessage(update.Message)
}

func (b *Bot) handleMessage(message *telego.Message) {
	chatIDString := util.GetChatIDString(message)
	ctx, cancelContext, err := lib.SetupContext(b.Cache, chatIDString, lib.TelegramClientName)
	if err != nil {
		if err == lib.ErrUserBanned {
			log.Infof("User %s is banned", chatIDString)
			return
		}
		log.Errorf("Error setting up context: %v", err)
		return
	}
	defer cancelContext()

	if err := b.Dispatcher.HandleText(ctx, chatIDString, message.Text); err != nil {
		log.Errorf("Failed to handle message from chat %s: %v", chatIDString, err)
	}
}

func acknowledge(ctx *fasthttp.RequestCtx) {
	body, _ := json.Marshal(models.WebhookResponse{Status: "ok"})
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// WithRequestTimeout bounds every route except the webhook, which must always answer with the
// acknowledgement and is bounded by the per-update context instead.
func WithRequestTimeout(webhookPath string, next fasthttp.RequestHandler, timeout time.Duration) fasthttp.RequestHandler {
	bounded := fasthttp.TimeoutHandler(next, timeout, "Request timeout")
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == webhookPath {
			next(ctx)
			return
		}
		bounded(ctx)
	}
}
