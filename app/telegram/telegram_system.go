package telegram

import (
	"io"
	"math/rand"
	"net/http"
	"strings"

	"chatrelay/m/v2/app/config"
	"chatrelay/m/v2/app/models"
	"chatrelay/m/v2/app/util"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// SystemNotifier posts operational messages to the admin chat.
type SystemNotifier struct {
	Messenger
	ChatID telego.ChatID
	Dummy  bool
}

// NewSystemNotifier sends through bot in production when an admin chat is configured,
// otherwise through a stub bot that never leaves the process.
func NewSystemNotifier(cfg *config.Config, bot Messenger) *SystemNotifier {
	if cfg.IsProduction() && cfg.TelegramSystemTo != 0 && bot != nil {
		return &SystemNotifier{Messenger: bot, ChatID: tu.ID(cfg.TelegramSystemTo)}
	}
	return &SystemNotifier{Messenger: newStubBot(cfg), ChatID: tu.ID(cfg.TelegramSystemTo), Dummy: true}
}

func (n *SystemNotifier) Notify(text string) {
	if _, err := n.SendMessage(tu.Message(n.ChatID, text)); err != nil {
		log.Errorf("Failed to send system message: %v", err)
	}
}

// newStubBot creates new stub bot instance, that can be used for testing
func newStubBot(cfg *config.Config) *telego.Bot {
	stubBot, err := telego.NewBot(generateStubToken(), telego.WithHTTPClient(&http.Client{
		Transport: models.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"ok": true, "result": {}}`)),
			}, nil
		}),
	}), util.GetBotLoggerOption(cfg))
	if err != nil {
		log.Fatalf("Failed to create stub bot: %v", err)
	}
	return stubBot
}

// stub token that matches the pattern ^\d{9,10}:[\w-]{35}$
func generateStubToken() string {
	const digits = "0123456789"
	const alphaNum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"

	tokenBuilder := strings.Builder{}
	for i := 0; i < 9; i++ {
		tokenBuilder.WriteByte(digits[rand.Intn(len(digits))])
	}
	tokenBuilder.WriteString(":")
	for i := 0; i < 35; i++ {
		tokenBuilder.WriteByte(alphaNum[rand.Intn(len(alphaNum))])
	}
	return tokenBuilder.String()
}
