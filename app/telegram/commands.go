package telegram

import (
	"context"
	"fmt"
	"strings"

	"chatrelay/m/v2/app/ai"
	"chatrelay/m/v2/app/config"
	"chatrelay/m/v2/app/lib"
	"chatrelay/m/v2/app/models"
	"chatrelay/m/v2/app/util"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

type Command string

const (
	StartCommand      Command = "/start"
	HelpCommand       Command = "/help"
	YoutubeCommand    Command = "/youtube"
	NewChatCommand    Command = "/newchat"
	Summary100Command Command = "/summary100"
	SummaryAllCommand Command = "/summaryall"
	EmptyCommand      Command = ""
)

const (
	WelcomeText        = "Hi! Send me a message or pick one of the options below."
	HelpText           = "/start\n/newchat\n/summary100\n/summaryall\n/youtube"
	NewChatText        = "A new chat has started."
	SummaryCreatedText = "Summary created."
	QuotaExceededText  = "Your monthly usage limit has been reached."
	ErrorText          = "Something went wrong, please try again later."
)

// Messenger delivers messages to a chat, *telego.Bot satisfies it.
type Messenger interface {
	SendMessage(params *telego.SendMessageParams) (*telego.Message, error)
}

// Dispatcher routes an inbound text message to exactly one handler.
type Dispatcher struct {
	Messenger     Messenger
	Usage         *lib.UsageTracker
	Sessions      *lib.SessionManager
	AI            ai.Completer
	Metrics       statsd.ClientInterface
	HistoryWindow int
	YoutubeURL    string
}

func NewDispatcher(cfg *config.Config, messenger Messenger, usage *lib.UsageTracker, sessions *lib.SessionManager, completer ai.Completer, metrics statsd.ClientInterface) *Dispatcher {
	return &Dispatcher{
		Messenger:     messenger,
		Usage:         usage,
		Sessions:      sessions,
		AI:            completer,
		Metrics:       metrics,
		HistoryWindow: cfg.SessionHistoryWindow,
		YoutubeURL:    cfg.YoutubeChannelURL,
	}
}

// ParseCommand classifies text by case-insensitive prefix; plain chat messages yield EmptyCommand.
func ParseCommand(text string) Command {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, command := range []Command{StartCommand, HelpCommand, YoutubeCommand, NewChatCommand, Summary100Command, SummaryAllCommand} {
		if strings.HasPrefix(lower, string(command)) {
			return command
		}
	}
	return EmptyCommand
}

// Menu is the reply keyboard attached to command and chat replies.
func Menu() *telego.ReplyKeyboardMarkup {
	return &telego.ReplyKeyboardMarkup{
		Keyboard: [][]telego.KeyboardButton{
			{{Text: string(NewChatCommand)}, {Text: string(YoutubeCommand)}},
			{{Text: string(Summary100Command)}, {Text: string(SummaryAllCommand)}},
			{{Text: string(HelpCommand)}},
		},
		ResizeKeyboard: true,
	}
}

// HandleText runs the admission check once and then a single command or chat branch.
func (d *Dispatcher) HandleText(ctx context.Context, chatID string, text string) error {
	text = strings.TrimSpace(text)

	user, admission, err := d.Usage.Admit(ctx, chatID)
	switch admission {
	case lib.Unavailable:
		log.Errorf("Admission failed for chat %s: %v", chatID, err)
		return d.reply(chatID, ErrorText, false)
	case lib.Rejected:
		return d.reply(chatID, QuotaExceededText, false)
	}

	command := ParseCommand(text)
	if command != EmptyCommand {
		log.Infof("Handling %s command from chat %s", command, chatID)
		d.Metrics.Incr("command", []string{"command:" + string(command)}, 1)
	}

	switch command {
	case StartCommand:
		return d.reply(chatID, WelcomeText, true)
	case HelpCommand:
		return d.reply(chatID, HelpText, true)
	case YoutubeCommand:
		return d.reply(chatID, "Channel: "+d.YoutubeURL, true)
	case NewChatCommand:
		return d.handleNewChat(ctx, chatID)
	case Summary100Command, SummaryAllCommand:
		return d.handleSummary(ctx, chatID, text)
	default:
		return d.handleChatMessage(ctx, chatID, user, text)
	}
}

func (d *Dispatcher) handleNewChat(ctx context.Context, chatID string) error {
	if _, err := d.Sessions.StartNewSession(ctx, chatID); err != nil {
		log.Errorf("Failed to start a new session for chat %s: %v", chatID, err)
		return d.reply(chatID, ErrorText, false)
	}
	return d.reply(chatID, NewChatText, true)
}

func (d *Dispatcher) handleSummary(ctx context.Context, chatID string, text string) error {
	limit := config.SummaryWindowAll
	if strings.Contains(text, "100") {
		limit = config.SummaryWindowRecent
	}
	messages, err := d.Sessions.UserHistory(ctx, chatID, limit)
	if err != nil {
		log.Errorf("Failed to fetch history of chat %s: %v", chatID, err)
	}
	summary := lib.Summarize(ctx, d.AI, messages)

	session, err := d.Sessions.GetActiveSession(ctx, chatID)
	if err != nil {
		log.Errorf("Failed to get active session for chat %s: %v", chatID, err)
		return d.reply(chatID, ErrorText, false)
	}
	if err := d.Sessions.RecordSummary(ctx, session.ID, summary); err != nil {
		log.Errorf("Failed to record summary for chat %s: %v", chatID, err)
		return d.reply(chatID, ErrorText, false)
	}
	return d.reply(chatID, SummaryCreatedText, true)
}

func (d *Dispatcher) handleChatMessage(ctx context.Context, chatID string, user *models.MongoUser, text string) error {
	d.Metrics.Incr("chat_message", nil, 1)
	session, err := d.Sessions.GetActiveSession(ctx, chatID)
	if err != nil {
		log.Errorf("Failed to get active session for chat %s: %v", chatID, err)
		return d.reply(chatID, ErrorText, false)
	}

	if err := d.Sessions.SaveMessage(ctx, session.ID, chatID, models.UserRole, text); err != nil {
		log.Warnf("Failed to save user message of chat %s: %v", chatID, err)
	}
	history, err := d.Sessions.SessionHistory(ctx, session.ID, d.HistoryWindow)
	if err != nil {
		log.Warnf("Failed to fetch session history of chat %s: %v", chatID, err)
	}

	answer := d.AI.Complete(ctx, lib.BuildPrompt(session.Context, history, text))

	if err := d.Sessions.SaveMessage(ctx, session.ID, chatID, models.AssistantRole, answer); err != nil {
		log.Warnf("Failed to save assistant message of chat %s: %v", chatID, err)
	}
	if err := d.Usage.Increment(ctx, user); err != nil {
		log.Warnf("Failed to increment usage of chat %s: %v", chatID, err)
	}
	return d.reply(chatID, answer, true)
}

// reply sends text in Telegram sized chunks, the menu goes with the last one.
func (d *Dispatcher) reply(chatID string, text string, withMenu bool) error {
	id, err := util.ChatIDFromString(chatID)
	if err != nil {
		return err
	}
	chunks := util.ChunkString(text, util.TelegramMessageLimit)
	if len(chunks) == 0 {
		chunks = []string{text}
	}
	for i, chunk := range chunks {
		params := &telego.SendMessageParams{
			ChatID:    id,
			Text:      chunk,
			ParseMode: telego.ModeMarkdown,
		}
		if withMenu && i == len(chunks)-1 {
			params.ReplyMarkup = Menu()
		}
		log.Debugf("Sending message to chat %s: %s", chatID, chunk)
		if _, err := d.Messenger.SendMessage(params); err != nil {
			log.Errorf("Failed to send message to chat %s: %v", chatID, err)
			return fmt.Errorf("reply: %w", err)
		}
	}
	return nil
}
