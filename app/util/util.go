package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"chatrelay/m/v2/app/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// TelegramMessageLimit is the maximum text length of a single Telegram message.
const TelegramMessageLimit = 4096

func Env(name string, defaultValue ...string) string {
	value, ok := os.LookupEnv(name)
	if !ok && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	Assert(ok, "Environment variable "+name+" not found")
	return value
}

func Assert(ok bool, args ...any) {
	if !ok {
		log.Fatal("Assertion failed, killing app!!!", append([]any{"FATAL:"}, args...))
		os.Exit(1)
	}
}

func GetBotLoggerOption(cfg *config.Config) telego.BotOption {
	if cfg.IsProduction() {
		return telego.WithDefaultLogger(false, true)
	} else {
		return telego.WithDefaultDebugLogger()
	}
}

func GetChatIDString(m *telego.Message) string {
	return fmt.Sprintf("%d", m.Chat.ID)
}

// ChatIDFromString converts a stored telegram id back into a chat id.
func ChatIDFromString(chatID string) (telego.ChatID, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return telego.ChatID{}, fmt.Errorf("ChatIDFromString: invalid chat id %q: %w", chatID, err)
	}
	return tu.ID(id), nil
}

func ChunkString(s string, chunkSize int) []string {
	chunks := []string{}
	lines := strings.Split(s, "\n")
	if len(lines) == 0 {
		return chunks
	}

	currentChunk := ""
	for i_line, line := range lines {
		if len(currentChunk)+len(line)+1 > chunkSize && currentChunk != "" {
			chunks = append(chunks, currentChunk)
			currentChunk = ""
		}
		if currentChunk != "" && i_line < len(lines) {
			currentChunk += "\n"
		}

		if len(line) > chunkSize {
			// split current line by words
			words := strings.Fields(line)
			currentChunk = ""
			for _, word := range words {
				if len(currentChunk)+len(word)+1 > chunkSize {
					chunks = append(chunks, currentChunk)
					currentChunk = ""
				}
				if currentChunk != "" {
					currentChunk += " "
				}
				currentChunk += word
			}
			if currentChunk != "" && i_line < len(lines)-1 {
				currentChunk += "\n"
			}
		} else {
			currentChunk += line
		}
	}
	if currentChunk != "" {
		chunks = append(chunks, currentChunk)
	}
	return chunks
}
