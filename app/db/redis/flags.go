package redis

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const UpdateDedupTTL = 24 * time.Hour

func BannedKey(chatID string) string {
	return chatID + ":banned"
}

func UpdateKey(updateID int) string {
	return fmt.Sprintf("update:%d", updateID)
}

func IsUserBanned(ctx context.Context, c Client, chatID string) bool {
	if c == nil {
		return false
	}
	banned, err := c.Get(ctx, BannedKey(chatID)).Result()
	if err != nil {
		return false
	}
	return banned == "true"
}

// MarkUpdateProcessed records a Telegram update id and reports whether it was seen for the first time.
// Redis failures count as first delivery.
func MarkUpdateProcessed(ctx context.Context, c Client, updateID int) bool {
	if c == nil || updateID == 0 {
		return true
	}
	first, err := c.SetNX(ctx, UpdateKey(updateID), "1", UpdateDedupTTL).Result()
	if err != nil {
		log.Warnf("MarkUpdateProcessed: failed to record update %d: %v", updateID, err)
		return true
	}
	return first
}
