package lib

import (
	"context"
	"fmt"
	"time"

	"chatrelay/m/v2/app/db/redis"
	"chatrelay/m/v2/app/models"
)

var (
	TIMEOUT       = 2 * time.Minute
	ErrUserBanned = fmt.Errorf("user is banned")
)

type ClientName string

const (
	TelegramClientName ClientName = "telegram"
)

// SetupContext builds the request context for a chat, refusing banned chats.
func SetupContext(cache redis.Client, userId string, client ClientName) (currentContext context.Context, cancelContext context.CancelFunc, err error) {
	if redis.IsUserBanned(context.Background(), cache, userId) {
		return nil, nil, ErrUserBanned
	}

	currentContext = context.WithValue(context.Background(), models.UserContext{}, userId)
	currentContext = context.WithValue(currentContext, models.ClientContext{}, string(client))
	currentContext, cancelContext = context.WithTimeout(currentContext, TIMEOUT)
	return currentContext, cancelContext, nil
}

// BillingMonth is the quota period key of t.
func BillingMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}
