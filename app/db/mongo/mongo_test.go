package mongo

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"chatrelay/m/v2/app/models"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tryvium-travels/memongo"
)

var MockMongoServer *memongo.Server

func TestMain(m *testing.M) {
	opts := &memongo.Options{
		MongoVersion: "6.0.13",
	}
	if runtime.GOARCH == "arm64" {
		if runtime.GOOS == "darwin" {
			// Only set the custom url as workaround for arm64 macs
			opts.DownloadURL = "https://fastdl.mongodb.org/osx/mongodb-macos-x86_64-6.0.13.tgz"
		}
	}

	var err error
	MockMongoServer, err = memongo.StartWithOptions(opts)
	if err != nil {
		log.Warnf("memongo unavailable, store tests will be skipped: %v", err)
		MockMongoServer = nil
	}
	code := m.Run()
	if MockMongoServer != nil {
		MockMongoServer.Stop()
	}
	os.Exit(code)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	if MockMongoServer == nil {
		t.Skip("no mongod binary available")
	}
	uri := MockMongoServer.URIWithRandomDB()

	// parse db name from uri
	dbName := uri[strings.LastIndex(uri, "/")+1:]
	client := NewClient(uri, dbName)
	require.NoError(t, client.EnsureIndexes(context.Background()))
	return client
}

func TestGetOrCreateUser(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user, created, err := client.GetOrCreateUser(ctx, "111", "2026-10")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "111", user.TelegramID)
	assert.Equal(t, "2026-10", user.Month)
	assert.Equal(t, 0, user.UsageCount)

	again, created, err := client.GetOrCreateUser(ctx, "111", "2026-11")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
	// existing users keep their stored month
	assert.Equal(t, "2026-10", again.Month)

	count, err := client.GetUsersCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUsageCounters(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user, _, err := client.GetOrCreateUser(ctx, "222", "2026-09")
	require.NoError(t, err)
	require.NoError(t, client.IncrementUserUsage(ctx, user.ID))
	require.NoError(t, client.IncrementUserUsage(ctx, user.ID))

	user, _, err = client.GetOrCreateUser(ctx, "222", "2026-09")
	require.NoError(t, err)
	assert.Equal(t, 2, user.UsageCount)

	require.NoError(t, client.ResetUserUsage(ctx, user.ID, "2026-10"))
	user, _, err = client.GetOrCreateUser(ctx, "222", "2026-10")
	require.NoError(t, err)
	assert.Equal(t, 0, user.UsageCount)
	assert.Equal(t, "2026-10", user.Month)

	err = client.IncrementUserUsage(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResetStaleUsage(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	stale, _, err := client.GetOrCreateUser(ctx, "1", "2026-09")
	require.NoError(t, err)
	require.NoError(t, client.IncrementUserUsage(ctx, stale.ID))
	current, _, err := client.GetOrCreateUser(ctx, "2", "2026-10")
	require.NoError(t, err)
	require.NoError(t, client.IncrementUserUsage(ctx, current.ID))

	reset, err := client.ResetStaleUsage(ctx, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	current, _, err = client.GetOrCreateUser(ctx, "2", "2026-10")
	require.NoError(t, err)
	assert.Equal(t, 1, current.UsageCount)
}

func TestSessionsSingleActive(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateSession(ctx, &models.MongoSession{UserID: "333", Active: true}))
	err := client.CreateSession(ctx, &models.MongoSession{UserID: "333", Active: true})
	assert.True(t, errors.Is(err, ErrDuplicate), "partial unique index must reject a second active session, got %v", err)

	deactivated, err := client.DeactivateSessions(ctx, "333")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deactivated)

	session := &models.MongoSession{UserID: "333", Active: true}
	require.NoError(t, client.CreateSession(ctx, session))
	require.NoError(t, client.UpdateSessionContext(ctx, session.ID, "summary"))

	active, err := client.FindActiveSessions(ctx, "333")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, session.ID, active[0].ID)
	assert.Equal(t, "summary", active[0].Context)

	err = client.UpdateSessionContext(ctx, "missing", "x")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListChatMessagesNewestFirst(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, client.CreateChatMessage(ctx, &models.MongoChatMessage{
			SessionID: "s1",
			UserID:    "444",
			Role:      models.UserRole,
			Content:   content,
		}))
	}
	require.NoError(t, client.CreateChatMessage(ctx, &models.MongoChatMessage{
		SessionID: "s2",
		UserID:    "444",
		Role:      models.AssistantRole,
		Content:   "other session",
	}))

	messages, err := client.ListChatMessages(ctx, models.ChatFilter{SessionID: "s1"}, 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	for _, message := range messages {
		assert.Equal(t, "s1", message.SessionID)
	}
	assert.False(t, messages[0].CreatedAt.Before(messages[1].CreatedAt))

	messages, err = client.ListChatMessages(ctx, models.ChatFilter{UserID: "444"}, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 4)
}

func TestListChatMessagesSameTimestamp(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, message := range []*models.MongoChatMessage{
		{SessionID: "s1", UserID: "555", Role: models.UserRole, Content: "question", CreatedAt: at},
		{SessionID: "s1", UserID: "555", Role: models.AssistantRole, Content: "fallback", CreatedAt: at},
	} {
		require.NoError(t, client.CreateChatMessage(ctx, message))
	}

	messages, err := client.ListChatMessages(ctx, models.ChatFilter{SessionID: "s1"}, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "fallback", messages[0].Content)
	assert.Equal(t, "question", messages[1].Content)
}
