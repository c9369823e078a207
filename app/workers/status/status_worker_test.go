package status

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"chatrelay/m/v2/app/db/mongo"
	"chatrelay/m/v2/app/db/redis"
	"chatrelay/m/v2/app/status"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(text string) {
	n.messages = append(n.messages, text)
}

type stubAI struct {
	available bool
	calls     int
}

func (s *stubAI) IsAvailable(ctx context.Context) bool {
	s.calls++
	return s.available
}

func TestRunCachesStatusAndAlerts(t *testing.T) {
	store := mongo.NewMockMongoDBClient()
	store.Err = errors.New("no reachable servers")
	cache := redis.NewMockRedisClient()
	aiStub := &stubAI{available: false}
	notifier := &recordingNotifier{}
	checker := &Checker{
		Status:      status.New(store, cache, aiStub),
		Cache:       cache,
		Metrics:     &statsd.NoOpClient{},
		Notifier:    notifier,
		MainBotName: "chatrelay_bot",
		CacheTTL:    time.Minute,
	}

	checker.Run()

	assert.Equal(t, []string{
		"🔥 chatrelay_bot: MongoDB is down 🔥",
		"🔥 chatrelay_bot: AI API is down 🔥",
	}, notifier.messages)

	cached, err := cache.Get(context.Background(), SystemStatusKey).Result()
	require.NoError(t, err)
	var systemStatus status.SystemStatus
	require.NoError(t, json.Unmarshal([]byte(cached), &systemStatus))
	assert.False(t, systemStatus.MongoDB.Available)
	assert.True(t, systemStatus.Redis.Available)

	checker.Run()
	assert.Equal(t, 1, aiStub.calls)
}

func TestFetchStatusHealthy(t *testing.T) {
	notifier := &recordingNotifier{}
	checker := &Checker{
		Status:   status.New(mongo.NewMockMongoDBClient(), redis.NewMockRedisClient(), &stubAI{available: true}),
		Cache:    redis.NewMockRedisClient(),
		Metrics:  &statsd.NoOpClient{},
		Notifier: notifier,
	}

	statusJSON, err := checker.FetchStatus()

	require.NoError(t, err)
	assert.Contains(t, statusJSON, `"ai":{"available":true}`)
	assert.Empty(t, notifier.messages)
}
