package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	r "github.com/go-redis/redis/v8"
)

// MockRedisClient is a mock for the Redis client in the redis package.
type MockRedisClient struct {
	Client
	mu   sync.Mutex
	data map[string]interface{}

	// Err, when set, fails every command.
	Err error
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		data: make(map[string]interface{}),
	}
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *r.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := r.NewStringCmd(ctx)
	if m.Err != nil {
		cmd.SetErr(m.Err)
		return cmd
	}
	if value, ok := m.data[key]; ok {
		strValue := fmt.Sprintf("%v", value) // Convert the value to a string
		cmd.SetVal(strValue)
	} else {
		cmd.SetVal("")
		cmd.SetErr(errors.New("key not found"))
	}
	return cmd
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *r.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := r.NewStatusCmd(ctx)
	if m.Err != nil {
		cmd.SetErr(m.Err)
		return cmd
	}
	m.data[key] = value
	cmd.SetVal("OK")
	return cmd
}

func (m *MockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *r.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := r.NewBoolCmd(ctx)
	if m.Err != nil {
		cmd.SetErr(m.Err)
		return cmd
	}
	if _, ok := m.data[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	m.data[key] = value
	cmd.SetVal(true)
	return cmd
}

func (m *MockRedisClient) Ping(ctx context.Context) *r.StatusCmd {
	cmd := r.NewStatusCmd(ctx)
	if m.Err != nil {
		cmd.SetErr(m.Err)
		return cmd
	}
	cmd.SetVal("PONG")
	return cmd
}
