package mongo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chatrelay/m/v2/app/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MockMongoDBClient is an in-memory MongoClient used by tests of the packages above the store.
type MockMongoDBClient struct {
	mu       sync.Mutex
	seq      int64
	Users    map[string]*models.MongoUser
	Sessions []*models.MongoSession
	Chats    []*models.MongoChatMessage

	// Err, when set, is returned by every call to simulate an unreachable store.
	Err error
}

func NewMockMongoDBClient(users ...models.MongoUser) *MockMongoDBClient {
	m := &MockMongoDBClient{
		Users: map[string]*models.MongoUser{},
	}
	for i := range users {
		user := users[i]
		if user.ID == "" {
			user.ID = uuid.New().String()
		}
		m.Users[user.TelegramID] = &user
	}
	return m
}

// nextTime hands out strictly increasing creation times so ordering is deterministic.
func (m *MockMongoDBClient) nextTime() time.Time {
	m.seq++
	return time.Unix(0, 0).UTC().Add(time.Duration(m.seq) * time.Millisecond)
}

func (m *MockMongoDBClient) Disconnect(ctx context.Context) error {
	return m.Err
}

func (m *MockMongoDBClient) Ping(ctx context.Context, rp *readpref.ReadPref) error {
	return m.Err
}

func (m *MockMongoDBClient) EnsureIndexes(ctx context.Context) error {
	return m.Err
}

func (m *MockMongoDBClient) GetOrCreateUser(ctx context.Context, telegramID, month string) (*models.MongoUser, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, false, m.Err
	}
	if user, ok := m.Users[telegramID]; ok {
		copied := *user
		return &copied, false, nil
	}
	user := &models.MongoUser{
		ID:         uuid.New().String(),
		TelegramID: telegramID,
		Month:      month,
		CreatedAt:  m.nextTime(),
	}
	m.Users[telegramID] = user
	copied := *user
	return &copied, true, nil
}

func (m *MockMongoDBClient) GetUsersCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return int64(len(m.Users)), nil
}

func (m *MockMongoDBClient) userByID(userID string) *models.MongoUser {
	for _, user := range m.Users {
		if user.ID == userID {
			return user
		}
	}
	return nil
}

func (m *MockMongoDBClient) ResetUserUsage(ctx context.Context, userID, month string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	user := m.userByID(userID)
	if user == nil {
		return fmt.Errorf("ResetUserUsage: user %s: %w", userID, ErrNotFound)
	}
	user.Month = month
	user.UsageCount = 0
	return nil
}

func (m *MockMongoDBClient) IncrementUserUsage(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	user := m.userByID(userID)
	if user == nil {
		return fmt.Errorf("IncrementUserUsage: user %s: %w", userID, ErrNotFound)
	}
	user.UsageCount++
	return nil
}

func (m *MockMongoDBClient) ResetStaleUsage(ctx context.Context, month string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var count int64
	for _, user := range m.Users {
		if user.Month != month {
			user.Month = month
			user.UsageCount = 0
			count++
		}
	}
	return count, nil
}

func (m *MockMongoDBClient) FindActiveSessions(ctx context.Context, userID string) ([]models.MongoSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	sessions := []models.MongoSession{}
	for i := len(m.Sessions) - 1; i >= 0; i-- {
		if m.Sessions[i].UserID == userID && m.Sessions[i].Active {
			sessions = append(sessions, *m.Sessions[i])
		}
	}
	return sessions, nil
}

func (m *MockMongoDBClient) CreateSession(ctx context.Context, session *models.MongoSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	session.CreatedAt = m.nextTime()
	copied := *session
	m.Sessions = append(m.Sessions, &copied)
	return nil
}

func (m *MockMongoDBClient) DeactivateSessions(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var count int64
	for _, session := range m.Sessions {
		if session.UserID == userID && session.Active {
			session.Active = false
			count++
		}
	}
	return count, nil
}

func (m *MockMongoDBClient) UpdateSessionContext(ctx context.Context, sessionID, sessionContext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, session := range m.Sessions {
		if session.ID == sessionID {
			session.Context = sessionContext
			return nil
		}
	}
	return fmt.Errorf("UpdateSessionContext: session %s: %w", sessionID, ErrNotFound)
}

func (m *MockMongoDBClient) CreateChatMessage(ctx context.Context, message *models.MongoChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if message.ID == "" {
		message.ID = primitive.NewObjectID().Hex()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = m.nextTime()
	}
	copied := *message
	m.Chats = append(m.Chats, &copied)
	return nil
}

func (m *MockMongoDBClient) ListChatMessages(ctx context.Context, filter models.ChatFilter, limit int64) ([]models.MongoChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	messages := []models.MongoChatMessage{}
	for _, message := range m.Chats {
		if filter.SessionID != "" && message.SessionID != filter.SessionID {
			continue
		}
		if filter.UserID != "" && message.UserID != filter.UserID {
			continue
		}
		messages = append(messages, *message)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID > messages[j].ID
		}
		return messages[i].CreatedAt.After(messages[j].CreatedAt)
	})
	if limit > 0 && int64(len(messages)) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// ActiveSessions is a test helper returning every active session of a user.
func (m *MockMongoDBClient) ActiveSessions(userID string) []models.MongoSession {
	sessions, _ := m.FindActiveSessions(context.Background(), userID)
	return sessions
}

// User is a test helper returning a copy of the stored user.
func (m *MockMongoDBClient) User(telegramID string) (models.MongoUser, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.Users[telegramID]
	if !ok {
		return models.MongoUser{}, false
	}
	return *user, true
}
