package lib

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/m/v2/app/db/mongo"
	"chatrelay/m/v2/app/models"

	log "github.com/sirupsen/logrus"
)

// SessionManager owns the lifecycle of user sessions and their message log.
type SessionManager struct {
	store mongo.MongoClient
}

func NewSessionManager(store mongo.MongoClient) *SessionManager {
	return &SessionManager{store: store}
}

// GetActiveSession returns the user's active session, opening one when there is none.
func (m *SessionManager) GetActiveSession(ctx context.Context, userID string) (*models.MongoSession, error) {
	sessions, err := m.store.FindActiveSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetActiveSession: %w", err)
	}
	if len(sessions) > 0 {
		if len(sessions) > 1 {
			log.Warnf("GetActiveSession: user %s has %d active sessions, using the newest", userID, len(sessions))
		}
		return &sessions[0], nil
	}

	session, createErr := m.createSession(ctx, userID)
	if createErr == nil {
		return session, nil
	}
	if !errors.Is(createErr, mongo.ErrDuplicate) {
		return nil, fmt.Errorf("GetActiveSession: %w", createErr)
	}

	// another request opened the session first
	sessions, err = m.store.FindActiveSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetActiveSession: %w", err)
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("GetActiveSession: no active session of %s after conflict: %w", userID, createErr)
	}
	return &sessions[0], nil
}

// StartNewSession closes every active session of the user and opens an empty one.
func (m *SessionManager) StartNewSession(ctx context.Context, userID string) (*models.MongoSession, error) {
	closed, err := m.store.DeactivateSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("StartNewSession: %w", err)
	}
	log.Infof("Closed %d sessions of user %s", closed, userID)

	session, err := m.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("StartNewSession: %w", err)
	}
	return session, nil
}

// RecordSummary overwrites the context of sessionID.
func (m *SessionManager) RecordSummary(ctx context.Context, sessionID, text string) error {
	if err := m.store.UpdateSessionContext(ctx, sessionID, text); err != nil {
		return fmt.Errorf("RecordSummary: %w", err)
	}
	return nil
}

func (m *SessionManager) SaveMessage(ctx context.Context, sessionID, userID string, role models.Role, content string) error {
	err := m.store.CreateChatMessage(ctx, &models.MongoChatMessage{
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   content,
	})
	if err != nil {
		return fmt.Errorf("SaveMessage: %w", err)
	}
	return nil
}

// SessionHistory returns up to limit newest messages of the session in chronological order.
func (m *SessionManager) SessionHistory(ctx context.Context, sessionID string, limit int) ([]models.MongoChatMessage, error) {
	return m.history(ctx, models.ChatFilter{SessionID: sessionID}, limit)
}

// UserHistory returns up to limit newest messages of the user across sessions, chronologically.
func (m *SessionManager) UserHistory(ctx context.Context, userID string, limit int) ([]models.MongoChatMessage, error) {
	return m.history(ctx, models.ChatFilter{UserID: userID}, limit)
}

func (m *SessionManager) history(ctx context.Context, filter models.ChatFilter, limit int) ([]models.MongoChatMessage, error) {
	messages, err := m.store.ListChatMessages(ctx, filter, int64(limit))
	if err != nil {
		return []models.MongoChatMessage{}, fmt.Errorf("history: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (m *SessionManager) createSession(ctx context.Context, userID string) (*models.MongoSession, error) {
	session := &models.MongoSession{
		UserID: userID,
		Active: true,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}
