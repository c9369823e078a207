package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatrelay/m/v2/app/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	MongoUserCollection    = "users"
	MongoSessionCollection = "sessions"
	MongoChatCollection    = "chats"
)

// chatOrder is newest first, ties on created_at broken by _id.
var chatOrder = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate document")
)

// Client is a mongo client
type Client struct {
	*mongo.Client
	dbName string
}

type MongoClient interface {
	Disconnect(ctx context.Context) error
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	EnsureIndexes(ctx context.Context) error

	GetOrCreateUser(ctx context.Context, telegramID, month string) (user *models.MongoUser, created bool, err error)
	GetUsersCount(ctx context.Context) (int64, error)
	ResetUserUsage(ctx context.Context, userID, month string) error
	IncrementUserUsage(ctx context.Context, userID string) error
	ResetStaleUsage(ctx context.Context, month string) (int64, error)

	FindActiveSessions(ctx context.Context, userID string) ([]models.MongoSession, error)
	CreateSession(ctx context.Context, session *models.MongoSession) error
	DeactivateSessions(ctx context.Context, userID string) (int64, error)
	UpdateSessionContext(ctx context.Context, sessionID, sessionContext string) error

	CreateChatMessage(ctx context.Context, message *models.MongoChatMessage) error
	ListChatMessages(ctx context.Context, filter models.ChatFilter, limit int64) ([]models.MongoChatMessage, error)
}

// NewClient creates a new mongo client
func NewClient(connection, dbName string) *Client {
	return &Client{
		Client: mustConnect(connection),
		dbName: dbName,
	}
}

// mustConnect connects to mongo and panics on error
func mustConnect(connection string) *mongo.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connection).SetMaxConnecting(25))
	if err != nil {
		logrus.WithError(err).Panic("failed to connect to mongo")
	}

	return client
}

func (c *Client) collection(name string) *mongo.Collection {
	return c.Database(c.dbName).Collection(name)
}

// EnsureIndexes creates the indexes the session and usage invariants rely on.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	_, err := c.collection(MongoUserCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "telegram_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("EnsureIndexes: users: %w", err)
	}

	// at most one active session per user
	_, err = c.collection(MongoSessionCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"active": true}),
	})
	if err != nil {
		return fmt.Errorf("EnsureIndexes: sessions: %w", err)
	}

	_, err = c.collection(MongoChatCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("EnsureIndexes: chats: %w", err)
	}
	return nil
}

// GetOrCreateUser atomically returns the user for telegramID, inserting a fresh one
// with zero usage for month when none exists.
func (c *Client) GetOrCreateUser(ctx context.Context, telegramID, month string) (*models.MongoUser, bool, error) {
	newID := uuid.New().String()
	filter := bson.M{"telegram_id": telegramID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":         newID,
			"telegram_id": telegramID,
			"month":       month,
			"usage_count": 0,
			"created_at":  time.Now().UTC(),
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var user models.MongoUser
	err := c.collection(MongoUserCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&user)
	if mongo.IsDuplicateKeyError(err) {
		// concurrent upsert won the insert, the document exists now
		err = c.collection(MongoUserCollection).FindOne(ctx, filter).Decode(&user)
	}
	if err != nil {
		return nil, false, fmt.Errorf("GetOrCreateUser: failed to upsert user %s: %w", telegramID, err)
	}
	return &user, user.ID == newID, nil
}

func (c *Client) GetUsersCount(ctx context.Context) (int64, error) {
	count, err := c.collection(MongoUserCollection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("GetUsersCount: failed to get users count: %w", err)
	}
	return count, nil
}

func (c *Client) ResetUserUsage(ctx context.Context, userID, month string) error {
	filter := bson.M{"_id": userID}
	update := bson.M{
		"$set": bson.M{
			"month":       month,
			"usage_count": 0,
		},
	}
	res, err := c.collection(MongoUserCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("ResetUserUsage: failed to reset user %s: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("ResetUserUsage: user %s: %w", userID, ErrNotFound)
	}
	return nil
}

func (c *Client) IncrementUserUsage(ctx context.Context, userID string) error {
	filter := bson.M{"_id": userID}
	update := bson.M{"$inc": bson.M{"usage_count": 1}}
	res, err := c.collection(MongoUserCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("IncrementUserUsage: failed to update user %s: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("IncrementUserUsage: user %s: %w", userID, ErrNotFound)
	}
	return nil
}

// ResetStaleUsage zeroes usage of every user whose stored month differs from month.
func (c *Client) ResetStaleUsage(ctx context.Context, month string) (int64, error) {
	filter := bson.M{"month": bson.M{"$ne": month}}
	update := bson.M{
		"$set": bson.M{
			"month":       month,
			"usage_count": 0,
		},
	}
	res, err := c.collection(MongoUserCollection).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("ResetStaleUsage: failed to reset usage: %w", err)
	}
	return res.ModifiedCount, nil
}

func (c *Client) FindActiveSessions(ctx context.Context, userID string) ([]models.MongoSession, error) {
	filter := bson.M{"user_id": userID, "active": true}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := c.collection(MongoSessionCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("FindActiveSessions: failed to find sessions for %s: %w", userID, err)
	}
	sessions := []models.MongoSession{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("FindActiveSessions: failed to decode sessions for %s: %w", userID, err)
	}
	return sessions, nil
}

func (c *Client) CreateSession(ctx context.Context, session *models.MongoSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := c.collection(MongoSessionCollection).InsertOne(ctx, session)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("CreateSession: session for %s: %w", session.UserID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("CreateSession: failed to insert session for %s: %w", session.UserID, err)
	}
	return nil
}

func (c *Client) DeactivateSessions(ctx context.Context, userID string) (int64, error) {
	filter := bson.M{"user_id": userID, "active": true}
	update := bson.M{"$set": bson.M{"active": false}}
	res, err := c.collection(MongoSessionCollection).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("DeactivateSessions: failed to deactivate sessions for %s: %w", userID, err)
	}
	return res.ModifiedCount, nil
}

func (c *Client) UpdateSessionContext(ctx context.Context, sessionID, sessionContext string) error {
	filter := bson.M{"_id": sessionID}
	update := bson.M{"$set": bson.M{"context": sessionContext}}
	res, err := c.collection(MongoSessionCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("UpdateSessionContext: failed to update session %s: %w", sessionID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("UpdateSessionContext: session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// CreateChatMessage inserts message; ids are ObjectID hex strings so that messages written
// within the same millisecond keep their insertion order.
func (c *Client) CreateChatMessage(ctx context.Context, message *models.MongoChatMessage) error {
	if message.ID == "" {
		message.ID = primitive.NewObjectID().Hex()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	_, err := c.collection(MongoChatCollection).InsertOne(ctx, message)
	if err != nil {
		return fmt.Errorf("CreateChatMessage: failed to insert message for session %s: %w", message.SessionID, err)
	}
	return nil
}

// ListChatMessages returns the newest messages matching filter, newest first.
func (c *Client) ListChatMessages(ctx context.Context, filter models.ChatFilter, limit int64) ([]models.MongoChatMessage, error) {
	query := bson.M{}
	if filter.SessionID != "" {
		query["session_id"] = filter.SessionID
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	opts := options.Find().SetSort(chatOrder)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := c.collection(MongoChatCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("ListChatMessages: failed to find messages: %w", err)
	}
	messages := []models.MongoChatMessage{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("ListChatMessages: failed to decode messages: %w", err)
	}
	return messages, nil
}
