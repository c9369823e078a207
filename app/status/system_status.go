package status

import (
	"context"
	"time"

	"chatrelay/m/v2/app/db/mongo"
	"chatrelay/m/v2/app/db/redis"
	"chatrelay/m/v2/app/lib"
	"chatrelay/m/v2/app/models"

	"github.com/sirupsen/logrus"
)

type SystemStatus struct {
	MongoDB *Status     `json:"mongodb"`
	Redis   *Status     `json:"redis"`
	AI      *Status     `json:"ai"`
	Time    time.Time   `json:"time"`
	Usage   SystemUsage `json:"usage"`
}

type SystemUsage struct {
	TotalUsers int64  `json:"total_users"`
	Month      string `json:"month"`
}

// Status
type Status struct {
	Available bool `json:"available"`
}

// AIChecker reports whether the completion service answers.
type AIChecker interface {
	IsAvailable(ctx context.Context) bool
}

// SystemStatusHandler is a handler for system status
type SystemStatusHandler struct {
	MongoDB mongo.MongoClient
	Redis   redis.Client
	AI      AIChecker
}

// New creates a new instance of SystemStatusHandler
func New(mongoDB mongo.MongoClient, redis redis.Client, ai AIChecker) *SystemStatusHandler {
	return &SystemStatusHandler{
		MongoDB: mongoDB,
		Redis:   redis,
		AI:      ai,
	}
}

// GetSystemStatus gets a status of the system
func (h *SystemStatusHandler) GetSystemStatus() SystemStatus {
	mongoAvailable := false
	ctxPing, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPing()
	if h.MongoDB != nil {
		err := h.MongoDB.Ping(ctxPing, nil)
		if err != nil {
			logrus.WithError(err).Warn("GetSystemStatus: failed to ping MongoDB")
		} else {
			mongoAvailable = true
		}
	}

	aiContext := context.WithValue(context.Background(), models.UserContext{}, "SYSTEM:STATUS")
	aiContext = context.WithValue(aiContext, models.ClientContext{}, "none")
	aiContext, cancelAI := context.WithTimeout(aiContext, lib.TIMEOUT)
	defer cancelAI()

	now := time.Now()
	status := SystemStatus{
		MongoDB: &Status{
			Available: mongoAvailable,
		},
		Redis: &Status{
			Available: h.Redis != nil && h.Redis.Ping(context.Background()).Err() == nil,
		},
		AI: &Status{
			Available: h.AI != nil && h.AI.IsAvailable(aiContext),
		},
		Usage: SystemUsage{Month: lib.BillingMonth(now)},
		Time:  now,
	}
	if status.MongoDB.Available {
		users, err := h.MongoDB.GetUsersCount(context.Background())
		if err != nil {
			logrus.WithError(err).Warn("GetSystemStatus: failed to count users")
		}
		status.Usage.TotalUsers = users
	}
	return status
}
