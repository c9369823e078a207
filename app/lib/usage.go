package lib

import (
	"context"
	"fmt"
	"time"

	"chatrelay/m/v2/app/db/mongo"
	"chatrelay/m/v2/app/models"

	"github.com/DataDog/datadog-go/v5/statsd"
	log "github.com/sirupsen/logrus"
)

type Admission int

const (
	Admitted Admission = iota
	Rejected
	Unavailable
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case Rejected:
		return "rejected"
	default:
		return "unavailable"
	}
}

// UsageTracker owns the monthly quota counter of every user.
type UsageTracker struct {
	store   mongo.MongoClient
	metrics statsd.ClientInterface
	limit   int
	now     func() time.Time
}

func NewUsageTracker(store mongo.MongoClient, metrics statsd.ClientInterface, limit int) *UsageTracker {
	return &UsageTracker{
		store:   store,
		metrics: metrics,
		limit:   limit,
		now:     time.Now,
	}
}

// WithClock replaces the wall clock, used by tests.
func (t *UsageTracker) WithClock(now func() time.Time) *UsageTracker {
	t.now = now
	return t
}

// Admit resolves the user of telegramID, rolling the quota over on a new month,
// and decides whether the message may be processed.
func (t *UsageTracker) Admit(ctx context.Context, telegramID string) (*models.MongoUser, Admission, error) {
	month := BillingMonth(t.now())
	user, created, err := t.store.GetOrCreateUser(ctx, telegramID, month)
	if err != nil {
		return nil, Unavailable, fmt.Errorf("Admit: %w", err)
	}
	if created {
		log.Infof("New user %s for %s", user.ID, telegramID)
		t.metrics.Incr("usage.new_user", nil, 1)
	}

	if user.Month != month {
		log.Infof("Resetting usage of %s: %s -> %s (was %d)", telegramID, user.Month, month, user.UsageCount)
		if err := t.store.ResetUserUsage(ctx, user.ID, month); err != nil {
			return nil, Unavailable, fmt.Errorf("Admit: %w", err)
		}
		user.Month = month
		user.UsageCount = 0
		t.metrics.Incr("usage.month_reset", nil, 1)
	}

	if user.UsageCount >= t.limit {
		log.Infof("User %s usage limit exceeded: %d/%d", telegramID, user.UsageCount, t.limit)
		t.metrics.Incr("usage.exceeded", nil, 1)
		return user, Rejected, nil
	}
	return user, Admitted, nil
}

// Increment counts one AI answered message against the user's quota.
func (t *UsageTracker) Increment(ctx context.Context, user *models.MongoUser) error {
	if err := t.store.IncrementUserUsage(ctx, user.ID); err != nil {
		return fmt.Errorf("Increment: %w", err)
	}
	user.UsageCount++
	return nil
}
