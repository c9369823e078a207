// Run on start
package onstart

import (
	"context"
	"time"

	"chatrelay/m/v2/app/db/mongo"

	log "github.com/sirupsen/logrus"
	"gopkg.in/cenkalti/backoff.v1"
)

// Run prepares the store before the webhook starts taking traffic.
func Run(store mongo.MongoClient, maxElapsed time.Duration) error {
	log.Info("[onstart] ensuring indexes..")

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxElapsed
	err := backoff.RetryNotify(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return store.EnsureIndexes(ctx)
	}, policy, func(err error, wait time.Duration) {
		log.Warnf("[onstart] failed to ensure indexes, retrying in %s: %v", wait, err)
	})
	if err != nil {
		log.Errorf("[onstart] failed to ensure indexes: %v", err)
		return err
	}
	log.Info("[onstart] finished ensuring indexes")
	return nil
}
