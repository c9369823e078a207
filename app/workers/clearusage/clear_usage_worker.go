// Run every month to zero the usage of users still counting a past month
package clearusage

import (
	"context"
	"time"

	"chatrelay/m/v2/app/db/mongo"
	"chatrelay/m/v2/app/lib"

	"github.com/DataDog/datadog-go/v5/statsd"
	log "github.com/sirupsen/logrus"
)

type Job struct {
	Store   mongo.MongoClient
	Metrics statsd.ClientInterface
	Now     func() time.Time
}

func New(store mongo.MongoClient, metrics statsd.ClientInterface) *Job {
	return &Job{Store: store, Metrics: metrics, Now: time.Now}
}

func (j *Job) Run() {
	month := lib.BillingMonth(j.Now())
	log.Infof("clearing usage of users not in %s..", month)

	ctx, cancel := context.WithTimeout(context.Background(), lib.TIMEOUT)
	defer cancel()
	count, err := j.Store.ResetStaleUsage(ctx, month)
	if err != nil {
		log.Errorf("failed to clear usage for %s: %s", month, err)
		return
	}
	j.Metrics.Gauge("clear_usage_worker.users", float64(count), []string{"month:" + month}, 1)
	log.Infof("finished usage clearing, %d users reset for %s", count, month)
}
