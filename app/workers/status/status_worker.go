// Run regularly to check status of the system and persist it to the redis
package status

import (
	"encoding/json"
	"time"

	"chatrelay/m/v2/app/db/redis"
	"chatrelay/m/v2/app/status"
	"chatrelay/m/v2/app/workers"

	"github.com/DataDog/datadog-go/v5/statsd"
	log "github.com/sirupsen/logrus"
)

const SystemStatusKey = "system-status"

type Checker struct {
	Status      *status.SystemStatusHandler
	Cache       redis.Client
	Metrics     statsd.ClientInterface
	Notifier    workers.Notifier
	MainBotName string
	CacheTTL    time.Duration
}

func (c *Checker) Run() {
	systemStatus, err := redis.WrapInCache(c.Cache, SystemStatusKey, c.CacheTTL, c.FetchStatus)()
	if err != nil {
		log.Errorf("failed to fetch system status: %s", err)
		return
	}
	log.Debugf("system status: %s", systemStatus)
}

func (c *Checker) FetchStatus() (string, error) {
	systemStatus := c.Status.GetSystemStatus()
	c.Metrics.Gauge("status_worker.mongo_db_available", boolToFloat64(systemStatus.MongoDB.Available), nil, 1)
	c.Metrics.Gauge("status_worker.redis_available", boolToFloat64(systemStatus.Redis.Available), nil, 1)
	c.Metrics.Gauge("status_worker.ai_available", boolToFloat64(systemStatus.AI.Available), nil, 1)
	c.Metrics.Gauge("status_worker.total_users", float64(systemStatus.Usage.TotalUsers), nil, 1)
	if !systemStatus.MongoDB.Available {
		c.reportUnavailableStatus("MongoDB")
	}
	if !systemStatus.Redis.Available {
		c.reportUnavailableStatus("Redis")
	}
	if !systemStatus.AI.Available {
		c.reportUnavailableStatus("AI API")
	}
	statusBytes, err := json.Marshal(systemStatus)
	if err != nil {
		return "", err
	}
	return string(statusBytes), nil
}

func (c *Checker) reportUnavailableStatus(systemName string) {
	message := "🔥 " + c.MainBotName + ": " + systemName + " is down 🔥"
	log.Error(message)
	if c.Notifier == nil {
		log.Error("System notifier is not initialized")
		return
	}
	c.Notifier.Notify(message)
}

func boolToFloat64(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
