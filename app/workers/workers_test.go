package workers

import (
	"sync/atomic"
	"testing"
	"time"

	"chatrelay/m/v2/app/config"

	"github.com/stretchr/testify/assert"
)

func TestShouldRun(t *testing.T) {
	w := NewWorker(nil, &config.Config{}, time.Hour, func() {}, true)

	w.Now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	assert.True(t, w.shouldRun())

	w.Now = func() time.Time { return time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC) }
	assert.False(t, w.shouldRun())

	w.Monthly = false
	assert.True(t, w.shouldRun())
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	var runs int32
	w := NewWorker(nil, &config.Config{BotName: "bot"}, time.Hour, func() {
		atomic.AddInt32(&runs, 1)
	}, false)

	done := make(chan struct{})
	go func() {
		w.Start()
		close(done)
	}()
	w.StopWorker()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	assert.Equal(t, "bot", w.MainBotName)
}

func TestStartRunsOnTicks(t *testing.T) {
	var runs int32
	w := NewWorker(nil, &config.Config{}, 10*time.Millisecond, func() {
		atomic.AddInt32(&runs, 1)
	}, false)

	go w.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, time.Second, 5*time.Millisecond)
	w.StopWorker()
}
