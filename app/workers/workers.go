package workers

import (
	"time"

	"chatrelay/m/v2/app/config"
)

const DAY_FOR_MONTHLY_RUNS = 1

// Notifier delivers operational alerts to the admins.
type Notifier interface {
	Notify(text string)
}

type Worker struct {
	Interval    time.Duration
	MainBotName string
	Monthly     bool
	Notifier    Notifier
	Run         func()
	Stop        chan struct{}
	Now         func() time.Time
}

func NewWorker(notifier Notifier, cfg *config.Config, interval time.Duration, run func(), monthly bool) *Worker {
	return &Worker{
		Interval:    interval,
		MainBotName: cfg.BotName,
		Monthly:     monthly,
		Notifier:    notifier,
		Run:         run,
		Stop:        make(chan struct{}),
		Now:         time.Now,
	}
}

func (w *Worker) Start() {
	if w.shouldRun() {
		w.Run()
	}
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if w.shouldRun() {
				w.Run()
			}
		case <-w.Stop:
			return
		}
	}
}

// shouldRun gates monthly workers to the first day of the month.
func (w *Worker) shouldRun() bool {
	return !w.Monthly || w.Now().UTC().Day() == DAY_FOR_MONTHLY_RUNS
}

func (w *Worker) StopWorker() {
	w.Stop <- struct{}{}
}
