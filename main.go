package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/m/v2/app/ai"
	"chatrelay/m/v2/app/config"
	"chatrelay/m/v2/app/db/mongo"
	"chatrelay/m/v2/app/db/redis"
	"chatrelay/m/v2/app/lib"
	"chatrelay/m/v2/app/status"
	"chatrelay/m/v2/app/telegram"
	"chatrelay/m/v2/app/util"
	"chatrelay/m/v2/app/workers"
	"chatrelay/m/v2/app/workers/clearusage"
	"chatrelay/m/v2/app/workers/onstart"
	statusworker "chatrelay/m/v2/app/workers/status"

	"github.com/DataDog/datadog-go/v5/statsd"
	fasthttpprom "github.com/carousell/fasthttp-prometheus-middleware"
	"github.com/fasthttp/router"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

func main() {
	done := make(chan struct{}, 1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	if cfg.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{
			DisableTimestamp: true,
		})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
			DisableColors: false,
		})
		log.SetLevel(log.TraceLevel)
	}

	var dataDogClient statsd.ClientInterface
	dataDogClient, err = statsd.New(cfg.DataDogAddress, statsd.WithNamespace("chatrelay."))
	if err != nil {
		if cfg.IsProduction() {
			log.Fatalf("error creating main DataDog client: %v", err)
		}
		log.Warnf("DataDog client unavailable, metrics disabled: %v", err)
		dataDogClient = &statsd.NoOpClient{}
	}
	err = dataDogClient.Count("main.start", 1, []string{"env:" + cfg.Environment}, 1)
	if err != nil {
		log.Errorf("error sending metric: %v", err)
	}

	cache := redis.NewClient(cfg.Redis)
	store := mongo.NewClient(cfg.MongoDBConnection, cfg.MongoDBName)
	aiAPI := ai.NewAPI(cfg.AI)

	// run onstart worker once
	if err := onstart.Run(store, time.Minute); err != nil {
		log.Fatalf("ERROR preparing store: %v", err)
	}

	bot, err := telegram.NewBot(cfg)
	if err != nil {
		log.Fatalf("ERROR creating bot: %v", err)
	}
	dispatcher := telegram.NewDispatcher(
		cfg,
		bot,
		lib.NewUsageTracker(store, dataDogClient, cfg.MonthlyUsageLimit),
		lib.NewSessionManager(store),
		aiAPI,
		dataDogClient,
	)
	telegramBot := &telegram.Bot{
		Bot:           bot,
		Dispatcher:    dispatcher,
		Cache:         cache,
		WebhookSecret: cfg.TelegramWebhookSecret,
	}
	systemNotifier := telegram.NewSystemNotifier(cfg, bot)

	rtr := router.New()
	rtr.GET("/", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		_, _ = ctx.WriteString("Telegram Bot Server is running!")
	})
	rtr.GET("/health", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		_, _ = ctx.WriteString("❤️ from robots")
	})
	rtr.POST(cfg.WebhookPath, telegramBot.Handler)

	prometheus := fasthttpprom.NewPrometheus("")
	prometheus.Use(rtr)

	server := &fasthttp.Server{
		Handler: telegram.WithRequestTimeout(cfg.WebhookPath, prometheus.Handler, time.Second*30),
		Name:    cfg.BotName,
	}

	// create status worker
	checker := &statusworker.Checker{
		Status:      status.New(store, cache, aiAPI),
		Cache:       cache,
		Metrics:     dataDogClient,
		Notifier:    systemNotifier,
		MainBotName: cfg.BotName,
		CacheTTL:    cfg.StatusWorkerInterval * 10,
	}
	statusWorker := workers.NewWorker(systemNotifier, cfg, cfg.StatusWorkerInterval, checker.Run, false)
	go statusWorker.Start()

	// create usage clearing worker
	clearUsageWorker := workers.NewWorker(systemNotifier, cfg, time.Hour*23, clearusage.New(store, dataDogClient).Run, true)
	go clearUsageWorker.Start()

	go TearDown(sigs, done, server, store, systemNotifier, statusWorker, clearUsageWorker)

	go func() {
		err := server.ListenAndServe(cfg.ListenAddress)
		util.Assert(err == nil, "ListenAndServe:", err)
	}()

	if cfg.BackendBaseURL != "" {
		if err := telegramBot.RegisterWebhook(cfg.BackendBaseURL, cfg.WebhookPath, time.Minute); err != nil {
			log.Errorf("Failed to register webhook: %v", err)
		}
	} else {
		log.Warn("BACKEND_BASE_URL is not set, webhook is not registered")
	}

	successfulStartMessage := fmt.Sprintf("🤖 %s started successfully 🚀 inside %s", cfg.BotName, util.Env("POD_NAME", "unknown"))
	systemNotifier.Notify(successfulStartMessage)
	log.Info(successfulStartMessage)

	<-done
	log.Info("Done")
}

func TearDown(sigs chan os.Signal, done chan struct{}, server *fasthttp.Server, store mongo.MongoClient, systemNotifier *telegram.SystemNotifier, statusWorker *workers.Worker, clearUsageWorker *workers.Worker) {
	<-sigs
	exitMessage := fmt.Sprintf("🤖 %s bids farewell ❌ inside %s", statusWorker.MainBotName, util.Env("POD_NAME", "unknown"))
	log.Info(exitMessage)
	systemNotifier.Notify(exitMessage)
	statusWorker.StopWorker()
	clearUsageWorker.StopWorker()

	err := server.Shutdown()
	if err != nil {
		log.Errorf("TearDown: Shutdown of server: %v", err)
	}

	err = store.Disconnect(context.Background())
	if err != nil {
		log.Errorf("TearDown: Disconnecting from MongoDB: %v", err)
	}
	done <- struct{}{}
}
