package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/chat-relay/internal/api"
	"github.com/npezzotti/chat-relay/internal/broadcast"
	"github.com/npezzotti/chat-relay/internal/config"
	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/notifications"
	"github.com/npezzotti/chat-relay/internal/notify"
	"github.com/npezzotti/chat-relay/internal/presence"
	"github.com/npezzotti/chat-relay/internal/pubsub"
	"github.com/npezzotti/chat-relay/internal/push"
	"github.com/npezzotti/chat-relay/internal/rooms"
	"github.com/npezzotti/chat-relay/internal/server"
	"github.com/npezzotti/chat-relay/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr              string
	dsn               string
	signingKey        string
	allowedOrigins    stringSliceFlag
	fcmCredentials    string
	amqpURL           string
	amqpExchange      string
	pushTimeout       time.Duration
	pushRetryDelay    time.Duration
	notificationStore string
	scopeDMsByCompany bool
	runMigrations     bool
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&fcmCredentials, "fcm-credentials", "", "path to a Firebase service account file; push is only logged when empty")
	flag.StringVar(&amqpURL, "amqp-url", "", "AMQP broker url for the event mirror; disabled when empty")
	flag.StringVar(&amqpExchange, "amqp-exchange", "chat-relay.events", "AMQP topic exchange for the event mirror")
	flag.DurationVar(&pushTimeout, "push-timeout", 10*time.Second, "timeout for a single push attempt")
	flag.DurationVar(&pushRetryDelay, "push-retry-delay", time.Second, "delay before the first push retry")
	flag.StringVar(&notificationStore, "notification-store", config.NotificationStorePostgres, "notification card store: postgres or memory")
	flag.BoolVar(&scopeDMsByCompany, "scope-dms-by-company", true, "only allow direct messages within a company")
	flag.BoolVar(&runMigrations, "migrate", false, "apply database migrations on startup")
	flag.Parse()

	logger := log.New(os.Stderr, "[chat-relay] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}
	cfg.FCMCredentials = fcmCredentials
	cfg.AMQPURL = amqpURL
	cfg.AMQPExchange = amqpExchange
	cfg.PushTimeout = pushTimeout
	cfg.PushRetryDelay = pushRetryDelay
	cfg.NotificationStore = notificationStore
	cfg.ScopeDMsByCompany = scopeDMsByCompany
	cfg.RunMigrations = runMigrations

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgGoChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if cfg.RunMigrations {
		if err := dbConn.Migrate(); err != nil {
			logger.Fatal("db migrate:", err)
		}
		logger.Println("migrations applied")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	registry := presence.NewRegistry()
	chatServer := server.NewChatServer(logger, registry, rooms.NewAccessPolicy(dbConn), statsUpdater)

	var transport push.Transport
	if cfg.FCMCredentials != "" {
		fcm, err := push.NewFCMTransport(context.Background(), cfg.FCMCredentials)
		if err != nil {
			logger.Fatal("fcm:", err)
		}
		transport = fcm
	} else {
		logger.Println("no fcm credentials, push notifications will only be logged")
		transport = push.NewLogTransport(logger)
	}

	var publisher pubsub.Publisher = pubsub.NopPublisher{}
	if cfg.AMQPURL != "" {
		dialCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		conn, err := pubsub.DialWithRetry(dialCtx, pubsub.ConnectionOptions{
			URL:           cfg.AMQPURL,
			RetryAttempts: 5,
			Delay:         time.Second,
			Logger:        logger,
		})
		cancel()
		if err != nil {
			logger.Fatal("amqp:", err)
		}

		amqpPublisher, err := pubsub.NewAMQPPublisher(conn, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal("amqp publisher:", err)
		}
		publisher = amqpPublisher
	}

	var cards notifications.Log = dbConn
	if cfg.NotificationStore == config.NotificationStoreMemory {
		cards = notifications.NewMemoryLog()
	}

	opts := notify.DefaultOptions()
	opts.AttemptTimeout = cfg.PushTimeout
	opts.RetryDelay = cfg.PushRetryDelay

	dispatcher := notify.NewDispatcher(logger, registry, cards, dbConn, transport,
		notify.WithOptions(opts),
		notify.WithStats(statsUpdater),
		notify.WithMirror(publisher),
	)

	broadcaster := broadcast.New(logger, chatServer,
		broadcast.WithDispatcher(dispatcher),
		broadcast.WithMirror(publisher, 5*time.Second),
		broadcast.WithStats(statsUpdater),
	)

	srv := api.NewRelayApp(mux, logger, chatServer, dbConn, cards, broadcaster, cfg)

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("waiting for pending notifications...")
	if err := broadcaster.Wait(shutDownCtx); err != nil {
		logger.Println("broadcaster:", err)
	}
	if err := dispatcher.Wait(shutDownCtx); err != nil {
		logger.Println("dispatcher:", err)
	}

	if err := publisher.Close(); err != nil {
		logger.Println("publisher close:", err)
	}

	logger.Println("shutdown complete")
}
