package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"prediction-ledger-api/config"
	"prediction-ledger-api/ledger"
	"prediction-ledger-api/logging"
	"prediction-ledger-api/outcomes"
	"prediction-ledger-api/schema"
	"prediction-ledger-api/scoring"
	"prediction-ledger-api/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log).Named("outcome-collector")
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := ledger.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("database init failed", zap.Error(err))
	}
	l := ledger.New(db,
		ledger.WithLogger(log.Named("ledger")),
		ledger.WithOutcomeOverwrite(cfg.Ledger.AllowOutcomeOverwrite),
	)
	if err := l.Migrate(ctx); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	s, err := schema.Load(cfg.Model.SchemaPath)
	if err != nil {
		log.Fatal("schema load failed", zap.Error(err))
	}
	model, err := scoring.Load(cfg.Model.ArtifactPath)
	if err != nil {
		log.Fatal("model load failed", zap.Error(err))
	}
	if err := model.Validate(s); err != nil {
		log.Fatal("model does not match schema", zap.Error(err))
	}

	cache, err := services.NewCacheService(cfg.Redis, log)
	if err != nil {
		log.Warn("redis unavailable, cache invalidation and events disabled", zap.Error(err))
	}
	defer cache.Close()

	svc := services.NewPredictionService(s, model, l, cache, log,
		services.WithOutcomeOverwrite(cfg.Ledger.AllowOutcomeOverwrite),
	)
	consumer := outcomes.NewConsumer(svc, log)

	go serveHTTP(cfg.MQTT.MetricsAddr, log)

	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "outcome-collector-" + time.Now().Format("20060102150405")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.URL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, message mqtt.Message) {
		if err := consumer.Handle(ctx, message.Payload()); err != nil {
			log.Warn("outcome not reconciled", zap.String("topic", message.Topic()), zap.Error(err))
		}
	})
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(cfg.MQTT.Topic, 1, nil)
		token.Wait()
		if token.Error() != nil {
			log.Error("mqtt subscribe failed", zap.Error(token.Error()))
			return
		}
		log.Info("subscribed", zap.String("topic", cfg.MQTT.Topic))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		log.Fatal("mqtt connection failed", zap.Error(token.Error()))
	}

	log.Info("collector running", zap.String("mqtt", cfg.MQTT.URL), zap.String("metrics", cfg.MQTT.MetricsAddr))

	<-ctx.Done()
	log.Info("collector shutting down")
	client.Disconnect(250)
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func serveHTTP(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("metrics server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("metrics server failed", zap.Error(err))
	}
}
