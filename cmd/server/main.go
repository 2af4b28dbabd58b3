package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ocx/sentinel/internal/alerting"
	"github.com/ocx/sentinel/internal/cluster"
	"github.com/ocx/sentinel/internal/config"
	"github.com/ocx/sentinel/internal/detectors"
	"github.com/ocx/sentinel/internal/learning"
	"github.com/ocx/sentinel/internal/llmclient"
	"github.com/ocx/sentinel/internal/metrics"
	"github.com/ocx/sentinel/internal/middleware"
	"github.com/ocx/sentinel/internal/orchestrator"
	"github.com/ocx/sentinel/internal/registry"
	"github.com/ocx/sentinel/internal/signature"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("main: no .env file found, continuing with environment as-is")
	}

	cfg := config.Get()

	reg, err := registry.Load(cfg)
	if err != nil {
		slog.Error("main: failed to load detector registry", "error", err)
		os.Exit(1)
	}

	var hitCounter signature.HitCounter
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		hitCounter = signature.NewRedisHitCounter(rdb, cfg.Signature.HitWindowSec)
	} else {
		hitCounter = signature.NewMemoryHitCounter(cfg.Signature.HitWindowSec, 60)
	}

	waveformTracker := signature.NewWaveformTracker()
	clusterStore := cluster.NewStore(cfg.Cluster.SimilarityThreshold, cfg.Cluster.MinWeight, cfg.Cluster.MaxWeight, cfg.Cluster.ShiftCVDelta, 10000)
	recentNames := signature.NewRecentNames(cfg.Signature.RecentNamesCap)

	var llmClient *llmclient.Client
	if cfg.LLM.Enabled {
		llmClient = llmclient.New(cfg.LLM.Endpoint, cfg.LLM.APIKey, cfg.LLM.Model,
			uint32(cfg.LLM.BreakerThreshold), time.Duration(cfg.LLM.BreakerResetSec)*time.Second)
		llmClient.Initialise(context.Background())
	}

	catalog := detectors.NewCatalog(cfg, detectors.Dependencies{
		HitCounter:      hitCounter,
		WaveformTracker: waveformTracker,
		ClusterStore:    clusterStore,
		LLMClient:       llmClient,
	})

	orch := orchestrator.New(reg, catalog, cfg)
	m := metrics.New()

	var alerter alerting.Notifier
	if cfg.Webhook.AlertURL != "" {
		memDispatcher := alerting.NewDispatcher(cfg.Webhook.AlertURL, cfg.Webhook.Secret, cfg.Webhook.WorkerCount)
		if cfg.CloudTasks.Enabled {
			cloudDispatcher, err := alerting.NewCloudDispatcher(
				cfg.CloudTasks.ProjectID, cfg.CloudTasks.LocationID, cfg.CloudTasks.QueueID,
				cfg.Webhook.AlertURL, cfg.Webhook.Secret, memDispatcher,
			)
			if err != nil {
				slog.Warn("main: cloud tasks dispatcher unavailable, using in-memory alert dispatch", "error", err)
				alerter = memDispatcher
			} else {
				alerter = cloudDispatcher
			}
		} else {
			alerter = memDispatcher
		}
	}

	var learningSink learning.Sink
	if cfg.PubSub.Enabled {
		fallback := learning.NewChannelSink(1000)
		sink, err := learning.NewPubSubSink(cfg.PubSub.ProjectID, cfg.PubSub.TopicID, fallback)
		if err != nil {
			slog.Warn("main: pubsub learning sink unavailable, using in-memory fallback", "error", err)
			learningSink = fallback
		} else {
			learningSink = sink
		}
	}

	engine := middleware.NewEngine(cfg, reg, orch, recentNames, alerter, m, learningSink)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/admin/manifests/reload", handleReload(cfg, reg)).Methods(http.MethodPost)

	r.PathPrefix("/").Handler(engine.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	addr := cfg.Server.Interface + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	go func() {
		slog.Info("main: detection engine listening", "addr", addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("main: server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("main: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	if alerter != nil {
		alerter.Shutdown()
	}
	if learningSink != nil {
		_ = learningSink.Close()
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReload re-parses and validates the detector manifest (defaults +
// on-disk override + config overrides) and reports any error to the caller.
// The freshly loaded Registry is discarded: the running Orchestrator keeps
// the Registry it was built with at startup.
func handleReload(cfg *config.Config, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := registry.Load(cfg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "reloaded"})
	}
}
