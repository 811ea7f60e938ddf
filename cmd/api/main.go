package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/forgesyte/forgesyte/internal/blob"
	"github.com/forgesyte/forgesyte/internal/config"
	"github.com/forgesyte/forgesyte/internal/httpapi"
	"github.com/forgesyte/forgesyte/internal/pipeline"
	"github.com/forgesyte/forgesyte/internal/queue"
	"github.com/forgesyte/forgesyte/internal/service"
	"github.com/forgesyte/forgesyte/internal/store"
	"github.com/forgesyte/forgesyte/internal/video"
	"github.com/forgesyte/forgesyte/internal/worker"
	"github.com/forgesyte/forgesyte/internal/ws"
)

func main() {
	loadDotEnv()
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.WithError(err).Fatal("mkdir data dir")
	}

	jobStore, err := store.Open(filepath.Join(cfg.DataDir, "jobs.db"))
	if err != nil {
		log.WithError(err).Fatal("open job store")
	}
	defer jobStore.Close()

	blobStore := blob.LocalFS{Root: cfg.DataDir}

	q, err := buildQueue(cfg)
	if err != nil {
		log.WithError(err).Fatal("build queue")
	}
	defer q.Close()

	registry := pipeline.DefaultRegistry()
	engine := pipeline.NewEngine(
		video.FFmpegDecoder{Path: cfg.FFmpegPath},
		registry,
		cfg.MaxFrames,
	)

	wsManager := ws.New(jobStore, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	w := worker.New(q, jobStore, blobStore, engine, log, wsManager.Broadcast)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := w.Run(ctx); err != nil {
			log.WithError(err).Error("worker stopped")
		}
	}()

	server := httpapi.Server{
		Submission: service.Submission{
			Blobs:     blobStore,
			Jobs:      jobStore,
			Queue:     q,
			Pipelines: registry,
			Log:       log,
		},
		Query: service.Query{
			Blobs: blobStore,
			Jobs:  jobStore,
		},
		Jobs:      jobStore,
		Pipelines: registry,
		WS:        wsManager,
		Log:       log,
		MaxUpload: int64(cfg.MaxUploadMB) << 20,
	}

	httpServer := &http.Server{Addr: cfg.Addr, Handler: server.Router()}
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		if err := httpServer.Shutdown(context.Background()); err != nil {
			log.WithError(err).Error("http shutdown")
		}
	}()

	log.WithFields(logrus.Fields{
		"addr":  cfg.Addr,
		"queue": cfg.QueueBackend,
	}).Info("API listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("listen")
	}

	// ListenAndServe returns the moment Shutdown begins. Wait for in-flight
	// requests to drain and for the worker to finish its current job before
	// the deferred queue/store closes run.
	<-shutdownDone
	<-workerDone
}

func buildQueue(cfg config.Config) (queue.Queue, error) {
	if cfg.QueueBackend == "nats" {
		return queue.NewNATS(cfg.NATSURL, cfg.NATSSubject)
	}
	return queue.NewMemory(cfg.QueueCapacity), nil
}

func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
