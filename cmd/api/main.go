package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"podcast-scribe-go/internal/asr"
	"podcast-scribe-go/internal/cache"
	"podcast-scribe-go/internal/config"
	"podcast-scribe-go/internal/export"
	"podcast-scribe-go/internal/llm"
	"podcast-scribe-go/internal/logger"
	"podcast-scribe-go/internal/media"
	"podcast-scribe-go/internal/processor"
	"podcast-scribe-go/internal/queue"
	"podcast-scribe-go/internal/resolver"
	"podcast-scribe-go/internal/storage"
	"podcast-scribe-go/internal/transcribe"
	"podcast-scribe-go/internal/transform"
	"podcast-scribe-go/internal/types"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "podcast-scribe-go").Info("starting service")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	res, err := resolver.NewClient(os.Getenv("RESOLVER_URL"))
	if err != nil {
		log.WithError(err).Fatal("resolver client")
	}
	store, err := storage.NewClient(os.Getenv("STORAGE_URL"))
	if err != nil {
		log.WithError(err).Fatal("storage client")
	}
	stt, err := asr.NewClient(os.Getenv("ASR_URL"))
	if err != nil {
		log.WithError(err).Fatal("asr client")
	}
	gateway, err := llm.NewClient(os.Getenv("LLM_GATEWAY_URL"), os.Getenv("LLM_API_KEY"), os.Getenv("LLM_MODEL"))
	if err != nil {
		log.WithError(err).Fatal("llm client")
	}

	segmenter := media.NewSegmenter(store, cfg.Segmenter.WorkDir, cfg.Segmenter.PoolSize)
	stage := transcribe.NewStage(stt, cfg.Transcribe.PoolSize, cfg.Transcribe.Attempts,
		time.Duration(cfg.Transcribe.BackoffMs)*time.Millisecond)
	engine := transform.NewEngine(gateway, transform.Config{
		Limits: transform.Limits{
			MaxInputChars:  cfg.Transform.MaxInputChars,
			MaxOutputChars: cfg.Transform.MaxOutputChars,
		},
		PoolSize:   cfg.Transform.PoolSize,
		Attempts:   cfg.Transform.Attempts,
		Backoff:    time.Duration(cfg.Transform.BackoffMs) * time.Millisecond,
		OverlapPct: cfg.Transform.OverlapPct,
	})
	artifacts := cache.NewStore(time.Duration(cfg.Cache.TTLHours) * time.Hour)
	proc := processor.New(res, segmenter, stage, engine, artifacts, cfg.Segmenter.SegmentSeconds)

	q := queue.New(queue.Config{
		PollInterval:    time.Duration(cfg.Queue.PollIntervalMs) * time.Millisecond,
		MaxConcurrent:   cfg.Queue.MaxConcurrent,
		MaxRetries:      cfg.Queue.MaxRetries,
		MaxTaskDuration: time.Duration(cfg.Queue.MaxTaskDurationSec) * time.Second,
	}, proc.Process)
	q.Start()
	defer q.Stop()

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Info("health check")
		fmt.Fprint(w, "ok")
	})

	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "tasks")
		switch r.Method {
		case http.MethodPost:
			var payload types.TaskPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				reqLog.WithError(err).Warn("bad request body")
				http.Error(w, "invalid JSON body", http.StatusBadRequest)
				return
			}
			if strings.TrimSpace(payload.PageURL) == "" {
				reqLog.Warn("missing page_url")
				http.Error(w, "missing page_url", http.StatusBadRequest)
				return
			}
			task := q.Submit("process", payload)
			reqLog.WithField("task_id", task.ID).Info("task accepted")
			writeJSON(w, http.StatusAccepted, task)

		case http.MethodGet:
			id := r.URL.Query().Get("id")
			if id == "" {
				http.Error(w, "missing id", http.StatusBadRequest)
				return
			}
			task, err := q.Get(id)
			if err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, queue.ErrTaskNotFound) {
					status = http.StatusNotFound
				}
				http.Error(w, err.Error(), status)
				return
			}
			writeJSON(w, http.StatusOK, task)

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/tasks/cancel", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "cancel")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}
		if err := q.Cancel(id); err != nil {
			status := http.StatusConflict
			if errors.Is(err, queue.ErrTaskNotFound) {
				status = http.StatusNotFound
			}
			reqLog.WithField("task_id", id).WithError(err).Warn("cancel rejected")
			http.Error(w, err.Error(), status)
			return
		}
		reqLog.WithField("task_id", id).Info("task cancelled")
		task, _ := q.Get(id)
		writeJSON(w, http.StatusOK, task)
	})

	mux.HandleFunc("/export", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "export")
		tasks := q.List()
		reqLog.WithField("tasks", len(tasks)).Info("exporting task table")

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=tasks-%s.xlsx", time.Now().Format("20060102-150405")))
		if err := export.Write(w, tasks); err != nil {
			reqLog.WithError(err).Error("export failed")
		}
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.New().WithError(err).Error("failed to write response")
	}
}
