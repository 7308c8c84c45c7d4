package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/medquiz/keeper/internal/autosave"
	"github.com/medquiz/keeper/internal/classify"
	"github.com/medquiz/keeper/internal/core/config"
	"github.com/medquiz/keeper/internal/core/domain"
	"github.com/medquiz/keeper/internal/errlog"
	"github.com/medquiz/keeper/internal/health"
	"github.com/medquiz/keeper/internal/infra/kv"
	"github.com/medquiz/keeper/internal/infra/postgres"
	redisclient "github.com/medquiz/keeper/internal/infra/redis"
	"github.com/medquiz/keeper/internal/recovery"
	"github.com/medquiz/keeper/internal/retry"
	"github.com/medquiz/keeper/internal/store"
)

// Keeper owns every service object of the resilience layer. Each is
// constructed exactly once here and injected by reference; nothing in
// the tree reaches for a package-level singleton.
type Keeper struct {
	cfg       *config.AppConfig
	log       *slog.Logger
	sessionID string

	kvStore   kv.Store
	db        *postgres.DB
	persist   *store.PersistentStore
	exec      *retry.Executor
	policy    retry.Policy
	errors    *errlog.Log
	classify  *classify.Classifier
	recovery  *recovery.Manager
	autosave  *autosave.Scheduler
	forwarder *errlog.Forwarder
	health    *health.Server
}

// NewKeeper wires all components from config.
func NewKeeper(cfg *config.AppConfig, log *slog.Logger) (*Keeper, error) {
	if log == nil {
		log = slog.Default()
	}
	sessionID := uuid.New().String()

	exec := retry.New(log)
	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Multiplier:  cfg.Retry.Multiplier,
	}

	// Key-value medium: Redis in production, in-process otherwise.
	var kvStore kv.Store
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		kvStore = redisClient
		log.Info("Using Redis storage")
	} else {
		kvStore = kv.NewMemory()
		log.Info("Using Memory storage")
	}

	persist := store.New(kvStore, exec, log)

	// Optional audit database for CRITICAL records.
	var db *postgres.DB
	var sinks []errlog.Sink
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			_ = kvStore.Close()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		sinks = append(sinks, postgres.NewAuditRepo(db))
		log.Info("Audit database enabled")
	}

	var forwarder *errlog.Forwarder
	if cfg.Monitoring.URL != "" {
		forwarder = errlog.NewForwarder(cfg.Monitoring.URL, log)
		sinks = append(sinks, forwarder)
	}

	criticalCap := cfg.ErrorLog.CriticalCapacity
	if criticalCap <= 0 {
		criticalCap = errlog.DefaultCriticalCapacity
	}
	var mirror errlog.Mirror
	if redisClient != nil {
		mirror = redisclient.NewCriticalMirror(redisClient, criticalCap)
	} else {
		mirror = errlog.NewStoreMirror(persist, criticalCap)
	}

	errLog := errlog.NewLog(cfg.ErrorLog.Capacity, sessionID, mirror, log, sinks...)
	classifier := classify.New(sessionID, errLog, log)

	recoveryMgr := recovery.NewManager(persist, log)
	// Autosave snapshots replay by putting the saved state back where
	// the application reads it.
	recoveryMgr.Register(domain.WorkAutosave, func(ctx context.Context, data json.RawMessage) error {
		return persist.Save(ctx, store.KeyQuizState, data, store.SnapshotTTL)
	})

	k := &Keeper{
		cfg:       cfg,
		log:       log,
		sessionID: sessionID,
		kvStore:   kvStore,
		db:        db,
		persist:   persist,
		exec:      exec,
		policy:    policy,
		errors:    errLog,
		classify:  classifier,
		recovery:  recoveryMgr,
		autosave:  autosave.NewScheduler(persist, cfg.Autosave.Interval, log),
		forwarder: forwarder,
		health:    health.NewServer(kvStore, db, errLog, cfg.Server.Port),
	}
	return k, nil
}

// Start brings up the health server and runs the startup recovery
// check.
func (k *Keeper) Start(ctx context.Context) error {
	go func() {
		if err := k.health.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			k.log.Error("Health server failed", "error", err)
		}
	}()
	k.log.Info("Health server listening", "port", k.cfg.Server.Port)

	snap, err := k.recovery.Check(ctx)
	if err != nil {
		return fmt.Errorf("startup recovery check failed: %w", err)
	}
	if snap != nil {
		k.log.Info("Recovery available", "type", snap.Type)
	}
	return nil
}

// Stop shuts everything down: autosave timers drain first so no tick
// writes after the store's medium is closed.
func (k *Keeper) Stop(ctx context.Context) error {
	k.autosave.StopAll()
	if err := k.health.Stop(ctx); err != nil {
		k.log.Warn("Health server shutdown error", "error", err)
	}
	if k.db != nil {
		if err := k.db.Close(); err != nil {
			k.log.Warn("Database close error", "error", err)
		}
	}
	if err := k.kvStore.Close(); err != nil {
		return fmt.Errorf("failed to close kv store: %w", err)
	}
	return nil
}

// RegisterReplayer installs the application's quiz replay handlers.
func (k *Keeper) RegisterReplayer(r recovery.QuizReplayer) {
	recovery.RegisterReplayer(k.recovery, r)
}

// StartAutosave begins periodic snapshots for target.
func (k *Keeper) StartAutosave(ctx context.Context, target string, fn autosave.Accessor) {
	k.autosave.Start(ctx, target, fn)
}

// StopAutosave cancels the autosave timer for target.
func (k *Keeper) StopAutosave(target string) {
	k.autosave.Stop(target)
}

// Execute runs op through the retry executor with the configured
// default policy, classifying and logging terminal failures. The
// returned ClassifiedError carries the user-safe message; cancellation
// passes through unclassified.
func (k *Keeper) Execute(ctx context.Context, op string, fn func(context.Context) error) error {
	err := k.exec.Do(ctx, op, k.policy, fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	ce := k.classify.Report(ctx, err, classify.Fields{"operation": op})
	return fmt.Errorf("%s: %w", ce.UserMessage, err)
}

// SessionID returns the process session identifier stamped on records.
func (k *Keeper) SessionID() string { return k.sessionID }

// Store returns the persistent store.
func (k *Keeper) Store() *store.PersistentStore { return k.persist }

// Errors returns the error log.
func (k *Keeper) Errors() *errlog.Log { return k.errors }

// Classifier returns the error classifier.
func (k *Keeper) Classifier() *classify.Classifier { return k.classify }

// Recovery returns the recovery manager.
func (k *Keeper) Recovery() *recovery.Manager { return k.recovery }

// Executor returns the retry executor.
func (k *Keeper) Executor() *retry.Executor { return k.exec }

// Policy returns the configured default retry policy.
func (k *Keeper) Policy() retry.Policy { return k.policy }

// SetOnline reports a connectivity transition to the monitoring
// forwarder; going online flushes queued CRITICAL records.
func (k *Keeper) SetOnline(ctx context.Context, online bool) {
	if k.forwarder != nil {
		k.forwarder.SetOnline(ctx, online)
	}
}

// Uptime helper for status logging.
func (k *Keeper) LogStatus(started time.Time) {
	k.log.Info("keeper status",
		"session", k.sessionID,
		"uptime", time.Since(started).Round(time.Second),
		"bufferedErrors", k.errors.Len(),
		"recovery", k.recovery.State().String())
}
