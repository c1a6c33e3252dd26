package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ShayCichocki/crew/internal/capability"
	"github.com/ShayCichocki/crew/internal/checkpoint"
	"github.com/ShayCichocki/crew/internal/classify"
	"github.com/ShayCichocki/crew/internal/config"
	"github.com/ShayCichocki/crew/internal/limits"
	"github.com/ShayCichocki/crew/internal/logging"
	"github.com/ShayCichocki/crew/internal/recovery"
	"github.com/ShayCichocki/crew/internal/resume"
	"github.com/ShayCichocki/crew/internal/selector"
	"github.com/ShayCichocki/crew/internal/session"
	"github.com/ShayCichocki/crew/internal/state"
)

// app is the composition root. Every service is constructed here once
// and handed to the commands that need it.
type app struct {
	cfg    *config.Config
	logger *logging.DebugLogger
	db     *state.DB

	matrix     *capability.Matrix
	classifier *classify.Classifier
	selector   *selector.Selector

	detector    *limits.Detector
	sessions    *session.Manager
	checkpoints *checkpoint.Manager
	recovery    *recovery.Handler
}

// newApp loads configuration and builds the planning pipeline. Storage
// services are opened lazily by openStorage.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewDebugLogger(cfg.Logging.DebugLog)
	if err != nil {
		log.Printf("[crew] debug log disabled: %v", err)
		logger = logging.NopLogger()
	}

	a := &app{cfg: cfg, logger: logger}

	agents := capability.DefaultCatalog()
	if cfg.Catalog.Path != "" {
		loaded, err := capability.LoadCatalog(cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		agents = loaded
	}
	a.matrix = capability.NewMatrix(agents)
	a.classifier = classify.NewClassifier()
	a.detector = limits.NewDetector()
	if path := cfg.Recovery.PatternsPath; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read error patterns: %w", err)
		}
		if err := a.detector.ImportPatterns(data); err != nil {
			return nil, fmt.Errorf("import %s: %w", path, err)
		}
	}
	return a, nil
}

// openDB opens the attempt and performance store. Failure is not fatal:
// the pipeline works without history.
func (a *app) openDB() *state.DB {
	if a.db != nil {
		return a.db
	}
	db, err := state.OpenAndMigrate(a.cfg.Storage.DBPath)
	if err != nil {
		log.Printf("[crew] running without history store: %v", err)
		return nil
	}
	a.db = db
	return db
}

// buildSelector wires the selector, with persisted performance when the
// store is available.
func (a *app) buildSelector() *selector.Selector {
	if a.selector != nil {
		return a.selector
	}
	var opts []selector.Option
	if db := a.openDB(); db != nil {
		opts = append(opts, selector.WithPerformanceStore(db))
	}
	a.selector = selector.New(a.classifier, a.matrix, opts...)
	return a.selector
}

// openStorage builds the session, checkpoint and recovery services.
func (a *app) openStorage() error {
	if a.sessions != nil {
		return nil
	}
	sessions, err := session.NewManager(a.cfg.Storage.SessionsDir)
	if err != nil {
		return err
	}
	cp := a.cfg.Checkpoint
	checkpoints, err := checkpoint.NewManager(a.cfg.Storage.CheckpointsDir, checkpoint.Config{
		Interval:         cp.Interval,
		MessageThreshold: cp.MessageThreshold,
		MaxPerSession:    cp.MaxPerSession,
		Retention:        cp.Retention,
		ErrorThreshold:   cp.ErrorThreshold,
	})
	if err != nil {
		return err
	}

	opts := []recovery.Option{recovery.WithConfig(recovery.Config{
		KeepMessages:     a.cfg.Recovery.KeepMessages,
		MaxAgentContexts: a.cfg.Recovery.MaxAgentContexts,
		Jitter:           a.cfg.Recovery.Jitter,
	})}
	if db := a.openDB(); db != nil {
		opts = append(opts, recovery.WithAttemptStore(db))
	}

	a.sessions = sessions
	a.checkpoints = checkpoints
	a.recovery = recovery.New(a.detector, sessions, checkpoints, opts...)
	return nil
}

// coordinator builds the auto-resume coordinator over the storage services.
func (a *app) coordinator() (*resume.Coordinator, error) {
	if err := a.openStorage(); err != nil {
		return nil, err
	}
	return resume.New(a.sessions, a.checkpoints, a.detector, a.recovery,
		resume.WithConfig(resume.Config{
			AutosaveInterval: a.cfg.Session.AutosaveInterval,
			CheckpointPoll:   a.cfg.Checkpoint.Interval / 5,
			SessionRetention: a.cfg.Session.Retention,
		}),
		resume.WithLogger(a.logger),
	), nil
}

// defaultStrategy resolves the configured selection strategy.
func (a *app) defaultStrategy() selector.Strategy {
	st, err := selector.ParseStrategy(a.cfg.Selection.DefaultStrategy)
	if err != nil {
		log.Printf("[crew] %v, using %s", err, selector.StrategySpecialized)
		return selector.StrategySpecialized
	}
	return st
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("[crew] close db: %v", err)
		}
	}
	a.logger.Close()
}
