package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/thermalctl/internal/errors"
	"codeberg.org/mutker/thermalctl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// maxBufferedBatches caps how many unflushed batches are kept.
const maxBufferedBatches = 10

type repository struct {
	db        *sql.DB
	logger    logger.Logger
	cfg       Config
	mu        sync.Mutex
	buffer    []*Sample
	closeOnce sync.Once
	shutdown  chan struct{}
	flushDone chan struct{}
}

// NewRepository opens (or creates) the database and starts the background
// flusher when a batch timeout is configured.
func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, failed("create_directory", cfg.DBPath, err))
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, failed("open_database", cfg.DBPath, err))
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("Metrics repository initialized")

	repo := &repository{
		db:        db,
		logger:    log,
		cfg:       cfg,
		buffer:    make([]*Sample, 0, cfg.BatchSize),
		shutdown:  make(chan struct{}),
		flushDone: make(chan struct{}),
	}

	if cfg.BatchTimeout > 0 {
		go repo.flusher(time.NewTicker(cfg.BatchTimeout))
	} else {
		close(repo.flushDone)
	}

	return repo, nil
}

func (r *repository) Record(sample *Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, sample)

	if len(r.buffer) < r.cfg.BatchSize {
		return nil
	}

	err := r.flush()
	if err != nil {
		r.dropOldest()
	}

	return err
}

// dropOldest bounds the buffer while flushes keep failing.
func (r *repository) dropOldest() {
	limit := r.cfg.BatchSize * maxBufferedBatches
	if len(r.buffer) <= limit {
		return
	}

	dropped := len(r.buffer) - limit
	r.buffer = append(r.buffer[:0], r.buffer[dropped:]...)

	r.logger.Warn().
		Int("dropped", dropped).
		Int("buffered", len(r.buffer)).
		Msg("Flush keeps failing, dropping oldest samples")
}

// Close flushes buffered samples and closes the database. Calling it again
// is a no-op.
func (r *repository) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.close()
	})

	return err
}

func (r *repository) close() error {
	errFactory := errors.New()

	close(r.shutdown)
	<-r.flushDone

	r.mu.Lock()
	flushErr := r.flush()
	r.mu.Unlock()
	if flushErr != nil {
		r.logger.Warn().Err(flushErr).Msg("Failed to flush samples on close")
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errFactory.WithData(ErrStorageClose, failed("checkpoint_wal", r.cfg.DBPath, err))
	}

	if err := r.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, failed("close_database", r.cfg.DBPath, err))
	}

	r.logger.Info().Msg("Metrics repository closed gracefully")

	return nil
}

func (r *repository) flusher(ticker *time.Ticker) {
	defer close(r.flushDone)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic flush failed")
				r.dropOldest()
			}
			r.mu.Unlock()
		case <-r.shutdown:
			return
		}
	}
}

// flush writes the buffer in one transaction. The caller holds r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertSampleSQL)
	if err != nil {
		r.rollback(tx)
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, s := range r.buffer {
		if _, err := stmt.Exec(
			s.Timestamp.UnixMilli(),
			s.RunID,
			s.CPUTemp,
			s.KeyboardTemp,
			s.Zone.String(),
			s.Mode.String(),
			clampPct(s.PerfPct),
			boolToInt(s.FanBoost),
			s.Target,
			boolToInt(s.AutoControl),
			s.Action,
			s.Error,
		); err != nil {
			r.rollback(tx)
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed samples to database")
	r.buffer = r.buffer[:0]

	return nil
}

func (r *repository) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to roll back transaction")
	}
}

func clampPct(pct int) int {
	return min(max(pct, 0), 100)
}
