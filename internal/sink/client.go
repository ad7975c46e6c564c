package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/shannon-labs/resilientd/internal/fallback"
	"github.com/shannon-labs/resilientd/internal/llmrouter"
)

// Config holds the sink's connection and queue tunables.
type Config struct {
	DSN             string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
	QueueSize       int
	Workers         int
}

// DefaultConfig returns conservative pool/queue sizes suitable for a
// best-effort sidecar sink.
func DefaultConfig() Config {
	return Config{
		MaxConnections:  10,
		IdleConnections: 2,
		MaxLifetime:     5 * time.Minute,
		QueueSize:       1000,
		Workers:         4,
	}
}

type writeType int

const (
	writeUsageRecord writeType = iota
	writeTransition
)

type writeRequest struct {
	kind writeType
	data interface{}
}

// Sink owns a pooled Postgres connection and a bounded async write queue;
// RecordUsage/RecordTransition never block on the database, only on the queue
// filling up, in which case the write is dropped and counted rather than
// stalling the caller.
type Sink struct {
	db     *sqlx.DB
	logger *zap.Logger

	queue   chan writeRequest
	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup

	dropped int64
	mu      sync.Mutex
}

// New opens a pooled connection to cfg.DSN and starts the write-worker pool.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = DefaultConfig().MaxConnections
	}
	if cfg.IdleConnections == 0 {
		cfg.IdleConnections = DefaultConfig().IdleConnections
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = DefaultConfig().MaxLifetime
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultConfig().Workers
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sink database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.IdleConnections)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sink database: %w", err)
	}

	s := &Sink{
		db:      db,
		logger:  logger,
		queue:   make(chan writeRequest, cfg.QueueSize),
		workers: cfg.Workers,
		stopCh:  make(chan struct{}),
	}
	s.startWorkers()
	return s, nil
}

func (s *Sink) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.writeWorker(i)
	}
}

func (s *Sink) writeWorker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			s.drain()
			return
		case req := <-s.queue:
			s.process(req)
		}
	}
}

func (s *Sink) drain() {
	for {
		select {
		case req := <-s.queue:
			s.process(req)
		default:
			return
		}
	}
}

func (s *Sink) process(req writeRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch req.kind {
	case writeUsageRecord:
		err = s.saveUsageRow(ctx, req.data.(*UsageRow))
	case writeTransition:
		err = s.saveTransitionRow(ctx, req.data.(*TransitionRow))
	}
	if err != nil {
		s.logger.Warn("sink write failed", zap.Int("kind", int(req.kind)), zap.Error(err))
	}
}

// RecordUsage enqueues rec for durable storage. Best-effort: if the queue is
// full the record is dropped and counted, never blocking the caller.
func (s *Sink) RecordUsage(rec llmrouter.UsageRecord) {
	s.enqueue(writeRequest{kind: writeUsageRecord, data: usageRowFrom(rec)})
}

// RecordTransition enqueues t for durable storage, same best-effort semantics
// as RecordUsage.
func (s *Sink) RecordTransition(t fallback.Transition) {
	s.enqueue(writeRequest{kind: writeTransition, data: transitionRowFrom(t)})
}

func (s *Sink) enqueue(req writeRequest) {
	select {
	case s.queue <- req:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.logger.Warn("sink write queue full, dropping record", zap.Int("kind", int(req.kind)))
	}
}

// Dropped returns the number of records dropped so far because the queue
// was full.
func (s *Sink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops the workers, each draining whatever is queued at that moment,
// and closes the underlying connection pool. It does not reject later
// RecordUsage/RecordTransition calls: their records still enter the queue,
// where no worker reads them, or are dropped once it is full.
func (s *Sink) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	return s.db.Close()
}
