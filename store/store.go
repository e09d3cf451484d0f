// Package store implements the single-writer, embedded relational store
// described in §4.A: one goroutine owns the writer *sql.DB handle and drains
// a bounded queue of work items, each running inside its own transaction.
// The engine is modernc.org/sqlite (pure Go, no cgo), opened the way
// seaweedfs's weed/filer/sqlite store does (database/sql, SetMaxOpenConns(1)),
// generalized from a single key/value table into the full relational schema
// of §3. Read-only parallelism is provided by a small pool of additional
// read-only handles; admission into that pool is capped by
// cfg.MaxBlockingThreads using util/limiter.CountLimit, the teacher pack's
// concurrency-cap primitive for bounding blocking filer operations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	_ "modernc.org/sqlite"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/util/limiter"
)

// Config controls where and how the store opens its database file.
type Config struct {
	Path               string // filesystem path to the sqlite database file
	Init               bool   // true only for the dedicated --init invocation
	MaxBlockingThreads int    // cap on concurrent Query admission, default 128
	QueueDepth         int    // work item channel capacity, default 1024
}

func (c *Config) setDefaults() {
	if c.MaxBlockingThreads <= 0 {
		c.MaxBlockingThreads = 128
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 1024
	}
}

type workItem struct {
	fn     func(*sql.Tx) (any, error)
	result chan<- workResult
}

type workResult struct {
	value any
	err   error
}

// Store is the single-writer relational store. Submit is the only mutation
// entry point; callers never see the writer handle directly.
type Store struct {
	cfg    Config
	writer *sql.DB
	queue  chan workItem

	readersMu sync.Mutex
	readers   []*sql.DB
	nextRead  int
	readLimit limiter.CountLimit

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Open opens (or, with cfg.Init, creates) the database file, runs pending
// migrations, and starts the single writer goroutine. Opening a nonexistent
// path without Init set is a Config error (§6: init must be explicit).
func Open(ctx context.Context, cfg Config) (*Store, error) {
	span := trace.SpanFromContextSafe(ctx)
	cfg.setDefaults()

	if cfg.Path == "" {
		return nil, errors.New(errors.KindConfig, "store.Open", "db-file path is required")
	}

	_, statErr := os.Stat(cfg.Path)
	exists := statErr == nil
	if !exists && !cfg.Init {
		return nil, errors.New(errors.KindConfig, "store.Open",
			fmt.Sprintf("database %q does not exist; re-run with --init", cfg.Path))
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.Path)
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, "store.Open", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.PingContext(ctx); err != nil {
		writer.Close()
		return nil, errors.Wrap(errors.KindIO, "store.Open", err)
	}

	s := &Store{
		cfg:    cfg,
		writer: writer,
		queue:  make(chan workItem, cfg.QueueDepth),
		done:   make(chan struct{}),
	}

	if err := s.openReaders(cfg.MaxBlockingThreads); err != nil {
		writer.Close()
		return nil, err
	}
	s.readLimit = limiter.NewCountLimit(cfg.MaxBlockingThreads)

	if err := s.migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.run()

	span.Infof("store opened at %s, schema up to date", cfg.Path)
	return s, nil
}

// openReaders opens min(n, maxReaderHandles) read-only handles, at least
// one, where n is cfg.MaxBlockingThreads; n separately bounds admission
// into the pool (see readLimit in Query).
func (s *Store) openReaders(n int) error {
	handles := n
	if handles > maxReaderHandles {
		handles = maxReaderHandles
	}
	if handles < 1 {
		handles = 1
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=foreign_keys(1)", s.cfg.Path)
	s.readers = make([]*sql.DB, 0, handles)
	for i := 0; i < handles; i++ {
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			for _, r := range s.readers {
				r.Close()
			}
			return errors.Wrap(errors.KindIO, "store.openReaders", err)
		}
		s.readers = append(s.readers, db)
	}
	return nil
}

// maxReaderHandles caps the OS-level read-only handle pool regardless of how
// high Config.MaxBlockingThreads is set; that setting instead governs
// how many in-flight Query callers share those handles (see readLimit).
const maxReaderHandles = 8

// run is the single writer goroutine: it owns the only read-write handle
// and applies work items strictly in arrival order, each as one transaction.
func (s *Store) run() {
	defer s.wg.Done()
	for {
		select {
		case item := <-s.queue:
			item.result <- s.apply(item.fn)
		case <-s.done:
			// Drain remaining queued items so callers don't hang, but stop
			// accepting new ones (Submit checks s.done first).
			for {
				select {
				case item := <-s.queue:
					item.result <- workResult{err: errors.New(errors.KindShutdown, "store", "store is shutting down")}
				default:
					return
				}
			}
		}
	}
}

func (s *Store) apply(fn func(*sql.Tx) (any, error)) workResult {
	tx, err := s.writer.Begin()
	if err != nil {
		return workResult{err: errors.Wrap(errors.KindIO, "store.apply", err)}
	}
	val, err := fn(tx)
	if err != nil {
		tx.Rollback()
		return workResult{err: err}
	}
	if err := tx.Commit(); err != nil {
		return workResult{err: errors.Wrap(errors.KindSerialization, "store.apply", err)}
	}
	return workResult{value: val}
}

// Submit enqueues fn to run inside one transaction on the writer goroutine
// and blocks for the result. A full queue or cancelled ctx both return
// promptly rather than blocking indefinitely (§5 back-pressure).
func (s *Store) Submit(ctx context.Context, fn func(*sql.Tx) (any, error)) (any, error) {
	select {
	case <-s.done:
		return nil, errors.New(errors.KindShutdown, "store.Submit", "store is closed")
	default:
	}

	resultCh := make(chan workResult, 1)
	select {
	case s.queue <- workItem{fn: fn, result: resultCh}:
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// Non-blocking fast path failed; retry with a short grace window
		// rather than failing callers on a momentary burst.
		select {
		case s.queue <- workItem{fn: fn, result: resultCh}:
		case <-time.After(50 * time.Millisecond):
			return nil, errors.ErrBusy
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Query runs fn against one of the read-only handles, round-robined across
// the pool, for read-heavy query handlers that don't need writer
// serialization (GetNodes, GetTargetMappings, ...). Admission is capped at
// cfg.MaxBlockingThreads concurrent callers; beyond that it fails fast with
// errors.ErrBusy rather than queueing behind the handle pool indefinitely.
func (s *Store) Query(ctx context.Context, fn func(*sql.DB) (any, error)) (any, error) {
	if err := s.readLimit.Acquire(); err != nil {
		return nil, errors.ErrBusy
	}
	defer s.readLimit.Release()

	s.readersMu.Lock()
	db := s.readers[s.nextRead%len(s.readers)]
	s.nextRead++
	s.readersMu.Unlock()
	return fn(db)
}

// Close stops accepting new work, waits for the writer goroutine to drain,
// and closes all handles.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.writer.Close()
		s.readersMu.Lock()
		for _, r := range s.readers {
			r.Close()
		}
		s.readersMu.Unlock()
	})
}
