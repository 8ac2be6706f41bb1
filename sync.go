package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"sync"
)

const defaultSyncBuffer = 100

// Syncer re-indexes pages in the background. Requests never block the
// caller: when the queue is full the request is dropped and logged.
type Syncer struct {
	vault   *Vault
	indexer *Indexer
	log     *slog.Logger
	queue   chan string
	wg      sync.WaitGroup
	once    sync.Once

	mu       sync.Mutex
	closed   bool
	onSynced func(page string, err error)
}

func NewSyncer(vault *Vault, indexer *Indexer, log *slog.Logger) *Syncer {
	return &Syncer{
		vault:   vault,
		indexer: indexer,
		log:     log.With("component", "sync"),
		queue:   make(chan string, defaultSyncBuffer),
	}
}

// OnSynced registers a callback run after each page is reconciled
func (s *Syncer) OnSynced(fn func(page string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSynced = fn
}

// Start launches the worker
func (s *Syncer) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for page := range s.queue {
			s.syncPage(page)
		}
	}()
}

// Stop drains queued requests and waits for the worker to exit
func (s *Syncer) Stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	s.wg.Wait()
}

// ScheduleFileSync queues a page for re-indexing
func (s *Syncer) ScheduleFileSync(page string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.queue <- page:
	default:
		s.log.Warn("sync queue full, dropping request", "page", page)
	}
}

func (s *Syncer) syncPage(page string) {
	if s.indexer.cache != nil {
		s.indexer.cache.Invalidate(page)
	}

	_, err := s.indexer.SyncPage(s.vault, page)
	if errors.Is(err, fs.ErrNotExist) {
		err = s.indexer.RemovePage(page)
	}

	if err != nil {
		s.log.Error("sync failed", "page", page, "error", err)
	} else {
		s.log.Debug("synced page", "page", page)
	}

	s.mu.Lock()
	fn := s.onSynced
	s.mu.Unlock()

	if fn != nil {
		fn(page, err)
	}
}
