package log

import (
	"sync"
	"time"

	"github.com/flowmesh/streamlog/internal/logger"
	"github.com/rs/zerolog"
)

// Flusher is anything holding buffered segment data that can be written to disk
type Flusher interface {
	Flush(sync bool) error
}

// FsyncScheduler manages periodic fsyncing for the interval policy
type FsyncScheduler struct {
	interval time.Duration
	flushers map[Flusher]struct{}
	mu       sync.RWMutex
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	log      zerolog.Logger
}

// NewFsyncScheduler creates a new fsync scheduler
func NewFsyncScheduler(interval time.Duration) *FsyncScheduler {
	return &FsyncScheduler{
		interval: interval,
		flushers: make(map[Flusher]struct{}),
		stopCh:   make(chan struct{}),
		log:      logger.WithComponent("fsync"),
	}
}

// Start starts the fsync scheduler
func (fs *FsyncScheduler) Start() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.running {
		return
	}
	fs.running = true
	fs.wg.Add(1)
	go fs.run()
}

// Stop stops the fsync scheduler after a final flush
func (fs *FsyncScheduler) Stop() {
	fs.mu.Lock()
	if !fs.running {
		fs.mu.Unlock()
		return
	}
	fs.running = false
	fs.mu.Unlock()

	close(fs.stopCh)
	fs.wg.Wait()
}

// Register registers a flusher for periodic fsyncing
func (fs *FsyncScheduler) Register(f Flusher) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.flushers[f] = struct{}{}
}

// Unregister removes a flusher from periodic fsyncing
func (fs *FsyncScheduler) Unregister(f Flusher) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.flushers, f)
}

// run executes the fsync loop
func (fs *FsyncScheduler) run() {
	defer fs.wg.Done()

	ticker := time.NewTicker(fs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-fs.stopCh:
			// Final fsync before shutdown
			fs.flushAll()
			return
		case <-ticker.C:
			fs.flushAll()
		}
	}
}

// flushAll flushes and syncs all registered flushers
func (fs *FsyncScheduler) flushAll() {
	fs.mu.RLock()
	flushers := make([]Flusher, 0, len(fs.flushers))
	for f := range fs.flushers {
		flushers = append(flushers, f)
	}
	fs.mu.RUnlock()

	for _, f := range flushers {
		if err := f.Flush(true); err != nil {
			fs.log.Error().Err(err).Msg("Periodic fsync failed")
		}
	}
}
