package history

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// writeTimeout bounds a single history write.
const writeTimeout = 5 * time.Second

// Recorder buffers exchanges on a channel and writes them from a background
// worker. A full buffer drops the exchange with a warning instead of
// blocking the response path.
type Recorder struct {
	store  *Store
	ch     chan *Exchange
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewRecorder starts a recorder over the given store.
func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		store:  store,
		ch:     make(chan *Exchange, 256),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "history"),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record queues one exchange for persistence.
func (r *Recorder) Record(e *Exchange) {
	select {
	case r.ch <- e:
	default:
		r.logger.Warn("history buffer full, dropping exchange", "request_id", e.RequestID)
	}
}

// Close stops the worker after draining queued exchanges.
func (r *Recorder) Close() error {
	close(r.done)
	r.wg.Wait()
	return r.store.Close()
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.ch:
			r.write(e)

		case <-r.done:
			for {
				select {
				case e := <-r.ch:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e *Exchange) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.store.Save(ctx, e); err != nil {
		r.logger.Error("failed to persist chat exchange", "request_id", e.RequestID, "error", err)
	}
}
