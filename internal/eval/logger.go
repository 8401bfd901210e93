package eval

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/geodecomp/internal/logging"
)

// DefaultBufferSize is the eval queue capacity used when none is given.
const DefaultBufferSize = 256

// writeTimeout bounds a single sink write.
const writeTimeout = 5 * time.Second

// Sink persists evals.
type Sink interface {
	InsertEval(ctx context.Context, e Eval) error
}

// AsyncLogger queues evals and writes them to a Sink from a background
// goroutine. LogEval never blocks; evals arriving while the queue is full
// are dropped and counted.
type AsyncLogger struct {
	sink    Sink
	queue   chan Eval
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	failed  atomic.Uint64
	written atomic.Uint64
}

// NewAsyncLogger starts a logger writing to sink.
func NewAsyncLogger(sink Sink, bufferSize int) *AsyncLogger {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	l := &AsyncLogger{
		sink:  sink,
		queue: make(chan Eval, bufferSize),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

// LogEval enqueues e without blocking.
func (l *AsyncLogger) LogEval(e Eval) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.drop()
		return
	}

	select {
	case l.queue <- e:
	default:
		l.drop()
	}
}

func (l *AsyncLogger) drop() {
	dropped := l.dropped.Add(1)
	if dropped%10 == 1 {
		log.Printf("[eval] WARNING: eval dropped, queue full (total dropped: %d)", dropped)
	}
}

func (l *AsyncLogger) run() {
	defer close(l.done)
	for e := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := l.sink.InsertEval(ctx, e)
		cancel()
		if err != nil {
			l.failed.Add(1)
			logging.Debugf("[eval] write eval %s failed: %v\n", e.ID, err)
			continue
		}
		l.written.Add(1)
	}
}

// Close stops accepting evals and waits until queued ones are written.
func (l *AsyncLogger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()
	<-l.done
}

// DroppedCount returns how many evals were discarded.
func (l *AsyncLogger) DroppedCount() uint64 {
	return l.dropped.Load()
}

// FailedCount returns how many sink writes returned an error.
func (l *AsyncLogger) FailedCount() uint64 {
	return l.failed.Load()
}

// WrittenCount returns how many evals reached the sink.
func (l *AsyncLogger) WrittenCount() uint64 {
	return l.written.Load()
}
