package gateway

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/metrics"
)

// batcher accumulates outbound events and flushes them as one BatchMessage
// per debounce window. Events keep their emission order inside a batch and
// across consecutive batches.
//
// When the connection is saturated the flush is held instead of dropped;
// the session writer calls resume once it has drained below the budget.
type batcher struct {
	debounce time.Duration
	maxSize  int

	// flush ships a complete batch; it reports false when the connection
	// is saturated and the batch must be retried after draining.
	flush func(*wire.BatchMessage) bool

	mu      sync.Mutex
	pending []wire.SubMessage
	timer   *time.Timer
	held    bool
	closed  bool
}

func newBatcher(debounce time.Duration, maxSize int, flush func(*wire.BatchMessage) bool) *batcher {
	return &batcher{
		debounce: debounce,
		maxSize:  maxSize,
		flush:    flush,
	}
}

// emit queues one event. The first event of a window arms the debounce
// timer; hitting maxSize flushes without waiting for it.
func (b *batcher) emit(msg wire.ServerMessage) {
	sub, err := wire.NewSubMessage(msg)
	if err != nil {
		log.Warn("drop unencodable event", zap.Uint32("op", uint32(msg.ServerKind())), zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.pending = append(b.pending, sub)
	if len(b.pending) >= b.maxSize {
		b.flushLocked()
		return
	}
	if b.timer == nil && !b.held {
		b.timer = time.AfterFunc(b.debounce, b.onTimer)
	}
}

func (b *batcher) onTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timer = nil
	if b.closed || b.held {
		return
	}
	b.flushLocked()
}

// resume retries a held flush. Called by the session writer whenever the
// outstanding byte count drops below the backpressure budget.
func (b *batcher) resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.held || b.closed {
		return
	}
	b.held = false
	b.flushLocked()
}

// close flushes whatever is pending and rejects further events.
// The final flush ignores backpressure so the tail is not lost.
func (b *batcher) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.pending) == 0 {
		return
	}
	batch := &wire.BatchMessage{Payload: b.pending}
	b.pending = nil
	b.flush(batch)
	metrics.BatchesFlushed.Inc()
	metrics.BatchSize.Observe(float64(len(batch.Payload)))
}

func (b *batcher) flushLocked() {
	if len(b.pending) == 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}

	batch := &wire.BatchMessage{Payload: b.pending}
	if !b.flush(batch) {
		// Saturated; keep the batch and wait for resume.
		b.held = true
		metrics.BackpressurePaused.Inc()
		return
	}
	b.pending = nil
	metrics.BatchesFlushed.Inc()
	metrics.BatchSize.Observe(float64(len(batch.Payload)))
}
