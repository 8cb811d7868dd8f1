package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"samco-bridge/internal/model"
)

// BarSink is what BufferedWriter writes through; *Writer satisfies it.
type BarSink interface {
	WriteBars(ctx context.Context, bars []model.Bar) error
}

// BufferedWriter wraps a bar sink with a circuit breaker.
// While the circuit is open, bars are held in memory and replayed once it
// closes again.
type BufferedWriter struct {
	sink BarSink
	cb   *CircuitBreaker
	ctx  context.Context

	mu     sync.Mutex
	buffer []model.Bar
	maxBuf int // max buffered bars before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func(n int)     // called when bars are buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered bars
}

// NewBufferedWriter creates a BufferedWriter around sink.
func NewBufferedWriter(ctx context.Context, sink BarSink, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		sink:   sink,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]model.Bar, 0, 256),
		maxBuf: maxBufferSize,
	}

	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(name string, from, to State) {
		if prevCallback != nil {
			prevCallback(name, from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteBars writes through the circuit breaker. Bars rejected by an open
// circuit are buffered and nil is returned; sink errors are returned as is.
func (bw *BufferedWriter) WriteBars(ctx context.Context, bars []model.Bar) error {
	err := bw.cb.Execute(func() error {
		return bw.sink.WriteBars(ctx, bars)
	})
	if errors.Is(err, ErrCircuitOpen) {
		bw.bufferBars(bars)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferBars(bars []model.Bar) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	bw.buffer = append(bw.buffer, bars...)
	if over := len(bw.buffer) - bw.maxBuf; over > 0 {
		// drop oldest
		bw.buffer = append(bw.buffer[:0:0], bw.buffer[over:]...)
	}

	if bw.OnBuffer != nil {
		bw.OnBuffer(len(bars))
	}
}

// flush replays buffered bars through the sink.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]model.Bar, 0, 256)
	bw.mu.Unlock()

	if err := bw.WriteBars(bw.ctx, toFlush); err != nil {
		log.Printf("[buffered-writer] flush of %d bars failed: %v", len(toFlush), err)
		return
	}

	log.Printf("[buffered-writer] flushed %d buffered bars", len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(len(toFlush))
	}
}

// PendingCount returns the number of buffered bars waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Close flushes what is buffered. It does not close the sink.
func (bw *BufferedWriter) Close() error {
	bw.flush()
	return nil
}
