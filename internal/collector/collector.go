// Package collector aggregates measurement bits into fixed-size batches and
// dispatches them to a configurable sender. Batches are flushed when full
// or after a periodic interval, whichever comes first.
package collector

import (
	"context"
	"log"
	"sync"
	"time"

	"qrng-gateway/internal/bitstream"
	"qrng-gateway/internal/clock"
	"qrng-gateway/internal/metrics"
)

// BatchSender abstracts the downstream consumer of bit batches. The
// production implementation forwards batches to the bit pool. Test doubles
// may implement this interface to verify dispatch behaviour without a pool.
type BatchSender interface {
	SendBatch(bits bitstream.Sequence, sequence uint32) error
	IncrementDropped(count uint32)
}

// Option applies an optional configuration to a BatchCollector during
// construction.
type Option func(*BatchCollector)

// WithClock injects a custom clock for deterministic flush timing in tests.
func WithClock(clockSource clock.Clock) Option {
	return func(bc *BatchCollector) {
		bc.clockSource = clockSource
	}
}

// BatchCollector buffers measurement bits and dispatches them as batches to a
// BatchSender. Bits are flushed when the buffer reaches maxSize or when the
// periodic auto-flush interval elapses. A single-goroutine send loop
// preserves dispatch ordering. All methods are safe for concurrent use.
type BatchCollector struct {
	bits               bitstream.Sequence
	maxSize            int
	forwarder          BatchSender
	flushInterval      time.Duration
	clockSource        clock.Clock
	mu                 sync.Mutex
	pendingSendGroup   sync.WaitGroup
	sendWorkerGroup    sync.WaitGroup
	autoFlushGroup     sync.WaitGroup
	sendQueue          chan sendRequest
	closeSendQueueOnce sync.Once
	sequence           uint32
	ctx                context.Context
	cancel             context.CancelFunc
}

type sendRequest struct {
	batch bitstream.Sequence
	seq   uint32
}

// NewBatchCollector creates a BatchCollector with a default flush interval of
// ten seconds. See NewBatchCollectorWithFlush for custom intervals.
func NewBatchCollector(maxSize int, fwd BatchSender, opts ...Option) *BatchCollector {
	return NewBatchCollectorWithFlush(maxSize, 10*time.Second, fwd, opts...)
}

// NewBatchCollectorWithFlush creates a BatchCollector with the given flush
// interval. It starts a background send loop and an auto-flush goroutine
// immediately. Call Close to release both goroutines.
func NewBatchCollectorWithFlush(maxSize int, flushInterval time.Duration, fwd BatchSender, opts ...Option) *BatchCollector {
	ctx, cancel := context.WithCancel(context.Background())
	bc := &BatchCollector{
		bits:          make(bitstream.Sequence, 0, maxSize),
		maxSize:       maxSize,
		forwarder:     fwd,
		flushInterval: flushInterval,
		clockSource:   clock.RealClock{},
		sequence:      0,
		ctx:           ctx,
		cancel:        cancel,
	}

	bc.sendQueue = make(chan sendRequest, maxInt(1, maxSize/256))
	bc.sendWorkerGroup.Add(1)
	go bc.runSendLoop()

	for _, opt := range opts {
		opt(bc)
	}

	if bc.clockSource == nil {
		bc.clockSource = clock.RealClock{}
	}

	metrics.SetCollectorBatchSize(maxSize)

	bc.autoFlushGroup.Add(1)
	go bc.autoFlush()
	return bc
}

// AddBits appends measurement bits to the current batch. Whenever the buffer
// reaches the maximum batch size a full batch is flushed to the send queue;
// a single large payload may therefore trigger several flushes.
func (bc *BatchCollector) AddBits(bits bitstream.Sequence) {
	if len(bits) == 0 {
		return
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	bc.bits = append(bc.bits, bits...)
	metrics.SetCollectorPoolSize(len(bc.bits))

	for len(bc.bits) >= bc.maxSize {
		bc.flushN(bc.maxSize)
	}
}

// IncrementDropped delegates the dropped message count to the underlying
// BatchSender for metrics recording.
func (bc *BatchCollector) IncrementDropped(count uint32) {
	if bc.forwarder != nil {
		bc.forwarder.IncrementDropped(count)
	}
}

// flush enqueues the whole buffer for asynchronous dispatch. The caller must
// hold bc.mu.
func (bc *BatchCollector) flush() {
	bc.flushN(len(bc.bits))
}

// flushN enqueues the first n buffered bits for asynchronous dispatch and
// shifts the remainder down. The caller must hold bc.mu.
func (bc *BatchCollector) flushN(n int) {
	if n <= 0 || len(bc.bits) == 0 {
		return
	}
	if n > len(bc.bits) {
		n = len(bc.bits)
	}

	start := bc.clockSource.Now()

	batch := make(bitstream.Sequence, n)
	copy(batch, bc.bits[:n])
	bc.sequence++
	seq := bc.sequence

	remaining := copy(bc.bits, bc.bits[n:])
	bc.bits = bc.bits[:remaining]
	metrics.SetCollectorPoolSize(len(bc.bits))

	if cap(bc.bits) > bc.maxSize*2 && len(bc.bits) < bc.maxSize/4 {
		oldCap := cap(bc.bits)
		resized := make(bitstream.Sequence, len(bc.bits), bc.maxSize)
		copy(resized, bc.bits)
		bc.bits = resized
		log.Printf("collector: buffer reallocated (was %d, now %d)", oldCap, bc.maxSize)
	}

	flushDuration := bc.clockSource.Now().Sub(start)
	metrics.RecordBatchFlush(len(batch), flushDuration)

	bc.pendingSendGroup.Add(1)
	bc.sendQueue <- sendRequest{batch: batch, seq: seq}
}

// autoFlush periodically flushes incomplete batches so that low-throughput
// periods do not leave bits buffered indefinitely.
func (bc *BatchCollector) autoFlush() {
	defer bc.autoFlushGroup.Done()

	interval := bc.flushInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	for {
		select {
		case <-bc.ctx.Done():
			return
		case <-bc.clockSource.After(interval):
			bc.mu.Lock()
			bc.flush()
			bc.mu.Unlock()
		}
	}
}

// Close stops the auto-flush goroutine, flushes remaining bits, and waits
// up to five seconds for all pending sends to complete.
func (bc *BatchCollector) Close() {
	bc.cancel()

	bc.mu.Lock()
	bc.flush()
	bc.mu.Unlock()

	bc.closeSendQueueOnce.Do(func() {
		close(bc.sendQueue)
	})

	done := make(chan struct{})
	go func() {
		bc.sendWorkerGroup.Wait()
		bc.pendingSendGroup.Wait()
		bc.autoFlushGroup.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("collector: all batches sent")
	case <-bc.clockSource.After(5 * time.Second):
		log.Println("collector: timeout waiting for sends")
	}
}

func (bc *BatchCollector) runSendLoop() {
	defer bc.sendWorkerGroup.Done()
	for job := range bc.sendQueue {
		if err := bc.forwarder.SendBatch(job.batch, job.seq); err != nil {
			log.Printf("collector: failed to send batch %d: %v", job.seq, err)
		}
		bc.pendingSendGroup.Done()
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
