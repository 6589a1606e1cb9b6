// Package pool manages the bounded reservoir of quantum measurement bits fed
// by the batch collector and consumed by the analysis API. Every ingested
// batch is profiled for entropy quality and every extraction passes the block
// health checks before bits leave the pool.
package pool

import (
	"context"
	"errors"
	"log"
	"sync"

	"qrng-gateway/internal/analysis"
	"qrng-gateway/internal/bitstream"
	"qrng-gateway/internal/metrics"
	"qrng-gateway/internal/validation"
)

const (
	defaultMinPoolBits   = 4096
	poolBufferMultiplier = 4
)

// Extraction failure modes reported by Draw.
var (
	ErrPoolNotReady      = errors.New("pool: below minimum reserve")
	ErrInsufficientBits  = errors.New("pool: insufficient bits available")
	ErrHealthCheckFailed = errors.New("pool: block health check failed")
)

// Options carries the tunable bounds and health check cutoffs of a BitPool.
// Zero values fall back to conservative defaults.
type Options struct {
	MinBits          int // Minimum reserve before extractions are served
	MaxBits          int // Upper bound on stored bits (oldest evicted first)
	RepetitionCutoff int // Longest tolerated run of identical bits per block
	ProportionCutoff int // Max count of the dominant bit per proportion window
	ProportionWindow int // Proportion check window size in bits
}

// BitPool is a concurrency-safe FIFO buffer of measurement bits. Ingested
// batches are profiled (Shannon entropy ratio and conservative min-entropy)
// and extracted blocks are screened with the repetition and adaptive
// proportion checks. A block that fails a health check is discarded so the
// pool can recover with fresh material.
type BitPool struct {
	mu               sync.RWMutex
	bits             bitstream.Sequence
	minPoolBits      int
	maxPoolBits      int
	repetitionCutoff int
	proportionCutoff int
	proportionWindow int
	batches          uint64
}

// NewBitPool constructs a pool that keeps at least minBits available before
// serving draws. The maximum pool size defaults to minBits multiplied by
// poolBufferMultiplier.
func NewBitPool(minBits int) *BitPool {
	if minBits <= 0 {
		minBits = defaultMinPoolBits
	}
	return NewBitPoolWithOptions(Options{
		MinBits: minBits,
		MaxBits: minBits * poolBufferMultiplier,
	})
}

// NewBitPoolWithOptions constructs a pool with explicit bounds and health
// check cutoffs. Invalid values fall back to safe defaults.
func NewBitPoolWithOptions(opts Options) *BitPool {
	if opts.MinBits <= 0 {
		opts.MinBits = defaultMinPoolBits
	}
	if opts.MaxBits <= 0 {
		opts.MaxBits = opts.MinBits * poolBufferMultiplier
	}
	if opts.MaxBits < opts.MinBits {
		opts.MaxBits = opts.MinBits
	}
	if opts.RepetitionCutoff <= 0 {
		opts.RepetitionCutoff = validation.DefaultRepetitionCutoff
	}
	if opts.ProportionWindow <= 0 {
		opts.ProportionWindow = validation.DefaultProportionWindow
	}
	if opts.ProportionCutoff <= 0 || opts.ProportionCutoff > opts.ProportionWindow {
		opts.ProportionCutoff = validation.DefaultProportionCutoff
	}

	return &BitPool{
		minPoolBits:      opts.MinBits,
		maxPoolBits:      opts.MaxBits,
		repetitionCutoff: opts.RepetitionCutoff,
		proportionCutoff: opts.ProportionCutoff,
		proportionWindow: opts.ProportionWindow,
	}
}

// SendBatch ingests a batch of measurement bits from the collector. The batch
// is profiled for descriptive quality before storage and the pool is trimmed
// to its upper bound, evicting the oldest bits first.
// SendBatch satisfies the collector BatchSender interface and is safe for
// concurrent use.
func (pool *BitPool) SendBatch(bits bitstream.Sequence, sequence uint32) error {
	if len(bits) == 0 {
		return nil
	}

	if stats, err := analysis.Describe(bits); err == nil {
		minEntropy := validation.EstimateMinEntropyConservative(bits)
		metrics.RecordBatchQuality(stats.EntropyRatio, minEntropy)
		if stats.Quality() == analysis.QualityPoor {
			log.Printf("pool: batch %d entropy ratio %.4f below quality floor", sequence, stats.EntropyRatio)
		}
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()

	pool.bits = append(pool.bits, bits...)
	pool.batches++
	if len(pool.bits) > pool.maxPoolBits {
		trim := len(pool.bits) - pool.maxPoolBits
		copy(pool.bits, pool.bits[trim:])
		pool.bits = pool.bits[:len(pool.bits)-trim]
	}

	metrics.SetPoolBits(len(pool.bits))
	return nil
}

// IncrementDropped records measurement messages dropped upstream of the pool.
func (pool *BitPool) IncrementDropped(count uint32) {
	for i := uint32(0); i < count; i++ {
		metrics.RecordEventDropped("upstream")
	}
}

// Extract removes and returns exactly numBits from the pool. It fails when
// numBits is non-positive, the pool is below its minimum reserve,
// insufficient bits are available, or a block health check flags the
// candidate block. A flagged block is discarded from the pool so the same
// defective material is not served on retry.
// This method is safe for concurrent use.
func (pool *BitPool) Extract(numBits int) (bitstream.Sequence, error) {
	if numBits <= 0 {
		return nil, ErrInsufficientBits
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()

	if len(pool.bits) < pool.minPoolBits {
		metrics.RecordPoolRejection("not_ready")
		return nil, ErrPoolNotReady
	}

	if len(pool.bits) < numBits {
		metrics.RecordPoolRejection("insufficient_bits")
		return nil, ErrInsufficientBits
	}

	output := make(bitstream.Sequence, numBits)
	copy(output, pool.bits[:numBits])

	if !validation.RepetitionCheck(output, pool.repetitionCutoff) {
		log.Printf("pool: repetition check failure (run of %d), discarding block", validation.MaxRunLength(output))
		metrics.RecordRepetitionFailure()
		metrics.RecordPoolRejection("repetition_check")
		pool.discardLocked(numBits)
		return nil, ErrHealthCheckFailed
	}

	if !validation.ProportionCheck(output, pool.proportionCutoff, pool.proportionWindow) {
		log.Printf("pool: proportion check failure, discarding block")
		metrics.RecordProportionFailure()
		metrics.RecordPoolRejection("proportion_check")
		pool.discardLocked(numBits)
		return nil, ErrHealthCheckFailed
	}

	pool.discardLocked(numBits)

	metrics.RecordDraw(numBits)
	return output, nil
}

// discardLocked removes the first n bits. The caller must hold pool.mu.
func (pool *BitPool) discardLocked(n int) {
	pool.bits = append(bitstream.Sequence(nil), pool.bits[n:]...)
	metrics.SetPoolBits(len(pool.bits))
}

// Draw implements the source.Source interface over the pool so the analysis
// API can treat quantum and classical generators uniformly.
func (pool *BitPool) Draw(ctx context.Context, numBits int) (bitstream.Sequence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return pool.Extract(numBits)
}

// Status returns the number of batches ingested so far and the number of
// bits currently stored.
func (pool *BitPool) Status() (uint64, int) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	return pool.batches, len(pool.bits)
}

// Available reports the number of bits ready for extraction after respecting
// the configured minimum reserve.
func (pool *BitPool) Available() int {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	if len(pool.bits) <= pool.minPoolBits {
		return 0
	}
	return len(pool.bits) - pool.minPoolBits
}
