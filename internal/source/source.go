// Package source defines the boundary with the external entropy source:
// any black-box producer of independent bit outcomes, whether a quantum
// device feeding the gateway over MQTT or the classical pseudo-random
// baseline used for comparison. A source answers a draw request with a
// fresh immutable sequence and caches nothing across calls.
package source

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"qrng-gateway/internal/bitstream"
)

// Source produces ordered bit sequences on demand. Draw returns a fresh
// sequence of exactly n bits or an error; implementations must not retain
// or mutate returned sequences.
type Source interface {
	Draw(ctx context.Context, n int) (bitstream.Sequence, error)
}

// Func adapts a plain function to the Source interface.
type Func func(ctx context.Context, n int) (bitstream.Sequence, error)

// Draw invokes the wrapped function.
func (f Func) Draw(ctx context.Context, n int) (bitstream.Sequence, error) {
	return f(ctx, n)
}

// Pseudorandom is the classical baseline source: a seeded software
// generator with nominal bias 0.5. Its only role is to supply the second,
// independently produced sequence for comparative reporting. Safe for
// concurrent use.
type Pseudorandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPseudorandom constructs a baseline source from the given seed. A zero
// seed selects the current time, matching typical one-off usage; any other
// value gives a reproducible stream.
func NewPseudorandom(seed int64) *Pseudorandom {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Pseudorandom{rng: rand.New(rand.NewSource(seed))}
}

// Draw returns n pseudo-random bits. Returns an error for non-positive n
// or a cancelled context.
func (p *Pseudorandom) Draw(ctx context.Context, n int) (bitstream.Sequence, error) {
	if n <= 0 {
		return nil, fmt.Errorf("source: draw size must be positive, got %d", n)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bits := make(bitstream.Sequence, n)
	for i := range bits {
		bits[i] = byte(p.rng.Intn(2))
	}
	return bits, nil
}
