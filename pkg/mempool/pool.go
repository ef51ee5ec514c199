// Package mempool recycles buffers in a foreign address space, such as the
// linear memory of a WASM guest. Every string or array handed to the solver
// is staged in a Buffer checked out from a Pool.
//
// A Pool is safe for concurrent use.
package mempool

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"sync"

	"github.com/edp1096/spicebridge/pkg/simerr"
)

const (
	minBufferSize = 64

	DefaultMaxOutstanding = 256
	DefaultMaxIdle        = 32
)

// Sentinels for errors.Is. The pool returns them wrapped in a *simerr.Error
// of kind System.
var (
	ErrClosed          = errors.New("mempool: pool closed")
	ErrDoubleRelease   = errors.New("mempool: buffer released twice")
	ErrForeignBuffer   = errors.New("mempool: buffer does not belong to this pool")
	ErrBuffersInFlight = errors.New("mempool: buffers still checked out")
)

// Allocator reserves and frees regions in the target address space.
// A zero pointer from Alloc means out of memory.
type Allocator interface {
	Alloc(ctx context.Context, size uint32) (uint32, error)
	Free(ctx context.Context, ptr uint32) error
}

// Buffer is a region checked out of a Pool. Ptr and Cap stay valid until the
// buffer is released.
type Buffer struct {
	Ptr uint32
	Cap uint32

	pool     *Pool
	released bool
}

type Stats struct {
	Outstanding int
	Idle        int
	Allocs      uint64 // calls to Allocator.Alloc
	Frees       uint64 // calls to Allocator.Free
	Hits        uint64 // acquisitions served from the idle list
	Misses      uint64
}

type Option func(*Pool)

// WithMaxOutstanding caps the number of buffers checked out at once.
func WithMaxOutstanding(n int) Option {
	return func(p *Pool) { p.maxOutstanding = n }
}

// WithMaxIdle caps the number of idle buffers retained for reuse.
func WithMaxIdle(n int) Option {
	return func(p *Pool) { p.maxIdle = n }
}

type Pool struct {
	alloc Allocator

	maxOutstanding int
	maxIdle        int

	mu          sync.Mutex
	idle        []*Buffer // sorted by Cap
	outstanding map[*Buffer]struct{}
	closed      bool
	stats       Stats
}

func New(alloc Allocator, opts ...Option) *Pool {
	p := &Pool{
		alloc:          alloc,
		maxOutstanding: DefaultMaxOutstanding,
		maxIdle:        DefaultMaxIdle,
		outstanding:    make(map[*Buffer]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// roundUp returns the allocation size class for n.
func roundUp(n uint32) uint32 {
	if n <= minBufferSize {
		return minBufferSize
	}
	if n > 1<<31 {
		return n
	}
	return 1 << bits.Len32(n-1)
}

// Acquire returns a buffer of at least size bytes. The smallest idle buffer
// that fits is reused; otherwise a new one is allocated.
func (p *Pool) Acquire(ctx context.Context, size uint32) (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, simerr.System("acquiring buffer", ErrClosed)
	}
	if p.maxOutstanding > 0 && len(p.outstanding) >= p.maxOutstanding {
		return nil, simerr.ResourceExhausted("guest memory buffers", p.maxOutstanding)
	}

	i := sort.Search(len(p.idle), func(i int) bool { return p.idle[i].Cap >= size })
	if i < len(p.idle) {
		buf := p.idle[i]
		p.idle = append(p.idle[:i], p.idle[i+1:]...)
		buf.released = false
		p.outstanding[buf] = struct{}{}
		p.stats.Hits++
		return buf, nil
	}

	p.stats.Misses++
	capacity := roundUp(size)
	ptr, err := p.alloc.Alloc(ctx, capacity)
	p.stats.Allocs++
	if err != nil {
		return nil, simerr.FFI("malloc", err)
	}
	if ptr == 0 {
		return nil, simerr.ResourceExhausted("guest memory", int(capacity))
	}

	buf := &Buffer{Ptr: ptr, Cap: capacity, pool: p}
	p.outstanding[buf] = struct{}{}
	return buf, nil
}

// Release returns buf to the idle list. When more than MaxIdle buffers are
// idle the largest is freed.
func (p *Pool) Release(ctx context.Context, buf *Buffer) error {
	if buf == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if buf.pool != p {
		return simerr.System("releasing buffer", ErrForeignBuffer)
	}
	if buf.released {
		return simerr.System("releasing buffer", ErrDoubleRelease)
	}
	if _, ok := p.outstanding[buf]; !ok {
		return simerr.System("releasing buffer", ErrDoubleRelease)
	}
	delete(p.outstanding, buf)
	buf.released = true

	if p.closed {
		return p.free(ctx, buf)
	}

	i := sort.Search(len(p.idle), func(i int) bool { return p.idle[i].Cap >= buf.Cap })
	p.idle = append(p.idle, nil)
	copy(p.idle[i+1:], p.idle[i:])
	p.idle[i] = buf

	if len(p.idle) > p.maxIdle {
		victim := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		return p.free(ctx, victim)
	}
	return nil
}

func (p *Pool) free(ctx context.Context, buf *Buffer) error {
	p.stats.Frees++
	if err := p.alloc.Free(ctx, buf.Ptr); err != nil {
		return simerr.FFI("free", err)
	}
	return nil
}

// With runs fn with a buffer of at least size bytes and releases it afterwards.
func (p *Pool) With(ctx context.Context, size uint32, fn func(*Buffer) error) error {
	buf, err := p.Acquire(ctx, size)
	if err != nil {
		return err
	}

	fnErr := fn(buf)
	relErr := p.Release(ctx, buf)
	if fnErr != nil {
		return fnErr
	}
	return relErr
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.Outstanding = len(p.outstanding)
	s.Idle = len(p.idle)
	return s
}

// Close frees every idle buffer. Buffers still checked out are freed when
// they are released; Close reports them with ErrBuffersInFlight.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, buf := range p.idle {
		if err := p.free(ctx, buf); err != nil {
			errs = append(errs, err)
		}
	}
	p.idle = nil

	if n := len(p.outstanding); n > 0 {
		errs = append(errs, simerr.System("closing pool", fmt.Errorf("%w: %d", ErrBuffersInFlight, n)))
	}
	return errors.Join(errs...)
}
