package mempool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/edp1096/spicebridge/pkg/simerr"
)

// fakeAllocator hands out increasing addresses and tracks live regions.
type fakeAllocator struct {
	mu    sync.Mutex
	next  uint32
	live  map[uint32]uint32
	fail  error
	empty bool
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{next: 0x1000, live: make(map[uint32]uint32)}
}

func (a *fakeAllocator) Alloc(_ context.Context, size uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail != nil {
		return 0, a.fail
	}
	if a.empty {
		return 0, nil
	}
	ptr := a.next
	a.next += size
	a.live[ptr] = size
	return ptr, nil
}

func (a *fakeAllocator) Free(_ context.Context, ptr uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.live[ptr]; !ok {
		return errors.New("free of unknown pointer")
	}
	delete(a.live, ptr)
	return nil
}

func (a *fakeAllocator) liveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

func TestRoundUp(t *testing.T) {
	tests := []struct {
		in, want uint32
	}{
		{0, 64},
		{1, 64},
		{64, 64},
		{65, 128},
		{128, 128},
		{1000, 1024},
		{4097, 8192},
	}
	for _, tt := range tests {
		if got := roundUp(tt.in); got != tt.want {
			t.Errorf("roundUp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAcquireReuse(t *testing.T) {
	ctx := context.Background()
	alloc := newFakeAllocator()
	p := New(alloc)

	buf, err := p.Acquire(ctx, 100)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if buf.Cap != 128 {
		t.Errorf("Cap = %d, want 128", buf.Cap)
	}
	ptr := buf.Ptr

	if err := p.Release(ctx, buf); err != nil {
		t.Fatalf("Release: %v", err)
	}

	again, err := p.Acquire(ctx, 120)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if again.Ptr != ptr {
		t.Errorf("idle buffer not reused: got %#x, want %#x", again.Ptr, ptr)
	}

	s := p.Stats()
	if s.Allocs != 1 || s.Hits != 1 || s.Misses != 1 || s.Outstanding != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestAcquireBestFit(t *testing.T) {
	ctx := context.Background()
	p := New(newFakeAllocator())

	small, _ := p.Acquire(ctx, 64)
	large, _ := p.Acquire(ctx, 4096)
	medium, _ := p.Acquire(ctx, 512)
	for _, b := range []*Buffer{large, small, medium} {
		if err := p.Release(ctx, b); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}

	got, err := p.Acquire(ctx, 300)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got.Ptr != medium.Ptr {
		t.Errorf("best fit picked cap %d, want %d", got.Cap, medium.Cap)
	}
}

func TestMaxOutstanding(t *testing.T) {
	ctx := context.Background()
	p := New(newFakeAllocator(), WithMaxOutstanding(2))

	a, _ := p.Acquire(ctx, 10)
	if _, err := p.Acquire(ctx, 10); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}

	_, err := p.Acquire(ctx, 10)
	if simerr.KindOf(err) != simerr.KindResourceExhausted {
		t.Fatalf("err = %v, want ResourceExhausted", err)
	}
	if !simerr.IsRecoverable(err) {
		t.Error("ResourceExhausted should be recoverable")
	}

	if err := p.Release(ctx, a); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := p.Acquire(ctx, 10); err != nil {
		t.Errorf("Acquire after release: %v", err)
	}
}

func TestMaxIdleEviction(t *testing.T) {
	ctx := context.Background()
	alloc := newFakeAllocator()
	p := New(alloc, WithMaxIdle(1))

	a, _ := p.Acquire(ctx, 64)
	b, _ := p.Acquire(ctx, 1024)
	_ = p.Release(ctx, a)
	_ = p.Release(ctx, b)

	s := p.Stats()
	if s.Idle != 1 || s.Frees != 1 {
		t.Errorf("stats = %+v, want 1 idle and 1 free", s)
	}
	if alloc.liveCount() != 1 {
		t.Errorf("live allocations = %d, want 1", alloc.liveCount())
	}
}

func TestDoubleRelease(t *testing.T) {
	ctx := context.Background()
	p := New(newFakeAllocator())

	buf, _ := p.Acquire(ctx, 10)
	if err := p.Release(ctx, buf); err != nil {
		t.Fatalf("Release: %v", err)
	}
	err := p.Release(ctx, buf)
	if !errors.Is(err, ErrDoubleRelease) {
		t.Errorf("second Release = %v, want ErrDoubleRelease", err)
	}
	if simerr.CategoryOf(err) != simerr.CategorySystem || simerr.IsRecoverable(err) {
		t.Errorf("second Release category = %s", simerr.CategoryOf(err))
	}

	other := New(newFakeAllocator())
	foreign, _ := other.Acquire(ctx, 10)
	if err := p.Release(ctx, foreign); !errors.Is(err, ErrForeignBuffer) {
		t.Errorf("foreign Release = %v, want ErrForeignBuffer", err)
	}
}

func TestAllocatorFailures(t *testing.T) {
	ctx := context.Background()

	alloc := newFakeAllocator()
	alloc.fail = errors.New("trap")
	if _, err := New(alloc).Acquire(ctx, 10); simerr.KindOf(err) != simerr.KindFFI {
		t.Errorf("err = %v, want FFI", err)
	}

	alloc = newFakeAllocator()
	alloc.empty = true
	if _, err := New(alloc).Acquire(ctx, 10); simerr.KindOf(err) != simerr.KindResourceExhausted {
		t.Errorf("err = %v, want ResourceExhausted", err)
	}
}

func TestWith(t *testing.T) {
	ctx := context.Background()
	p := New(newFakeAllocator())

	sentinel := errors.New("boom")
	err := p.With(ctx, 32, func(b *Buffer) error {
		if b.Cap < 32 {
			t.Errorf("Cap = %d", b.Cap)
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("With = %v, want callback error", err)
	}
	if s := p.Stats(); s.Outstanding != 0 || s.Idle != 1 {
		t.Errorf("buffer not released: %+v", s)
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	alloc := newFakeAllocator()
	p := New(alloc)

	idle, _ := p.Acquire(ctx, 10)
	held, _ := p.Acquire(ctx, 10)
	_ = p.Release(ctx, idle)

	err := p.Close(ctx)
	if !errors.Is(err, ErrBuffersInFlight) {
		t.Fatalf("Close = %v, want ErrBuffersInFlight", err)
	}
	if simerr.KindOf(err) != simerr.KindSystem {
		t.Errorf("Close kind = %s", simerr.KindOf(err))
	}
	if _, err := p.Acquire(ctx, 10); !errors.Is(err, ErrClosed) || simerr.KindOf(err) != simerr.KindSystem {
		t.Errorf("Acquire after Close = %v", err)
	}

	if err := p.Release(ctx, held); err != nil {
		t.Fatalf("Release after Close: %v", err)
	}
	if alloc.liveCount() != 0 {
		t.Errorf("live allocations = %d, want 0", alloc.liveCount())
	}
}

func TestConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	alloc := newFakeAllocator()
	p := New(alloc, WithMaxOutstanding(64))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				err := p.With(ctx, uint32(j*10), func(*Buffer) error { return nil })
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if s := p.Stats(); s.Outstanding != 0 {
		t.Errorf("outstanding = %d", s.Outstanding)
	}
	if err := p.Close(ctx); err != nil {
		t.Errorf("Close: %v", err)
	}
	if alloc.liveCount() != 0 {
		t.Errorf("leaked %d allocations", alloc.liveCount())
	}
}
