package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vk-quest-bot/internal/domain"
)

type blockingBehavior struct {
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
	handled atomic.Int32
	err     error
	mu      sync.Mutex
	ctxErrs []error
}

func (b *blockingBehavior) Name() string { return "test" }

func (b *blockingBehavior) Handle(ctx context.Context, _ domain.Message) error {
	n := b.active.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-b.release
	b.active.Add(-1)
	b.handled.Add(1)
	b.mu.Lock()
	b.ctxErrs = append(b.ctxErrs, ctx.Err())
	b.mu.Unlock()
	return b.err
}

func TestDispatchBoundsConcurrency(t *testing.T) {
	b := &blockingBehavior{release: make(chan struct{})}
	d := New(b, 2, time.Minute, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := d.Dispatch(ctx, domain.Message{SenderID: int64(i)}); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := d.Dispatch(blocked, domain.Message{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected third dispatch to wait for a free worker, got %v", err)
	}

	close(b.release)
	d.Wait()
	if b.handled.Load() != 2 || b.peak.Load() > 2 {
		t.Fatalf("handled %d, peak %d", b.handled.Load(), b.peak.Load())
	}
}

func TestHandlerOutlivesCancelledPoll(t *testing.T) {
	b := &blockingBehavior{release: make(chan struct{}), err: errors.New("boom")}
	d := New(b, 1, time.Minute, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	if err := d.Dispatch(ctx, domain.Message{SenderID: 1}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	cancel()
	close(b.release)
	d.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ctxErrs) != 1 || b.ctxErrs[0] != nil {
		t.Fatalf("handler context must survive poll cancellation, got %v", b.ctxErrs)
	}
}

func TestNewDefaults(t *testing.T) {
	d := New(&blockingBehavior{}, 0, 0, zerolog.Nop())
	if d.timeout != DefaultTimeout {
		t.Fatalf("expected default timeout, got %s", d.timeout)
	}
}
