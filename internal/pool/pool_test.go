package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunPreservesOrder(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}

	// Later items finish first on purpose.
	out, err := Run(context.Background(), items, 4, func(ctx context.Context, i int, v int) (string, error) {
		time.Sleep(time.Duration(len(items)-i) * 2 * time.Millisecond)
		return fmt.Sprintf("r%d", v), nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out) != len(items) {
		t.Fatalf("len = %d, want %d", len(out), len(items))
	}
	for i, r := range out {
		if want := fmt.Sprintf("r%d", i); r != want {
			t.Errorf("out[%d] = %s, want %s", i, r, want)
		}
	}
}

func TestRunBoundsParallelism(t *testing.T) {
	const maxParallel = 3
	var inFlight, peak int64

	items := make([]int, 20)
	_, err := Run(context.Background(), items, maxParallel, func(ctx context.Context, i int, v int) (int, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return v, nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if peak > maxParallel {
		t.Errorf("peak in-flight = %d, want <= %d", peak, maxParallel)
	}
}

func TestRunEmptyInput(t *testing.T) {
	out, err := Run(context.Background(), nil, 2, func(ctx context.Context, i int, v int) (int, error) {
		t.Fatal("worker must not run")
		return 0, nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("len = %d, want 0", len(out))
	}
}

func TestRunFirstErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	var calls int64

	items := make([]int, 50)
	_, err := Run(context.Background(), items, 2, func(ctx context.Context, i int, v int) (int, error) {
		atomic.AddInt64(&calls, 1)
		if i == 1 {
			return 0, boom
		}
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Millisecond):
		}
		return v, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if atomic.LoadInt64(&calls) == int64(len(items)) {
		t.Errorf("expected abort before all %d items ran", len(items))
	}
}

func TestRunInvalidParallelism(t *testing.T) {
	if _, err := Run(context.Background(), []int{1}, 0, func(ctx context.Context, i int, v int) (int, error) {
		return v, nil
	}); err == nil {
		t.Fatal("expected error for maxParallel < 1")
	}
}
