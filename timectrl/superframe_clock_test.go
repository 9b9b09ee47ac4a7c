package timectrl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lephus/opensand/model"
)

func TestSuperframeClockFiresSequentialNumbers(t *testing.T) {
	tc := NewTimeController(time.Unix(0, 0), time.Millisecond, Accelerated)
	sc := NewSuperframeClock(tc, nil)

	var mu sync.Mutex
	var seen []uint32
	var wg sync.WaitGroup
	wg.Add(3)
	sc.AddListener(func(ctx context.Context, sof *model.Sof, sfn uint32) {
		mu.Lock()
		seen = append(seen, sfn)
		mu.Unlock()
		wg.Done()
	})

	done := tc.Start(3 * time.Millisecond)
	<-done
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("got %d sof events, want 3: %v", len(seen), seen)
	}
	for i, sfn := range seen {
		if sfn != uint32(i) {
			t.Fatalf("seen[%d] = %d, want %d (sequential from 0)", i, sfn, i)
		}
	}
	if got := sc.CurrentSuperframe(); got != 2 {
		t.Fatalf("CurrentSuperframe() = %d, want 2", got)
	}
}

func TestSuperframeClockBarrierWaitsForAllListeners(t *testing.T) {
	tc := NewTimeController(time.Unix(0, 0), time.Millisecond, Accelerated)
	sc := NewSuperframeClock(tc, nil)

	var mu sync.Mutex
	var order []string
	slow := make(chan struct{})
	sc.AddListener(func(ctx context.Context, sof *model.Sof, sfn uint32) {
		<-slow
		mu.Lock()
		order = append(order, "slow")
		mu.Unlock()
	})
	sc.AddListener(func(ctx context.Context, sof *model.Sof, sfn uint32) {
		mu.Lock()
		order = append(order, "fast")
		mu.Unlock()
	})

	fireDone := make(chan struct{})
	go func() {
		sc.fireSof(context.Background())
		close(fireDone)
	}()

	select {
	case <-fireDone:
		t.Fatalf("fireSof returned before the slow listener finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(slow)
	<-fireDone

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 {
		t.Fatalf("order = %v, want 2 entries", order)
	}
}

func TestDeliverSofIgnoresDuplicateAndBackwards(t *testing.T) {
	tc := NewTimeController(time.Unix(0, 0), time.Millisecond, Accelerated)
	sc := NewSuperframeClock(tc, nil)

	var calls int32
	var mu sync.Mutex
	sc.AddListener(func(ctx context.Context, sof *model.Sof, sfn uint32) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	sc.DeliverSof(context.Background(), 5)
	sc.DeliverSof(context.Background(), 5) // duplicate
	sc.DeliverSof(context.Background(), 3) // backwards

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("listener called %d times, want 1 (duplicate and backwards ignored)", calls)
	}
	if got := sc.CurrentSuperframe(); got != 5 {
		t.Fatalf("CurrentSuperframe() = %d, want 5", got)
	}
}
