package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/labi-le/clipseat/pkg/dispatch"
	"github.com/rs/zerolog"
)

func TestDispatcher_Order(t *testing.T) {
	d := dispatch.New()

	var got []int
	want := make([]int, 100)
	for i := 0; i < 100; i++ {
		want[i] = i
		d.Schedule(func() { got = append(got, i) })
	}

	if n := d.Dispatch(); n != 100 {
		t.Fatalf("expected 100 closures to run, got %d", n)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestDispatcher_ScheduleDuringDispatch(t *testing.T) {
	d := dispatch.New()

	counter := 0
	var step func()
	step = func() {
		counter++
		if counter < 100 {
			d.Schedule(step)
		}
	}
	d.Schedule(step)

	iterations := 0
	for d.Dispatch() > 0 {
		iterations++
	}

	if counter != 100 {
		t.Fatalf("expected counter 100, got %d", counter)
	}
	if iterations != 100 {
		t.Fatalf("rescheduled closures must wait for the next iteration, got %d iterations", iterations)
	}
}

func TestDispatcher_Wakeup(t *testing.T) {
	var wakes atomic.Int32
	d := dispatch.New(dispatch.WithWakeup(func() { wakes.Add(1) }))

	d.Schedule(func() {})
	d.Schedule(func() {})
	d.Schedule(nil)

	if got := wakes.Load(); got != 2 {
		t.Fatalf("expected 2 wakeups, got %d", got)
	}
	if d.Len() != 2 {
		t.Fatalf("expected 2 pending closures, got %d", d.Len())
	}
}

func TestLoop_CrossGoroutineSchedule(t *testing.T) {
	loop := dispatch.NewLoop(zerolog.Nop())

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(ctx, nil) }()

	var (
		wg    sync.WaitGroup
		total int
		done  = make(chan struct{})
	)

	const workers, perWorker = 10, 100
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				loop.Schedule(func() {
					total++
					if total == workers*perWorker {
						close(done)
					}
				})
			}
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for scheduled closures")
	}

	cancel()
	if err := <-runErr; err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
}

func TestLoop_EventError(t *testing.T) {
	loop := dispatch.NewLoop(zerolog.Nop())

	events := make(chan dispatch.Event, 1)
	boom := errors.New("boom")
	events <- func() error { return boom }

	err := loop.Run(t.Context(), events)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestLoop_Call(t *testing.T) {
	loop := dispatch.NewLoop(zerolog.Nop())

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = loop.Run(ctx, nil) }()

	ran := false
	if err := loop.Call(ctx, func() { ran = true }); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !ran {
		t.Fatal("closure did not run")
	}
}

func TestDispatcher_ScheduleAfterClose(t *testing.T) {
	var wakes atomic.Int32
	d := dispatch.New(dispatch.WithWakeup(func() { wakes.Add(1) }))

	d.Schedule(func() {})
	if n := d.Dispatch(); n != 1 {
		t.Fatalf("expected 1 closure to run, got %d", n)
	}

	d.Close()
	d.Close()

	d.Schedule(func() { t.Error("closure ran after close") })

	if d.Len() != 0 {
		t.Fatalf("expected nothing pending after close, got %d", d.Len())
	}
	if got := wakes.Load(); got != 1 {
		t.Fatalf("dropped closures must not wake the consumer, got %d wakeups", got)
	}
	if n := d.Dispatch(); n != 0 {
		t.Fatalf("expected no closures to run after close, got %d", n)
	}
}

func TestDispatcher_ConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	d := dispatch.New()

	const producers, perProducer = 8, 200
	var wg sync.WaitGroup
	wg.Add(producers)

	got := make([][]int, producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				d.Schedule(func() { got[p] = append(got[p], j) })
			}
		}()
	}
	wg.Wait()

	if n := d.Dispatch(); n != producers*perProducer {
		t.Fatalf("expected %d closures to run, got %d", producers*perProducer, n)
	}

	want := make([]int, perProducer)
	for j := range want {
		want[j] = j
	}
	for p := range got {
		if diff := cmp.Diff(want, got[p]); diff != "" {
			t.Fatalf("producer %d out of order (-want +got):\n%s", p, diff)
		}
	}
}

func TestLoop_ClosedAfterRun(t *testing.T) {
	loop := dispatch.NewLoop(zerolog.Nop())

	ctx, cancel := context.WithCancel(t.Context())
	ran := make(chan struct{})
	loop.Schedule(func() { close(ran) })
	cancel()

	if err := loop.Run(ctx, nil); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	select {
	case <-ran:
	default:
		t.Fatal("closure scheduled before cancel must still run")
	}

	loop.Schedule(func() { t.Error("closure ran after the loop returned") })
	if loop.Len() != 0 {
		t.Fatalf("expected closures to be dropped after Run, got %d pending", loop.Len())
	}
}
