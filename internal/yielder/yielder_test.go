package yielder

import (
	"context"
	"errors"
	"testing"
	"time"
)

func drain(t *testing.T, y *PriorityYielder) []any {
	t.Helper()
	var got []any
	deadline := time.After(2 * time.Second)
	for {
		select {
		case batch, ok := <-y.Results():
			if !ok {
				return got
			}
			got = append(got, batch.([]any)...)
		case <-deadline:
			t.Fatal("timed out waiting for results")
		}
	}
}

func TestYieldsAllSubmittedBatches(t *testing.T) {
	y := New(context.Background(), WithMaxWorkers(2), WithYieldBufferSize(0))
	for i := 0; i < 5; i++ {
		i := i
		y.Submit(func(ctx context.Context) ([]any, error) {
			return []any{i}, nil
		}, 0)
	}
	got := drain(t, y)
	if len(got) != 5 {
		t.Fatalf("expected 5 results, got %d", len(got))
	}
	if err := y.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHigherPriorityRunsFirst(t *testing.T) {
	y := New(context.Background(), WithMaxWorkers(1), WithYieldBufferSize(0))
	order := make(chan int, 3)
	y.Submit(func(ctx context.Context) ([]any, error) { order <- 1; return nil, nil }, 0)
	y.Submit(func(ctx context.Context) ([]any, error) { order <- 2; return nil, nil }, 10)
	y.Submit(func(ctx context.Context) ([]any, error) { order <- 3; return nil, nil }, 5)
	drain(t, y)
	close(order)
	var seq []int
	for v := range order {
		seq = append(seq, v)
	}
	if len(seq) != 3 || seq[0] != 1 {
		t.Fatalf("expected first-submitted job to start immediately (single worker), got %v", seq)
	}
	if seq[1] != 2 || seq[2] != 3 {
		t.Fatalf("expected priority 10 to run before priority 5 once the worker frees up, got %v", seq)
	}
}

func TestErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	y := New(context.Background(), WithMaxWorkers(1))
	y.Submit(func(ctx context.Context) ([]any, error) { return nil, boom }, 0)
	drain(t, y)
	if !errors.Is(y.Err(), boom) {
		t.Fatalf("expected boom error, got %v", y.Err())
	}
}

func TestShutdownStopsDispatch(t *testing.T) {
	y := New(context.Background(), WithMaxWorkers(1))
	started := make(chan struct{})
	y.Submit(func(ctx context.Context) ([]any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, 0)
	queuedRan := make(chan struct{}, 1)
	y.Submit(func(ctx context.Context) ([]any, error) {
		queuedRan <- struct{}{}
		return nil, nil
	}, 0)
	<-started
	y.Shutdown()
	select {
	case <-queuedRan:
		t.Fatal("expected queued source not to be dispatched after Shutdown")
	default:
	}
}
