package outbox_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"waveline/internal/outbox"
	"waveline/internal/queue"
	"waveline/internal/testsupport"
)

type fakeSink struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (s *fakeSink) Ingest(ctx context.Context, filePath string, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, filePath)
	if err, ok := s.fail[filePath]; ok {
		return err
	}
	return nil
}

func (s *fakeSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestDrainDeliversAllEligible(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sink := &fakeSink{}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := store.OutboxEnqueue(ctx, fmt.Sprintf("/artifacts/track-%d.json", i), int64(i+1)); err != nil {
			t.Fatalf("OutboxEnqueue failed: %v", err)
		}
	}

	var passes int
	processor := outbox.NewProcessor(store, sink, nil, outbox.WithPassCallback(func(stats outbox.PassStats) {
		passes++
		if stats.Delivered != 3 || stats.Failed != 0 {
			t.Errorf("unexpected pass stats %#v", stats)
		}
	}))

	stats := processor.Drain(ctx)
	if stats.Delivered != 3 {
		t.Fatalf("expected 3 deliveries, got %#v", stats)
	}
	if passes != 1 {
		t.Fatalf("metrics callback should fire exactly once per pass, fired %d times", passes)
	}

	entries, err := store.OutboxList(ctx)
	if err != nil {
		t.Fatalf("OutboxList failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("delivered entries should be removed, got %#v", entries)
	}
}

func TestDrainRecordsFailureAndStops(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock))
	sink := &fakeSink{fail: map[string]error{"/artifacts/bad.json": errors.New("endpoint down")}}

	ctx := context.Background()
	if _, err := store.OutboxEnqueue(ctx, "/artifacts/bad.json", 1); err != nil {
		t.Fatalf("OutboxEnqueue failed: %v", err)
	}

	processor := outbox.NewProcessor(store, sink, nil)
	stats := processor.Drain(ctx)
	if stats.Failed != 1 || stats.Delivered != 0 {
		t.Fatalf("expected one failed delivery, got %#v", stats)
	}
	if sink.callCount() != 1 {
		t.Fatalf("entry inside backoff window must not be retried in the same pass, got %d calls", sink.callCount())
	}

	entries, err := store.OutboxList(ctx)
	if err != nil {
		t.Fatalf("OutboxList failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Attempts != 1 || entries[0].LastError != "endpoint down" {
		t.Fatalf("failure not recorded: %#v", entries)
	}
}

func TestDrainSkipsCallbackWhenIdle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	fired := false
	processor := outbox.NewProcessor(store, &fakeSink{}, nil, outbox.WithPassCallback(func(outbox.PassStats) {
		fired = true
	}))

	processor.Drain(context.Background())
	if fired {
		t.Fatal("callback must not fire for an empty pass")
	}
}

func TestKickTriggersBackgroundDrain(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sink := &fakeSink{}

	ctx := context.Background()
	if _, err := store.OutboxEnqueue(ctx, "/artifacts/track.json", 1); err != nil {
		t.Fatalf("OutboxEnqueue failed: %v", err)
	}

	processor := outbox.NewProcessor(store, sink, nil, outbox.WithWakeInterval(time.Hour))
	if err := processor.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer processor.Stop()

	processor.Kick()

	deadline := time.After(5 * time.Second)
	for sink.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("kick did not trigger a drain pass")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
