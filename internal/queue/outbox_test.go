package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"waveline/internal/queue"
	"waveline/internal/testsupport"
)

func TestOutboxEnqueueDedupesByPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first, err := store.OutboxEnqueue(ctx, "/artifacts/track.json", 1)
	if err != nil {
		t.Fatalf("OutboxEnqueue failed: %v", err)
	}
	second, err := store.OutboxEnqueue(ctx, "/artifacts/track.json", 2)
	if err != nil {
		t.Fatalf("OutboxEnqueue failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected dedupe to return the same entry, got %d and %d", first.ID, second.ID)
	}

	entries, err := store.OutboxList(ctx)
	if err != nil {
		t.Fatalf("OutboxList failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(entries))
	}
	if entries[0].JobID != 1 {
		t.Fatalf("expected original job id retained, got %d", entries[0].JobID)
	}
}

func TestOutboxBackoffWindow(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock))

	ctx := context.Background()
	entry, err := store.OutboxEnqueue(ctx, "/artifacts/track.json", 1)
	if err != nil {
		t.Fatalf("OutboxEnqueue failed: %v", err)
	}

	eligible, err := store.OutboxNextPending(ctx)
	if err != nil {
		t.Fatalf("OutboxNextPending failed: %v", err)
	}
	if eligible == nil || eligible.ID != entry.ID {
		t.Fatalf("fresh entry should be eligible, got %#v", eligible)
	}

	if err := store.OutboxMarkFailure(ctx, entry.ID, errors.New("connection refused")); err != nil {
		t.Fatalf("OutboxMarkFailure failed: %v", err)
	}

	eligible, err = store.OutboxNextPending(ctx)
	if err != nil {
		t.Fatalf("OutboxNextPending failed: %v", err)
	}
	if eligible != nil {
		t.Fatalf("entry should be ineligible inside backoff window, got %#v", eligible)
	}

	current = current.Add(2 * time.Second)
	eligible, err = store.OutboxNextPending(ctx)
	if err != nil {
		t.Fatalf("OutboxNextPending failed: %v", err)
	}
	if eligible == nil || eligible.ID != entry.ID {
		t.Fatalf("entry should be eligible after backoff elapses, got %#v", eligible)
	}
	if eligible.Attempts != 1 || eligible.LastError != "connection refused" {
		t.Fatalf("failure bookkeeping not recorded: %#v", eligible)
	}
}

func TestOutboxBackoffHonorsSubSecondTimestamps(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 2, 123456700, time.UTC)
	clock := func() time.Time { return current }

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock))

	ctx := context.Background()
	entry, err := store.OutboxEnqueue(ctx, "/artifacts/track.json", 1)
	if err != nil {
		t.Fatalf("OutboxEnqueue failed: %v", err)
	}
	if err := store.OutboxMarkFailure(ctx, entry.ID, errors.New("connection refused")); err != nil {
		t.Fatalf("OutboxMarkFailure failed: %v", err)
	}

	// One nanosecond past the window. An encoding that trims trailing
	// fractional zeros sorts the failure time after this cutoff string and
	// wrongly holds the entry back.
	current = current.Add(2*time.Second + time.Nanosecond)
	eligible, err := store.OutboxNextPending(ctx)
	if err != nil {
		t.Fatalf("OutboxNextPending failed: %v", err)
	}
	if eligible == nil || eligible.ID != entry.ID {
		t.Fatalf("entry should be eligible once the backoff has elapsed, got %#v", eligible)
	}
}

func TestOutboxAbandonsAfterMaxAttempts(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	cfg := testsupport.NewConfig(t, testsupport.WithOutboxPolicy(5, 2))
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock))

	ctx := context.Background()
	entry, err := store.OutboxEnqueue(ctx, "/artifacts/track.json", 1)
	if err != nil {
		t.Fatalf("OutboxEnqueue failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := store.OutboxMarkFailure(ctx, entry.ID, errors.New("still down")); err != nil {
			t.Fatalf("OutboxMarkFailure failed: %v", err)
		}
		current = current.Add(time.Minute)
	}

	eligible, err := store.OutboxNextPending(ctx)
	if err != nil {
		t.Fatalf("OutboxNextPending failed: %v", err)
	}
	if eligible != nil {
		t.Fatalf("entry past max attempts must never be returned, got %#v", eligible)
	}

	entries, err := store.OutboxList(ctx)
	if err != nil {
		t.Fatalf("OutboxList failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Attempts != 5 {
		t.Fatalf("abandoned entry should stay inspectable, got %#v", entries)
	}
}

func TestOutboxMarkSuccessRemovesEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	entry, err := store.OutboxEnqueue(ctx, "/artifacts/track.json", 1)
	if err != nil {
		t.Fatalf("OutboxEnqueue failed: %v", err)
	}
	if err := store.OutboxMarkSuccess(ctx, entry.ID); err != nil {
		t.Fatalf("OutboxMarkSuccess failed: %v", err)
	}

	entries, err := store.OutboxList(ctx)
	if err != nil {
		t.Fatalf("OutboxList failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected entry removed after success, got %#v", entries)
	}
}
