package tracking_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/goliatone/go-rentreport/pkg/client"
	"github.com/goliatone/go-rentreport/pkg/clock"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/tracking"
)

type recordingSink struct {
	mu      sync.Mutex
	puts    []client.TrackingSnapshot
	deletes []string
}

func (r *recordingSink) Put(_ context.Context, snapshot client.TrackingSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts = append(r.puts, snapshot)
	return nil
}

func (r *recordingSink) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, id)
	return nil
}

func (r *recordingSink) snapshot() ([]client.TrackingSnapshot, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]client.TrackingSnapshot(nil), r.puts...), append([]string(nil), r.deletes...)
}

func TestDebouncer_CoalescesBurstIntoOneCall(t *testing.T) {
	defer goleak.VerifyNone(t)

	debouncer := tracking.NewDebouncer(time.Hour)
	var calls, last int32
	for i := int32(1); i <= 10; i++ {
		value := i
		debouncer.Trigger("session", func() {
			atomic.AddInt32(&calls, 1)
			atomic.StoreInt32(&last, value)
		})
	}
	if debouncer.Pending() != 1 {
		t.Fatalf("expected one pending call, got %d", debouncer.Pending())
	}
	debouncer.Stop()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one call, got %d", got)
	}
	if got := atomic.LoadInt32(&last); got != 10 {
		t.Fatalf("expected latest function to run, got %d", got)
	}
	if debouncer.Trigger("session", func() {}) {
		t.Fatalf("expected stopped debouncer to reject triggers")
	}
}

func TestDebouncer_FiresAfterQuietPeriod(t *testing.T) {
	defer goleak.VerifyNone(t)

	debouncer := tracking.NewDebouncer(5 * time.Millisecond)
	done := make(chan string, 2)
	debouncer.Trigger("a", func() { done <- "a" })
	debouncer.Trigger("b", func() { done <- "b" })

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case key := <-done:
			got[key] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("debounced calls did not fire")
		}
	}
	if !got["a"] || !got["b"] {
		t.Fatalf("expected independent keys to fire, got %v", got)
	}
	debouncer.Stop()
}

func TestDebouncer_Cancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	debouncer := tracking.NewDebouncer(time.Hour)
	var calls int32
	debouncer.Trigger("a", func() { atomic.AddInt32(&calls, 1) })
	debouncer.Cancel("a")
	debouncer.Stop()
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected cancelled call to be dropped")
	}
}

func TestTracker_LifecycleSendsMergedSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingSink{}
	tracker := tracking.NewTracker(sink, tracking.WithDebounce(time.Hour))
	defer tracker.Close()

	session, err := tracker.Start(context.Background(), client.TrackingSnapshot{Step: "personal", FirstName: "Ada"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.ID == "" {
		t.Fatalf("expected session id")
	}
	for _, change := range []client.TrackingSnapshot{
		{LastName: "Lovelace"},
		{Email: "ada@example.com"},
		{Step: "address", City: "Austin"},
	} {
		if _, err := tracker.Update(session.ID, change); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	tracker.Flush()

	puts, _ := sink.snapshot()
	want := []client.TrackingSnapshot{
		{ID: session.ID, Step: "personal", FirstName: "Ada"},
		{ID: session.ID, Step: "address", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", City: "Austin"},
	}
	if diff := cmp.Diff(want, puts); diff != "" {
		t.Fatalf("snapshots mismatch (-want +got):\n%s", diff)
	}

	if _, err := tracker.Update(session.ID, client.TrackingSnapshot{State: "TX"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tracker.Complete(context.Background(), session.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	tracker.Flush()
	puts, deletes := sink.snapshot()
	if len(puts) != 2 {
		t.Fatalf("expected pending update to be dropped on completion, got %d puts", len(puts))
	}
	if diff := cmp.Diff([]string{session.ID}, deletes); diff != "" {
		t.Fatalf("deletes mismatch (-want +got):\n%s", diff)
	}
	if _, ok := tracker.Get(session.ID); ok {
		t.Fatalf("expected session to be removed")
	}
}

func TestTracker_UnknownSession(t *testing.T) {
	tracker := tracking.NewTracker(&recordingSink{})
	defer tracker.Close()
	if _, err := tracker.Update("missing", client.TrackingSnapshot{}); err != tracking.ErrUnknownSession {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

func TestTracker_EvictsIdleSessions(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	manual := clock.NewManual(time.Date(2024, 7, 3, 12, 0, 0, 0, time.UTC))
	tracker := tracking.NewTracker(&recordingSink{}, tracking.WithDebounce(time.Hour), tracking.WithClock(manual))
	defer tracker.Close()

	idle, _ := tracker.Start(ctx, client.TrackingSnapshot{Step: "personal"})
	active, _ := tracker.Start(ctx, client.TrackingSnapshot{Step: "personal"})
	manual.Advance(20 * time.Minute)
	if _, err := tracker.Update(active.ID, client.TrackingSnapshot{Step: "address"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	manual.Advance(15 * time.Minute)

	if _, ok := tracker.Get(idle.ID); ok {
		t.Fatalf("expected idle session to be evicted")
	}
	if _, err := tracker.Update(idle.ID, client.TrackingSnapshot{Step: "address"}); err != tracking.ErrUnknownSession {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
	got, ok := tracker.Get(active.ID)
	if !ok || got.Snapshot.Step != "address" {
		t.Fatalf("expected active session to survive, got %+v", got)
	}
}

func TestTracker_AbandonedSessionsDoNotAccumulate(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	manual := clock.NewManual(time.Date(2024, 7, 3, 12, 0, 0, 0, time.UTC))
	tracker := tracking.NewTracker(&recordingSink{},
		tracking.WithDebounce(time.Hour),
		tracking.WithClock(manual),
		tracking.WithIdleTTL(time.Hour),
	)
	defer tracker.Close()

	for i := 0; i < 1000; i++ {
		if _, err := tracker.Start(ctx, client.TrackingSnapshot{Step: "personal"}); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	if tracker.Len() != 1000 {
		t.Fatalf("expected 1000 sessions, got %d", tracker.Len())
	}

	manual.Advance(30 * 24 * time.Hour)
	latest, _ := tracker.Start(ctx, client.TrackingSnapshot{Step: "personal"})
	if tracker.Len() != 1 {
		t.Fatalf("expected abandoned sessions to be evicted, %d held", tracker.Len())
	}
	if _, ok := tracker.Get(latest.ID); !ok {
		t.Fatalf("expected new session to be held")
	}

	manual.Advance(time.Hour)
	if evicted := tracker.Sweep(); evicted != 1 || tracker.Len() != 0 {
		t.Fatalf("expected sweep to evict 1 session, evicted %d and %d held", evicted, tracker.Len())
	}
}

func TestSnapshotFromValues(t *testing.T) {
	got := tracking.SnapshotFromValues(model.Values{
		"firstName": "Ada",
		"email":     "ada@example.com",
		"monthly":   1500.0,
	}, "review")
	want := client.TrackingSnapshot{Step: "review", FirstName: "Ada", Email: "ada@example.com"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}
