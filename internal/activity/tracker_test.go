package activity

import (
	"testing"
	"time"

	"github.com/shehryarbajwa/visitrace/internal/clock"
	"github.com/shehryarbajwa/visitrace/internal/events"
)

var epoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func setupTracker(t *testing.T) (*Tracker, *clock.Fake, *events.Emitter) {
	t.Helper()

	fake := clock.NewFake(epoch)
	emitter := events.NewEmitter()
	tracker := NewTracker(fake, 30*time.Second)
	tracker.Attach(emitter)
	return tracker, fake, emitter
}

func TestNoActivityMeansZeroActiveTime(t *testing.T) {
	tracker, fake, _ := setupTracker(t)

	fake.Advance(5 * time.Minute)
	snapshot := tracker.Snapshot()

	if snapshot.ActiveTime != 0 {
		t.Errorf("Expected 0 active time, got %v", snapshot.ActiveTime)
	}
	if snapshot.TimeSpent != 5*time.Minute {
		t.Errorf("Expected 5m time spent, got %v", snapshot.TimeSpent)
	}
}

func TestIdleTimerCountsThreshold(t *testing.T) {
	tracker, fake, emitter := setupTracker(t)

	emitter.Dispatch(events.Event{Kind: events.KindMouseMove})
	fake.Advance(2 * time.Minute)

	snapshot := tracker.Snapshot()
	if snapshot.ActiveTime < 30*time.Second {
		t.Errorf("Expected at least 30s active, got %v", snapshot.ActiveTime)
	}
	if snapshot.ActiveTime != 30*time.Second {
		t.Errorf("Expected exactly the threshold, got %v", snapshot.ActiveTime)
	}
	if fake.Pending() != 0 {
		t.Errorf("Expected idle timer to have fired, %d pending", fake.Pending())
	}
}

func TestContinuousActivityAccumulates(t *testing.T) {
	tracker, fake, emitter := setupTracker(t)

	// five events 10s apart, then idle
	for i := 0; i < 5; i++ {
		emitter.Dispatch(events.Event{Kind: events.KindKeyDown})
		fake.Advance(10 * time.Second)
	}
	fake.Advance(time.Minute)

	// 4 gaps of 10s between events plus the 30s idle tail
	want := 40*time.Second + 30*time.Second
	if got := tracker.Snapshot().ActiveTime; got != want {
		t.Errorf("Expected %v active, got %v", want, got)
	}
}

func TestSnapshotFoldsOpenInterval(t *testing.T) {
	tracker, fake, emitter := setupTracker(t)

	emitter.Dispatch(events.Event{Kind: events.KindScroll, Depth: 40})
	fake.Advance(12 * time.Second)

	first := tracker.Snapshot()
	if first.ActiveTime != 12*time.Second {
		t.Fatalf("Expected open interval of 12s, got %v", first.ActiveTime)
	}

	second := tracker.Snapshot()
	if second.ActiveTime != first.ActiveTime {
		t.Errorf("Repeated snapshot changed active time: %v then %v", first.ActiveTime, second.ActiveTime)
	}

	fake.Advance(3 * time.Second)
	if third := tracker.Snapshot(); third.ActiveTime != 15*time.Second {
		t.Errorf("Expected 15s, got %v", third.ActiveTime)
	}
}

func TestActiveTimeIsMonotonic(t *testing.T) {
	tracker, fake, emitter := setupTracker(t)

	var last time.Duration
	steps := []time.Duration{5 * time.Second, 40 * time.Second, time.Second, 29 * time.Second, 31 * time.Second}
	for _, step := range steps {
		emitter.Dispatch(events.Event{Kind: events.KindClick})
		fake.Advance(step)
		got := tracker.Snapshot().ActiveTime
		if got < last {
			t.Fatalf("Active time decreased from %v to %v", last, got)
		}
		last = got
	}
}

func TestClicksAndScrollDepth(t *testing.T) {
	tracker, _, emitter := setupTracker(t)

	emitter.Dispatch(events.Event{Kind: events.KindClick})
	emitter.Dispatch(events.Event{Kind: events.KindClick})
	emitter.Dispatch(events.Event{Kind: events.KindScroll, Depth: 55})
	emitter.Dispatch(events.Event{Kind: events.KindScroll, Depth: 20})
	emitter.Dispatch(events.Event{Kind: events.KindScroll, Depth: 140})

	snapshot := tracker.Snapshot()
	if snapshot.ClickCount != 2 {
		t.Errorf("Expected 2 clicks, got %d", snapshot.ClickCount)
	}
	if snapshot.ScrollDepth != 100 {
		t.Errorf("Expected scroll depth capped at 100, got %v", snapshot.ScrollDepth)
	}
}

func TestExitIntentIsSticky(t *testing.T) {
	tracker, _, emitter := setupTracker(t)

	emitter.Dispatch(events.Event{Kind: events.KindMouseLeave, Y: 200})
	if tracker.Snapshot().ExitIntent {
		t.Fatal("Pointer leaving through the bottom must not set exit intent")
	}

	emitter.Dispatch(events.Event{Kind: events.KindMouseLeave, Y: -3})
	emitter.Dispatch(events.Event{Kind: events.KindMouseLeave, Y: 300})
	emitter.Dispatch(events.Event{Kind: events.KindMouseMove})

	if !tracker.Snapshot().ExitIntent {
		t.Error("Exit intent was reset")
	}
}

func TestVisibilityLogIsOrdered(t *testing.T) {
	tracker, fake, emitter := setupTracker(t)

	emitter.Dispatch(events.Event{Kind: events.KindVisibilityChange, State: events.StateVisible})
	fake.Advance(time.Second)
	emitter.Dispatch(events.Event{Kind: events.KindVisibilityChange, State: events.StateHidden})
	fake.Advance(time.Second)
	// a skewed browser timestamp is clamped so the log never goes backwards
	emitter.Dispatch(events.Event{Kind: events.KindVisibilityChange, State: events.StateVisible, Time: epoch.Add(-time.Hour)})

	log := tracker.Snapshot().VisibilityChanges
	if len(log) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(log))
	}
	wantStates := []string{events.StateVisible, events.StateHidden, events.StateVisible}
	for i, entry := range log {
		if entry.State != wantStates[i] {
			t.Errorf("Entry %d: expected %s, got %s", i, wantStates[i], entry.State)
		}
		if i > 0 && entry.At.Before(log[i-1].At) {
			t.Errorf("Entry %d timestamp %v before %v", i, entry.At, log[i-1].At)
		}
	}
}

func TestStopDetachesAndCancelsTimer(t *testing.T) {
	tracker, fake, emitter := setupTracker(t)

	emitter.Dispatch(events.Event{Kind: events.KindClick})
	tracker.Stop()

	if emitter.Subscribers() != 0 {
		t.Errorf("Expected tracker to unsubscribe, %d left", emitter.Subscribers())
	}
	if fake.Pending() != 0 {
		t.Errorf("Expected idle timer stopped, %d pending", fake.Pending())
	}

	emitter.Dispatch(events.Event{Kind: events.KindClick})
	if got := tracker.Snapshot().ClickCount; got != 1 {
		t.Errorf("Expected clicks after Stop to be ignored, got %d", got)
	}
}
