package events

import (
	"path/filepath"
	"testing"
	"time"
)

func TestBusSubscribeEmit(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(4)
	defer cancel()

	bus.Emit(Event{Kind: RunStarted, RunID: "r1"})
	select {
	case ev := <-ch:
		if ev.Kind != RunStarted || ev.RunID != "r1" {
			t.Errorf("event = %+v", ev)
		}
		if ev.Time.IsZero() {
			t.Error("Emit did not stamp the time")
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBusSlowSubscriberDrops(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	// A full buffer must not block the emitter.
	bus.Emit(Event{Kind: TaskStarted, Task: "a"})
	bus.Emit(Event{Kind: TaskStarted, Task: "b"})
	bus.Emit(Event{Kind: TaskStarted, Task: "c"})

	ev := <-ch
	if ev.Task != "a" {
		t.Errorf("first event = %+v", ev)
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}
	// Emitting after unsubscribe must not panic.
	bus.Emit(Event{Kind: RunFinished})
}

func TestJournalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	j.Emit(Event{Kind: RunStarted, RunID: "r1"})
	j.Emit(Event{Kind: TaskFinished, RunID: "r1", Task: "greet", Shard: 2})
	j.Emit(Event{Kind: RunFinished, RunID: "r1", Msg: "succeeded"})
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events, err := ReadJournal(path)
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[1].Task != "greet" || events[1].Shard != 2 {
		t.Errorf("events[1] = %+v", events[1])
	}
	if events[2].Msg != "succeeded" {
		t.Errorf("events[2] = %+v", events[2])
	}
}

func TestMulti(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	// Nil members are skipped so callers can compose optional sinks.
	m := Multi{nil, bus}
	m.Emit(Event{Kind: TaskQueued, Task: "t"})
	select {
	case ev := <-ch:
		if ev.Task != "t" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("multi did not deliver")
	}
}
