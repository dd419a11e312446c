// Package events defines run lifecycle events, an in-process bus for live
// subscribers, and the per-run JSONL journal.
package events

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Kind labels an event.
type Kind string

const (
	RunStarted       Kind = "run_started"
	RunFinished      Kind = "run_finished"
	TaskQueued       Kind = "task_queued"
	TaskStarted      Kind = "task_started"
	TaskFinished     Kind = "task_finished"
	TaskFailed       Kind = "task_failed"
	DownloadStarted  Kind = "download_started"
	DownloadFinished Kind = "download_finished"
)

// Event is one run lifecycle event.
type Event struct {
	Time  time.Time         `json:"time"`
	Kind  Kind              `json:"kind"`
	RunID string            `json:"run_id"`
	Task  string            `json:"task,omitempty"`
	Shard int               `json:"shard,omitempty"`
	Msg   string            `json:"msg,omitempty"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Sink receives events.
type Sink interface {
	Emit(Event)
}

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than block the engine.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

// Subscribe registers a subscriber with the given buffer. Cancel with the
// returned function; the channel closes on unsubscribe.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Emit delivers an event to all subscribers.
func (b *Bus) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Journal appends events to a JSONL file, one event per line.
type Journal struct {
	mu sync.Mutex
	f  *os.File
}

// OpenJournal creates or truncates the journal file.
func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{f: f}, nil
}

// Emit writes one event line. Marshal failures are impossible for Event's
// field types, and write failures are swallowed: journaling never fails a
// run.
func (j *Journal) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, _ = j.f.Write(append(data, '\n'))
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// Multi groups sinks so the engine emits once.
type Multi []Sink

// Emit delivers to every sink.
func (m Multi) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// ReadJournal loads all events from a journal file, skipping malformed
// lines.
func ReadJournal(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []Event
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil {
				continue
			}
			out = append(out, ev)
		}
	}
	return out, nil
}
