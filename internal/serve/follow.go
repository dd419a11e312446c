package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shahbajlive/flowrun/internal/events"
)

// JournalFollower tails the events.jsonl journals under a run base
// directory and republishes new events onto the bus, so the websocket
// stream covers runs started by other processes.
type JournalFollower struct {
	base     string
	bus      *events.Bus
	interval time.Duration

	mu      sync.Mutex
	offsets map[string]int64
}

// NewJournalFollower creates a follower over the run base directory.
func NewJournalFollower(base string, bus *events.Bus) *JournalFollower {
	return &JournalFollower{
		base:     base,
		bus:      bus,
		interval: time.Second,
		offsets:  map[string]int64{},
	}
}

// Run polls until the context is cancelled. On first poll, existing
// journal content is skipped so only fresh events stream.
func (f *JournalFollower) Run(ctx context.Context) {
	f.poll(true)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.poll(false)
		}
	}
}

func (f *JournalFollower) poll(initial bool) {
	paths, err := filepath.Glob(filepath.Join(f.base, "*", "events.jsonl"))
	if err != nil {
		return
	}
	for _, path := range paths {
		f.pollFile(path, initial)
	}
}

func (f *JournalFollower) pollFile(path string, initial bool) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	f.mu.Lock()
	offset, known := f.offsets[path]
	f.mu.Unlock()
	if !known && initial {
		// Skip history present before the follower started.
		f.setOffset(path, info.Size())
		return
	}
	if info.Size() <= offset {
		return
	}

	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	read := offset
	for scanner.Scan() {
		line := scanner.Bytes()
		read += int64(len(line)) + 1
		var ev events.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		f.bus.Emit(ev)
	}
	f.setOffset(path, read)
}

func (f *JournalFollower) setOffset(path string, n int64) {
	f.mu.Lock()
	f.offsets[path] = n
	f.mu.Unlock()
}
