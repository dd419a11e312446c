package runtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shahbajlive/flowrun/internal/events"
	"github.com/shahbajlive/flowrun/internal/values"
)

// IsURI reports whether a File value names a remote object to download
// rather than a local path.
func IsURI(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// downloader localizes remote File inputs into <runDir>/downloads.
type downloader struct {
	runDir string
	runID  string
	sink   events.Sink
	client *http.Client

	mu    sync.Mutex
	count int
	cache map[string]string
}

func newDownloader(runDir, runID string, sink events.Sink) *downloader {
	return &downloader{
		runDir: runDir,
		runID:  runID,
		sink:   sink,
		client: &http.Client{Timeout: 10 * time.Minute},
		cache:  map[string]string{},
	}
}

// localize replaces every remote File in the environment with a local copy.
// The same URI downloads once per run.
func (d *downloader) localize(ctx context.Context, env values.Bindings) (values.Bindings, error) {
	out := env
	for _, binding := range env.All() {
		v, err := d.localizeValue(ctx, binding.Value)
		if err != nil {
			return env, err
		}
		out = out.Bind(binding.Name, v)
	}
	return out, nil
}

func (d *downloader) localizeValue(ctx context.Context, v values.Value) (values.Value, error) {
	switch x := v.(type) {
	case values.File:
		if !IsURI(x.Path) {
			return v, nil
		}
		local, err := d.fetch(ctx, x.Path)
		if err != nil {
			return nil, err
		}
		return values.File{Path: local}, nil
	case values.Array:
		items := make([]values.Value, len(x.Items))
		for i, it := range x.Items {
			lv, err := d.localizeValue(ctx, it)
			if err != nil {
				return nil, err
			}
			items[i] = lv
		}
		return values.Array{ItemType: x.ItemType, Items: items}, nil
	case values.Map:
		vals := make([]values.Value, len(x.Values))
		for i, it := range x.Values {
			lv, err := d.localizeValue(ctx, it)
			if err != nil {
				return nil, err
			}
			vals[i] = lv
		}
		return values.Map{KeyType: x.KeyType, ValueType: x.ValueType, Keys: x.Keys, Values: vals}, nil
	case values.Pair:
		l, err := d.localizeValue(ctx, x.Left)
		if err != nil {
			return nil, err
		}
		r, err := d.localizeValue(ctx, x.Right)
		if err != nil {
			return nil, err
		}
		return values.Pair{Left: l, Right: r}, nil
	}
	return v, nil
}

// fetch downloads one URI with retry, returning the local path.
func (d *downloader) fetch(ctx context.Context, uri string) (string, error) {
	d.mu.Lock()
	if local, ok := d.cache[uri]; ok {
		d.mu.Unlock()
		return local, nil
	}
	d.count++
	n := d.count
	d.mu.Unlock()

	name := path.Base(uri)
	if name == "" || name == "." || name == "/" {
		name = "download"
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	dir := filepath.Join(d.runDir, "downloads", fmt.Sprint(n))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &DownloadFailed{URI: uri, Err: err}
	}
	dest := filepath.Join(dir, name)

	d.sink.Emit(events.Event{Kind: events.DownloadStarted, RunID: d.runID, Msg: uri})
	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(2*time.Minute),
	), ctx)
	err := backoff.Retry(func() error {
		return d.fetchOnce(ctx, uri, dest)
	}, policy)
	if err != nil {
		return "", &DownloadFailed{URI: uri, Err: err}
	}
	d.sink.Emit(events.Event{
		Kind: events.DownloadFinished, RunID: d.runID, Msg: uri,
		Meta: map[string]string{"path": dest},
	})
	d.mu.Lock()
	d.cache[uri] = dest
	d.mu.Unlock()
	return dest, nil
}

func (d *downloader) fetchOnce(ctx context.Context, uri, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("HTTP %s", resp.Status)
		// Client errors will not heal on retry; server errors might.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return backoff.Permanent(err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}
	return f.Close()
}
