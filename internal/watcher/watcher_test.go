package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeReloader struct {
	mu    sync.Mutex
	paths []string
}

func (r *fakeReloader) LoadDefinitionFromFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *fakeReloader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func TestReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	reloader := &fakeReloader{}

	w, err := New(dir, reloader, zerolog.Nop())
	require.NoError(t, err)
	w.SetDebounceDuration(20 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	path := filepath.Join(dir, "POST.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	require.Eventually(t, func() bool {
		return reloader.count() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	reloader := &fakeReloader{}

	w, err := New(dir, reloader, zerolog.Nop())
	require.NoError(t, err)
	w.SetDebounceDuration(20 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	time.Sleep(200 * time.Millisecond)
	require.Zero(t, reloader.count())
}

func TestDebounceCollapsesWrites(t *testing.T) {
	dir := t.TempDir()
	reloader := &fakeReloader{}

	w, err := New(dir, reloader, zerolog.Nop())
	require.NoError(t, err)
	w.SetDebounceDuration(100 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	path := filepath.Join(dir, "POST.json")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return reloader.count() >= 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 1, reloader.count())
}
