package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
	"github.com/jamesainslie/dcsave/pkg/dcsave/savediff"
	"github.com/jamesainslie/dcsave/pkg/dcsave/watcher"
)

func writeSave(t *testing.T, dir, doc string) {
	t.Helper()
	v, err := savecodec.ParseJSON([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, savecodec.WriteFile(filepath.Join(dir, watcher.DefaultFile), v))
}

func newWatcher(t *testing.T, dir string, opts watcher.Options) *watcher.Watcher {
	t.Helper()
	opts.Retries = 1
	opts.RetryDelay = time.Millisecond
	w, err := watcher.New(dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestCheckPublishesChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSave(t, dir, `{"a":1,"endings":["e1"]}`)
	w := newWatcher(t, dir, watcher.Options{})
	sub := w.Subscribe()
	require.NotNil(t, sub)

	assert.Nil(t, w.Check(), "unchanged file publishes nothing")

	writeSave(t, dir, `{"a":2,"endings":["e1","e2"],"b":true}`)
	ev := w.Check()
	require.NotNil(t, ev)
	assert.Equal(t, watcher.EventChanged, ev.Type)
	assert.Equal(t, w.Path(), ev.Path)
	assert.Equal(t, []string{"a 1→2", "endings.append(\"e2\")", "+b = true"}, savediff.Lines(ev.Changes))

	select {
	case got := <-sub.Events:
		assert.Same(t, ev, got)
	default:
		t.Fatal("subscriber did not receive the event")
	}
}

func TestCheckIgnoredVariables(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSave(t, dir, `{"record":{"t":1},"a":1}`)
	w := newWatcher(t, dir, watcher.Options{Ignored: []string{"record"}})

	writeSave(t, dir, `{"record":{"t":2},"a":1}`)
	assert.Nil(t, w.Check())
}

func TestCheckFileLifecycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSave(t, dir, `{"a":1}`)
	w := newWatcher(t, dir, watcher.Options{})

	require.NoError(t, os.Remove(w.Path()))
	ev := w.Check()
	require.NotNil(t, ev)
	assert.Equal(t, watcher.EventRemoved, ev.Type)
	assert.Nil(t, w.Check())

	writeSave(t, dir, `{"a":5}`)
	ev = w.Check()
	require.NotNil(t, ev)
	assert.Equal(t, watcher.EventCreated, ev.Type)

	writeSave(t, dir, `{"a":6}`)
	ev = w.Check()
	require.NotNil(t, ev)
	assert.Equal(t, []string{"a 5→6"}, savediff.Lines(ev.Changes))
}

func TestCheckSkipsUndecodableVersion(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSave(t, dir, `{"a":1}`)
	w := newWatcher(t, dir, watcher.Options{})

	require.NoError(t, os.WriteFile(w.Path(), []byte("not json"), 0o644))
	assert.Nil(t, w.Check())

	writeSave(t, dir, `{"a":2}`)
	assert.Nil(t, w.Check(), "no baseline to compare against")

	writeSave(t, dir, `{"a":3}`)
	ev := w.Check()
	require.NotNil(t, ev)
	assert.Equal(t, []string{"a 2→3"}, savediff.Lines(ev.Changes))
}

func TestCheckStorageReset(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "storage")
	require.NoError(t, os.Mkdir(dir, 0o755))
	writeSave(t, dir, `{"a":1}`)
	w := newWatcher(t, dir, watcher.Options{})

	require.NoError(t, os.RemoveAll(dir))
	ev := w.Check()
	require.NotNil(t, ev)
	assert.Equal(t, watcher.EventReset, ev.Type)
	assert.Nil(t, w.Check(), "reset is reported once")
}

func TestRunDebouncesWrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSave(t, dir, `{"n":0}`)
	w := newWatcher(t, dir, watcher.Options{Debounce: 200 * time.Millisecond})
	sub := w.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 1; i <= 3; i++ {
		writeSave(t, dir, `{"n":`+string(rune('0'+i))+`}`)
	}

	select {
	case ev := <-sub.Events:
		assert.Equal(t, watcher.EventChanged, ev.Type)
		assert.Equal(t, []string{"n 0→3"}, savediff.Lines(ev.Changes))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestSubscribeAndClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := watcher.New(dir, watcher.Options{})
	require.NoError(t, err)

	a := w.Subscribe()
	b := w.Subscribe()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, w.SubscriberCount())

	w.Unsubscribe(a.ID)
	_, open := <-a.Events
	assert.False(t, open)
	assert.Equal(t, 1, w.SubscriberCount())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	_, open = <-b.Events
	assert.False(t, open)
	assert.Nil(t, w.Subscribe())
}

func TestNewRejectsMissingDir(t *testing.T) {
	t.Parallel()

	_, err := watcher.New(filepath.Join(t.TempDir(), "missing"), watcher.Options{})
	assert.Error(t, err)
}

func TestEventTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "changed", watcher.EventChanged.String())
	assert.Equal(t, "reset", watcher.EventReset.String())
}
