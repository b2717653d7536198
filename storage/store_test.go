package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

type itemList []item

func (l itemList) Validate() error {
	for _, it := range l {
		if it.Qty < 0 {
			return errors.New("negative qty")
		}
	}
	return nil
}

func tempStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func putRaw(t *testing.T, s *Store, key, payload string) {
	t.Helper()
	_, err := s.db.Exec(`INSERT INTO kv(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, []byte(payload))
	require.NoError(t, err)
}

func hasRow(t *testing.T, s *Store, key string) bool {
	t.Helper()
	var n int
	require.NoError(t, s.db.Get(&n, `SELECT COUNT(*) FROM kv WHERE key = ?`, key))
	return n > 0
}

type recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorder) listen(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func TestSetGetRoundTrip(t *testing.T) {
	s := tempStore(t)
	want := itemList{{ID: 1, Name: "a", Qty: 2}, {ID: 2, Name: "b", Qty: 0}}

	require.NoError(t, s.Set("items", want))

	got := Get(s, "items", itemList{})
	assert.Equal(t, want, got)
	assert.True(t, hasRow(t, s, BackupKey("items")), "backup copy written")
}

func TestGetMissingReturnsFallback(t *testing.T) {
	s := tempStore(t)
	fallback := itemList{{ID: 9}}

	assert.Equal(t, fallback, Get(s, "nothing", fallback))
	assert.Empty(t, Get(s, "nothing", itemList{}))
}

func TestMissingPrimaryRestoredFromBackup(t *testing.T) {
	s := tempStore(t)
	want := itemList{{ID: 1, Name: "kept", Qty: 1}}
	require.NoError(t, s.Set("items", want))
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = 'items'`)
	require.NoError(t, err)

	rec := &recorder{}
	s.OnChange(rec.listen)

	assert.Equal(t, want, Get(s, "items", itemList{}))
	assert.True(t, hasRow(t, s, "items"), "primary rewritten")
	assert.Equal(t, []string{"items"}, rec.seen())
}

func TestCorruptPrimaryFallsBackToBackup(t *testing.T) {
	s := tempStore(t)
	want := itemList{{ID: 3, Name: "safe", Qty: 4}}
	require.NoError(t, s.Set("items", want))
	putRaw(t, s, "items", "{not json")

	assert.Equal(t, want, Get(s, "items", itemList{}))

	// the primary copy is healthy again
	var raw []byte
	require.NoError(t, s.db.Get(&raw, `SELECT value FROM kv WHERE key = 'items'`))
	assert.NoError(t, decode(raw, &itemList{}))
}

func TestCorruptWithoutBackupIsErased(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := tempStore(t, WithRegisterer(reg))
	putRaw(t, s, "items", "[[[")

	rec := &recorder{}
	s.OnChange(rec.listen)

	got := Get(s, "items", itemList{{ID: 42}})
	assert.Equal(t, itemList{{ID: 42}}, got)
	assert.False(t, hasRow(t, s, "items"))
	assert.Equal(t, []string{"items"}, rec.seen())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.recoveries.WithLabelValues(recoveryReset)))
}

func TestCorruptPrimaryAndBackupAreBothErased(t *testing.T) {
	s := tempStore(t)
	putRaw(t, s, "items", "nope")
	putRaw(t, s, BackupKey("items"), "still nope")

	assert.Empty(t, Get(s, "items", itemList{}))
	assert.False(t, hasRow(t, s, "items"))
	assert.False(t, hasRow(t, s, BackupKey("items")))
}

func TestValidationFailureIsCorruption(t *testing.T) {
	s := tempStore(t)
	putRaw(t, s, "items", `[{"id":1,"qty":-3}]`)

	assert.Empty(t, Get(s, "items", itemList{}))
	assert.False(t, hasRow(t, s, "items"))
}

func TestLoadRejectsNonPointer(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.Set("items", itemList{{ID: 1}}))

	var l itemList
	assert.False(t, s.Load("items", l))
	assert.True(t, hasRow(t, s, "items"), "data left alone")
}

func TestUpdateCommitsTogetherAndNotifiesInOrder(t *testing.T) {
	s := tempStore(t)

	var seenDuringNotify []itemList
	s.OnChange(func(key string) {
		// both keys are already visible when the first notification fires
		seenDuringNotify = append(seenDuringNotify, Get(s, "b", itemList{}))
	})
	rec := &recorder{}
	s.OnChange(rec.listen)

	err := s.Update(func(tx *Tx) error {
		if err := tx.Set("a", itemList{{ID: 1}}); err != nil {
			return err
		}
		return tx.Set("b", itemList{{ID: 2}})
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, rec.seen())
	require.Len(t, seenDuringNotify, 2)
	assert.Equal(t, itemList{{ID: 2}}, seenDuringNotify[0])
}

func TestUpdateErrorRollsBack(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.Set("a", itemList{{ID: 1}}))
	rec := &recorder{}
	s.OnChange(rec.listen)

	boom := errors.New("boom")
	err := s.Update(func(tx *Tx) error {
		if err := tx.Set("a", itemList{{ID: 99}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, itemList{{ID: 1}}, Get(s, "a", itemList{}))
	assert.Empty(t, rec.seen())
}

func TestRemoveDropsBackupToo(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.Set("session", item{ID: 1}))
	require.NoError(t, s.Remove("session"))

	var it item
	assert.False(t, s.Load("session", &it))
	assert.False(t, hasRow(t, s, BackupKey("session")))
}

func TestClearNotifiesAllKeys(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.Set("a", itemList{{ID: 1}}))
	require.NoError(t, s.Set("b", itemList{{ID: 2}}))
	rec := &recorder{}
	s.OnChange(rec.listen)

	require.NoError(t, s.Clear())

	assert.Equal(t, []string{AllKeys}, rec.seen())
	assert.Empty(t, Get(s, "a", itemList{}))
	assert.Empty(t, Get(s, "b", itemList{}), "backups are cleared as well")
}

func TestUnsubscribe(t *testing.T) {
	s := tempStore(t)
	rec := &recorder{}
	unsubscribe := s.OnChange(rec.listen)

	require.NoError(t, s.Set("a", itemList{}))
	unsubscribe()
	unsubscribe()
	require.NoError(t, s.Set("a", itemList{}))

	assert.Equal(t, []string{"a"}, rec.seen())
}

func TestPollDeliversChangesFromOtherProcesses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	writer, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })
	watcher, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { watcher.Close() })

	writerRec, watcherRec := &recorder{}, &recorder{}
	writer.OnChange(writerRec.listen)
	watcher.OnChange(watcherRec.listen)

	require.NoError(t, writer.Set("books", itemList{{ID: 1}}))
	require.NoError(t, writer.Clear())

	assert.Empty(t, watcherRec.seen(), "nothing crosses over before polling")

	n, err := watcher.Poll()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"books", AllKeys}, watcherRec.seen())

	// the writer saw its own changes synchronously and skips them in the feed
	n, err = writer.Poll()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"books", AllKeys}, writerRec.seen())

	n, err = watcher.Poll()
	require.NoError(t, err)
	assert.Zero(t, n, "already delivered")
}

func TestWatchStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	writer, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })
	watcher, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { watcher.Close() })

	got := make(chan string, 1)
	watcher.OnChange(func(key string) {
		select {
		case got <- key:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Watch(ctx, 10*time.Millisecond) }()

	require.NoError(t, writer.Set("loans", itemList{}))

	select {
	case key := <-got:
		assert.Equal(t, "loans", key)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never saw the change")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestMemoryStoresArePrivate(t *testing.T) {
	a, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	b, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	require.NoError(t, a.Set("session_user", item{ID: 7}))

	var it item
	assert.True(t, a.Load("session_user", &it))
	assert.False(t, b.Load("session_user", &it))
	assert.Equal(t, ":memory:", a.Path())
}

func TestPureGoDriver(t *testing.T) {
	s := tempStore(t, WithDriver(DriverSQLite))
	want := itemList{{ID: 5, Name: "pure", Qty: 1}}
	require.NoError(t, s.Set("items", want))
	assert.Equal(t, want, Get(s, "items", itemList{}))
}

func TestUnknownDriver(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x.db"), WithDriver("postgres"))
	assert.Error(t, err)
}

func TestWriteMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := tempStore(t, WithRegisterer(reg))

	require.NoError(t, s.Set("books", itemList{}))
	require.NoError(t, s.Set("books", itemList{}))
	require.NoError(t, s.Clear())

	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.writes.WithLabelValues("books")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.writes.WithLabelValues("*")))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.metrics.notifications.WithLabelValues(sourceLocal)))
}
