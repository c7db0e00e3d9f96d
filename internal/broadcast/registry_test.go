package broadcast

import (
	"sync"
	"testing"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/adapter/metrics"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	v := newFakeViewer()

	assert.True(t, r.Add(v))
	assert.False(t, r.Add(v), "second add of the same viewer should be a no-op")
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Contains(v))
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	v := newFakeViewer()
	r.Add(v)

	assert.True(t, r.Remove(v))
	assert.False(t, r.Remove(v), "second remove should be a no-op")
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Contains(v))
}

func TestRegistry_RemoveUnknown(t *testing.T) {
	r := NewRegistry(nil)
	r.Add(newFakeViewer())

	assert.False(t, r.Remove(newFakeViewer()))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_SnapshotIsDetached(t *testing.T) {
	r := NewRegistry(nil)
	a, b := newFakeViewer(), newFakeViewer()
	r.Add(a)
	r.Add(b)

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	r.Remove(a)
	r.Add(newFakeViewer())

	assert.Len(t, snap, 2, "snapshot must not change after later mutations")
	assert.ElementsMatch(t, []domain.Viewer{a, b}, snap)
}

func TestRegistry_EmptySnapshot(t *testing.T) {
	r := NewRegistry(nil)

	snap := r.Snapshot()
	assert.NotNil(t, snap)
	assert.Empty(t, snap)
}

func TestRegistry_ConcurrentMutation(t *testing.T) {
	r := NewRegistry(nil)

	const workers = 16
	const perWorker = 100

	kept := make([][]*fakeViewer, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				keep, drop := newFakeViewer(), newFakeViewer()
				r.Add(keep)
				r.Add(drop)
				_ = r.Snapshot()
				r.Remove(drop)
				kept[w] = append(kept[w], keep)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, r.Len(), "no inserts lost, no phantom members")
	for _, vs := range kept {
		for _, v := range vs {
			require.True(t, r.Contains(v))
		}
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(nil)
	a, b := newFakeViewer(), newFakeViewer()
	r.Add(a)
	r.Add(b)

	closed := r.CloseAll("server shutting down")

	assert.Equal(t, 2, closed)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, []string{"server shutting down"}, a.closeReasons())
	assert.Equal(t, []string{"server shutting down"}, b.closeReasons())
}

func TestRegistry_TracksActiveViewersGauge(t *testing.T) {
	m := metrics.NewRelayMetrics(prometheus.NewRegistry())
	r := NewRegistry(m)
	a, b := newFakeViewer(), newFakeViewer()

	r.Add(a)
	r.Add(b)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveViewers))

	r.Remove(a)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveViewers))

	r.CloseAll("bye")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveViewers))
}
