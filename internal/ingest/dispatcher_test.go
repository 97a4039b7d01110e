package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu      sync.Mutex
	batches []Batch
	done    chan struct{}
}

func (h *recordingHandler) Handle(_ context.Context, batch Batch) error {
	h.mu.Lock()
	h.batches = append(h.batches, batch)
	n := len(h.batches)
	h.mu.Unlock()
	if n == cap(h.done) {
		close(h.done)
	}
	return nil
}

func TestDispatcherProcessesSubmittedBatches(t *testing.T) {
	const total = 10
	handler := &recordingHandler{done: make(chan struct{}, total)}
	d := NewDispatcher(nil, handler, 3, 4)
	d.Start(context.Background())

	for i := 0; i < total; i++ {
		require.NoError(t, d.Submit(context.Background(), Batch{Messages: []Inbound{Text{Body: "x"}}}))
	}
	select {
	case <-handler.done:
	case <-time.After(2 * time.Second):
		t.Fatal("batches were not processed")
	}
	require.NoError(t, d.Stop(context.Background()))

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Len(t, handler.batches, total)
}

func TestDispatcherSkipsEmptyBatches(t *testing.T) {
	handler := &recordingHandler{done: make(chan struct{}, 1)}
	d := NewDispatcher(nil, handler, 1, 1)
	d.Start(context.Background())
	require.NoError(t, d.Submit(context.Background(), Batch{}))
	require.NoError(t, d.Stop(context.Background()))
	assert.Empty(t, handler.batches)
}

func TestDispatcherStopDrainsAndRejects(t *testing.T) {
	handler := &recordingHandler{done: make(chan struct{}, 2)}
	d := NewDispatcher(nil, handler, 1, 4)
	d.Start(context.Background())
	require.NoError(t, d.Submit(context.Background(), Batch{Statuses: []StatusEvent{{ProviderMessageID: "a"}}}))
	require.NoError(t, d.Submit(context.Background(), Batch{Statuses: []StatusEvent{{ProviderMessageID: "b"}}}))
	require.NoError(t, d.Stop(context.Background()))

	handler.mu.Lock()
	assert.Len(t, handler.batches, 2)
	handler.mu.Unlock()

	err := d.Submit(context.Background(), Batch{Statuses: []StatusEvent{{ProviderMessageID: "c"}}})
	assert.ErrorIs(t, err, ErrDispatcherStopped)
	assert.NoError(t, d.Stop(context.Background()))
}
