package interactions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/wa-assistant-bridge/internal/models"
	"github.com/xaenox/wa-assistant-bridge/internal/storage"
)

type blockingStore struct {
	mu      sync.Mutex
	release chan struct{}
	saved   []models.InteractionLog
	err     error
}

func (s *blockingStore) SaveInteraction(_ context.Context, entry *models.InteractionLog) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, *entry)
	return nil
}

func TestRecorder_WritesAndDrainsOnClose(t *testing.T) {
	mem := storage.NewMemoryStorage()
	r := NewRecorder(mem, Options{QueueSize: 8}, zap.NewNop())

	assert.True(t, r.Record(models.InteractionLog{CustomerID: "c1", InputText: "oi"}))
	assert.True(t, r.Record(models.InteractionLog{CustomerID: "c1", InputText: "tchau"}))
	r.Close()

	saved := mem.Interactions()
	require.Len(t, saved, 2)
	assert.Equal(t, "oi", saved[0].InputText)
	assert.NotEmpty(t, saved[0].ID)
	assert.False(t, saved[0].CreatedAt.IsZero())
	assert.NotEqual(t, saved[0].ID, saved[1].ID)
}

func TestRecorder_RecordDoesNotBlock(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	r := NewRecorder(store, Options{QueueSize: 1}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		// One entry may be held by the writer, one sits in the queue; the rest are dropped.
		for i := 0; i < 5; i++ {
			r.Record(models.InteractionLog{CustomerID: "c1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a stalled store")
	}

	close(store.release)
	r.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.LessOrEqual(t, len(store.saved), 2)
	assert.GreaterOrEqual(t, len(store.saved), 1)
}

func TestRecorder_FailuresAreSwallowed(t *testing.T) {
	store := &blockingStore{err: errors.New("db down")}
	r := NewRecorder(store, Options{}, zap.NewNop())

	assert.True(t, r.Record(models.InteractionLog{CustomerID: "c1"}))
	assert.NotPanics(t, r.Close)
	assert.Empty(t, store.saved)
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	r := NewRecorder(storage.NewMemoryStorage(), Options{}, zap.NewNop())
	r.Close()
	r.Close()

	assert.False(t, r.Record(models.InteractionLog{CustomerID: "c1"}))
}
