package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/lead-funnel/internal/models"
	"github.com/AngelCh415/lead-funnel/internal/store"
)

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
	drained   chan struct{}
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{drained: make(chan struct{})}
	for i, v := range values {
		r.queue = append(r.queue, kafka.Message{Offset: int64(i), Value: []byte(v)})
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.queue) == 0 {
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type flakySink struct {
	*store.MemoryStore
	failures int
}

func (s *flakySink) AdvanceStage(ctx context.Context, u models.StageUpdate) (bool, error) {
	if s.failures > 0 {
		s.failures--
		return false, errors.New("deadlock detected")
	}
	return s.MemoryStore.AdvanceStage(ctx, u)
}

func runConsumer(t *testing.T, c *StageConsumer, r *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-r.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the queue")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestStageConsumerAppliesAndCommits(t *testing.T) {
	st := store.NewMemoryStore()
	_, err := st.UpsertLeads(context.Background(), []models.LeadRecord{
		{ApplicationID: "A1", ApplicationMonth: "2025-01", StageCode: "c"},
		{ApplicationID: "A2", ApplicationMonth: "2025-01", StageCode: "z"},
	})
	require.NoError(t, err)

	r := newFakeReader(
		`{"applicationId":"A1","stageCode":"r","decisionDate":"2025-01-20","rejectionReason":"Score"}`,
		`{"applicationId":"A2","stageCode":"a"}`,
		`{not json`,
		`{"applicationId":"missing","stageCode":"z"}`,
	)
	runConsumer(t, NewStageConsumer(r, st, nil, nil), r)

	assert.Equal(t, []int64{0, 1, 2, 3}, r.committed)
	assert.True(t, r.closed)

	for _, rec := range st.All() {
		switch rec.ApplicationID {
		case "A1":
			assert.Equal(t, "r", rec.StageCode)
			assert.Equal(t, "2025-01-20", rec.DecisionDate)
			assert.Equal(t, "Score", rec.RejectionReason)
		case "A2":
			assert.Equal(t, "z", rec.StageCode, "terminal stage is final")
		}
	}
}

func TestStageConsumerRetriesStoreFailures(t *testing.T) {
	st := store.NewMemoryStore()
	_, err := st.UpsertLeads(context.Background(), []models.LeadRecord{
		{ApplicationID: "A1", ApplicationMonth: "2025-01", StageCode: "a"},
	})
	require.NoError(t, err)

	sink := &flakySink{MemoryStore: st, failures: 2}
	r := newFakeReader(`{"applicationId":"A1","stageCode":"c"}`)
	c := NewStageConsumer(r, sink, nil, nil)
	c.retryDelay = time.Millisecond
	runConsumer(t, c, r)

	assert.Equal(t, []int64{0}, r.committed)
	assert.Equal(t, "c", st.All()[0].StageCode)
}
