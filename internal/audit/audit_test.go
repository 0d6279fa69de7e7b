package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradenorm/pkg/requestcontext"
)

type recordingStore struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingStore) Append(_ context.Context, event Event) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingStore) ListByEntity(_ context.Context, entityID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *recordingStore) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestStorePublisherStampsEvents(t *testing.T) {
	store := &recordingStore{}
	pub := NewStorePublisher(store)

	ctx := requestcontext.WithRequestID(context.Background(), "req-42")
	ctx = requestcontext.WithActor(ctx, "registrar@example.org")

	err := pub.Emit(ctx, Event{
		Operation:  OpGradeConverted,
		EntityType: "conversion_record",
		EntityID:   "rec-1",
	})
	require.NoError(t, err)
	events := store.all()
	require.Len(t, events, 1)

	got := events[0]
	assert.Equal(t, CategoryCompliance, got.Category, "category derives from the operation")
	assert.Equal(t, "req-42", got.RequestID)
	assert.Equal(t, "registrar@example.org", got.Actor)
	assert.False(t, got.Timestamp.IsZero())
}

func TestStorePublisherKeepsExplicitFields(t *testing.T) {
	store := &recordingStore{}
	pub := NewStorePublisher(store)

	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := pub.Emit(context.Background(), Event{
		Operation: OpSubjectCreated,
		Category:  CategoryCompliance,
		EntityID:  "subj-1",
		Timestamp: stamp,
		Actor:     "importer",
	})
	require.NoError(t, err)

	got := store.all()[0]
	assert.Equal(t, CategoryCompliance, got.Category, "explicit category is not overridden")
	assert.Equal(t, stamp, got.Timestamp)
	assert.Equal(t, "importer", got.Actor)
}

func TestOperationCategory(t *testing.T) {
	assert.Equal(t, CategoryCompliance, OpExamRecorded.Category())
	assert.Equal(t, CategoryOperations, OpEquivalenceAdded.Category())
	assert.Equal(t, CategoryOperations, Operation("unknown").Category())
}

func TestFanoutStopsAtFirstError(t *testing.T) {
	boom := errors.New("sink down")
	failing := &recordingStore{err: boom}
	healthy := &recordingStore{}

	fanout := Fanout{NewStorePublisher(healthy), NewStorePublisher(failing)}
	err := fanout.Emit(context.Background(), Event{Operation: OpExamRecorded, EntityID: "e-1"})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, healthy.all(), 1, "publishers ahead of the failure still saw the event")
}

func TestWorkerDrainsInbox(t *testing.T) {
	store := &recordingStore{}
	inbox := make(chan Event, 8)
	worker := NewWorker(store, inbox)
	pub := NewChannelPublisher(inbox)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	emitCtx := requestcontext.WithRequestID(context.Background(), "req-7")
	require.NoError(t, pub.Emit(emitCtx, Event{Operation: OpExamRecorded, EntityID: "e-1"}))
	require.NoError(t, pub.Emit(emitCtx, Event{Operation: OpGradeConverted, EntityID: "e-2"}))

	require.Eventually(t, func() bool {
		events, _ := store.ListByEntity(context.Background(), "e-2")
		return len(events) == 1
	}, time.Second, 5*time.Millisecond)

	events, err := store.ListByEntity(context.Background(), "e-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "req-7", events[0].RequestID,
		"request-scoped fields are stamped at emit time, not drain time")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestChannelPublisherHonorsContext(t *testing.T) {
	inbox := make(chan Event) // unbuffered, nobody reading
	pub := NewChannelPublisher(inbox)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pub.Emit(ctx, Event{Operation: OpExamRecorded})
	assert.ErrorIs(t, err, context.Canceled)
}
