package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/kafka"
)

var now = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func TestPrepareFillsIDAndTimestamp(t *testing.T) {
	r, err := Prepare(Record{UserID: "u1", DocumentID: "d1", Type: TypeView}, now)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, now, r.Timestamp)

	ts := now.Add(-time.Hour)
	r, err = Prepare(Record{ID: "fixed", UserID: "u1", DocumentID: "d1", Type: TypeView, Timestamp: ts}, now)
	require.NoError(t, err)
	assert.Equal(t, "fixed", r.ID)
	assert.Equal(t, ts, r.Timestamp)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		rec    Record
		fields []string
	}{
		{"valid view", Record{UserID: "u", DocumentID: "d", Type: TypeView}, nil},
		{"valid search without document", Record{UserID: "u", Type: TypeSearch, SearchQuery: "budget"}, nil},
		{"missing user", Record{DocumentID: "d", Type: TypeView}, []string{"userId"}},
		{"unknown type", Record{UserID: "u", DocumentID: "d", Type: "like"}, []string{"activityType"}},
		{"view without document", Record{UserID: "u", Type: TypeDownload}, []string{"documentId"}},
		{"search without query", Record{UserID: "u", Type: TypeSearch}, []string{"searchQuery"}},
		{"negative duration", Record{UserID: "u", DocumentID: "d", Type: TypeEdit, Duration: -1}, []string{"duration"}},
		{"bad ip", Record{UserID: "u", DocumentID: "d", Type: TypeView, IPAddress: "nope"}, []string{"ipAddress"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.rec)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestMostRecentByDocument(t *testing.T) {
	records := []Record{
		{DocumentID: "a", Type: TypeView, Timestamp: now.Add(-2 * time.Hour)},
		{DocumentID: "a", Type: TypeDownload, Timestamp: now.Add(-time.Hour)},
		{DocumentID: "a", Type: TypeView, Timestamp: now.Add(-3 * time.Hour)},
		{DocumentID: "b", Type: TypeEdit, Timestamp: now},
		{Type: TypeSearch, SearchQuery: "x", Timestamp: now},
	}
	latest, views := MostRecentByDocument(records)

	assert.Equal(t, now.Add(-time.Hour), latest["a"])
	assert.Equal(t, now, latest["b"])
	assert.Equal(t, 2, views["a"])
	assert.Zero(t, views["b"])
	assert.Len(t, latest, 2)
}

type fakeProducer struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (f *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func TestPublisherBuffersAndFlushes(t *testing.T) {
	prod := &fakeProducer{}
	p := NewPublisher(prod, 10, time.Hour)

	require.NoError(t, p.Append(context.Background(), Record{UserID: "u1", DocumentID: "d1", Type: TypeView}))
	require.NoError(t, p.Append(context.Background(), Record{UserID: "u2", Type: TypeSearch, SearchQuery: "q"}))
	assert.Equal(t, 2, p.BufferLen())

	p.Flush(context.Background())
	assert.Zero(t, p.BufferLen())
	require.Len(t, prod.batches, 1)
	assert.Equal(t, "u1", prod.batches[0][0].Key)
	assert.Equal(t, "u2", prod.batches[0][1].Key)
}

func TestPublisherRejectsInvalid(t *testing.T) {
	p := NewPublisher(&fakeProducer{}, 10, time.Hour)
	err := p.Append(context.Background(), Record{Type: TypeView})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, p.BufferLen())
}

func TestPublisherRequeuesOnFailure(t *testing.T) {
	prod := &fakeProducer{err: errors.New("broker down")}
	p := NewPublisher(prod, 10, time.Hour)
	require.NoError(t, p.Append(context.Background(), Record{UserID: "u", DocumentID: "d", Type: TypeView}))

	p.Flush(context.Background())
	assert.Equal(t, 1, p.BufferLen())
}

func TestPublisherFinalFlushOnCancel(t *testing.T) {
	prod := &fakeProducer{}
	p := NewPublisher(prod, 10, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.NoError(t, p.Append(ctx, Record{UserID: "u", DocumentID: "d", Type: TypeView}))

	cancel()
	p.Close()
	assert.Len(t, prod.batches, 1)
}

// serialProducer records the widest overlap of PublishBatch calls and fails
// the first failFirst calls.
type serialProducer struct {
	mu        sync.Mutex
	inFlight  int
	maxFlight int
	failFirst int
	calls     int
	published []string
}

func (s *serialProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxFlight {
		s.maxFlight = s.inFlight
	}
	s.calls++
	fail := s.calls <= s.failFirst
	s.mu.Unlock()

	time.Sleep(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if fail {
		return errors.New("broker down")
	}
	for _, e := range events {
		s.published = append(s.published, e.Value.(Record).DocumentID)
	}
	return nil
}

func TestPublisherFullBufferWakesLoop(t *testing.T) {
	prod := &serialProducer{}
	p := NewPublisher(prod, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	require.NoError(t, p.Append(ctx, Record{UserID: "u", DocumentID: "d1", Type: TypeView}))
	require.NoError(t, p.Append(ctx, Record{UserID: "u", DocumentID: "d2", Type: TypeView}))
	require.Eventually(t, func() bool {
		prod.mu.Lock()
		defer prod.mu.Unlock()
		return len(prod.published) == 2
	}, time.Second, time.Millisecond)
}

func TestPublisherFlushesOneBatchAtATimeInOrder(t *testing.T) {
	prod := &serialProducer{}
	p := NewPublisher(prod, 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Append(ctx, Record{UserID: "u", DocumentID: fmt.Sprintf("d%02d", i), Type: TypeView}))
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Flush(context.Background())
		}()
	}
	wg.Wait()
	cancel()
	p.Close()
	p.Flush(context.Background())

	prod.mu.Lock()
	defer prod.mu.Unlock()
	assert.Equal(t, 1, prod.maxFlight)
	require.Len(t, prod.published, 20)
	assert.True(t, sort.StringsAreSorted(prod.published), "published out of order: %v", prod.published)
}

func TestPublisherRequeuedBatchStaysAhead(t *testing.T) {
	prod := &serialProducer{failFirst: 1}
	p := NewPublisher(prod, 10, time.Hour)
	ctx := context.Background()

	require.NoError(t, p.Append(ctx, Record{UserID: "u", DocumentID: "d1", Type: TypeView}))
	p.Flush(ctx)
	require.NoError(t, p.Append(ctx, Record{UserID: "u", DocumentID: "d2", Type: TypeView}))
	p.Flush(ctx)

	assert.Equal(t, []string{"d1", "d2"}, prod.published)
}

type fakeAppender struct {
	records []Record
	err     error
}

func (f *fakeAppender) Append(_ context.Context, r Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, r)
	return nil
}

type fakeCounter map[string]int

func (f fakeCounter) RecordActivity(activityType string) { f[activityType]++ }

func TestHandleMessage(t *testing.T) {
	store := &fakeAppender{}
	counter := fakeCounter{}
	handle := HandleMessage(store, counter)

	valid, _ := json.Marshal(Record{ID: "a1", UserID: "u", DocumentID: "d", Type: TypeDownload, Timestamp: now})
	require.NoError(t, handle(context.Background(), []byte("u"), valid))
	require.Len(t, store.records, 1)
	assert.Equal(t, "a1", store.records[0].ID)
	assert.Equal(t, 1, counter["download"])

	// poison messages are skipped, not retried
	assert.NoError(t, handle(context.Background(), nil, []byte("garbage")))
	invalid, _ := json.Marshal(Record{ID: "a2", Type: TypeView})
	assert.NoError(t, handle(context.Background(), nil, invalid))
	assert.Len(t, store.records, 1)

	store.err = errors.New("db down")
	assert.Error(t, handle(context.Background(), nil, valid))
}
