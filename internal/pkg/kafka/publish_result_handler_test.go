package kafka

import (
	"Cadence/internal/model"
	"Cadence/internal/service"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type postedCall struct {
	entryID  uint64
	extID    string
	postedAt time.Time
}

type fakeWriteBack struct {
	mu        sync.Mutex
	posted    []postedCall
	failed    map[uint64]string
	postedErr error
}

func (f *fakeWriteBack) MarkPosted(_ context.Context, entryID uint64, extID string, postedAt time.Time) (*model.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postedErr != nil {
		return nil, f.postedErr
	}
	f.posted = append(f.posted, postedCall{entryID, extID, postedAt})
	return &model.QueueEntry{ID: entryID, Status: model.QueueStatusPosted}, nil
}

func (f *fakeWriteBack) MarkFailed(_ context.Context, entryID uint64, reason string) (*model.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = map[uint64]string{}
	}
	f.failed[entryID] = reason
	return &model.QueueEntry{ID: entryID, Status: model.QueueStatusFailed}, nil
}

func message(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "publish-result", Value: []byte(value)}
}

func TestPublishResultPosted(t *testing.T) {
	queue := &fakeWriteBack{}
	h := NewPublishResultHandler(queue)

	err := h.logic(context.Background(), message(`{"entry_id":7,"status":"posted","external_post_id":"ig_1","posted_at":"2026-03-03T09:30:00Z"}`))
	require.NoError(t, err)
	require.Len(t, queue.posted, 1)
	assert.Equal(t, uint64(7), queue.posted[0].entryID)
	assert.Equal(t, "ig_1", queue.posted[0].extID)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC), queue.posted[0].postedAt.UTC())
}

func TestPublishResultPostedWithoutExternalID(t *testing.T) {
	queue := &fakeWriteBack{}
	h := NewPublishResultHandler(queue)

	err := h.logic(context.Background(), message(`{"entry_id":11,"status":"posted"}`))
	require.NoError(t, err)
	require.Len(t, queue.posted, 1)
	assert.Equal(t, uint64(11), queue.posted[0].entryID)
	assert.Empty(t, queue.posted[0].extID)
}

func TestPublishResultFailed(t *testing.T) {
	queue := &fakeWriteBack{}
	h := NewPublishResultHandler(queue)

	err := h.logic(context.Background(), message(`{"entry_id":8,"status":"failed","error":"token expired"}`))
	require.NoError(t, err)
	assert.Equal(t, "token expired", queue.failed[8])
}

func TestPublishResultDropsInvalidMessages(t *testing.T) {
	queue := &fakeWriteBack{}
	h := NewPublishResultHandler(queue)

	for _, raw := range []string{
		`not json`,
		`{"status":"posted","external_post_id":"x"}`,
		`{"entry_id":3,"status":"queued"}`,
	} {
		assert.NoError(t, h.logic(context.Background(), message(raw)), raw)
	}
	assert.Empty(t, queue.posted)
	assert.Empty(t, queue.failed)
}

func TestPublishResultRejectedTransitionIsAcked(t *testing.T) {
	queue := &fakeWriteBack{postedErr: service.ErrInvalidTransition}
	h := NewPublishResultHandler(queue)

	err := h.logic(context.Background(), message(`{"entry_id":9,"status":"posted","external_post_id":"fb_1"}`))
	assert.NoError(t, err)
}

func TestPublishResultStoreErrorIsRetried(t *testing.T) {
	queue := &fakeWriteBack{postedErr: errors.New("db down")}
	h := NewPublishResultHandler(queue)

	err := h.logic(context.Background(), message(`{"entry_id":9,"status":"posted","external_post_id":"fb_1"}`))
	assert.Error(t, err)
}

func TestRunBatchRetriesUntilSuccess(t *testing.T) {
	var calls int32
	logic := func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("transient")
		}
		return nil
	}

	ok := runBatch(context.Background(), []*sarama.ConsumerMessage{message("a")}, logic)
	assert.True(t, ok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRunBatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	logic := func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		return errors.New("always")
	}

	ok := runBatch(ctx, []*sarama.ConsumerMessage{message("a"), message("b")}, logic)
	assert.False(t, ok)
}
