package service

import (
	"Cadence/internal/model"
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueueFixture() (*fakeQueueRepo, *fakeContentRepo, QueueService) {
	queue := newFakeQueueRepo()
	contents := newFakeContentRepo(&model.Content{ID: 1, PerformanceScore: 90})
	svc := NewQueueService(queue, contents, 24*time.Hour, testPolicy(), WithQueueClock(fixedClock))
	return queue, contents, svc
}

func TestMarkPosted(t *testing.T) {
	queue, contents, svc := newQueueFixture()
	entry := queue.insert(&model.QueueEntry{SourceContentID: 1, TargetPlatform: "instagram", ScheduledFor: testNow})
	postedAt := testNow.Add(2 * time.Minute)

	got, err := svc.MarkPosted(context.Background(), entry.ID, "ig_123", postedAt)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPosted, got.Status)
	assert.Equal(t, "ig_123", got.ExternalPostID)
	require.NotNil(t, got.PostedAt)
	assert.Equal(t, postedAt, *got.PostedAt)

	content, _ := contents.GetByID(context.Background(), 1)
	require.NotNil(t, content.LastRepostAt)
	assert.Equal(t, postedAt, *content.LastRepostAt)

	assert.False(t, queue.hasActive(1, "instagram"), "terminal entry releases the active key")

	_, err = svc.MarkPosted(context.Background(), entry.ID, "ig_123", postedAt)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.MarkFailed(context.Background(), entry.ID, "late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkPostedValidation(t *testing.T) {
	_, _, svc := newQueueFixture()
	_, err := svc.MarkPosted(context.Background(), 0, "x", testNow)
	assert.ErrorIs(t, err, ErrParamInvalid)
	_, err = svc.MarkPosted(context.Background(), 404, "x", testNow)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestMarkPostedWithoutExternalID(t *testing.T) {
	queue, _, svc := newQueueFixture()
	entry := queue.insert(&model.QueueEntry{SourceContentID: 1, TargetPlatform: "instagram", ScheduledFor: testNow.Add(-48 * time.Hour)})

	got, err := svc.MarkPosted(context.Background(), entry.ID, "", testNow)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPosted, got.Status)
	assert.Empty(t, got.ExternalPostID)

	// 已发布的记录不会被当作过期记录清理
	res, err := svc.RunJanitor(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	kept, _ := queue.GetByID(context.Background(), entry.ID)
	require.NotNil(t, kept)
}

func TestMarkPostedKeepsLaterScheduledRepost(t *testing.T) {
	queue, contents, svc := newQueueFixture()
	entry := queue.insert(&model.QueueEntry{SourceContentID: 1, TargetPlatform: "instagram", ScheduledFor: testNow})
	later := testNow.AddDate(0, 0, 3)
	require.NoError(t, contents.MarkScheduled(context.Background(), 1, "facebook", later))

	_, err := svc.MarkPosted(context.Background(), entry.ID, "ig_1", testNow)
	require.NoError(t, err)

	content, _ := contents.GetByID(context.Background(), 1)
	require.NotNil(t, content.LastRepostAt)
	assert.Equal(t, later, *content.LastRepostAt)
}

func TestMarkFailedTruncatesOnRuneBoundary(t *testing.T) {
	queue, _, svc := newQueueFixture()
	entry := queue.insert(&model.QueueEntry{SourceContentID: 1, TargetPlatform: "facebook", ScheduledFor: testNow})

	got, err := svc.MarkFailed(context.Background(), entry.ID, "xx"+strings.Repeat("失", 400))
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(got.ErrorMessage))
	assert.LessOrEqual(t, len(got.ErrorMessage), maxErrorMessageLen)
	assert.True(t, strings.HasPrefix(got.ErrorMessage, "xx失"))
}

func TestMarkFailed(t *testing.T) {
	queue, _, svc := newQueueFixture()
	entry := queue.insert(&model.QueueEntry{SourceContentID: 1, TargetPlatform: "facebook", ScheduledFor: testNow})

	got, err := svc.MarkFailed(context.Background(), entry.ID, strings.Repeat("x", 2000))
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusFailed, got.Status)
	assert.Len(t, got.ErrorMessage, maxErrorMessageLen)

	// 终结后同一 (内容, 平台) 可再次排期
	require.NoError(t, queue.CreateIfAbsent(context.Background(), &model.QueueEntry{
		SourceContentID: 1, TargetPlatform: "facebook", ScheduledFor: testNow.Add(time.Hour),
	}))
}

func TestRunJanitor(t *testing.T) {
	queue, _, svc := newQueueFixture()
	stale := queue.insert(&model.QueueEntry{SourceContentID: 1, TargetPlatform: "instagram", ScheduledFor: testNow.Add(-48 * time.Hour)})
	recent := queue.insert(&model.QueueEntry{SourceContentID: 2, TargetPlatform: "instagram", ScheduledFor: testNow.Add(-12 * time.Hour)})
	posted := queue.insert(&model.QueueEntry{SourceContentID: 3, TargetPlatform: "instagram", ScheduledFor: testNow.Add(-72 * time.Hour), Status: model.QueueStatusPosted})
	failed := queue.insert(&model.QueueEntry{SourceContentID: 4, TargetPlatform: "facebook", ScheduledFor: testNow.Add(-72 * time.Hour), Status: model.QueueStatusFailed})

	res, err := svc.RunJanitor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Deleted)
	assert.Equal(t, testNow.Add(-24*time.Hour), res.Cutoff)

	ctx := context.Background()
	gone, _ := queue.GetByID(ctx, stale.ID)
	assert.Nil(t, gone)
	for _, id := range []uint64{recent.ID, posted.ID, failed.ID} {
		e, _ := queue.GetByID(ctx, id)
		assert.NotNil(t, e)
	}

	res, err = svc.RunJanitor(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
}

func TestRunJanitorBatches(t *testing.T) {
	queue, _, svc := newQueueFixture()
	for i := 0; i < janitorBatchSize+20; i++ {
		queue.insert(&model.QueueEntry{
			SourceContentID: uint64(i + 100),
			TargetPlatform:  "instagram",
			ScheduledFor:    testNow.AddDate(0, 0, -3),
		})
	}
	res, err := svc.RunJanitor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(janitorBatchSize+20), res.Deleted)
	assert.Empty(t, queue.all())
}

func TestQueueStatsAndDue(t *testing.T) {
	queue, _, svc := newQueueFixture()
	queue.insert(&model.QueueEntry{SourceContentID: 1, TargetPlatform: "instagram", ScheduledFor: testNow.Add(-time.Hour), Priority: 2})
	queue.insert(&model.QueueEntry{SourceContentID: 2, TargetPlatform: "instagram", ScheduledFor: testNow.Add(-time.Hour), Priority: 1})
	queue.insert(&model.QueueEntry{SourceContentID: 3, TargetPlatform: "facebook", ScheduledFor: testNow.Add(3 * time.Hour)})
	queue.insert(&model.QueueEntry{SourceContentID: 4, TargetPlatform: "facebook", ScheduledFor: testNow.Add(-time.Hour), Status: model.QueueStatusPosted})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Totals[model.QueueStatusQueued])
	assert.Equal(t, int64(1), stats.Totals[model.QueueStatusPosted])
	assert.Equal(t, int64(0), stats.Totals[model.QueueStatusFailed])
	require.NotNil(t, stats.NextScheduledFor)
	assert.Equal(t, testNow.Add(3*time.Hour), *stats.NextScheduledFor)

	due, err := svc.ListDue(context.Background(), "instagram", 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, uint64(2), due[0].SourceContentID)

	due, err = svc.ListDue(context.Background(), "facebook", 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestGetEntry(t *testing.T) {
	queue, _, svc := newQueueFixture()
	entry := queue.insert(&model.QueueEntry{SourceContentID: 1, TargetPlatform: "instagram", ScheduledFor: testNow})

	got, err := svc.GetEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)

	_, err = svc.GetEntry(context.Background(), 999)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}
