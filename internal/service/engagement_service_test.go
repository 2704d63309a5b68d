package service

import (
	"Cadence/internal/model"
	"Cadence/internal/pkg/resilience"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-01 为周日
var sunday14 = time.Date(2026, 3, 1, 14, 20, 0, 0, time.UTC)

func newTestEngagement(repo *fakeBucketRepo) EngagementService {
	return NewEngagementService(repo, time.UTC, testPolicy(),
		WithScoreFunc(likesScore),
		WithEngagementClock(fixedClock))
}

func TestIngestAveragesSameKey(t *testing.T) {
	repo := newFakeBucketRepo()
	svc := newTestEngagement(repo)

	result, err := svc.Ingest(context.Background(), "instagram", []*model.EngagementSample{
		{PostID: "a", PostedAt: sunday14, Likes: 80},
		{PostID: "b", PostedAt: sunday14.Add(30 * time.Minute), Likes: 60},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Samples)
	assert.Equal(t, 1, result.BucketsTouched)

	b := repo.get("instagram", 0, 14)
	require.NotNil(t, b)
	assert.InDelta(t, 70.0, b.AvgScore, 1e-9)
	assert.Equal(t, int64(2), b.TotalSamples)
	assert.Equal(t, testNow, b.LastUpdated)
}

func TestIngestMeanIsOrderIndependentAcrossCalls(t *testing.T) {
	scores := []int64{10, 95, 40, 70, 55}
	ctx := context.Background()

	forward := newFakeBucketRepo()
	svc := newTestEngagement(forward)
	for _, s := range scores {
		_, err := svc.Ingest(ctx, "facebook", []*model.EngagementSample{{PostedAt: sunday14, Likes: s}})
		require.NoError(t, err)
	}

	backward := newFakeBucketRepo()
	svc = newTestEngagement(backward)
	batch := make([]*model.EngagementSample, 0, len(scores))
	for i := len(scores) - 1; i >= 0; i-- {
		batch = append(batch, &model.EngagementSample{PostedAt: sunday14, Likes: scores[i]})
	}
	_, err := svc.Ingest(ctx, "facebook", batch)
	require.NoError(t, err)

	a, b := forward.get("facebook", 0, 14), backward.get("facebook", 0, 14)
	assert.InDelta(t, 54.0, a.AvgScore, 1e-9)
	assert.InDelta(t, a.AvgScore, b.AvgScore, 1e-9)
	assert.Equal(t, a.TotalSamples, b.TotalSamples)
}

func TestIngestUsesObserverTimezone(t *testing.T) {
	repo := newFakeBucketRepo()
	loc := time.FixedZone("UTC+8", 8*3600)
	svc := NewEngagementService(repo, loc, testPolicy(), WithScoreFunc(likesScore))

	// 周日 20:00 UTC 在 UTC+8 是周一 04:00
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	_, err := svc.Ingest(context.Background(), "instagram", []*model.EngagementSample{{PostedAt: at, Likes: 50}})
	require.NoError(t, err)

	assert.Nil(t, repo.get("instagram", 0, 20))
	require.NotNil(t, repo.get("instagram", 1, 4))
}

func TestIngestConcurrentSameKeySerializes(t *testing.T) {
	repo := newFakeBucketRepo()
	svc := newTestEngagement(repo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(score int64) {
			defer wg.Done()
			_, _ = svc.Ingest(context.Background(), "instagram", []*model.EngagementSample{{PostedAt: sunday14, Likes: score}})
		}(int64(i % 2 * 100))
	}
	wg.Wait()

	b := repo.get("instagram", 0, 14)
	require.NotNil(t, b)
	assert.Equal(t, int64(20), b.TotalSamples)
	assert.InDelta(t, 50.0, b.AvgScore, 1e-9)
}

func TestIngestCancelledWritesNothing(t *testing.T) {
	repo := newFakeBucketRepo()
	svc := newTestEngagement(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Ingest(ctx, "instagram", []*model.EngagementSample{{PostedAt: sunday14, Likes: 10}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, repo.upserts)
}

func TestIngestStoreFailure(t *testing.T) {
	repo := newFakeBucketRepo()
	repo.failErr = errStoreDown
	svc := newTestEngagement(repo)

	_, err := svc.Ingest(context.Background(), "instagram", []*model.EngagementSample{{PostedAt: sunday14, Likes: 10}})
	assert.ErrorIs(t, err, errStoreDown)
}

func retryingPolicy() resilience.Policy {
	p := testPolicy()
	p.MaxRetries = 3
	p.AttemptTimeout = time.Second
	return p
}

func TestIngestDoesNotRetryAmbiguousWrite(t *testing.T) {
	repo := newFakeBucketRepo()
	repo.failAfter = context.DeadlineExceeded
	svc := NewEngagementService(repo, time.UTC, retryingPolicy(),
		WithScoreFunc(likesScore), WithEngagementClock(fixedClock))

	_, err := svc.Ingest(context.Background(), "instagram", []*model.EngagementSample{{PostedAt: sunday14, Likes: 40}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, repo.calls)

	b := repo.get("instagram", 0, 14)
	require.NotNil(t, b)
	assert.Equal(t, int64(1), b.TotalSamples)
	assert.InDelta(t, 40.0, b.AvgScore, 1e-9)
}

func TestIngestRetriesRolledBackWrite(t *testing.T) {
	repo := newFakeBucketRepo()
	repo.failBefore = &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
	svc := NewEngagementService(repo, time.UTC, retryingPolicy(),
		WithScoreFunc(likesScore), WithEngagementClock(fixedClock))

	_, err := svc.Ingest(context.Background(), "instagram", []*model.EngagementSample{{PostedAt: sunday14, Likes: 40}})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)

	b := repo.get("instagram", 0, 14)
	require.NotNil(t, b)
	assert.Equal(t, int64(1), b.TotalSamples)
}

func TestIngestRejectsEmptyPlatform(t *testing.T) {
	svc := newTestEngagement(newFakeBucketRepo())
	_, err := svc.Ingest(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrParamInvalid)
}

func TestEngagementScore(t *testing.T) {
	t.Run("zero metrics", func(t *testing.T) {
		assert.Zero(t, EngagementScore("instagram", &model.EngagementSample{}))
		assert.Zero(t, EngagementScore("instagram", nil))
	})

	t.Run("all caps reached clamps to 100", func(t *testing.T) {
		s := &model.EngagementSample{Impressions: 50000, Reach: 50000, Likes: 20000, Comments: 500}
		assert.InDelta(t, 100.0, EngagementScore("instagram", s), 1e-9)
		assert.InDelta(t, 100.0, EngagementScore("facebook", s), 1e-9)
	})

	t.Run("instagram weights", func(t *testing.T) {
		// 点赞率 0.05 -> 25，评论 25 -> 15，触达 5000 -> 10
		s := &model.EngagementSample{Impressions: 5000, Reach: 5000, Likes: 250, Comments: 25}
		assert.InDelta(t, 50.0, EngagementScore("instagram", s), 1e-9)
	})

	t.Run("like rate is over impressions not reach", func(t *testing.T) {
		// 点赞率 100/10000 = 0.01 -> 5，触达 1000 -> 2
		s := &model.EngagementSample{Impressions: 10000, Reach: 1000, Likes: 100}
		assert.InDelta(t, 7.0, EngagementScore("instagram", s), 1e-9)
	})

	t.Run("zero impressions drops like rate", func(t *testing.T) {
		s := &model.EngagementSample{Impressions: 0, Reach: 1000, Likes: 100}
		assert.InDelta(t, 2.0, EngagementScore("instagram", s), 1e-9)
	})

	t.Run("facebook like rate caps at 5 percent", func(t *testing.T) {
		// 点赞率 0.05 -> 40，触达为 0
		s := &model.EngagementSample{Impressions: 5000, Likes: 250}
		assert.InDelta(t, 40.0, EngagementScore("facebook", s), 1e-9)
	})

	t.Run("unknown platform uses facebook profile", func(t *testing.T) {
		assert.Equal(t, ProfileFor("facebook"), ProfileFor("tiktok"))
	})
}
