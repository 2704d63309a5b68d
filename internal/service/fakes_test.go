package service

import (
	"Cadence/internal/model"
	"Cadence/internal/pkg/mongo"
	"Cadence/internal/pkg/resilience"
	"Cadence/internal/repository"
	"bytes"
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var errStoreDown = errors.New("store unavailable")

// 固定时钟：2026-03-02 10:00 UTC，周一
var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testPolicy() resilience.Policy {
	return resilience.Policy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

// fakeBucketRepo 以互斥锁串行化同键写入
type fakeBucketRepo struct {
	mu      sync.Mutex
	buckets map[model.BucketKey]*model.PeakEngagementBucket
	failErr error
	upserts int
	calls   int
	// failBefore 首次调用在写入前失败，failAfter 首次调用写入后仍返回错误
	failBefore error
	failAfter  error
}

func newFakeBucketRepo() *fakeBucketRepo {
	return &fakeBucketRepo{buckets: make(map[model.BucketKey]*model.PeakEngagementBucket)}
}

func (r *fakeBucketRepo) UpsertBucket(_ context.Context, delta *model.BucketDelta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failErr != nil {
		return r.failErr
	}
	if r.calls == 1 && r.failBefore != nil {
		return r.failBefore
	}
	if delta.Samples <= 0 {
		return nil
	}
	b, ok := r.buckets[delta.Key]
	if !ok {
		b = &model.PeakEngagementBucket{
			Platform:  delta.Key.Platform,
			DayOfWeek: delta.Key.DayOfWeek,
			HourOfDay: delta.Key.HourOfDay,
		}
		r.buckets[delta.Key] = b
	}
	b.ScoreSum += delta.ScoreSum
	b.TotalSamples += delta.Samples
	b.AvgScore = b.ScoreSum / float64(b.TotalSamples)
	b.LastUpdated = delta.At
	r.upserts++
	if r.calls == 1 && r.failAfter != nil {
		return r.failAfter
	}
	return nil
}

func (r *fakeBucketRepo) ListByPlatform(_ context.Context, platform string) ([]*model.PeakEngagementBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	out := make([]*model.PeakEngagementBucket, 0)
	for _, b := range r.buckets {
		if platform == "" || b.Platform == platform {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeBucketRepo) get(platform string, day, hour int) *model.PeakEngagementBucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buckets[model.BucketKey{Platform: platform, DayOfWeek: day, HourOfDay: hour}]
}

func (r *fakeBucketRepo) seed(platform string, day, hour int, avg float64, samples int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets[model.BucketKey{Platform: platform, DayOfWeek: day, HourOfDay: hour}] = &model.PeakEngagementBucket{
		Platform: platform, DayOfWeek: day, HourOfDay: hour,
		AvgScore: avg, ScoreSum: avg * float64(samples), TotalSamples: samples,
	}
}

type fakeContentRepo struct {
	mu            sync.Mutex
	contents      map[uint64]*model.Content
	eligibleFails int
	eligibleCalls int
	scheduled     []scheduledPair
}

func newFakeContentRepo(contents ...*model.Content) *fakeContentRepo {
	r := &fakeContentRepo{contents: make(map[uint64]*model.Content)}
	for _, c := range contents {
		r.contents[c.ID] = c
	}
	return r
}

func (r *fakeContentRepo) FindEligibleContent(_ context.Context, minScore float64, cutoff time.Time, limit int) ([]*model.Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eligibleCalls++
	if r.eligibleCalls <= r.eligibleFails {
		return nil, errStoreDown
	}
	out := make([]*model.Content, 0)
	for _, c := range r.contents {
		if c.PerformanceScore <= minScore {
			continue
		}
		if c.LastRepostAt != nil && c.LastRepostAt.After(cutoff) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PerformanceScore != out[j].PerformanceScore {
			return out[i].PerformanceScore > out[j].PerformanceScore
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeContentRepo) MarkScheduled(_ context.Context, contentID uint64, platform string, scheduledFor time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contents[contentID]
	if !ok {
		return nil
	}
	if c.LastRepostAt == nil || c.LastRepostAt.Before(scheduledFor) {
		t := scheduledFor
		c.LastRepostAt = &t
	}
	c.RepostCount++
	r.scheduled = append(r.scheduled, scheduledPair{contentID: contentID, platform: platform, scheduledFor: scheduledFor})
	return nil
}

func (r *fakeContentRepo) MarkPosted(_ context.Context, contentID uint64, postedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contents[contentID]; ok && (c.LastRepostAt == nil || c.LastRepostAt.Before(postedAt)) {
		t := postedAt
		c.LastRepostAt = &t
	}
	return nil
}

func (r *fakeContentRepo) GetByID(_ context.Context, contentID uint64) (*model.Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contents[contentID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeContentRepo) posted(match func(*model.Content) bool, excludeID uint64) []*model.Content {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Content, 0)
	for _, c := range r.contents {
		if c.ID == excludeID || c.LastRepostAt == nil || !match(c) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastRepostAt.After(*out[j].LastRepostAt)
	})
	return out
}

func (r *fakeContentRepo) FindPostedByHash(_ context.Context, hash []byte, excludeID uint64) ([]*model.Content, error) {
	return r.posted(func(c *model.Content) bool { return bytes.Equal(c.FingerprintHash, hash) }, excludeID), nil
}

func (r *fakeContentRepo) FindPostedBySizeRange(_ context.Context, minSize, maxSize int64, excludeID uint64) ([]*model.Content, error) {
	return r.posted(func(c *model.Content) bool { return c.SizeBytes >= minSize && c.SizeBytes <= maxSize }, excludeID), nil
}

// fakeQueueRepo 与 uk_active_key 一致：同一 (内容, 平台) 至多一条 queued
type fakeQueueRepo struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[uint64]*model.QueueEntry
	active  map[string]uint64
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{
		entries: make(map[uint64]*model.QueueEntry),
		active:  make(map[string]uint64),
	}
}

func (r *fakeQueueRepo) CreateIfAbsent(_ context.Context, entry *model.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := model.ActiveKeyFor(entry.SourceContentID, entry.TargetPlatform)
	if _, exists := r.active[key]; exists {
		return repository.ErrDuplicateActiveEntry
	}
	r.nextID++
	entry.ID = r.nextID
	entry.ActiveKey = &key
	entry.Status = model.QueueStatusQueued
	cp := *entry
	r.entries[entry.ID] = &cp
	r.active[key] = entry.ID
	return nil
}

func (r *fakeQueueRepo) insert(entry *model.QueueEntry) *model.QueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = r.nextID
	if entry.Status == "" {
		entry.Status = model.QueueStatusQueued
	}
	if entry.Status == model.QueueStatusQueued {
		key := model.ActiveKeyFor(entry.SourceContentID, entry.TargetPlatform)
		entry.ActiveKey = &key
		r.active[key] = entry.ID
	}
	cp := *entry
	r.entries[entry.ID] = &cp
	return entry
}

func (r *fakeQueueRepo) hasActive(contentID uint64, platform string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[model.ActiveKeyFor(contentID, platform)]
	return ok
}

func (r *fakeQueueRepo) CountScheduledBetween(_ context.Context, platform string, from, to time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.entries {
		if e.TargetPlatform != platform || e.Status == model.QueueStatusFailed {
			continue
		}
		if !e.ScheduledFor.Before(from) && e.ScheduledFor.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *fakeQueueRepo) Transition(_ context.Context, entryID uint64, to model.QueueStatus, fields repository.TransitionFields) (*model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[entryID]
	if !ok || e.Status != model.QueueStatusQueued {
		return nil, repository.ErrEntryNotQueued
	}
	delete(r.active, *e.ActiveKey)
	e.ActiveKey = nil
	e.Status = to
	e.ExternalPostID = fields.ExternalPostID
	e.ErrorMessage = fields.ErrorMessage
	e.PostedAt = fields.PostedAt
	cp := *e
	return &cp, nil
}

func (r *fakeQueueRepo) ListStale(_ context.Context, cutoff time.Time, limit int) ([]*model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.QueueEntry, 0)
	for _, e := range r.entries {
		if e.Status == model.QueueStatusQueued && e.ScheduledFor.Before(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeQueueRepo) DeleteQueuedByIDs(_ context.Context, ids []uint64, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		e, ok := r.entries[id]
		if !ok || e.Status != model.QueueStatusQueued || !e.ScheduledFor.Before(cutoff) {
			continue
		}
		delete(r.active, *e.ActiveKey)
		delete(r.entries, id)
		n++
	}
	return n, nil
}

func (r *fakeQueueRepo) ListDue(_ context.Context, platform string, now time.Time, limit int) ([]*model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.QueueEntry, 0)
	for _, e := range r.entries {
		if e.Status != model.QueueStatusQueued || e.ScheduledFor.After(now) {
			continue
		}
		if platform != "" && e.TargetPlatform != platform {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].Priority < out[j].Priority
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeQueueRepo) Stats(_ context.Context) ([]model.QueueStatRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	type key struct {
		status   model.QueueStatus
		platform string
	}
	counts := make(map[key]int64)
	for _, e := range r.entries {
		counts[key{e.Status, e.TargetPlatform}]++
	}
	rows := make([]model.QueueStatRow, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, model.QueueStatRow{Status: k.status, Platform: k.platform, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Status != rows[j].Status {
			return rows[i].Status < rows[j].Status
		}
		return rows[i].Platform < rows[j].Platform
	})
	return rows, nil
}

func (r *fakeQueueRepo) NextScheduled(_ context.Context, now time.Time) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next *time.Time
	for _, e := range r.entries {
		if e.Status != model.QueueStatusQueued || e.ScheduledFor.Before(now) {
			continue
		}
		if next == nil || e.ScheduledFor.Before(*next) {
			t := e.ScheduledFor
			next = &t
		}
	}
	return next, nil
}

func (r *fakeQueueRepo) GetByID(_ context.Context, entryID uint64) (*model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[entryID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *fakeQueueRepo) all() []*model.QueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.QueueEntry, 0, len(r.entries))
	for _, e := range r.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type fakeSlotCache struct {
	mu          sync.Mutex
	data        map[string][]model.TimeSlot
	invalidated []string
}

func newFakeSlotCache() *fakeSlotCache {
	return &fakeSlotCache{data: make(map[string][]model.TimeSlot)}
}

func (c *fakeSlotCache) Get(_ context.Context, platform string, limit int) ([]model.TimeSlot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slots, ok := c.data[cacheKey(platform, limit)]
	return slots, ok
}

func (c *fakeSlotCache) Set(_ context.Context, platform string, limit int, slots []model.TimeSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[cacheKey(platform, limit)] = slots
}

func (c *fakeSlotCache) Invalidate(_ context.Context, platform string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.data {
		if strings.HasPrefix(k, platform+"|") {
			delete(c.data, k)
		}
	}
	c.invalidated = append(c.invalidated, platform)
}

func cacheKey(platform string, limit int) string {
	return platform + "|" + strconv.Itoa(limit)
}

type fakeSource struct {
	mu      sync.Mutex
	samples map[string][]*model.EngagementSample
	errs    map[string]error
	block   chan struct{}
	calls   int
}

func (f *fakeSource) FetchRecentPosts(ctx context.Context, platform string, count int) ([]*model.EngagementSample, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[platform]; err != nil {
		return nil, err
	}
	samples := f.samples[platform]
	if len(samples) > count {
		samples = samples[:count]
	}
	return samples, nil
}

type fakeRunRepo struct {
	mu   sync.Mutex
	runs []*mongo.AnalysisRunModel
}

func (r *fakeRunRepo) Save(_ context.Context, run *mongo.AnalysisRunModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeRunRepo) ListRecent(_ context.Context, limit int64) ([]*mongo.AnalysisRunModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*mongo.AnalysisRunModel, 0, len(r.runs))
	for i := len(r.runs) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		out = append(out, r.runs[i])
	}
	return out, nil
}

// likesScore 测试用评分：得分即点赞数
func likesScore(_ string, s *model.EngagementSample) float64 {
	return float64(s.Likes)
}
