package service

import (
	"Cadence/internal/model"
	"Cadence/internal/pkg/logger"
	"Cadence/internal/pkg/metrics"
	"Cadence/internal/pkg/resilience"
	"Cadence/internal/pkg/util"
	"Cadence/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"math"
	"strings"
	"time"
)

const (
	defaultTemplateClock = "12:00"
	defaultPostOffset    = 30 * time.Minute
	daysPerWeek          = 7
)

// BuildWeekRequest 零值字段取配置默认值；MinDaysBetweenReposts 为 nil 时取配置，0 表示不限间隔
type BuildWeekRequest struct {
	StartDate             time.Time
	PerPlatformDailyCap   int
	MinDaysBetweenReposts *int
	CategoryQuotas        map[string]int
	Platforms             []string
}

// DayBuildResult 单日排期结果
type DayBuildResult struct {
	Date           string `json:"date"`
	Weekday        string `json:"weekday"`
	Scheduled      int    `json:"scheduled"`
	DuplicateSkips int    `json:"duplicate_skips"`
	Skipped        bool   `json:"skipped,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BuildWeekResult 七天排期汇总
type BuildWeekResult struct {
	ScheduledCount int               `json:"scheduled_count"`
	DuplicateSkips int               `json:"duplicate_skips"`
	PerDay         map[string]int    `json:"per_day"`
	Days           []*DayBuildResult `json:"days"`
}

// QueueBuilderConfig 排期参数
type QueueBuilderConfig struct {
	Platforms             []string
	Location              *time.Location
	NudgeFactor           float64
	PerPlatformDailyCap   int
	MinDaysBetweenReposts int
	MinPerformanceScore   float64
	TopSlotsLimit         int
	// WeeklyTemplate 平台 -> 星期(小写英文) -> "HH:MM"
	WeeklyTemplate map[string]map[string]string
	PostOffsets    map[string]time.Duration
}

type QueueBuilderService interface {
	BuildWeek(ctx context.Context, req *BuildWeekRequest) (*BuildWeekResult, error)
}

type queueBuilderServiceImpl struct {
	contentRepo repository.ContentRepo
	queueRepo   repository.QueueRepo
	slots       SlotService
	fingerprint FingerprintService
	guard       RunGuard
	cfg         QueueBuilderConfig
	policy      resilience.Policy
	now         func() time.Time
}

type QueueBuilderOption func(*queueBuilderServiceImpl)

func WithBuilderClock(now func() time.Time) QueueBuilderOption {
	return func(s *queueBuilderServiceImpl) {
		s.now = now
	}
}

// WithBuilderGuard 防止并发构建超出每日容量
func WithBuilderGuard(guard RunGuard) QueueBuilderOption {
	return func(s *queueBuilderServiceImpl) {
		s.guard = guard
	}
}

func NewQueueBuilderService(
	contentRepo repository.ContentRepo,
	queueRepo repository.QueueRepo,
	slots SlotService,
	fingerprint FingerprintService,
	cfg QueueBuilderConfig,
	policy resilience.Policy,
	opts ...QueueBuilderOption,
) QueueBuilderService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.NudgeFactor < 0 || cfg.NudgeFactor > 1 {
		cfg.NudgeFactor = 0.5
	}
	if cfg.TopSlotsLimit <= 0 {
		cfg.TopSlotsLimit = 5
	}
	s := &queueBuilderServiceImpl{
		contentRepo: contentRepo,
		queueRepo:   queueRepo,
		slots:       slots,
		fingerprint: fingerprint,
		cfg:         cfg,
		policy:      policy,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// buildPlan 一次 BuildWeek 内不变的参数
type buildPlan struct {
	platforms  []string
	cap        int
	minDays    int
	quotas     map[string]int
	peaks      map[string][]model.TimeSlot
	now        time.Time
	repostEdge time.Time
}

// BuildWeek 从 StartDate 起连续 7 天，每天每平台补足到容量上限
// 单日失败只记录日志，其余日期照常处理
func (s *queueBuilderServiceImpl) BuildWeek(ctx context.Context, req *BuildWeekRequest) (*BuildWeekResult, error) {
	plan, err := s.plan(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.guard != nil {
		release, ok := s.guard.TryAcquire(ctx)
		if !ok {
			return nil, ErrBuildInProgress
		}
		defer release()
	}

	result := &BuildWeekResult{
		PerDay: make(map[string]int, daysPerWeek),
		Days:   make([]*DayBuildResult, 0, daysPerWeek),
	}

	start := util.StartOfDay(req.StartDate, s.cfg.Location)
	today := util.StartOfDay(plan.now, s.cfg.Location)

	for i := 0; i < daysPerWeek; i++ {
		if err = ctx.Err(); err != nil {
			return result, err
		}

		day := start.AddDate(0, 0, i)
		dayResult := &DayBuildResult{
			Date:    day.Format(time.DateOnly),
			Weekday: day.Weekday().String(),
		}
		result.Days = append(result.Days, dayResult)

		if day.Before(today) {
			dayResult.Skipped = true
			continue
		}

		dayCtx := logger.WithDay(ctx, dayResult.Date)
		if err = s.buildDay(dayCtx, plan, day, dayResult); err != nil {
			dayResult.Error = err.Error()
			log.ErrorContext(dayCtx, "build queue day failed", "err", err)
		}

		result.ScheduledCount += dayResult.Scheduled
		result.DuplicateSkips += dayResult.DuplicateSkips
		result.PerDay[dayResult.Weekday] += dayResult.Scheduled
	}

	log.InfoContext(ctx, "queue week built",
		"start", start.Format(time.DateOnly),
		"scheduled", result.ScheduledCount,
		"duplicate_skips", result.DuplicateSkips)
	return result, nil
}

func (s *queueBuilderServiceImpl) plan(ctx context.Context, req *BuildWeekRequest) (*buildPlan, error) {
	if req == nil || req.StartDate.IsZero() {
		return nil, ErrParamInvalid
	}
	if req.PerPlatformDailyCap < 0 || (req.MinDaysBetweenReposts != nil && *req.MinDaysBetweenReposts < 0) {
		return nil, ErrParamInvalid
	}
	for _, quota := range req.CategoryQuotas {
		if quota < 0 {
			return nil, ErrParamInvalid
		}
	}

	p := &buildPlan{
		platforms: req.Platforms,
		cap:       req.PerPlatformDailyCap,
		minDays:   s.cfg.MinDaysBetweenReposts,
		quotas:    req.CategoryQuotas,
		now:       s.now(),
	}
	if len(p.platforms) == 0 {
		p.platforms = s.cfg.Platforms
	}
	if len(p.platforms) == 0 {
		return nil, ErrParamInvalid
	}
	if p.cap == 0 {
		p.cap = s.cfg.PerPlatformDailyCap
	}
	if req.MinDaysBetweenReposts != nil {
		p.minDays = *req.MinDaysBetweenReposts
	}
	p.repostEdge = p.now.AddDate(0, 0, -p.minDays)

	p.peaks = make(map[string][]model.TimeSlot, len(p.platforms))
	for _, platform := range p.platforms {
		slots, err := s.slots.TopSlots(ctx, platform, s.cfg.TopSlotsLimit)
		if err != nil {
			log.WarnContext(ctx, "load top slots failed, using default peaks", "platform", platform, "err", err)
			continue
		}
		p.peaks[platform] = slots
	}
	return p, nil
}

type scheduledPair struct {
	contentID    uint64
	platform     string
	scheduledFor time.Time
}

func (s *queueBuilderServiceImpl) buildDay(ctx context.Context, plan *buildPlan, day time.Time, out *DayBuildResult) error {
	if plan.cap <= 0 {
		return nil
	}

	limit := plan.cap*len(plan.platforms)*3 + 10
	candidates, err := resilience.Do(ctx, s.policy, func(ctx context.Context) ([]*model.Content, error) {
		return s.contentRepo.FindEligibleContent(ctx, s.cfg.MinPerformanceScore, plan.repostEdge, limit)
	})
	if err != nil {
		return fmt.Errorf("find eligible content: %w", err)
	}
	candidates = s.dropRecentDuplicates(ctx, plan, candidates, out)
	if len(candidates) == 0 {
		return nil
	}

	dayEnd := day.AddDate(0, 0, 1)
	pairs := make([]scheduledPair, 0, plan.cap*len(plan.platforms))

	for _, platform := range plan.platforms {
		existing, err := resilience.Do(ctx, s.policy, func(ctx context.Context) (int64, error) {
			return s.queueRepo.CountScheduledBetween(ctx, platform, day, dayEnd)
		})
		if err != nil {
			return fmt.Errorf("count scheduled %s: %w", platform, err)
		}
		remaining := plan.cap - int(existing)
		if remaining <= 0 {
			continue
		}

		slotStart, ok := s.slotStart(plan, platform, day)
		if !ok {
			continue
		}
		offset := s.offset(platform)
		position := int(existing)
		categoryUsed := make(map[string]int)

		for _, content := range candidates {
			if remaining == 0 {
				break
			}
			if quota, limited := plan.quotas[content.Category]; limited && categoryUsed[content.Category] >= quota {
				continue
			}

			scheduledFor := slotStart.Add(time.Duration(position) * offset)
			if scheduledFor.Before(plan.now) {
				break
			}

			entry := &model.QueueEntry{
				SourceContentID: content.ID,
				TargetPlatform:  platform,
				Priority:        position + 1,
				ScheduledFor:    scheduledFor,
				Snapshot:        snapshotOf(content),
			}
			err = s.queueRepo.CreateIfAbsent(ctx, entry)
			if errors.Is(err, repository.ErrDuplicateActiveEntry) {
				out.DuplicateSkips++
				metrics.QueueDuplicateSkips.WithLabelValues(platform, "active_entry").Inc()
				continue
			}
			if err != nil {
				log.ErrorContext(ctx, "create queue entry failed",
					"content_id", content.ID, "platform", platform, "err", err)
				continue
			}

			metrics.QueueEntriesScheduled.WithLabelValues(platform).Inc()
			pairs = append(pairs, scheduledPair{contentID: content.ID, platform: platform, scheduledFor: scheduledFor})
			categoryUsed[content.Category]++
			position++
			remaining--
			out.Scheduled++
		}
	}

	for _, pair := range pairs {
		if err = s.contentRepo.MarkScheduled(ctx, pair.contentID, pair.platform, pair.scheduledFor); err != nil {
			log.ErrorContext(ctx, "mark content scheduled failed",
				"content_id", pair.contentID, "platform", pair.platform, "err", err)
		}
	}
	return nil
}

// dropRecentDuplicates 剔除与近期已发布内容指纹相同的候选
func (s *queueBuilderServiceImpl) dropRecentDuplicates(ctx context.Context, plan *buildPlan, candidates []*model.Content, out *DayBuildResult) []*model.Content {
	if s.fingerprint == nil {
		return candidates
	}
	kept := make([]*model.Content, 0, len(candidates))
	for _, content := range candidates {
		fp := content.Fingerprint()
		if len(fp.Hash) == 0 && fp.SizeBytes <= 0 {
			kept = append(kept, content)
			continue
		}
		dup, err := s.fingerprint.FindRecentDuplicate(ctx, fp, plan.minDays, content.ID)
		if err != nil {
			log.WarnContext(ctx, "duplicate check failed, skipping candidate", "content_id", content.ID, "err", err)
			continue
		}
		if dup.IsDuplicate {
			out.DuplicateSkips++
			metrics.QueueDuplicateSkips.WithLabelValues("all", "fingerprint").Inc()
			log.InfoContext(ctx, "skip recently posted duplicate",
				"content_id", content.ID,
				"matched_content_id", dup.MatchedContent.ID,
				"days_since", dup.DaysSinceLastPost,
				"confidence", dup.Confidence)
			continue
		}
		kept = append(kept, content)
	}
	return kept
}

// slotStart 模板时间按高峰小时微调后的当日首个发布时间
func (s *queueBuilderServiceImpl) slotStart(plan *buildPlan, platform string, day time.Time) (time.Time, bool) {
	clock := s.templateClock(platform, day.Weekday())
	hour, minute, err := util.ParseClock(clock)
	if err != nil {
		log.Warn("invalid weekly template entry", "platform", platform, "weekday", day.Weekday().String(), "clock", clock)
		return time.Time{}, false
	}

	peaks := PeakHoursFor(plan.peaks[platform], int(day.Weekday()))
	if peak, ok := NearestPeak(hour, peaks); ok {
		hour = NudgeHour(hour, peak, s.cfg.NudgeFactor)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, s.cfg.Location), true
}

func (s *queueBuilderServiceImpl) templateClock(platform string, weekday time.Weekday) string {
	if days, ok := s.cfg.WeeklyTemplate[platform]; ok {
		if clock, ok := days[strings.ToLower(weekday.String())]; ok && clock != "" {
			return clock
		}
		if clock, ok := days["default"]; ok && clock != "" {
			return clock
		}
	}
	return defaultTemplateClock
}

func (s *queueBuilderServiceImpl) offset(platform string) time.Duration {
	if d, ok := s.cfg.PostOffsets[platform]; ok && d > 0 {
		return d
	}
	return defaultPostOffset
}

func snapshotOf(content *model.Content) model.ContentSnapshot {
	snapshot := content.Snapshot()
	if len(snapshot.Hashtags) == 0 {
		snapshot.Hashtags = util.ExtractTags(snapshot.Caption)
	}
	return snapshot
}

// PeakHoursFor 优先取同一星期的高峰小时，其次任意一天，最后使用默认值
func PeakHoursFor(slots []model.TimeSlot, weekday int) []int {
	sameDay := make([]int, 0, len(slots))
	allDays := make([]int, 0, len(slots))
	for _, slot := range slots {
		if slot.DayOfWeek == weekday {
			sameDay = append(sameDay, slot.HourOfDay)
		}
		allDays = append(allDays, slot.HourOfDay)
	}
	if len(sameDay) > 0 {
		return sameDay
	}
	if len(allDays) > 0 {
		return allDays
	}
	return DefaultPeakHours
}

// NearestPeak 距离相同时取较早的小时
func NearestPeak(hour int, peaks []int) (int, bool) {
	best, bestDist := 0, math.MaxInt
	for _, peak := range peaks {
		dist := peak - hour
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist || (dist == bestDist && peak < best) {
			best, bestDist = peak, dist
		}
	}
	return best, bestDist != math.MaxInt
}

// NudgeHour 向高峰小时靠拢 factor 比例，结果四舍五入并限制在 [0, 23]
func NudgeHour(hour, peak int, factor float64) int {
	nudged := hour + int(math.Round(factor*float64(peak-hour)))
	if nudged < 0 {
		return 0
	}
	if nudged > 23 {
		return 23
	}
	return nudged
}
