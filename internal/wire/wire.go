package wire

import (
	"Cadence/internal/api"
	"Cadence/internal/api/config"
	"Cadence/internal/api/handler"
	"Cadence/internal/job"
	"Cadence/internal/pkg/consts"
	"Cadence/internal/pkg/cron"
	"Cadence/internal/pkg/insights"
	"Cadence/internal/pkg/kafka"
	"Cadence/internal/pkg/minio"
	"Cadence/internal/pkg/mongo"
	"Cadence/internal/pkg/resilience"
	"Cadence/internal/pkg/util"
	"Cadence/internal/repository"
	"Cadence/internal/service"
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	mongodb "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

const (
	slotCacheTTL    = 6 * time.Hour
	analysisLockTTL = 30 * time.Minute
	buildLockTTL    = 10 * time.Minute
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	KafkaManager *kafka.ConsumerManager
	CronMgr      *cron.Manager
}

// BuildApplication baseCtx 用于定时任务，退出时取消正在运行的任务
func BuildApplication(baseCtx context.Context, db *gorm.DB, mongoDB *mongodb.Database, cfg *config.Config) (*ApplicationContainer, error) {
	sc := cfg.Scheduler
	loc, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", sc.Timezone, err)
	}

	storePolicy := resilience.DefaultPolicy()
	storePolicy.MaxRetries = sc.StoreRetries
	if sc.StoreTimeout > 0 {
		storePolicy.AttemptTimeout = time.Duration(sc.StoreTimeout) * time.Second
	}

	contentRepo := repository.NewContentRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	bucketRepo := repository.NewPeakBucketRepository(db)
	runRepo := mongo.NewAnalysisRunRepo(mongoDB)

	slotSvc := service.NewSlotService(bucketRepo, service.NewRedisSlotCache(slotCacheTTL), storePolicy)
	engagementSvc := service.NewEngagementService(bucketRepo, loc, storePolicy)
	fingerprintSvc := service.NewFingerprintService(contentRepo, sc.SizeTolerancePct, storePolicy,
		service.WithMediaSource(minio.NewMediaStore(), util.GetDuration))
	queueSvc := service.NewQueueService(queueRepo, contentRepo, time.Duration(sc.GraceWindowHours)*time.Hour, storePolicy)

	offsets := make(map[string]time.Duration, len(sc.PostOffsetsMinutes))
	for platform, minutes := range sc.PostOffsetsMinutes {
		offsets[platform] = time.Duration(minutes) * time.Minute
	}
	builderSvc := service.NewQueueBuilderService(contentRepo, queueRepo, slotSvc, fingerprintSvc,
		service.QueueBuilderConfig{
			Platforms:             sc.Platforms,
			Location:              loc,
			NudgeFactor:           sc.NudgeFactor,
			PerPlatformDailyCap:   sc.PerPlatformDailyCap,
			MinDaysBetweenReposts: sc.MinDaysBetweenReposts,
			MinPerformanceScore:   sc.MinPerformanceScore,
			TopSlotsLimit:         sc.TopSlotsLimit,
			WeeklyTemplate:        sc.WeeklyTemplate,
			PostOffsets:           offsets,
		},
		storePolicy,
		service.WithBuilderGuard(service.NewRedisRunGuard(consts.QueueBuildLock, buildLockTTL)),
	)

	analysisSvc := service.NewAnalysisService(
		insights.NewClient(cfg.Insights),
		engagementSvc,
		slotSvc,
		service.NewRedisRunGuard(consts.AnalysisRunLock, analysisLockTTL),
		sc.Platforms,
		sc.RecentPostsCount,
		service.WithRunRepo(runRepo),
	)

	handlers := &api.HandlersGroup{
		AnalysisHandler: handler.NewAnalysisHandler(analysisSvc),
		QueueHandler:    handler.NewQueueHandler(builderSvc, queueSvc, loc),
		SlotHandler:     handler.NewSlotHandler(slotSvc, sc.Platforms, sc.TopSlotsLimit),
		ContentHandler:  handler.NewContentHandler(fingerprintSvc, sc.MinDaysBetweenReposts),
	}
	router := api.SetupRouter(handlers)

	kafkaMgr, err := kafka.NewConsumerManager(cfg, queueSvc)
	if err != nil {
		return nil, err
	}

	cronMgr := cron.NewCronManager(
		sc.AnalysisCron,
		sc.JanitorCron,
		job.NewAnalysisJob(baseCtx, analysisSvc, builderSvc, loc),
		job.NewQueueJanitorJob(baseCtx, queueSvc),
	)

	return &ApplicationContainer{
		Router:       router,
		DB:           db,
		KafkaManager: kafkaMgr,
		CronMgr:      cronMgr,
	}, nil
}
