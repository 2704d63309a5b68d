package cron

import (
	"Cadence/internal/job"
	"context"
	"fmt"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine       *cron.Cron
	analysisSpec string
	janitorSpec  string
	analysisJob  *job.AnalysisJob
	janitorJob   *job.QueueJanitorJob
}

func NewCronManager(analysisSpec, janitorSpec string, analysisJob *job.AnalysisJob, janitorJob *job.QueueJanitorJob) *Manager {
	return &Manager{
		// 上一次未结束时跳过本次触发
		engine:       cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		analysisSpec: analysisSpec,
		janitorSpec:  janitorSpec,
		analysisJob:  analysisJob,
		janitorJob:   janitorJob,
	}
}

// RegisterJobs 注册分析与清理任务，表达式非法时返回错误
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(s.analysisSpec, s.analysisJob); err != nil {
		return fmt.Errorf("register analysis job %q: %w", s.analysisSpec, err)
	}
	if _, err := s.engine.AddJob(s.janitorSpec, s.janitorJob); err != nil {
		return fmt.Errorf("register janitor job %q: %w", s.janitorSpec, err)
	}
	return nil
}

// Run 注册并启动任务，阻塞至 ctx 结束后等待运行中的任务退出
func (s *Manager) Run(ctx context.Context) error {
	if err := s.RegisterJobs(); err != nil {
		return err
	}
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动", "analysis", s.analysisSpec, "janitor", s.janitorSpec)
	s.engine.Start()
}

// Stop 停止调度并等待运行中的任务退出
func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}
