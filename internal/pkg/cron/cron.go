package cron

import (
	"context"
	"sync"
	"time"

	"github.com/qs3c/engage_go_server/internal/pkg/logger"
)

// StaleExpirer 结束超时未完成的运行
type StaleExpirer interface {
	ExpireStale(ctx context.Context, maxAge time.Duration, limit int) (int, error)
}

// Purger 删除早于某时间的记录
type Purger interface {
	DeleteOlderThan(before time.Time) (int64, error)
}

// Options 定时任务参数
type Options struct {
	StaleAfter    time.Duration
	SweepInterval time.Duration
	SweepLimit    int
	RetentionDays int
}

type Service struct {
	expirer  StaleExpirer
	purgers  map[string]Purger
	opts     Options
	log      *logger.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewService 创建定时清理服务
func NewService(expirer StaleExpirer, purgers map[string]Purger, opts Options, log *logger.Logger) *Service {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.SweepLimit <= 0 {
		opts.SweepLimit = 100
	}
	return &Service{
		expirer:  expirer,
		purgers:  purgers,
		opts:     opts,
		log:      log.With("component", "cron"),
		stopChan: make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runStaleSweep()
	go s.runDailyPurge()
	s.log.Info("cron service started", "sweep_interval", s.opts.SweepInterval.String(), "retention_days", s.opts.RetentionDays)
}

// Stop 停止定时任务
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.log.Info("cron service stopped")
	})
}

// runStaleSweep 周期性清理卡住的运行
func (s *Service) runStaleSweep() {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.SweepStale(context.Background())
		}
	}
}

// SweepStale 执行一次超时清理，返回结束的运行数
func (s *Service) SweepStale(ctx context.Context) int {
	if s.expirer == nil {
		return 0
	}
	n, err := s.expirer.ExpireStale(ctx, s.opts.StaleAfter, s.opts.SweepLimit)
	if err != nil {
		s.log.Error("stale run sweep failed", "error", err)
		return n
	}
	if n > 0 {
		s.log.Warn("stale runs expired", "count", n, "older_than", s.opts.StaleAfter.String())
	}
	return n
}

// runDailyPurge 每天 UTC 零点清理过期的生成记录
func (s *Service) runDailyPurge() {
	if s.opts.RetentionDays <= 0 || len(s.purgers) == 0 {
		return
	}
	now := time.Now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	timer := time.NewTimer(nextMidnight.Sub(now))

	for {
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.PurgeExpired(time.Now())
			timer.Reset(24 * time.Hour)
		}
	}
}

// PurgeExpired 删除保留期之前的记录，返回各表删除条数
func (s *Service) PurgeExpired(now time.Time) map[string]int64 {
	deleted := make(map[string]int64, len(s.purgers))
	if s.opts.RetentionDays <= 0 {
		return deleted
	}
	before := now.AddDate(0, 0, -s.opts.RetentionDays)
	for name, p := range s.purgers {
		n, err := p.DeleteOlderThan(before)
		if err != nil {
			s.log.Error("purge failed", "table", name, "error", err)
			continue
		}
		deleted[name] = n
	}
	s.log.Info("purge completed", "before", before.Format(time.RFC3339), "deleted", deleted)
	return deleted
}
