package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/RecoveryAshes/poicrawler/internal/utils"
	"github.com/robfig/cron/v3"
)

// BatchRunner 执行一轮批量抓取
type BatchRunner interface {
	CrawlBatch(ctx context.Context, cities []utils.CityEntry) (*BatchSummary, error)
}

// Scheduler 按cron表达式周期性执行批量抓取
// 上一轮未结束时跳过本次触发
type Scheduler struct {
	runner BatchRunner
	cities []utils.CityEntry

	cron    *cron.Cron
	parser  cron.Parser
	entryID cron.EntryID

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler 创建调度器
func NewScheduler(runner BatchRunner, cities []utils.CityEntry) *Scheduler {
	// 标准5段格式: 分 时 日 月 周
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		runner: runner,
		cities: cities,
		cron:   cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		parser: parser,
	}
}

// Schedule 注册抓取任务
func (s *Scheduler) Schedule(spec string) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("无效的cron表达式 %q: %w", spec, err)
	}

	id, err := s.cron.AddFunc(spec, func() {
		ctx, ok := s.acquire()
		if !ok {
			return
		}
		defer s.wg.Done()
		s.runJob(ctx)
	})
	if err != nil {
		return fmt.Errorf("注册定时任务失败: %w", err)
	}
	s.entryID = id
	utils.Infof("⏰ 已注册定时抓取: %s (%d个城市)", spec, len(s.cities))
	return nil
}

// Run 启动调度并阻塞到ctx取消,返回前等待进行中的任务结束
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	if entry := s.cron.Entry(s.entryID); entry.Valid() {
		utils.Infof("下次执行时间: %s", entry.Next.Format("2006-01-02 15:04:05"))
	}

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop 停止调度
func (s *Scheduler) Stop() {
	utils.Info("正在停止定时调度...")

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
	s.wg.Wait()

	utils.Infof("定时调度已停止: 执行 %d 次, 跳过 %d 次", s.runs.Load(), s.skipped.Load())
}

// acquire 在锁内登记进行中的任务,调度已停止时返回 false
func (s *Scheduler) acquire() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || s.ctx.Err() != nil {
		return nil, false
	}
	s.wg.Add(1)
	return s.ctx, true
}

// RunNow 立即执行一轮抓取
func (s *Scheduler) RunNow(ctx context.Context) {
	s.runJob(ctx)
}

// runJob 执行一轮抓取,重叠触发直接跳过
func (s *Scheduler) runJob(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		utils.Warn("上一轮抓取尚未结束,跳过本次触发")
		return
	}
	defer s.running.Store(false)

	n := s.runs.Add(1)
	logger := utils.Component("scheduler")
	logger.Info().Int64("run", n).Int("cities", len(s.cities)).Msg("⏰ 定时抓取开始")

	summary, err := s.runner.CrawlBatch(ctx, s.cities)
	if err != nil {
		logger.Error().Err(err).Int64("run", n).Msg("定时抓取出错")
		return
	}
	logger.Info().
		Int64("run", n).
		Int("success", summary.SuccessCount).
		Int("failed", summary.FailCount).
		Int("saved", summary.TotalSaved).
		Msg("✅ 定时抓取完成")
}

// Runs 返回已执行的轮数
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Skipped 返回被跳过的触发次数
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}
