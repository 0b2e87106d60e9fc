package crawlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/poicrawler/internal/browser"
	"github.com/RecoveryAshes/poicrawler/internal/cache"
	"github.com/RecoveryAshes/poicrawler/internal/metrics"
	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/RecoveryAshes/poicrawler/internal/utils"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotInitialized 引擎未初始化或已清理
	ErrNotInitialized = errors.New("抓取引擎未初始化")
	// ErrNavigationFailed 重试耗尽后导航仍失败
	ErrNavigationFailed = errors.New("页面导航失败")
	// ErrDisallowedByRobots robots.txt 禁止抓取
	ErrDisallowedByRobots = errors.New("robots.txt 禁止抓取")
)

// CacheKeyPrefix 抓取缓存键前缀
const CacheKeyPrefix = "poicrawler:crawled:"

// maxIdleWait 网络空闲等待上限
const maxIdleWait = 5 * time.Second

// EngineState 引擎生命周期状态
type EngineState int32

const (
	StateUninitialized EngineState = iota
	StateInitialized
	StateCrawling
	StateCleanedUp
)

func (s EngineState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateCrawling:
		return "crawling"
	case StateCleanedUp:
		return "cleaned_up"
	default:
		return "unknown"
	}
}

// Engine 抓取引擎
// 持有一个浏览器会话,负责限速、重试导航、抓取缓存和批量页面处理
type Engine struct {
	name    string
	config  models.CrawlerConfig
	session browser.Session
	cache   cache.Store
	limiter *RateLimiter
	robots  *RobotsChecker
	monitor *ResourceMonitor
	metrics *metrics.Metrics

	state atomic.Int32

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// EngineOption 引擎可选项
type EngineOption func(*Engine)

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithRobotsChecker 替换默认的 robots 检查器
func WithRobotsChecker(rc *RobotsChecker) EngineOption {
	return func(e *Engine) { e.robots = rc }
}

// WithResourceMonitor 设置资源监控器,用于限制批处理并发
func WithResourceMonitor(rm *ResourceMonitor) EngineOption {
	return func(e *Engine) { e.monitor = rm }
}

// WithSleeper 替换退避和稳定等待使用的睡眠函数
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) { e.sleep = fn }
}

// WithClock 替换时间来源
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine 创建抓取引擎,store 为 nil 时不使用缓存
func NewEngine(name string, cfg models.CrawlerConfig, session browser.Session, store cache.Store, opts ...EngineOption) *Engine {
	if store == nil {
		store = cache.NopStore{}
	}
	e := &Engine{
		name:    name,
		config:  cfg,
		session: session,
		cache:   store,
		limiter: NewRateLimiter(cfg.RequestsPerSecond),
		sleep:   sleepContext,
		now:     time.Now,
	}
	if cfg.RespectRobotsTxt {
		e.robots = NewRobotsChecker(nil, cfg.UserAgent)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name 引擎名称
func (e *Engine) Name() string {
	return e.name
}

// Config 引擎配置
func (e *Engine) Config() models.CrawlerConfig {
	return e.config
}

// State 当前生命周期状态
func (e *Engine) State() EngineState {
	return EngineState(e.state.Load())
}

// Initialize 启动浏览器会话
func (e *Engine) Initialize(ctx context.Context) error {
	switch e.State() {
	case StateInitialized, StateCrawling:
		return nil
	}

	utils.Infof("🚀 [%s] 初始化浏览器会话...", e.name)
	if err := e.session.Initialize(ctx); err != nil {
		return fmt.Errorf("[%s] 初始化失败: %w", e.name, err)
	}
	e.state.Store(int32(StateInitialized))
	return nil
}

// Cleanup 关闭浏览器会话,可重复调用
func (e *Engine) Cleanup() {
	if e.State() == StateCleanedUp {
		return
	}
	e.session.Cleanup()
	e.state.Store(int32(StateCleanedUp))

	log.Info().
		Str("engine", e.name).
		Int64("requests", e.limiter.Requests()).
		Float64("rate", e.limiter.ObservedRate()).
		Msg("🧹 抓取引擎已清理")
}

// CreatePage 在会话中创建新页面
func (e *Engine) CreatePage(ctx context.Context) (browser.Page, error) {
	switch e.State() {
	case StateInitialized:
		e.state.CompareAndSwap(int32(StateInitialized), int32(StateCrawling))
	case StateCrawling:
	default:
		return nil, ErrNotInitialized
	}

	page, err := e.session.NewPage(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrSessionClosed) {
			return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
		}
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}
	return page, nil
}

// RateLimit 等待直到允许下一次导航
func (e *Engine) RateLimit(ctx context.Context) error {
	return e.limiter.Wait(ctx)
}

// NavigateWithRetry 限速导航,失败时按线性退避重试,共尝试 RetryAttempts+1 次
func (e *Engine) NavigateWithRetry(ctx context.Context, page browser.Page, url string) error {
	if e.robots != nil && !e.robots.Allowed(ctx, url) {
		e.metrics.ObserveNavigation(metrics.ResultDisallowed)
		utils.Warnf("⛔ robots.txt 禁止抓取: %s", url)
		return fmt.Errorf("%w: %s", ErrDisallowedByRobots, url)
	}

	attempts := e.config.RetryAttempts + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := e.RateLimit(ctx); err != nil {
			return err
		}

		lastErr = page.Navigate(ctx, url)
		if lastErr == nil {
			if err := page.WaitIdle(ctx, e.idleTimeout()); err != nil {
				utils.Debugf("等待网络空闲超时 [%s]: %v", url, err)
			}
			e.metrics.ObserveNavigation(metrics.ResultSuccess)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		log.Warn().
			Err(lastErr).
			Str("url", url).
			Int("attempt", attempt+1).
			Int("max", attempts).
			Msg("导航失败")

		if attempt < attempts-1 {
			e.metrics.ObserveRetry()
			if err := e.sleep(ctx, e.config.RetryDelay*time.Duration(attempt+1)); err != nil {
				return err
			}
		}
	}

	e.metrics.ObserveNavigation(metrics.ResultFailure)
	return fmt.Errorf("%w [%s] (共尝试 %d 次): %w", ErrNavigationFailed, url, attempts, lastErr)
}

func (e *Engine) idleTimeout() time.Duration {
	if e.config.IdleTimeout <= 0 || e.config.IdleTimeout > maxIdleWait {
		return maxIdleWait
	}
	return e.config.IdleTimeout
}

// FetchDocument 打开页面抓取URL并解析为文档
func (e *Engine) FetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	page, err := e.CreatePage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if err := e.NavigateWithRetry(ctx, page, url); err != nil {
		return nil, err
	}
	if err := e.sleep(ctx, e.config.SettleDelay); err != nil {
		return nil, err
	}
	return documentFromPage(page)
}

func documentFromPage(page browser.Page) (*goquery.Document, error) {
	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("读取页面HTML失败: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}
	return doc, nil
}

// CacheKey 计算URL的缓存键
func CacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return CacheKeyPrefix + hex.EncodeToString(sum[:])[:32]
}

// IsCached 判断URL是否在有效期内抓取过,缓存不可用时视为未命中
func (e *Engine) IsCached(ctx context.Context, url string) bool {
	_, ok, err := e.cache.Get(ctx, CacheKey(url))
	if err != nil {
		utils.Warnf("读取抓取缓存失败 [%s]: %v", url, err)
		e.metrics.ObserveCache(false)
		return false
	}
	e.metrics.ObserveCache(ok)
	return ok
}

// MarkAsCrawled 记录URL的抓取时间,写入失败只记录警告
func (e *Engine) MarkAsCrawled(ctx context.Context, url string, ttl time.Duration) {
	value := e.now().UTC().Format(time.RFC3339)
	if err := e.cache.SetWithExpiry(ctx, CacheKey(url), ttl, value); err != nil {
		utils.Warnf("写入抓取缓存失败 [%s]: %v", url, err)
	}
}

// sleepContext 可被ctx中断的睡眠
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
