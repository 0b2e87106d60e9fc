package main

import (
	"context"
	"fmt"

	"github.com/RecoveryAshes/poicrawler/internal/browser"
	"github.com/RecoveryAshes/poicrawler/internal/cache"
	"github.com/RecoveryAshes/poicrawler/internal/core"
	"github.com/RecoveryAshes/poicrawler/internal/crawlers"
	"github.com/RecoveryAshes/poicrawler/internal/metrics"
	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/RecoveryAshes/poicrawler/internal/store"
	"github.com/RecoveryAshes/poicrawler/internal/utils"
)

// app 一次命令执行所需的全部依赖
type app struct {
	cfg     *core.Config
	headers *core.HeaderManager
	cache   cache.Store
	store   store.PlaceStore
	metrics *metrics.Metrics
	monitor *crawlers.ResourceMonitor
	manager *core.Manager

	closers []func() error
}

// appOptions 运行时开关
type appOptions struct {
	dryRun  bool
	noCache bool
}

// newApp 按配置组装缓存、存储、指标和管理器
func newApp(ctx context.Context, cfg *core.Config, cliHeaders []string, opts appOptions) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: metrics.New(),
		monitor: crawlers.NewResourceMonitor(cfg.ResourceMonitorConfig()),
	}

	hm, err := core.NewHeaderManager(cfg.Crawler.UserAgent, cfg.Headers, cliHeaders)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if _, err := hm.GetHeaders(); err != nil {
		return nil, fmt.Errorf("HTTP头部验证失败: %w", err)
	}
	a.headers = hm

	a.cache = a.openCache(ctx, opts.noCache)

	if err := a.openStore(ctx, opts.dryRun); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				utils.Errorf("指标服务异常退出: %v", err)
			}
		}()
	}

	a.manager = core.NewManager(a.store, a.extractorFactories(),
		core.WithCityDelay(cfg.Batch.CityDelay),
		core.WithManagerMetrics(a.metrics),
	)
	return a, nil
}

// openCache Redis不可用时退化为无缓存
func (a *app) openCache(ctx context.Context, disabled bool) cache.Store {
	if disabled || !a.cfg.Redis.Enabled {
		utils.Info("抓取缓存已禁用")
		return cache.NopStore{}
	}

	rs, err := cache.Connect(ctx, cache.RedisConfig{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		utils.Warnf("⚠️  %v, 本次运行不使用缓存", err)
		return cache.NopStore{}
	}
	a.closers = append(a.closers, rs.Close)
	utils.Infof("✅ 已连接Redis: %s", a.cfg.Redis.Addr)
	return rs
}

// openStore dry-run 使用内存存储
func (a *app) openStore(ctx context.Context, dryRun bool) error {
	if dryRun {
		utils.Info("🧪 dry-run 模式: 结果只写入内存")
		a.store = store.NewMemoryStore()
		return nil
	}

	pg, err := store.OpenPostgres(ctx, a.cfg.Database.URL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pg.Close)

	if a.cfg.Database.AutoMigrate {
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	a.store = pg
	utils.Info("✅ 已连接数据库")
	return nil
}

// extractorFactories 每种类型每个城市使用独立的引擎和浏览器会话
func (a *app) extractorFactories() map[models.PlaceType]core.ExtractorFactory {
	return map[models.PlaceType]core.ExtractorFactory{
		models.PlaceTypeEvent: func() crawlers.Extractor {
			return crawlers.NewEventCrawler(a.newEngine("events"))
		},
		models.PlaceTypeAttraction: func() crawlers.Extractor {
			return crawlers.NewAttractionCrawler(a.newEngine("attractions"))
		},
	}
}

func (a *app) newEngine(name string) *crawlers.Engine {
	cfg := a.cfg.Crawler
	session := browser.New(cfg.Mode, browser.OptionsFromConfig(cfg, a.headers))
	return crawlers.NewEngine(name, cfg, session, a.cache,
		crawlers.WithMetrics(a.metrics),
		crawlers.WithResourceMonitor(a.monitor),
	)
}

// Close 按打开的逆序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			utils.Warnf("释放资源失败: %v", err)
		}
	}
	a.closers = nil
}
