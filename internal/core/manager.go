package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/crawlers"
	"github.com/RecoveryAshes/poicrawler/internal/metrics"
	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/RecoveryAshes/poicrawler/internal/store"
	"github.com/RecoveryAshes/poicrawler/internal/utils"
	"github.com/rs/zerolog/log"
)

// ErrExtractorInit 提取器初始化失败,该城市的抓取中止
var ErrExtractorInit = errors.New("提取器初始化失败")

// ExtractorFactory 每次抓取城市时创建新的提取器
type ExtractorFactory func() crawlers.Extractor

// Manager 抓取管理器
// 按城市调度提取器并把结果写入存储,依赖全部通过构造参数注入
type Manager struct {
	store      store.PlaceStore
	extractors map[models.PlaceType]ExtractorFactory
	metrics    *metrics.Metrics
	cityDelay  time.Duration

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// ManagerOption 管理器可选项
type ManagerOption func(*Manager)

// WithCityDelay 设置城市之间的暂停时间
func WithCityDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.cityDelay = d }
}

// WithManagerMetrics 设置指标收集器
func WithManagerMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithManagerClock 替换时间来源
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// withManagerSleeper 替换城市间暂停的睡眠函数
func withManagerSleeper(fn func(ctx context.Context, d time.Duration) error) ManagerOption {
	return func(m *Manager) { m.sleep = fn }
}

// NewManager 创建抓取管理器
func NewManager(st store.PlaceStore, extractors map[models.PlaceType]ExtractorFactory, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      st,
		extractors: extractors,
		cityDelay:  5 * time.Second,
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CrawlCity 抓取单个城市的所有请求类型
// 单个提取器抓取失败只记录在汇总中;初始化失败视为致命错误并返回
func (m *Manager) CrawlCity(ctx context.Context, params models.CrawlParams) (*models.CitySummary, error) {
	summary := models.NewCitySummary(params.City, params.Country)

	for _, placeType := range models.AllPlaceTypes {
		if !params.WantsType(placeType) {
			continue
		}
		factory, ok := m.extractors[placeType]
		if !ok {
			utils.Warnf("未注册 %s 类型的提取器,跳过", placeType)
			continue
		}

		results, err := m.runExtractor(ctx, factory(), params)
		if err != nil {
			if errors.Is(err, ErrExtractorInit) || ctx.Err() != nil {
				return summary, err
			}
			utils.Errorf("❌ %s 的%s抓取失败: %v", params.City, placeType, err)
			summary.Errors[placeType] = err.Error()
			continue
		}
		summary.Add(placeType, results)
	}

	utils.Infof("📊 %s 抓取完成: 共 %d 条 %v", params.City, summary.Total, summary.Counts)
	return summary, nil
}

// runExtractor 初始化、抓取并清理提取器
func (m *Manager) runExtractor(ctx context.Context, extractor crawlers.Extractor, params models.CrawlParams) ([]models.CrawlResult, error) {
	if err := extractor.Initialize(ctx); err != nil {
		extractor.Cleanup()
		return nil, fmt.Errorf("%w [%s]: %w", ErrExtractorInit, extractor.Name(), err)
	}
	defer extractor.Cleanup()

	return extractor.Crawl(ctx, params)
}

// SaveCrawlResults 按自然键写入结果,单条失败只计数
func (m *Manager) SaveCrawlResults(ctx context.Context, results []models.CrawlResult) models.SaveStats {
	var stats models.SaveStats

	for i := range results {
		if err := ctx.Err(); err != nil {
			stats.Failed += len(results) - i
			utils.Warnf("保存已取消,剩余 %d 条未写入", len(results)-i)
			break
		}

		r := results[i]
		if err := r.Validate(); err != nil {
			stats.Failed++
			m.metrics.ObserveSave("failed")
			log.Warn().Str("url", r.URL).Msg("跳过无效结果: 缺少名称或URL")
			continue
		}

		place := models.NewPlaceFromResult(r)
		outcome, err := m.store.FindOrUpsert(ctx, place.Key(), place)
		if err != nil {
			stats.Failed++
			m.metrics.ObserveSave("failed")
			log.Error().Err(err).Str("title", place.Title).Str("city", place.City).Msg("保存失败")
			continue
		}

		m.metrics.ObserveSave(outcome.String())
		if outcome == store.OutcomeInserted {
			stats.Inserted++
		} else {
			stats.Updated++
		}
	}

	utils.Infof("💾 保存完成: 新增 %d, 更新 %d, 失败 %d", stats.Inserted, stats.Updated, stats.Failed)
	return stats
}

// CrawlAndSave 抓取并保存单个城市
func (m *Manager) CrawlAndSave(ctx context.Context, params models.CrawlParams) (result models.CityResult, err error) {
	start := m.now()
	result.City = params.City
	defer func() {
		d := m.now().Sub(start)
		result.Duration = d.Seconds()
		m.metrics.ObserveCity(d)
	}()

	summary, err := m.CrawlCity(ctx, params)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	results := summary.AllResults()
	stats := m.SaveCrawlResults(ctx, results)

	result.Crawled = len(results)
	result.Saved = stats.Saved()
	result.Inserted = stats.Inserted
	result.Updated = stats.Updated
	result.Failed = stats.Failed
	return result, nil
}

// CrawlMultipleCities 依次抓取多个城市,城市之间固定暂停
// 单个城市失败时该城市记为 {Crawled:0, Saved:0} 并继续
func (m *Manager) CrawlMultipleCities(ctx context.Context, cities []utils.CityEntry, types []models.PlaceType) []models.CityResult {
	return m.crawlCities(ctx, cities, types, nil)
}

// crawlCities 多城市循环,onDone 返回 false 时停止处理后续城市
func (m *Manager) crawlCities(ctx context.Context, cities []utils.CityEntry, types []models.PlaceType, onDone func(models.CityResult) bool) []models.CityResult {
	results := make([]models.CityResult, 0, len(cities))

	for i, city := range cities {
		if ctx.Err() != nil {
			utils.Warnf("多城市抓取已取消,剩余 %d 个城市未处理", len(cities)-i)
			break
		}

		utils.Infof("==================== [%d/%d] %s ====================", i+1, len(cities), city.City)
		result, err := m.CrawlAndSave(ctx, models.CrawlParams{
			City:    city.City,
			Country: city.Country,
			Types:   types,
		})
		if err != nil {
			utils.Errorf("❌ %s 处理失败: %v", city.City, err)
			result = models.CityResult{City: city.City, Error: err.Error(), Duration: result.Duration}
		}
		results = append(results, result)

		if onDone != nil && !onDone(result) {
			break
		}

		if i < len(cities)-1 && m.cityDelay > 0 {
			utils.Debugf("等待 %.0f 秒后处理下一个城市...", m.cityDelay.Seconds())
			if err := m.sleep(ctx, m.cityDelay); err != nil {
				break
			}
		}
	}
	return results
}

// GetStatistics 汇总存储中的记录
func (m *Manager) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	total, err := m.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("统计总数失败: %w", err)
	}

	stats := &models.Statistics{Total: total, GeneratedAt: m.now()}
	if stats.ByType, err = m.store.GroupBy(ctx, "type"); err != nil {
		return nil, fmt.Errorf("按类型统计失败: %w", err)
	}
	if stats.ByCity, err = m.store.GroupBy(ctx, "city"); err != nil {
		return nil, fmt.Errorf("按城市统计失败: %w", err)
	}
	if stats.BySource, err = m.store.GroupBy(ctx, "source"); err != nil {
		return nil, fmt.Errorf("按来源统计失败: %w", err)
	}
	if stats.Last24h, err = m.store.CountSince(ctx, m.now().Add(-24*time.Hour)); err != nil {
		return nil, fmt.Errorf("统计最近24小时失败: %w", err)
	}
	return stats, nil
}

// sleepContext 可被ctx中断的睡眠
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
