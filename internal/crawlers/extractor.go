package crawlers

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/RecoveryAshes/poicrawler/internal/utils"
)

// Extractor 某一类地点的来源提取器,独占一个抓取引擎
type Extractor interface {
	Name() string
	Type() models.PlaceType
	Initialize(ctx context.Context) error
	Crawl(ctx context.Context, params models.CrawlParams) ([]models.CrawlResult, error)
	Cleanup()
}

// ListingSource 城市列表页来源
type ListingSource struct {
	Name string
	// URL 由城市和国家的 slug 拼出列表页地址
	URL func(city, country string) string
}

// listingCrawler 活动和景点提取器共用的列表页抓取流程
type listingCrawler struct {
	*Engine

	placeType  models.PlaceType
	sources    []ListingSource
	strategies []CardStrategy
	cacheTTL   time.Duration

	// normalize 将原始卡片转为结果,返回 false 表示丢弃
	normalize func(raw rawCard, src ListingSource, params models.CrawlParams) (models.CrawlResult, bool)
	// samples 内置示例数据
	samples func(city, country string, now time.Time) []models.CrawlResult
	// enrich 可选的详情页补充
	enrich func(ctx context.Context, results []models.CrawlResult) []models.CrawlResult
	// filterDates 是否按日期范围过滤
	filterDates bool
}

// Type 实现 Extractor 接口
func (c *listingCrawler) Type() models.PlaceType {
	return c.placeType
}

// Crawl 依次抓取所有来源,单个来源失败不影响其他来源
func (c *listingCrawler) Crawl(ctx context.Context, params models.CrawlParams) ([]models.CrawlResult, error) {
	if c.State() != StateInitialized && c.State() != StateCrawling {
		return nil, ErrNotInitialized
	}

	utils.Infof("🔍 [%s] 开始抓取 %s 的%s", c.Name(), params.City, c.placeType)

	var results []models.CrawlResult
	cacheHits := 0
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		found, fetched, err := c.crawlSource(ctx, src, params)
		if err != nil {
			if errors.Is(err, ErrNotInitialized) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return results, err
			}
			utils.Warnf("⚠️  [%s] 来源 %s 抓取失败: %v", c.Name(), src.Name, err)
			continue
		}
		if !fetched {
			cacheHits++
		}
		results = append(results, found...)
	}

	// 有来源命中缓存说明数据仍新鲜,不能用示例数据顶替
	if len(results) == 0 && cacheHits == 0 && c.config.AllowSyntheticFallback && c.config.IsFallbackCity(params.City) {
		results = c.samples(params.City, params.Country, c.now())
		utils.Warnf("⚠️  [%s] %s 未抓取到数据,使用 %d 条内置示例数据", c.Name(), params.City, len(results))
	}

	if c.enrich != nil && c.config.EnrichDetails && len(results) > 0 {
		results = c.enrich(ctx, results)
	}

	if c.filterDates && params.HasDateRange() {
		results = filterByDate(results, params)
	}

	utils.Infof("✅ [%s] %s 共获得 %d 条%s", c.Name(), params.City, len(results), c.placeType)
	return results, nil
}

// crawlSource 抓取单个列表页,缓存命中时跳过
// fetched 为 false 表示命中缓存,没有导航
func (c *listingCrawler) crawlSource(ctx context.Context, src ListingSource, params models.CrawlParams) (results []models.CrawlResult, fetched bool, err error) {
	listURL := src.URL(models.Slugify(params.City), models.Slugify(params.Country))
	if c.IsCached(ctx, listURL) {
		utils.Infof("⏭️  [%s] 已在缓存有效期内抓取过,跳过: %s", c.Name(), listURL)
		return nil, false, nil
	}

	doc, err := c.FetchDocument(ctx, listURL)
	if err != nil {
		return nil, true, err
	}

	results = c.extractCards(doc, listURL, src, params)
	c.MarkAsCrawled(ctx, listURL, c.cacheTTL)
	c.metrics.ObserveExtracted(src.Name, len(results))

	utils.Debugf("[%s] %s 提取到 %d 条", c.Name(), src.Name, len(results))
	return results, true, nil
}

// extractCards 定位卡片并逐个归一化
func (c *listingCrawler) extractCards(doc *goquery.Document, listURL string, src ListingSource, params models.CrawlParams) []models.CrawlResult {
	cards, strategy := FindCards(doc, c.strategies, c.config.MaxCardsPerPage)
	if len(cards) == 0 {
		utils.Warnf("[%s] %s 未找到任何卡片", c.Name(), listURL)
		return nil
	}

	base, _ := url.Parse(listURL)
	results := make([]models.CrawlResult, 0, len(cards))
	for _, card := range cards {
		raw := extractRawCard(card)
		if raw.Title == "" {
			continue
		}
		raw.Link = resolveURL(base, raw.Link)
		if raw.Link == "" {
			raw.Link = listURL
		}
		raw.Image = resolveURL(base, raw.Image)

		result, ok := c.normalize(raw, src, params)
		if !ok {
			continue
		}
		result.SetExtra(models.ExtraStrategy, strategy)
		results = append(results, result)
	}
	return results
}

// filterByDate 指定日期范围时丢弃缺失或越界的开始日期
func filterByDate(results []models.CrawlResult, params models.CrawlParams) []models.CrawlResult {
	filtered := results[:0]
	for _, r := range results {
		if params.InDateRange(r.Data.StartDate) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
