// Package crawlers 实现城市活动和景点的抓取
//
// # 核心组件
//
// ## Engine
//
// 抓取引擎持有一个浏览器会话,提供:
//   - 令牌桶限速 (RateLimit)
//   - 带线性退避的导航重试 (NavigateWithRetry),共尝试 RetryAttempts+1 次
//   - 基于缓存的去重 (IsCached / MarkAsCrawled)
//   - 分块并发的页面批处理 (BatchProcess)
//   - robots.txt 检查和资源感知的并发限制
//
// 生命周期: Uninitialized -> Initialized -> Crawling -> CleanedUp,
// 未初始化或清理后创建页面返回 ErrNotInitialized。
//
// ## Extractor
//
// EventCrawler 和 AttractionCrawler 各自独占一个 Engine,依次抓取多个列表页来源。
// 卡片按 CardStrategy 顺序定位,第一个命中的策略胜出:
//
//	test-id -> class-name -> generic -> link-heuristic
//
// 卡片字段经过 ParseDate / ParsePrice / InferCategory / BuildTags 归一化。
// 景点在开启 EnrichDetails 时会打开详情页,读取 ld+json 补全评分、坐标和地址。
//
// 全部来源都没有结果时,只有开启 AllowSyntheticFallback 且城市在 FallbackCities 中,
// 才会返回内置示例数据,示例数据的来源为 sample-events / sample-attractions。
//
// 使用示例:
//
//	engine := NewEngine("events", cfg, browser.New(cfg.Mode, opts), redisStore)
//	extractor := NewEventCrawler(engine)
//	if err := extractor.Initialize(ctx); err != nil { /* 处理错误 */ }
//	defer extractor.Cleanup()
//
//	results, err := extractor.Crawl(ctx, models.CrawlParams{City: "Mumbai", Country: "India"})
package crawlers
