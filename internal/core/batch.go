package core

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/RecoveryAshes/poicrawler/internal/utils"
)

// BatchCrawler 批量城市抓取器
type BatchCrawler struct {
	manager       *Manager
	types         []models.PlaceType
	continueOnErr bool
	reportDir     string
	config        models.CrawlerConfig
	showProgress  bool
	out           io.Writer
}

// BatchSummary 批量抓取摘要
type BatchSummary struct {
	RunID         string
	TotalCities   int
	SuccessCount  int
	FailCount     int
	TotalCrawled  int
	TotalSaved    int
	TotalDuration float64
	Results       []models.CityResult
	ReportPath    string
}

// BatchOptions 批量抓取参数
type BatchOptions struct {
	Types           []models.PlaceType
	ContinueOnError bool
	ReportDir       string // 为空时不生成报告
	ShowProgress    bool
	Out             io.Writer // 摘要表输出,默认 stdout
}

// NewBatchCrawler 创建批量抓取器
func NewBatchCrawler(manager *Manager, config models.CrawlerConfig, opts BatchOptions) *BatchCrawler {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &BatchCrawler{
		manager:       manager,
		types:         opts.Types,
		continueOnErr: opts.ContinueOnError,
		reportDir:     opts.ReportDir,
		config:        config,
		showProgress:  opts.ShowProgress,
		out:           out,
	}
}

// CrawlBatch 批量抓取城市列表
func (bc *BatchCrawler) CrawlBatch(ctx context.Context, cities []utils.CityEntry) (*BatchSummary, error) {
	utils.Infof("🚀 开始批量抓取: %d个城市", len(cities))

	summary := &BatchSummary{
		RunID:       models.NewID(),
		TotalCities: len(cities),
	}
	startTime := time.Now()

	var onDone func(models.CityResult) bool
	if bc.showProgress {
		bar := utils.NewProgressBar(len(cities), "抓取城市")
		defer func() { _ = bar.Finish() }()
		onDone = func(r models.CityResult) bool {
			_ = bar.Add(1)
			return bc.shouldContinue(r)
		}
	} else {
		onDone = bc.shouldContinue
	}

	summary.Results = bc.manager.crawlCities(ctx, cities, bc.types, onDone)

	for _, r := range summary.Results {
		if r.Error == "" {
			summary.SuccessCount++
		} else {
			summary.FailCount++
		}
		summary.TotalCrawled += r.Crawled
		summary.TotalSaved += r.Saved
	}
	summary.TotalDuration = time.Since(startTime).Seconds()

	if bc.reportDir != "" {
		report := utils.NewRunReport(summary.RunID, startTime, summary.Results, bc.config)
		path, err := utils.NewReporter(bc.reportDir).GenerateReport(report)
		if err != nil {
			utils.Errorf("生成报告失败: %v", err)
		} else {
			summary.ReportPath = path
		}
	}

	bc.printSummary(summary)
	return summary, ctx.Err()
}

// shouldContinue 失败且未开启 continue-on-error 时中止
func (bc *BatchCrawler) shouldContinue(r models.CityResult) bool {
	if r.Error != "" && !bc.continueOnErr {
		utils.Warn("批量抓取中止 (--continue-on-error=false)")
		return false
	}
	return true
}

// printSummary 打印批量抓取摘要
func (bc *BatchCrawler) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 批量抓取摘要")
	utils.Info("==================================================")
	utils.Infof("总城市数: %d", summary.TotalCities)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("📦 抓取: %d 条, 保存: %d 条", summary.TotalCrawled, summary.TotalSaved)
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	utils.RenderCityResults(bc.out, summary.Results)

	if summary.FailCount > 0 {
		utils.Warn("失败的城市:")
		for _, r := range summary.Results {
			if r.Error != "" {
				utils.Warnf("  - %s: %s", r.City, r.Error)
			}
		}
	}
}
