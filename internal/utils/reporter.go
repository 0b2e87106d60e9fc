package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/schollz/progressbar/v3"
)

// RunReport 一次批量抓取的报告
type RunReport struct {
	RunID     string               `json:"run_id"`
	StartTime time.Time            `json:"start_time"`
	EndTime   time.Time            `json:"end_time"`
	Duration  float64              `json:"duration"` // 秒
	Cities    []models.CityResult  `json:"cities"`
	Totals    models.CityResult    `json:"totals"`
	Config    models.CrawlerConfig `json:"config"`
}

// Reporter 报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// NewRunReport 汇总各城市结果
func NewRunReport(runID string, start time.Time, results []models.CityResult, config models.CrawlerConfig) RunReport {
	end := time.Now()
	report := RunReport{
		RunID:     runID,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start).Seconds(),
		Cities:    results,
		Totals:    models.CityResult{City: "TOTAL"},
		Config:    config,
	}
	for _, r := range results {
		report.Totals.Crawled += r.Crawled
		report.Totals.Saved += r.Saved
		report.Totals.Inserted += r.Inserted
		report.Totals.Updated += r.Updated
		report.Totals.Failed += r.Failed
	}
	report.Totals.Duration = report.Duration
	return report
}

// GenerateReport 写入 run_<id>.json,返回文件路径
func (r *Reporter) GenerateReport(report RunReport) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	path := filepath.Join(r.outputDir, fmt.Sprintf("run_%s.json", report.RunID))
	if err := r.saveJSONReport(path, report); err != nil {
		return "", err
	}

	Infof("✅ 报告已生成: %s", path)
	return path, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
