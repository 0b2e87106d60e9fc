package utils

import (
	"fmt"
	"io"
	"sort"

	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	return t
}

// RenderCityResults 打印各城市抓取结果表
func RenderCityResults(out io.Writer, results []models.CityResult) {
	t := newTable(out)
	t.AppendHeader(table.Row{"城市", "抓取", "保存", "新增", "更新", "失败", "耗时(秒)", "错误"})

	var crawled, saved, inserted, updated, failed int
	for _, r := range results {
		t.AppendRow(table.Row{r.City, r.Crawled, r.Saved, r.Inserted, r.Updated, r.Failed,
			formatSeconds(r.Duration), r.Error})
		crawled += r.Crawled
		saved += r.Saved
		inserted += r.Inserted
		updated += r.Updated
		failed += r.Failed
	}

	t.AppendFooter(table.Row{"合计", crawled, saved, inserted, updated, failed, "", ""})
	t.Render()
}

// RenderStatistics 打印存储统计表
func RenderStatistics(out io.Writer, stats *models.Statistics) {
	t := newTable(out)
	t.AppendHeader(table.Row{"维度", "值", "数量"})
	t.AppendRow(table.Row{"total", "", stats.Total})
	t.AppendRow(table.Row{"last_24h", "", stats.Last24h})

	appendGroup := func(dim string, counts map[string]int64) {
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.AppendRow(table.Row{dim, k, counts[k]})
		}
	}

	t.AppendSeparator()
	appendGroup("type", stats.ByType)
	t.AppendSeparator()
	appendGroup("city", stats.ByCity)
	t.AppendSeparator()
	appendGroup("source", stats.BySource)
	t.Render()
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.1f", s)
}
