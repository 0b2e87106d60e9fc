package main

import (
	"testing"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/models"
)

func TestBuildCrawlParams(t *testing.T) {
	tests := []struct {
		name      string
		city      string
		types     []string
		start     string
		end       string
		wantErr   bool
		wantTypes int
	}{
		{"只有城市", "Mumbai", nil, "", "", false, 0},
		{"类型去重", "Mumbai", []string{"event", "events", "attraction"}, "", "", false, 2},
		{"完整日期范围", "Goa", []string{"event"}, "2025-01-01", "2025-01-31", false, 1},
		{"缺少城市", "  ", nil, "", "", true, 0},
		{"未知类型", "Delhi", []string{"restaurant"}, "", "", true, 0},
		{"日期格式错误", "Delhi", nil, "01/02/2025", "", true, 0},
		{"结束早于开始", "Delhi", nil, "2025-02-01", "2025-01-01", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := BuildCrawlParams(tt.city, "India", tt.types, tt.start, tt.end)
			if (err != nil) != tt.wantErr {
				t.Fatalf("期望错误=%v, 得到 %v", tt.wantErr, err)
			}
			if err != nil {
				return
			}
			if len(params.Types) != tt.wantTypes {
				t.Errorf("期望 %d 个类型, 得到 %v", tt.wantTypes, params.Types)
			}
		})
	}
}

func TestParseDateFlag_EndOfDay(t *testing.T) {
	end, err := ParseDateFlag("end", "2025-01-31", true)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	params := models.CrawlParams{EndDate: end}
	evening := time.Date(2025, 1, 31, 20, 0, 0, 0, time.UTC)
	if !params.InDateRange(&evening) {
		t.Error("期望结束日期当天晚上仍在范围内")
	}

	next := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if params.InDateRange(&next) {
		t.Error("期望次日不在范围内")
	}
}

func TestValidateMode(t *testing.T) {
	for _, m := range []string{"", "dynamic", "static"} {
		if err := ValidateMode(m); err != nil {
			t.Errorf("期望 %q 有效, 得到 %v", m, err)
		}
	}
	if err := ValidateMode("all"); err == nil {
		t.Error("期望 all 无效")
	}
}
