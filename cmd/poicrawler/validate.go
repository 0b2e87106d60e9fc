package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/models"
)

// dateFlagLayout --start/--end 的日期格式
const dateFlagLayout = "2006-01-02"

// ParseTypes 解析 --types,为空表示全部类型
func ParseTypes(items []string) ([]models.PlaceType, error) {
	var types []models.PlaceType
	seen := make(map[models.PlaceType]bool)
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		t, err := models.ParsePlaceType(item)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types, nil
}

// ParseDateFlag 解析日期参数,endOfDay 为 true 时取当天最后一刻
func ParseDateFlag(name, value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateFlagLayout, value)
	if err != nil {
		return nil, fmt.Errorf("参数 --%s 格式错误,应为 YYYY-MM-DD: %s", name, value)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// BuildCrawlParams 校验并构造单城市抓取参数
func BuildCrawlParams(city, country string, types []string, start, end string) (models.CrawlParams, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return models.CrawlParams{}, fmt.Errorf("必须指定 --city")
	}

	placeTypes, err := ParseTypes(types)
	if err != nil {
		return models.CrawlParams{}, err
	}

	startDate, err := ParseDateFlag("start", start, false)
	if err != nil {
		return models.CrawlParams{}, err
	}
	endDate, err := ParseDateFlag("end", end, true)
	if err != nil {
		return models.CrawlParams{}, err
	}
	if startDate != nil && endDate != nil && endDate.Before(*startDate) {
		return models.CrawlParams{}, fmt.Errorf("结束日期 %s 早于开始日期 %s", end, start)
	}

	return models.CrawlParams{
		City:      city,
		Country:   strings.TrimSpace(country),
		Types:     placeTypes,
		StartDate: startDate,
		EndDate:   endDate,
	}, nil
}

// ValidateMode 验证抓取模式
func ValidateMode(mode string) error {
	switch models.BrowserMode(mode) {
	case "", models.ModeDynamic, models.ModeStatic:
		return nil
	}
	return fmt.Errorf("无效的抓取模式: %s (有效值: dynamic, static)", mode)
}
