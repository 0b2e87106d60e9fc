package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PlaceType 地点类型
type PlaceType string

const (
	PlaceTypeEvent      PlaceType = "event"      // 活动
	PlaceTypeAttraction PlaceType = "attraction" // 景点
)

// AllPlaceTypes 所有支持的地点类型,按固定顺序
var AllPlaceTypes = []PlaceType{PlaceTypeEvent, PlaceTypeAttraction}

// ParsePlaceType 解析地点类型字符串
func ParsePlaceType(s string) (PlaceType, error) {
	switch PlaceType(strings.ToLower(strings.TrimSpace(s))) {
	case PlaceTypeEvent, "events":
		return PlaceTypeEvent, nil
	case PlaceTypeAttraction, "attractions":
		return PlaceTypeAttraction, nil
	}
	return "", fmt.Errorf("未知的地点类型: %s (有效值: event, attraction)", s)
}

// Extras 中允许出现的键
const (
	ExtraDateText  = "date_text"  // 原始日期文本
	ExtraPriceText = "price_text" // 原始价格文本
	ExtraSynthetic = "synthetic"  // 内置示例数据标记
	ExtraStrategy  = "strategy"   // 命中的卡片选择策略
)

// GeoPoint 经纬度
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PlaceData 归一化后的地点数据,除名称外均为尽力提取
type PlaceData struct {
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Type          PlaceType         `json:"type"`
	Category      string            `json:"category,omitempty"`
	City          string            `json:"city"`
	Country       string            `json:"country,omitempty"`
	StartDate     *time.Time        `json:"start_date,omitempty"`
	EndDate       *time.Time        `json:"end_date,omitempty"`
	Price         *float64          `json:"price,omitempty"`
	ImageURL      string            `json:"image_url,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Rating        *float64          `json:"rating,omitempty"`
	ReviewCount   *int              `json:"review_count,omitempty"`
	Location      *GeoPoint         `json:"location,omitempty"`
	Address       string            `json:"address,omitempty"`
	Website       string            `json:"website,omitempty"`
	Phone         string            `json:"phone,omitempty"`
	OpeningHours  string            `json:"opening_hours,omitempty"`
	Features      []string          `json:"features,omitempty"`
	Accessibility []string          `json:"accessibility,omitempty"`
	Extras        map[string]string `json:"extras,omitempty"`
}

// CrawlResult 单条抓取结果
type CrawlResult struct {
	Source string    `json:"source"`
	URL    string    `json:"url"`
	Data   PlaceData `json:"data"`
}

// ErrInvalidResult 抓取结果缺少必填字段
var ErrInvalidResult = errors.New("抓取结果缺少名称或URL")

// Validate 名称和URL必须存在
func (r *CrawlResult) Validate() error {
	if strings.TrimSpace(r.Data.Name) == "" || strings.TrimSpace(r.URL) == "" {
		return ErrInvalidResult
	}
	return nil
}

// SetExtra 写入附加字段
func (r *CrawlResult) SetExtra(key, value string) {
	if value == "" {
		return
	}
	if r.Data.Extras == nil {
		r.Data.Extras = make(map[string]string)
	}
	r.Data.Extras[key] = value
}

// IsSynthetic 是否为内置示例数据
func (r *CrawlResult) IsSynthetic() bool {
	return r.Data.Extras[ExtraSynthetic] == "true"
}

// CrawlParams 单个城市的抓取参数
type CrawlParams struct {
	City      string
	Country   string
	Types     []PlaceType
	StartDate *time.Time
	EndDate   *time.Time
}

// HasDateRange 是否指定了日期范围
func (p CrawlParams) HasDateRange() bool {
	return p.StartDate != nil || p.EndDate != nil
}

// InDateRange 判断开始日期是否落在范围内,缺失日期视为不在范围内
func (p CrawlParams) InDateRange(start *time.Time) bool {
	if !p.HasDateRange() {
		return true
	}
	if start == nil {
		return false
	}
	if p.StartDate != nil && start.Before(*p.StartDate) {
		return false
	}
	if p.EndDate != nil && start.After(*p.EndDate) {
		return false
	}
	return true
}

// WantsType 未指定类型时抓取全部
func (p CrawlParams) WantsType(t PlaceType) bool {
	if len(p.Types) == 0 {
		return true
	}
	for _, want := range p.Types {
		if want == t {
			return true
		}
	}
	return false
}

// CitySummary 单城市抓取汇总
type CitySummary struct {
	City    string                      `json:"city"`
	Country string                      `json:"country"`
	Results map[PlaceType][]CrawlResult `json:"results"`
	Counts  map[PlaceType]int           `json:"counts"`
	Errors  map[PlaceType]string        `json:"errors,omitempty"`
	Total   int                         `json:"total"`
}

// NewCitySummary 创建空汇总
func NewCitySummary(city, country string) *CitySummary {
	return &CitySummary{
		City:    city,
		Country: country,
		Results: make(map[PlaceType][]CrawlResult),
		Counts:  make(map[PlaceType]int),
		Errors:  make(map[PlaceType]string),
	}
}

// Add 追加某类型的结果
func (s *CitySummary) Add(t PlaceType, results []CrawlResult) {
	s.Results[t] = append(s.Results[t], results...)
	s.Counts[t] = len(s.Results[t])
	s.Total += len(results)
}

// AllResults 按类型顺序展开全部结果
func (s *CitySummary) AllResults() []CrawlResult {
	all := make([]CrawlResult, 0, s.Total)
	for _, t := range AllPlaceTypes {
		all = append(all, s.Results[t]...)
	}
	return all
}

// SaveStats 一次保存的统计
type SaveStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
}

// Saved 成功写入的记录数
func (s SaveStats) Saved() int {
	return s.Inserted + s.Updated
}

// CityResult 单城市抓取并保存的结果
type CityResult struct {
	City     string  `json:"city"`
	Crawled  int     `json:"crawled"`
	Saved    int     `json:"saved"`
	Inserted int     `json:"inserted"`
	Updated  int     `json:"updated"`
	Failed   int     `json:"failed"`
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration"` // 秒
}

// Statistics 持久化存储的聚合统计
type Statistics struct {
	Total       int64            `json:"total"`
	ByType      map[string]int64 `json:"by_type"`
	ByCity      map[string]int64 `json:"by_city"`
	BySource    map[string]int64 `json:"by_source"`
	Last24h     int64            `json:"last_24h"`
	GeneratedAt time.Time        `json:"generated_at"`
}
