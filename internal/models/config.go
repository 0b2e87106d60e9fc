package models

import (
	"fmt"
	"time"
)

// BrowserMode 页面获取模式
type BrowserMode string

const (
	ModeDynamic BrowserMode = "dynamic" // 无头浏览器渲染
	ModeStatic  BrowserMode = "static"  // 纯HTTP抓取,不执行JS
)

// DefaultUserAgent 默认浏览器UA
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/124.0.0.0 Safari/537.36"

// CrawlerConfig 爬虫引擎配置,构造后只读
type CrawlerConfig struct {
	UserAgent         string        `json:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64       `json:"requests_per_second" mapstructure:"rate_limit"`
	MaxConcurrency    int           `json:"max_concurrency" mapstructure:"max_concurrency"`
	NavigationTimeout time.Duration `json:"navigation_timeout" mapstructure:"timeout"`
	RetryAttempts     int           `json:"retry_attempts" mapstructure:"retry_attempts"`
	RetryDelay        time.Duration `json:"retry_delay" mapstructure:"retry_delay"`
	RespectRobotsTxt  bool          `json:"respect_robots_txt" mapstructure:"respect_robots"`

	// 提取器调优参数
	SettleDelay            time.Duration `json:"settle_delay" mapstructure:"settle_delay"`
	IdleTimeout            time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	MaxCardsPerPage        int           `json:"max_cards_per_page" mapstructure:"max_cards_per_page"`
	EventCacheTTL          time.Duration `json:"event_cache_ttl" mapstructure:"event_cache_ttl"`
	AttractionCacheTTL     time.Duration `json:"attraction_cache_ttl" mapstructure:"attraction_cache_ttl"`
	AllowSyntheticFallback bool          `json:"allow_synthetic_fallback" mapstructure:"allow_synthetic_fallback"`
	FallbackCities         []string      `json:"fallback_cities" mapstructure:"fallback_cities"`
	EnrichDetails          bool          `json:"enrich_details" mapstructure:"enrich_details"`
	MaxDetailPages         int           `json:"max_detail_pages" mapstructure:"max_detail_pages"`

	// 浏览器参数
	Mode     BrowserMode `json:"mode" mapstructure:"mode"`
	Headless bool        `json:"headless" mapstructure:"headless"`
	Locale   string      `json:"locale" mapstructure:"locale"`
	Timezone string      `json:"timezone" mapstructure:"timezone"`
}

// DefaultCrawlerConfig 返回硬编码默认配置
func DefaultCrawlerConfig() CrawlerConfig {
	return CrawlerConfig{
		UserAgent:          DefaultUserAgent,
		RequestsPerSecond:  1,
		MaxConcurrency:     3,
		NavigationTimeout:  30 * time.Second,
		RetryAttempts:      3,
		RetryDelay:         2 * time.Second,
		RespectRobotsTxt:   true,
		SettleDelay:        2 * time.Second,
		IdleTimeout:        5 * time.Second,
		MaxCardsPerPage:    15,
		EventCacheTTL:      12 * time.Hour,
		AttractionCacheTTL: 24 * time.Hour,
		FallbackCities:     []string{"mumbai", "delhi", "bangalore", "goa"},
		MaxDetailPages:     10,
		Mode:               ModeDynamic,
		Headless:           true,
		Locale:             "en-IN",
		Timezone:           "Asia/Kolkata",
	}
}

// Validate 验证配置
func (c *CrawlerConfig) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("请求速率必须大于0,当前值: %.2f", c.RequestsPerSecond)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("最大并发数必须大于0,当前值: %d", c.MaxConcurrency)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("重试次数不能为负数,当前值: %d", c.RetryAttempts)
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("导航超时必须大于0")
	}
	if c.MaxCardsPerPage < 0 {
		return fmt.Errorf("单页卡片上限不能为负数")
	}
	switch c.Mode {
	case ModeDynamic, ModeStatic, "":
	default:
		return fmt.Errorf("无效的抓取模式: %s (有效值: dynamic, static)", c.Mode)
	}
	return nil
}

// IsFallbackCity 判断城市是否允许使用内置示例数据
func (c *CrawlerConfig) IsFallbackCity(city string) bool {
	for _, fc := range c.FallbackCities {
		if Slugify(fc) == Slugify(city) {
			return true
		}
	}
	return false
}
