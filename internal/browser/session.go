// Package browser 管理抓取用的浏览器会话
//
// 一个会话对应一个浏览器进程和一个隔离的浏览上下文,页面由会话统一创建。
// 动态模式使用 go-rod 驱动无头 Chromium,静态模式使用 colly 直接发起HTTP请求,
// 两者对上层暴露相同的 Session/Page 接口。
package browser

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/RecoveryAshes/poicrawler/internal/utils"
)

var (
	// ErrBrowserLaunch 浏览器启动或连接失败
	ErrBrowserLaunch = errors.New("浏览器启动失败")
	// ErrSessionClosed 会话未初始化或已清理
	ErrSessionClosed = errors.New("浏览器会话未初始化或已关闭")
)

// Session 浏览器会话
type Session interface {
	// Initialize 启动浏览器并创建浏览上下文,失败时返回 ErrBrowserLaunch
	Initialize(ctx context.Context) error
	// NewPage 在会话上下文中创建新页面
	NewPage(ctx context.Context) (Page, error)
	// Cleanup 关闭上下文和进程,可重复调用,错误只记录日志
	Cleanup()
	// Stats 会话统计
	Stats() SessionStats
}

// Page 单个页面
type Page interface {
	// Navigate 导航到URL,DOM解析完成后返回
	Navigate(ctx context.Context, url string) error
	// WaitIdle 等待网络空闲,最多等待 max
	WaitIdle(ctx context.Context, max time.Duration) error
	// HTML 当前页面的完整HTML
	HTML() (string, error)
	// Close 关闭页面
	Close() error
}

// SessionStats 会话统计
type SessionStats struct {
	Requests int64         `json:"requests"`
	Blocked  int64         `json:"blocked"`
	Pages    int64         `json:"pages"`
	Duration time.Duration `json:"duration"`
}

// Options 会话参数
type Options struct {
	UserAgent         string
	Headless          bool
	NavigationTimeout time.Duration
	Locale            string
	Timezone          string
	ViewportWidth     int
	ViewportHeight    int
	Headers           models.HeaderProvider
}

// OptionsFromConfig 从引擎配置构造会话参数
func OptionsFromConfig(cfg models.CrawlerConfig, headers models.HeaderProvider) Options {
	return Options{
		UserAgent:         cfg.UserAgent,
		Headless:          cfg.Headless,
		NavigationTimeout: cfg.NavigationTimeout,
		Locale:            cfg.Locale,
		Timezone:          cfg.Timezone,
		ViewportWidth:     1366,
		ViewportHeight:    768,
		Headers:           headers,
	}
}

// New 按模式创建会话
func New(mode models.BrowserMode, opts Options) Session {
	if mode == models.ModeStatic {
		return NewStaticSession(opts)
	}
	return NewRodSession(opts)
}

// extraHeaders 读取额外请求头,失败时只记录警告
func extraHeaders(provider models.HeaderProvider) http.Header {
	if provider == nil {
		return nil
	}
	headers, err := provider.GetHeaders()
	if err != nil {
		utils.Warnf("获取HTTP头部失败: %v", err)
		return nil
	}
	return headers
}
