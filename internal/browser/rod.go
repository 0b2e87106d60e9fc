package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// blockedResourceTypes 不影响内容提取的资源类型,直接拦截
var blockedResourceTypes = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeImage:      true,
	proto.NetworkResourceTypeStylesheet: true,
	proto.NetworkResourceTypeFont:       true,
	proto.NetworkResourceTypeMedia:      true,
}

// shouldBlock 判断资源是否需要拦截
func shouldBlock(t proto.NetworkResourceType) bool {
	return blockedResourceTypes[t]
}

// RodSession 基于 go-rod 的无头浏览器会话
type RodSession struct {
	opts Options

	mu        sync.Mutex
	launcher  *launcher.Launcher
	browser   *rod.Browser
	incognito *rod.Browser
	closed    bool
	startedAt time.Time

	requests int64
	blocked  int64
	pages    int64
}

// NewRodSession 创建会话,调用 Initialize 后才可用
func NewRodSession(opts Options) *RodSession {
	return &RodSession{opts: opts}
}

// Initialize 启动浏览器进程并创建隐身上下文
func (s *RodSession) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.incognito != nil {
		return nil
	}
	s.closed = false
	s.startedAt = time.Now()

	l := launcher.New().
		Context(ctx).
		Headless(s.opts.Headless).
		Set("ignore-certificate-errors").
		Set("disable-blink-features", "AutomationControlled")
	s.launcher = l

	controlURL, err := l.Launch()
	if err != nil {
		s.cleanupLocked()
		return fmt.Errorf("%w: %w", ErrBrowserLaunch, err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		s.cleanupLocked()
		return fmt.Errorf("%w: 连接浏览器失败: %w", ErrBrowserLaunch, err)
	}
	s.browser = b

	incognito, err := b.Incognito()
	if err != nil {
		s.cleanupLocked()
		return fmt.Errorf("%w: 创建隐身上下文失败: %w", ErrBrowserLaunch, err)
	}
	s.incognito = incognito

	utils.Debugf("浏览器已启动: %s (headless=%v)", controlURL, s.opts.Headless)
	return nil
}

// NewPage 创建带反检测脚本的页面,并拦截图片/样式/字体/媒体请求
func (s *RodSession) NewPage(ctx context.Context) (Page, error) {
	s.mu.Lock()
	incognito := s.incognito
	s.mu.Unlock()

	if incognito == nil {
		return nil, ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := stealth.Page(incognito)
	if err != nil {
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}

	if err := s.configurePage(page); err != nil {
		_ = page.Close()
		return nil, err
	}

	router := page.HijackRequests()
	if err := router.Add("*", "", s.hijack); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("设置请求拦截失败: %w", err)
	}
	go router.Run()

	atomic.AddInt64(&s.pages, 1)
	return &rodPage{page: page, router: router, timeout: s.opts.NavigationTimeout}, nil
}

// configurePage 设置UA、视口、时区、语言和额外请求头
func (s *RodSession) configurePage(page *rod.Page) error {
	if s.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      s.opts.UserAgent,
			AcceptLanguage: s.opts.Locale,
		}); err != nil {
			return fmt.Errorf("设置User-Agent失败: %w", err)
		}
	}

	if s.opts.ViewportWidth > 0 && s.opts.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             s.opts.ViewportWidth,
			Height:            s.opts.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			return fmt.Errorf("设置视口失败: %w", err)
		}
	}

	if s.opts.Timezone != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: s.opts.Timezone}).Call(page); err != nil {
			utils.Warnf("设置时区失败 [%s]: %v", s.opts.Timezone, err)
		}
	}
	if s.opts.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: s.opts.Locale}).Call(page); err != nil {
			utils.Warnf("设置语言失败 [%s]: %v", s.opts.Locale, err)
		}
	}

	var dict []string
	for name, values := range extraHeaders(s.opts.Headers) {
		// UA和压缩协商由浏览器自身处理
		if name == "User-Agent" || name == "Accept-Encoding" || len(values) == 0 {
			continue
		}
		dict = append(dict, name, values[0])
	}
	if len(dict) > 0 {
		if _, err := page.SetExtraHeaders(dict); err != nil {
			return fmt.Errorf("设置额外请求头失败: %w", err)
		}
	}
	return nil
}

// hijack 统计请求数并拦截无用资源
func (s *RodSession) hijack(h *rod.Hijack) {
	atomic.AddInt64(&s.requests, 1)
	if shouldBlock(h.Request.Type()) {
		atomic.AddInt64(&s.blocked, 1)
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		return
	}
	h.ContinueRequest(&proto.FetchContinueRequest{})
}

// Cleanup 先关闭隐身上下文再关闭进程
func (s *RodSession) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.cleanupLocked()

	stats := s.statsLocked()
	utils.Infof("🧹 浏览器会话已关闭: 请求 %d 次 (拦截 %d), 页面 %d 个, 耗时 %.1f秒",
		stats.Requests, stats.Blocked, stats.Pages, stats.Duration.Seconds())
}

func (s *RodSession) cleanupLocked() {
	if s.incognito != nil {
		if err := s.incognito.Close(); err != nil {
			utils.Debugf("关闭隐身上下文失败: %v", err)
		}
		s.incognito = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			utils.Debugf("关闭浏览器失败: %v", err)
		}
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
		s.launcher = nil
	}
	s.closed = true
}

// Stats 实现 Session 接口
func (s *RodSession) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *RodSession) statsLocked() SessionStats {
	var d time.Duration
	if !s.startedAt.IsZero() {
		d = time.Since(s.startedAt)
	}
	return SessionStats{
		Requests: atomic.LoadInt64(&s.requests),
		Blocked:  atomic.LoadInt64(&s.blocked),
		Pages:    atomic.LoadInt64(&s.pages),
		Duration: d,
	}
}

// rodPage go-rod 页面
type rodPage struct {
	page    *rod.Page
	router  *rod.HijackRouter
	timeout time.Duration
}

// Navigate 等待 DOMContentLoaded 后返回
func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if p.timeout > 0 {
		pg = pg.Timeout(p.timeout)
		defer pg.CancelTimeout()
	}

	wait := pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", url, err)
	}
	wait()

	if err := pg.GetContext().Err(); err != nil {
		return fmt.Errorf("等待DOM加载超时 [%s]: %w", url, err)
	}
	return nil
}

// WaitIdle 等待页面空闲,超时返回错误
func (p *rodPage) WaitIdle(ctx context.Context, max time.Duration) error {
	pg := p.page.Context(ctx).Timeout(max)
	defer pg.CancelTimeout()
	return pg.WaitIdle(max)
}

// HTML 实现 Page 接口
func (p *rodPage) HTML() (string, error) {
	return p.page.HTML()
}

// Close 停止拦截并关闭页面
func (p *rodPage) Close() error {
	if p.router != nil {
		_ = p.router.Stop()
	}
	return p.page.Close()
}
