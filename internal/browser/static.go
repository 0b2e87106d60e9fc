package browser

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http/cookiejar"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/publicsuffix"
)

// StaticSession 基于 colly 的HTTP会话,不执行JavaScript
type StaticSession struct {
	opts Options

	mu        sync.Mutex
	collector *colly.Collector
	startedAt time.Time

	requests int64
	pages    int64
}

// NewStaticSession 创建静态会话
func NewStaticSession(opts Options) *StaticSession {
	return &StaticSession{opts: opts}
}

// Initialize 创建共享cookie jar的collector
func (s *StaticSession) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collector != nil {
		return nil
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("%w: 创建cookie jar失败: %w", ErrBrowserLaunch, err)
	}

	c := colly.NewCollector(
		colly.UserAgent(s.opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetCookieJar(jar)
	if s.opts.NavigationTimeout > 0 {
		c.SetRequestTimeout(s.opts.NavigationTimeout)
	}

	s.collector = c
	s.startedAt = time.Now()
	utils.Debugf("静态会话已创建 (UA=%s)", s.opts.UserAgent)
	return nil
}

// NewPage 实现 Session 接口
func (s *StaticSession) NewPage(ctx context.Context) (Page, error) {
	s.mu.Lock()
	c := s.collector
	s.mu.Unlock()

	if c == nil {
		return nil, ErrSessionClosed
	}
	atomic.AddInt64(&s.pages, 1)
	return &staticPage{session: s, collector: c.Clone()}, nil
}

// Cleanup 实现 Session 接口
func (s *StaticSession) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collector == nil {
		return
	}
	s.collector = nil
	stats := s.statsLocked()
	utils.Infof("🧹 静态会话已关闭: 请求 %d 次, 页面 %d 个, 耗时 %.1f秒",
		stats.Requests, stats.Pages, stats.Duration.Seconds())
}

// Stats 实现 Session 接口
func (s *StaticSession) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *StaticSession) statsLocked() SessionStats {
	var d time.Duration
	if !s.startedAt.IsZero() {
		d = time.Since(s.startedAt)
	}
	return SessionStats{
		Requests: atomic.LoadInt64(&s.requests),
		Pages:    atomic.LoadInt64(&s.pages),
		Duration: d,
	}
}

// staticPage 单次HTTP抓取的结果
type staticPage struct {
	session   *StaticSession
	collector *colly.Collector

	mu   sync.Mutex
	html string
}

// Navigate 发起GET请求并保存响应体
func (p *staticPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c := p.collector.Clone()
	var (
		body     []byte
		visitErr error
	)

	c.OnRequest(func(r *colly.Request) {
		atomic.AddInt64(&p.session.requests, 1)
		for name, values := range extraHeaders(p.session.opts.Headers) {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
		if p.session.opts.Locale != "" && r.Headers.Get("Accept-Language") == "" {
			r.Headers.Set("Accept-Language", p.session.opts.Locale)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		decoded, err := decompressResponse(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			visitErr = err
			return
		}
		body = decoded
	})
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("HTTP %d: %w", r.StatusCode, err)
	})

	done := make(chan error, 1)
	go func() { done <- c.Visit(url) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("请求失败 [%s]: %w", url, err)
		}
	}
	if visitErr != nil {
		return fmt.Errorf("请求失败 [%s]: %w", url, visitErr)
	}

	p.mu.Lock()
	p.html = string(body)
	p.mu.Unlock()
	return nil
}

// WaitIdle 静态页面没有后续请求
func (p *staticPage) WaitIdle(ctx context.Context, max time.Duration) error {
	return ctx.Err()
}

// HTML 实现 Page 接口
func (p *staticPage) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

// Close 实现 Page 接口
func (p *staticPage) Close() error {
	return nil
}

// decompressResponse 根据Content-Encoding解压响应体
// colly 已自动解压 gzip 时响应头仍保留原值,因此先检查魔数
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return readAll(reader, "gzip")

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return readAll(reader, "deflate")

	case "br":
		return readAll(brotli.NewReader(bytes.NewReader(body)), "brotli")

	case "", "identity":
		return body, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}

func readAll(r io.Reader, name string) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s读取失败: %w", name, err)
	}
	return out, nil
}
