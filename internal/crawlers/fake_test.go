package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/browser"
	"github.com/RecoveryAshes/poicrawler/internal/cache"
	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var errConnectionReset = errors.New("net::ERR_CONNECTION_RESET")

// fakeSession 内存中的浏览器会话,按URL返回预置HTML
type fakeSession struct {
	mu          sync.Mutex
	pages       map[string]string
	failures    map[string]int
	navigations map[string]int
	initErr     error
	initialized bool
	open        int
	maxOpen     int
}

func newFakeSession(pages map[string]string) *fakeSession {
	if pages == nil {
		pages = map[string]string{}
	}
	return &fakeSession{
		pages:       pages,
		failures:    map[string]int{},
		navigations: map[string]int{},
	}
}

func (s *fakeSession) Initialize(ctx context.Context) error {
	if s.initErr != nil {
		return fmt.Errorf("%w: %w", browser.ErrBrowserLaunch, s.initErr)
	}
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) NewPage(ctx context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, browser.ErrSessionClosed
	}
	s.open++
	if s.open > s.maxOpen {
		s.maxOpen = s.open
	}
	return &fakePage{session: s}, nil
}

func (s *fakeSession) Cleanup() {
	s.mu.Lock()
	s.initialized = false
	s.mu.Unlock()
}

func (s *fakeSession) Stats() browser.SessionStats {
	return browser.SessionStats{}
}

func (s *fakeSession) navCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigations[url]
}

type fakePage struct {
	session *fakeSession
	html    string
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	s := p.session
	s.mu.Lock()
	defer s.mu.Unlock()

	s.navigations[url]++
	if s.failures[url] > 0 {
		s.failures[url]--
		return errConnectionReset
	}
	html, ok := s.pages[url]
	if !ok {
		return fmt.Errorf("HTTP 404: %s", url)
	}
	p.html = html
	return nil
}

func (p *fakePage) WaitIdle(ctx context.Context, max time.Duration) error { return nil }

func (p *fakePage) HTML() (string, error) { return p.html, nil }

func (p *fakePage) Close() error {
	p.session.mu.Lock()
	p.session.open--
	p.session.mu.Unlock()
	return nil
}

// sleepRecorder 记录退避时长而不真正等待
type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	r.mu.Unlock()
	return ctx.Err()
}

func testCrawlerConfig() models.CrawlerConfig {
	cfg := models.DefaultCrawlerConfig()
	cfg.RequestsPerSecond = 1000
	cfg.RetryAttempts = 0
	cfg.RetryDelay = time.Second
	cfg.RespectRobotsTxt = false
	cfg.SettleDelay = 0
	return cfg
}

var fixedNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg models.CrawlerConfig, session browser.Session, store cache.Store, opts ...EngineOption) (*Engine, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	opts = append([]EngineOption{WithSleeper(rec.sleep), WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEngine("test", cfg, session, store, opts...), rec
}

func newRedisCache(t *testing.T) (*cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisStore(client), mr
}

// brokenCache 总是返回错误的缓存
type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (brokenCache) SetWithExpiry(context.Context, string, time.Duration, string) error {
	return errors.New("connection refused")
}
