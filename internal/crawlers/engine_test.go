package crawlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/browser"
	"github.com/RecoveryAshes/poicrawler/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEngine_StateMachine(t *testing.T) {
	session := newFakeSession(nil)
	engine, _ := newTestEngine(t, testCrawlerConfig(), session, nil)
	ctx := context.Background()

	if engine.State() != StateUninitialized {
		t.Fatalf("期望初始状态 uninitialized, 得到 %s", engine.State())
	}
	if _, err := engine.CreatePage(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("初始化前创建页面应返回 ErrNotInitialized, 得到 %v", err)
	}

	if err := engine.Initialize(ctx); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	if engine.State() != StateInitialized {
		t.Errorf("期望 initialized, 得到 %s", engine.State())
	}

	page, err := engine.CreatePage(ctx)
	if err != nil {
		t.Fatalf("创建页面失败: %v", err)
	}
	_ = page.Close()
	if engine.State() != StateCrawling {
		t.Errorf("期望 crawling, 得到 %s", engine.State())
	}

	engine.Cleanup()
	engine.Cleanup()
	if engine.State() != StateCleanedUp {
		t.Errorf("期望 cleaned_up, 得到 %s", engine.State())
	}
	if _, err := engine.CreatePage(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("清理后创建页面应返回 ErrNotInitialized, 得到 %v", err)
	}
}

func TestEngine_InitializeFailure(t *testing.T) {
	session := newFakeSession(nil)
	session.initErr = errors.New("chromium not found")
	engine, _ := newTestEngine(t, testCrawlerConfig(), session, nil)

	err := engine.Initialize(context.Background())
	if !errors.Is(err, browser.ErrBrowserLaunch) {
		t.Errorf("期望 ErrBrowserLaunch, 得到 %v", err)
	}
	if engine.State() != StateUninitialized {
		t.Errorf("初始化失败后状态应保持 uninitialized, 得到 %s", engine.State())
	}
}

func TestEngine_NavigateWithRetry(t *testing.T) {
	const target = "https://allevents.in/mumbai/all"

	tests := []struct {
		name       string
		retries    int
		failures   int
		wantErr    bool
		wantNavs   int
		wantSleeps []time.Duration
	}{
		{"首次成功", 3, 0, false, 1, nil},
		{"两次失败后成功", 3, 2, false, 3, []time.Duration{time.Second, 2 * time.Second}},
		{"重试耗尽", 3, 10, true, 4, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}},
		{"不重试", 0, 10, true, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testCrawlerConfig()
			cfg.RetryAttempts = tt.retries

			session := newFakeSession(map[string]string{target: "<html></html>"})
			session.failures[target] = tt.failures

			m := metrics.New()
			engine, rec := newTestEngine(t, cfg, session, nil, WithMetrics(m))
			ctx := context.Background()
			if err := engine.Initialize(ctx); err != nil {
				t.Fatalf("初始化失败: %v", err)
			}
			page, _ := engine.CreatePage(ctx)
			defer page.Close()

			err := engine.NavigateWithRetry(ctx, page, target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("期望错误 %v, 得到 %v", tt.wantErr, err)
			}
			if tt.wantErr && !errors.Is(err, ErrNavigationFailed) {
				t.Errorf("期望 ErrNavigationFailed, 得到 %v", err)
			}
			if got := session.navCount(target); got != tt.wantNavs {
				t.Errorf("期望导航 %d 次, 得到 %d", tt.wantNavs, got)
			}
			if len(rec.calls) != len(tt.wantSleeps) {
				t.Fatalf("期望退避 %v, 得到 %v", tt.wantSleeps, rec.calls)
			}
			for i, d := range tt.wantSleeps {
				if rec.calls[i] != d {
					t.Errorf("第 %d 次退避: 期望 %v, 得到 %v", i+1, d, rec.calls[i])
				}
			}
			if got := testutil.ToFloat64(m.Retries); int(got) != len(tt.wantSleeps) {
				t.Errorf("重试指标: 期望 %d, 得到 %v", len(tt.wantSleeps), got)
			}
		})
	}
}

func TestEngine_NavigateCancelled(t *testing.T) {
	const target = "https://insider.in/all-events-in-goa"
	cfg := testCrawlerConfig()
	cfg.RetryAttempts = 3

	session := newFakeSession(map[string]string{target: "<html></html>"})
	engine, _ := newTestEngine(t, cfg, session, nil)
	if err := engine.Initialize(context.Background()); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	page, _ := engine.CreatePage(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := engine.NavigateWithRetry(ctx, page, target); !errors.Is(err, context.Canceled) {
		t.Errorf("期望 context.Canceled, 得到 %v", err)
	}
	if got := session.navCount(target); got != 0 {
		t.Errorf("取消后不应导航, 得到 %d 次", got)
	}
}

func TestEngine_RobotsDisallow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	allowed := server.URL + "/events"
	blocked := server.URL + "/private/events"
	session := newFakeSession(map[string]string{allowed: "<html></html>", blocked: "<html></html>"})

	cfg := testCrawlerConfig()
	engine, _ := newTestEngine(t, cfg, session, nil,
		WithRobotsChecker(NewRobotsChecker(server.Client(), "poicrawler")))
	ctx := context.Background()
	_ = engine.Initialize(ctx)
	page, _ := engine.CreatePage(ctx)

	if err := engine.NavigateWithRetry(ctx, page, blocked); !errors.Is(err, ErrDisallowedByRobots) {
		t.Errorf("期望 ErrDisallowedByRobots, 得到 %v", err)
	}
	if got := session.navCount(blocked); got != 0 {
		t.Errorf("被禁止的URL不应导航, 得到 %d 次", got)
	}
	if err := engine.NavigateWithRetry(ctx, page, allowed); err != nil {
		t.Errorf("允许的URL导航失败: %v", err)
	}
}

func TestEngine_Cache(t *testing.T) {
	store, mr := newRedisCache(t)
	engine, _ := newTestEngine(t, testCrawlerConfig(), newFakeSession(nil), store)
	ctx := context.Background()
	const target = "https://www.holidify.com/places/goa/sightseeing-and-things-to-do.html"

	if engine.IsCached(ctx, target) {
		t.Fatal("未写入前不应命中缓存")
	}

	engine.MarkAsCrawled(ctx, target, time.Hour)
	if !engine.IsCached(ctx, target) {
		t.Fatal("写入后应命中缓存")
	}
	value, err := mr.Get(CacheKey(target))
	if err != nil {
		t.Fatalf("读取缓存值失败: %v", err)
	}
	if value != fixedNow.Format(time.RFC3339) {
		t.Errorf("缓存值应为抓取时间, 得到 %s", value)
	}

	mr.FastForward(2 * time.Hour)
	if engine.IsCached(ctx, target) {
		t.Error("过期后不应命中缓存")
	}
}

func TestEngine_CacheUnavailable(t *testing.T) {
	engine, _ := newTestEngine(t, testCrawlerConfig(), newFakeSession(nil), brokenCache{})
	ctx := context.Background()

	engine.MarkAsCrawled(ctx, "https://allevents.in/goa/all", time.Hour)
	if engine.IsCached(ctx, "https://allevents.in/goa/all") {
		t.Error("缓存不可用时应视为未命中")
	}
}

func TestCacheKey(t *testing.T) {
	key := CacheKey("https://allevents.in/mumbai/all")
	if !strings.HasPrefix(key, CacheKeyPrefix) {
		t.Errorf("缓存键缺少前缀: %s", key)
	}
	if got := len(strings.TrimPrefix(key, CacheKeyPrefix)); got != 32 {
		t.Errorf("期望32位哈希, 得到 %d", got)
	}
	if key != CacheKey("https://allevents.in/mumbai/all") {
		t.Error("相同URL的缓存键应一致")
	}
	if key == CacheKey("https://allevents.in/delhi/all") {
		t.Error("不同URL的缓存键不应相同")
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(20)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("等待失败: %v", err)
		}
	}
	elapsed := time.Since(start)

	// 容量为1的令牌桶: 首个请求立即放行,其余每个间隔50ms
	if elapsed < 180*time.Millisecond {
		t.Errorf("5次请求耗时过短: %v", elapsed)
	}
	if limiter.Requests() != 5 {
		t.Errorf("期望请求数 5, 得到 %d", limiter.Requests())
	}
}

func TestRateLimiter_Cancelled(t *testing.T) {
	limiter := NewRateLimiter(0.1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_ = limiter.Wait(ctx)
	if err := limiter.Wait(ctx); err == nil {
		t.Error("超过ctx期限的等待应返回错误")
	}
}
