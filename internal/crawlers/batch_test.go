package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/browser"
)

func batchURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://www.thrillophilia.com/attractions/%d", i)
	}
	return urls
}

func initializedEngine(t *testing.T, session *fakeSession) *Engine {
	t.Helper()
	engine, _ := newTestEngine(t, testCrawlerConfig(), session, nil)
	if err := engine.Initialize(context.Background()); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	t.Cleanup(engine.Cleanup)
	return engine
}

func TestBatchProcess_ConcurrencyBound(t *testing.T) {
	session := newFakeSession(nil)
	engine := initializedEngine(t, session)
	urls := batchURLs(10)

	var inFlight, maxInFlight int32
	results := BatchProcess(context.Background(), engine, urls, 3,
		func(ctx context.Context, page browser.Page, url string) (string, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxInFlight)
				if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return url, nil
		})

	if maxInFlight > 3 {
		t.Errorf("同时处理数不应超过3, 得到 %d", maxInFlight)
	}
	if session.maxOpen > 3 {
		t.Errorf("同时打开页面数不应超过3, 得到 %d", session.maxOpen)
	}
	if len(results) != len(urls) {
		t.Fatalf("期望 %d 个结果, 得到 %d", len(urls), len(results))
	}
	for i, r := range results {
		if r != urls[i] {
			t.Errorf("结果顺序错误: 位置 %d 期望 %s, 得到 %s", i, urls[i], r)
		}
	}
	if session.open != 0 {
		t.Errorf("处理完成后页面应全部关闭, 剩余 %d", session.open)
	}
}

func TestBatchProcess_PartialFailure(t *testing.T) {
	engine := initializedEngine(t, newFakeSession(nil))
	urls := batchURLs(6)

	results := BatchProcess(context.Background(), engine, urls, 2,
		func(ctx context.Context, page browser.Page, url string) (string, error) {
			switch url {
			case urls[1]:
				return "", errors.New("详情页解析失败")
			case urls[4]:
				panic("意外的页面结构")
			}
			return url, nil
		})

	want := []string{urls[0], urls[2], urls[3], urls[5]}
	if len(results) != len(want) {
		t.Fatalf("期望 %d 个成功结果, 得到 %d: %v", len(want), len(results), results)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("位置 %d: 期望 %s, 得到 %s", i, want[i], results[i])
		}
	}
}

func TestBatchProcess_NotInitialized(t *testing.T) {
	engine, _ := newTestEngine(t, testCrawlerConfig(), newFakeSession(nil), nil)

	results := BatchProcess(context.Background(), engine, batchURLs(3), 2,
		func(ctx context.Context, page browser.Page, url string) (string, error) {
			return url, nil
		})
	if len(results) != 0 {
		t.Errorf("未初始化时不应有结果, 得到 %v", results)
	}
}

func TestBatchProcess_Cancelled(t *testing.T) {
	engine := initializedEngine(t, newFakeSession(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	results := BatchProcess(ctx, engine, batchURLs(5), 2,
		func(ctx context.Context, page browser.Page, url string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return url, nil
		})
	if len(results) != 0 || calls != 0 {
		t.Errorf("取消后不应处理任何URL, 结果 %d, 调用 %d", len(results), calls)
	}
}

func TestBatchProcess_ResourceClamp(t *testing.T) {
	session := newFakeSession(nil)
	monitor := NewResourceMonitor(ResourceMonitorConfig{MaxPagesLimit: 1, CPULoadThreshold: 200})
	engine, _ := newTestEngine(t, testCrawlerConfig(), session, nil, WithResourceMonitor(monitor))
	_ = engine.Initialize(context.Background())

	results := BatchProcess(context.Background(), engine, batchURLs(4), 4,
		func(ctx context.Context, page browser.Page, url string) (string, error) {
			time.Sleep(5 * time.Millisecond)
			return url, nil
		})
	if len(results) != 4 {
		t.Fatalf("期望 4 个结果, 得到 %d", len(results))
	}
	if session.maxOpen != 1 {
		t.Errorf("资源上限为1时应串行处理, 最大同时打开 %d", session.maxOpen)
	}
}
