package crawlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/poicrawler/internal/browser"
	"github.com/RecoveryAshes/poicrawler/internal/utils"
)

// PageProcessor 在独立页面上处理单个URL
type PageProcessor[T any] func(ctx context.Context, page browser.Page, url string) (T, error)

// BatchProcess 分块并发处理URL列表
// 每块最多 concurrency 个页面同时打开,块内全部结束后才开始下一块;
// 单个URL失败只记录日志,返回值保持成功项的输入顺序
func BatchProcess[T any](ctx context.Context, e *Engine, urls []string, concurrency int, process PageProcessor[T]) []T {
	if len(urls) == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = e.config.MaxConcurrency
	}
	concurrency = e.monitor.ClampConcurrency(concurrency)

	type slot struct {
		value T
		ok    bool
	}
	slots := make([]slot, len(urls))

	for start := 0; start < len(urls); start += concurrency {
		if ctx.Err() != nil {
			utils.Warnf("批处理已取消,剩余 %d 个URL未处理", len(urls)-start)
			break
		}

		end := start + concurrency
		if end > len(urls) {
			end = len(urls)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				value, err := processOne(ctx, e, urls[i], process)
				if err != nil {
					utils.Warnf("处理失败 [%s]: %v", urls[i], err)
					return
				}
				slots[i] = slot{value: value, ok: true}
			}(i)
		}
		wg.Wait()
	}

	results := make([]T, 0, len(urls))
	for _, s := range slots {
		if s.ok {
			results = append(results, s.value)
		}
	}
	utils.Debugf("[%s] 批处理完成: 成功 %d/%d", e.name, len(results), len(urls))
	return results
}

func processOne[T any](ctx context.Context, e *Engine, url string, process PageProcessor[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("处理器panic: %v", r)
		}
	}()

	page, err := e.CreatePage(ctx)
	if err != nil {
		return value, err
	}
	defer page.Close()

	return process(ctx, page, url)
}
