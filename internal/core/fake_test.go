package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/crawlers"
	"github.com/RecoveryAshes/poicrawler/internal/models"
)

var errSourceDown = errors.New("来源不可用")

// fakeExtractor 按城市返回预置结果
type fakeExtractor struct {
	name      string
	placeType models.PlaceType
	results   map[string][]models.CrawlResult
	crawlErr  map[string]error
	initErr   error

	mu       sync.Mutex
	inits    int
	cleanups int
	crawled  []string
}

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) Type() models.PlaceType { return f.placeType }

func (f *fakeExtractor) Initialize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeExtractor) Crawl(ctx context.Context, params models.CrawlParams) ([]models.CrawlResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.crawled = append(f.crawled, params.City)
	f.mu.Unlock()

	if err := f.crawlErr[params.City]; err != nil {
		return nil, err
	}
	return f.results[params.City], nil
}

func (f *fakeExtractor) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
}

// factory 每次返回同一个实例,便于断言调用次数
func (f *fakeExtractor) factory() ExtractorFactory {
	return func() crawlers.Extractor { return f }
}

func makeResults(city string, t models.PlaceType, source string, n int) []models.CrawlResult {
	out := make([]models.CrawlResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.CrawlResult{
			Source: source,
			URL:    fmt.Sprintf("https://%s.example.com/%s/%d", source, city, i),
			Data: models.PlaceData{
				Name:     fmt.Sprintf("%s %s %d", city, t, i),
				Type:     t,
				City:     city,
				Category: "general",
			},
		})
	}
	return out
}

// sleepLog 记录城市间暂停
type sleepLog struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return ctx.Err()
}

var fixedNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
