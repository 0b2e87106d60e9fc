// Package metrics 导出抓取过程的 Prometheus 指标
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "poicrawler"

// 导航结果标签
const (
	ResultSuccess    = "success"
	ResultFailure    = "failure"
	ResultDisallowed = "disallowed"
)

// Metrics 抓取指标,nil 接收者上的方法均为空操作
type Metrics struct {
	registry *prometheus.Registry

	Navigations  *prometheus.CounterVec
	Retries      prometheus.Counter
	CacheLookups *prometheus.CounterVec
	Extracted    *prometheus.CounterVec
	Saves        *prometheus.CounterVec
	CityDuration prometheus.Histogram
}

// New 在独立的 registry 上注册全部指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Navigations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      "Page navigations by result.",
		}, []string{"result"}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigation_retries_total",
			Help:      "Navigation retry attempts.",
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Crawl cache lookups by result.",
		}, []string{"result"}),
		Extracted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extracted_results_total",
			Help:      "Normalized crawl results by source.",
		}, []string{"source"}),
		Saves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Persisted records by outcome.",
		}, []string{"outcome"}),
		CityDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "city_crawl_duration_seconds",
			Help:      "Wall-clock duration of crawl-and-save per city.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		}),
	}
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveNavigation 记录一次导航结果
func (m *Metrics) ObserveNavigation(result string) {
	if m == nil {
		return
	}
	m.Navigations.WithLabelValues(result).Inc()
}

// ObserveRetry 记录一次重试
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// ObserveCache 记录缓存命中情况
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// ObserveExtracted 记录某来源提取到的结果数
func (m *Metrics) ObserveExtracted(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Extracted.WithLabelValues(source).Add(float64(n))
}

// ObserveSave 记录保存结果 (inserted/updated/failed)
func (m *Metrics) ObserveSave(outcome string) {
	if m == nil {
		return
	}
	m.Saves.WithLabelValues(outcome).Inc()
}

// ObserveCity 记录单城市耗时
func (m *Metrics) ObserveCity(d time.Duration) {
	if m == nil {
		return
	}
	m.CityDuration.Observe(d.Seconds())
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 在 addr 上暴露 /metrics,ctx 结束时关闭
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	utils.Infof("📈 指标服务已启动: http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
