package crawlers

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源监控器
// 职责: 根据可用内存和CPU负载,限制批处理同时打开的页面数
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 采样函数,测试时可替换
	virtualMemory func() (*mem.VirtualMemoryStat, error)
	cpuPercent    func() (float64, error)

	// 缓存的计算结果,每秒刷新一次
	cachedMax     int
	lastCacheTime time.Time
	cacheMu       sync.Mutex
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	CPULoadThreshold    int   // CPU负载阈值(%),>= 200 视为禁用
	MaxPagesLimit       int   // 绝对最大页面数
	PageMemoryUsage     int64 // 单个页面平均内存消耗(字节)
}

// MemoryStatus 内存状态信息
type MemoryStatus struct {
	TotalMemory     uint64
	AvailableMemory int64
	MemoryPressure  string
}

// DefaultResourceMonitorConfig 默认资源配置
func DefaultResourceMonitorConfig() ResourceMonitorConfig {
	return ResourceMonitorConfig{
		SafetyReserveMemory: 512 * 1024 * 1024,
		CPULoadThreshold:    85,
		MaxPagesLimit:       8,
		PageMemoryUsage:     100 * 1024 * 1024,
	}
}

// NewResourceMonitor 创建资源监控器实例
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.PageMemoryUsage <= 0 {
		config.PageMemoryUsage = 100 * 1024 * 1024 // 100MB
	}
	if config.MaxPagesLimit <= 0 {
		config.MaxPagesLimit = 8
	}

	return &ResourceMonitor{
		config:        config,
		virtualMemory: mem.VirtualMemory,
		cpuPercent:    sampleCPU,
	}
}

// sampleCPU 100毫秒采样所有核心的平均使用率
func sampleCPU() (float64, error) {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("CPU使用率数据为空")
	}
	return percentages[0], nil
}

// CalculateMaxPages 计算当前允许同时打开的页面数上限
func (rm *ResourceMonitor) CalculateMaxPages() int {
	rm.cacheMu.Lock()
	defer rm.cacheMu.Unlock()

	if time.Since(rm.lastCacheTime) < time.Second && rm.cachedMax > 0 {
		return rm.cachedMax
	}

	result := rm.config.MaxPagesLimit
	if byMemory := rm.maxPagesByMemory(); byMemory < result {
		result = byMemory
	}
	if byCPU := runtime.NumCPU(); byCPU < result {
		result = byCPU
	}

	if rm.config.CPULoadThreshold < 200 {
		usage, err := rm.cpuPercent()
		if err != nil {
			log.Warn().Err(err).Msg("获取CPU使用率失败")
		} else if usage > float64(rm.config.CPULoadThreshold) {
			result /= 2
			log.Warn().Msgf("CPU负载过高(当前%.1f%%),页面上限减半", usage)
		}
	}

	if result < 1 {
		result = 1
	}

	rm.cachedMax = result
	rm.lastCacheTime = time.Now()
	return result
}

// maxPagesByMemory 可用内存扣除安全保留后能容纳的页面数
func (rm *ResourceMonitor) maxPagesByMemory() int {
	status := rm.GetMemoryStatus()
	surplus := status.AvailableMemory - rm.config.SafetyReserveMemory
	if surplus <= 0 {
		log.Warn().Msgf("可用内存不足(当前%dMB),页面数限制为1", status.AvailableMemory/(1024*1024))
		return 1
	}
	n := int(surplus / rm.config.PageMemoryUsage)
	if n < 1 {
		n = 1
	}
	return n
}

// GetMemoryStatus 获取当前内存状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	vm, err := rm.virtualMemory()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,使用默认值")
		vm = &mem.VirtualMemoryStat{Total: 4 << 30, Available: 2 << 30}
	}

	available := int64(vm.Available)
	availableMB := available / (1024 * 1024)

	var pressure string
	switch {
	case availableMB < 200:
		pressure = "emergency"
	case availableMB < 300:
		pressure = "critical"
	case availableMB < 500:
		pressure = "warning"
	default:
		pressure = "normal"
	}

	return MemoryStatus{
		TotalMemory:     vm.Total,
		AvailableMemory: available,
		MemoryPressure:  pressure,
	}
}

// ClampConcurrency 将请求的并发数限制在资源允许的范围内
func (rm *ResourceMonitor) ClampConcurrency(requested int) int {
	if requested < 1 {
		requested = 1
	}
	if rm == nil {
		return requested
	}
	if limit := rm.CalculateMaxPages(); limit < requested {
		log.Debug().Msgf("资源受限,并发数 %d -> %d", requested, limit)
		return limit
	}
	return requested
}
