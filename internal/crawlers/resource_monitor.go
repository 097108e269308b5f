package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/efalkenberg/simplecrawler/internal/models"
	"github.com/efalkenberg/simplecrawler/internal/utils"
)

// 单个浏览器标签页的平均内存消耗估算值
const tabMemoryUsage = 100 * 1024 * 1024 // 100MB

// ResourceMonitor 系统资源监控器
// 职责: 实时监控内存和CPU,计算标签页上限,实施渐进式降级策略
type ResourceMonitor struct {
	// 内存安全预留(字节)
	safetyReserve int64

	// 可用内存低于该值时限制标签页创建(字节)
	// 由配置中的内存使用率阈值换算而来
	safetyThreshold int64

	// CPU负载阈值(%), >=200视为禁用CPU检查
	cpuLoadThreshold float64

	// 标签页数量硬上限
	maxTabsLimit int

	// 缓存的内存统计数据
	lastMemStats runtime.MemStats

	// 系统总内存(字节)
	totalMemory uint64

	// CalculateMaxTabs结果缓存 (每秒更新一次)
	cachedMaxTabs int
	lastCacheTime time.Time
	cacheMu       sync.RWMutex

	// CPU使用率缓存
	lastCPUUsage float64
	cpuUsageMu   sync.RWMutex

	// 保护lastMemStats的读写锁
	mu sync.RWMutex

	// 监控控制
	cancelFunc context.CancelFunc
	isRunning  bool
}

// MemoryStatus 内存状态信息
type MemoryStatus struct {
	TotalMemory     uint64 // 系统总内存(字节)
	AllocatedMemory uint64 // 当前程序已分配内存(字节)
	AvailableMemory int64  // 可用内存(字节)
	SafetyReserve   int64  // 安全保留内存(字节)
	SafetyThreshold int64  // 安全阈值(字节)
	MemoryPressure  string // 内存压力等级
}

// NewResourceMonitor 创建资源监控器实例
func NewResourceMonitor(config models.CrawlConfig) *ResourceMonitor {
	// 获取系统总内存(使用gopsutil获取真实系统内存)
	vmStat, err := mem.VirtualMemory()
	var totalMem uint64
	if err != nil {
		utils.Warnf("获取系统内存失败,使用默认值: %v", err)
		totalMem = 4 * 1024 * 1024 * 1024 // 默认4GB
	} else {
		totalMem = vmStat.Total
		utils.Infof("系统总内存: %.2f GB", float64(totalMem)/(1024*1024*1024))
	}

	// 默认值兜底
	reserve := int64(config.SafetyReserveMemory)
	if reserve == 0 {
		reserve = 500 * 1024 * 1024 // 500MB
	}
	threshold := config.SafetyThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.85
	}
	maxTabs := config.MaxTabsLimit
	if maxTabs == 0 {
		maxTabs = 10
	}
	cpuThreshold := config.CPULoadThreshold
	if cpuThreshold == 0 {
		cpuThreshold = 200 // 默认禁用CPU检查
	}

	// 读取初始内存统计
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &ResourceMonitor{
		safetyReserve: reserve,
		// 使用率阈值换算为可用内存字节数下限
		safetyThreshold:  int64(float64(totalMem) * (1.0 - threshold)),
		cpuLoadThreshold: cpuThreshold,
		maxTabsLimit:     maxTabs,
		totalMemory:      totalMem,
		lastMemStats:     memStats,
		isRunning:        false,
	}
}

// StartMonitoring 启动资源监控
// 启动后台goroutine周期性采样runtime.MemStats和CPU使用率
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	// 如果已经在运行,直接返回(幂等)
	if rm.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isRunning = true

	go rm.monitoringLoop(ctx, interval)
}

// monitoringLoop 后台监控循环
func (rm *ResourceMonitor) monitoringLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)

			rm.mu.Lock()
			rm.lastMemStats = memStats
			rm.mu.Unlock()

			cpuUsage := rm.getCPUUsage()
			rm.cpuUsageMu.Lock()
			rm.lastCPUUsage = cpuUsage
			rm.cpuUsageMu.Unlock()
		}
	}
}

// getCPUUsage 获取系统CPU使用率(百分比)
func (rm *ResourceMonitor) getCPUUsage() float64 {
	// 100毫秒采样间隔,避免阻塞过久
	// percpu=false 返回所有CPU核心的平均使用率
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		utils.Warnf("获取CPU使用率失败: %v", err)
		return 0.0
	}
	if len(percentages) == 0 {
		return 0.0
	}
	return percentages[0]
}

// StopMonitoring 停止资源监控
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning && rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.isRunning = false
		rm.cancelFunc = nil
	}
}

// CalculateMaxTabs 动态计算当前允许的最大标签页数
// 结果带1秒缓存,返回基于可用内存和CPU核心数计算的上限
func (rm *ResourceMonitor) CalculateMaxTabs() int {
	// 检查缓存是否有效(1秒内)
	rm.cacheMu.RLock()
	if time.Since(rm.lastCacheTime) < time.Second && rm.cachedMaxTabs > 0 {
		cached := rm.cachedMaxTabs
		rm.cacheMu.RUnlock()
		return cached
	}
	rm.cacheMu.RUnlock()

	rm.mu.RLock()
	memStats := rm.lastMemStats
	rm.mu.RUnlock()

	// 计算可用内存
	availableMemory := int64(rm.totalMemory) - int64(memStats.Alloc) - rm.safetyReserve

	// 基于内存计算上限
	maxTabsByMemory := 1 // 至少1个
	if availableMemory > rm.safetyThreshold {
		surplus := availableMemory - rm.safetyThreshold
		maxTabsByMemory = int(surplus / tabMemoryUsage)
		if maxTabsByMemory < 1 {
			maxTabsByMemory = 1
		}
	}

	// 基于CPU核心数计算上限
	maxTabsByCPU := runtime.NumCPU()

	// 取最小值
	result := maxTabsByMemory
	if maxTabsByCPU < result {
		result = maxTabsByCPU
	}
	if rm.maxTabsLimit < result {
		result = rm.maxTabsLimit
	}
	if result < 1 {
		result = 1
	}

	// 更新缓存
	rm.cacheMu.Lock()
	rm.cachedMaxTabs = result
	rm.lastCacheTime = time.Now()
	rm.cacheMu.Unlock()

	return result
}

// CheckResourceAvailability 检查当前资源是否允许创建新标签页
// 返回canCreate(是否允许创建)和reason(不允许时的原因)
func (rm *ResourceMonitor) CheckResourceAvailability() (canCreate bool, reason string) {
	rm.mu.RLock()
	memStats := rm.lastMemStats
	rm.mu.RUnlock()

	availableMemory := int64(rm.totalMemory) - int64(memStats.Alloc) - rm.safetyReserve

	// 检查内存
	if availableMemory < rm.safetyThreshold {
		availableMemoryMB := availableMemory / (1024 * 1024)
		utils.Warnf("可用内存不足(当前%dMB),标签页创建受限", availableMemoryMB)
		return false, fmt.Sprintf("内存不足(当前%dMB)", availableMemoryMB)
	}

	// 检查CPU负载
	// 阈值 >= 200 视为禁用CPU检查
	if rm.cpuLoadThreshold < 200 {
		rm.cpuUsageMu.RLock()
		cpuUsage := rm.lastCPUUsage
		rm.cpuUsageMu.RUnlock()

		if cpuUsage > rm.cpuLoadThreshold {
			return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", cpuUsage)
		}
	}

	return true, ""
}

// GetMemoryStatus 获取当前内存状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	rm.mu.RLock()
	memStats := rm.lastMemStats
	rm.mu.RUnlock()

	availableMemory := int64(rm.totalMemory) - int64(memStats.Alloc) - rm.safetyReserve

	// 判断内存压力等级
	var pressure string
	availableMemoryMB := availableMemory / (1024 * 1024)
	switch {
	case availableMemoryMB < 200:
		pressure = "emergency"
	case availableMemoryMB < 300:
		pressure = "critical"
	case availableMemoryMB < 500:
		pressure = "warning"
	default:
		pressure = "normal"
	}

	return MemoryStatus{
		TotalMemory:     rm.totalMemory,
		AllocatedMemory: memStats.Alloc,
		AvailableMemory: availableMemory,
		SafetyReserve:   rm.safetyReserve,
		SafetyThreshold: rm.safetyThreshold,
		MemoryPressure:  pressure,
	}
}

// ShouldScaleDown 判断是否应该主动缩减标签页数量
// 渐进式降级: <200MB缩减至1个, <300MB缩减50%, <500MB暂停创建
func (rm *ResourceMonitor) ShouldScaleDown(currentTabs int) (shouldScale bool, targetCount int, reason string) {
	rm.mu.RLock()
	memStats := rm.lastMemStats
	rm.mu.RUnlock()

	availableMemory := int64(rm.totalMemory) - int64(memStats.Alloc) - rm.safetyReserve
	availableMemoryMB := availableMemory / (1024 * 1024)

	switch {
	case availableMemoryMB < 200:
		// 紧急状态: 缩减到1个标签页
		utils.Errorf("内存紧急状态(当前%dMB),强制缩减标签页至1个", availableMemoryMB)
		return true, 1, fmt.Sprintf("内存严重不足(当前%dMB),强制缩减至1个标签页", availableMemoryMB)
	case availableMemoryMB < 300:
		// 严重不足: 缩减50%
		targetCount = currentTabs / 2
		if targetCount < 1 {
			targetCount = 1
		}
		utils.Warnf("内存严重不足(当前%dMB),强制缩减标签页至%d个", availableMemoryMB, targetCount)
		return true, targetCount, fmt.Sprintf("内存严重不足(当前%dMB),缩减标签页至%d个", availableMemoryMB, targetCount)
	case availableMemoryMB < 500:
		// 警告: 暂停创建但不缩减
		utils.Warnf("内存不足(当前%dMB),暂停创建新标签页", availableMemoryMB)
		return false, currentTabs, fmt.Sprintf("内存不足(当前%dMB),暂停创建新标签页", availableMemoryMB)
	default:
		return false, currentTabs, ""
	}
}
