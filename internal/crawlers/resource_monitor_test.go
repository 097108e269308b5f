package crawlers

import (
	"testing"
	"time"

	"github.com/efalkenberg/simplecrawler/internal/models"
)

func TestResourceMonitor_Defaults(t *testing.T) {
	rm := NewResourceMonitor(models.CrawlConfig{})

	if rm.safetyReserve != 500*1024*1024 {
		t.Errorf("默认安全预留 = %v, want 500MB", rm.safetyReserve)
	}
	if rm.maxTabsLimit != 10 {
		t.Errorf("默认标签页上限 = %v, want 10", rm.maxTabsLimit)
	}
	if rm.cpuLoadThreshold != 200 {
		t.Errorf("默认CPU阈值 = %v, want 200", rm.cpuLoadThreshold)
	}
}

func TestResourceMonitor_CalculateMaxTabs(t *testing.T) {
	rm := NewResourceMonitor(models.CrawlConfig{
		MaxTabsLimit: 4,
	})

	tabs := rm.CalculateMaxTabs()
	if tabs < 1 {
		t.Errorf("CalculateMaxTabs() = %v, 至少应为1", tabs)
	}
	if tabs > 4 {
		t.Errorf("CalculateMaxTabs() = %v, 不应超过硬上限4", tabs)
	}

	// 1秒内重复调用应命中缓存并返回相同结果
	if again := rm.CalculateMaxTabs(); again != tabs {
		t.Errorf("缓存期内结果应稳定: got %v, want %v", again, tabs)
	}
}

func TestResourceMonitor_StartStop(t *testing.T) {
	rm := NewResourceMonitor(models.CrawlConfig{})

	rm.StartMonitoring(50 * time.Millisecond)
	// 重复启动应幂等
	rm.StartMonitoring(50 * time.Millisecond)

	time.Sleep(150 * time.Millisecond)

	rm.StopMonitoring()
	// 重复停止不应panic
	rm.StopMonitoring()
}

func TestResourceMonitor_GetMemoryStatus(t *testing.T) {
	rm := NewResourceMonitor(models.CrawlConfig{})

	status := rm.GetMemoryStatus()
	if status.TotalMemory == 0 {
		t.Error("TotalMemory不应为0")
	}

	valid := map[string]bool{
		"normal": true, "warning": true, "critical": true, "emergency": true,
	}
	if !valid[status.MemoryPressure] {
		t.Errorf("未知的内存压力等级: %v", status.MemoryPressure)
	}
}

func TestResourceMonitor_ShouldScaleDown(t *testing.T) {
	rm := NewResourceMonitor(models.CrawlConfig{})

	// 常规环境下不应要求缩减
	shouldScale, target, _ := rm.ShouldScaleDown(4)
	if shouldScale && target > 4 {
		t.Errorf("缩减目标不应大于当前值: %v", target)
	}
	if target < 1 {
		t.Errorf("缩减目标至少为1: %v", target)
	}
}
