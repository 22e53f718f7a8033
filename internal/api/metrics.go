package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ServerMetrics сведения о процессе для /api/server.
type ServerMetrics struct {
	StartTime time.Time
	proc      *process.Process
}

// ServerInfo ответ /api/server.
type ServerInfo struct {
	Name          string  `json:"name"`
	Role          string  `json:"role"`
	TargetID      string  `json:"targetId,omitempty"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
	MemoryMB      float64 `json:"memoryMb"`
	RSSMB         float64 `json:"rssMb,omitempty"`
	SystemMemPct  float64 `json:"systemMemoryPercent,omitempty"`
	CPUPercent    float64 `json:"cpuPercent"`
	Goroutines    int     `json:"goroutines"`
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	sm := &ServerMetrics{StartTime: time.Now()}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		sm.proc = p
	}
	return sm
}

// GetUptime возвращает время работы сервера
func (sm *ServerMetrics) GetUptime() string {
	uptime := time.Since(sm.StartTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}

// GetCPUUsage возвращает использование CPU процессом в процентах
func (sm *ServerMetrics) GetCPUUsage() (float64, error) {
	if sm.proc != nil {
		if pct, err := sm.proc.CPUPercent(); err == nil {
			return pct, nil
		}
	}
	// Если не удалось получить метрику процесса, берём системную
	pcts, err := cpu.Percent(0, false)
	if err != nil || len(pcts) == 0 {
		return 0, err
	}
	return pcts[0], nil
}

// Snapshot собирает ServerInfo. Ошибки gopsutil не фатальны: поле остаётся нулевым.
func (sm *ServerMetrics) Snapshot(role, targetID string) ServerInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	info := ServerInfo{
		Name:          "lightstage",
		Role:          role,
		TargetID:      targetID,
		Uptime:        sm.GetUptime(),
		UptimeSeconds: int64(time.Since(sm.StartTime).Seconds()),
		MemoryMB:      float64(m.Alloc) / 1024 / 1024,
		Goroutines:    runtime.NumGoroutine(),
	}
	info.CPUPercent, _ = sm.GetCPUUsage()
	if sm.proc != nil {
		if mi, err := sm.proc.MemoryInfo(); err == nil {
			info.RSSMB = float64(mi.RSS) / 1024 / 1024
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.SystemMemPct = vm.UsedPercent
	}
	return info
}
