package evaluator

import (
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Capabilities describes the evaluator host hardware
type Capabilities struct {
	CPUThreads int     `json:"cpu_threads"`
	CPUModel   string  `json:"cpu_model"`
	CPUPercent float64 `json:"cpu_percent"`
	RAMTotal   uint64  `json:"ram_total_bytes"`
	RAMFree    uint64  `json:"ram_free_bytes"`
	OS         string  `json:"os"`
}

// ProbeHardware inspects the host and returns its capabilities
func ProbeHardware() (*Capabilities, error) {
	caps := &Capabilities{
		CPUThreads: runtime.NumCPU(),
		OS:         runtime.GOOS,
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		caps.CPUModel = infos[0].ModelName
	}
	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		caps.CPUPercent = percents[0]
	}

	vmem, err := mem.VirtualMemory()
	if err != nil {
		return caps, fmt.Errorf("failed to read memory info: %w", err)
	}
	caps.RAMTotal = vmem.Total
	caps.RAMFree = vmem.Available

	return caps, nil
}

// Overloaded reports whether the host is too busy to take more work
func (c *Capabilities) Overloaded() bool {
	if c.CPUPercent > 90 {
		return true
	}
	if c.RAMTotal > 0 && float64(c.RAMFree)/float64(c.RAMTotal) < 0.05 {
		return true
	}
	return false
}

// String returns a one-line summary for logs
func (c *Capabilities) String() string {
	return fmt.Sprintf("%d threads (%s), %.0f%% busy, %d/%d MB free",
		c.CPUThreads, c.CPUModel, c.CPUPercent,
		c.RAMFree/1024/1024, c.RAMTotal/1024/1024)
}
