package monitor

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSample is one reading of host resource usage.
type HostSample struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsedMB  float64
	DiskPercent   float64
	Load1         float64
}

// SystemProbe reads host resource usage on demand. Implementations should
// return quickly; the sampler calls Sample once per tick without holding
// the store lock.
type SystemProbe interface {
	Sample() (HostSample, error)
}

type gopsutilProbe struct {
	diskPath string
}

// NewSystemProbe returns a SystemProbe backed by gopsutil, reading disk
// usage from diskPath (defaults to "/").
func NewSystemProbe(diskPath string) SystemProbe {
	if diskPath == "" {
		diskPath = "/"
	}
	return &gopsutilProbe{diskPath: diskPath}
}

func (p *gopsutilProbe) Sample() (HostSample, error) {
	var sample HostSample

	// Non-blocking CPU reading: percentage since the previous call. The
	// first call of a process returns 0, which is fine at 1 Hz.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		sample.CPUPercent = percents[0]
	} else if err != nil {
		return sample, err
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return sample, err
	}
	sample.MemoryPercent = vm.UsedPercent
	sample.MemoryUsedMB = float64(vm.Used) / 1024 / 1024

	usage, err := disk.Usage(p.diskPath)
	if err != nil {
		return sample, err
	}
	sample.DiskPercent = usage.UsedPercent

	// Load averages are unavailable on some platforms; treat that as zero
	// rather than a probe failure.
	if avg, err := load.Avg(); err == nil {
		sample.Load1 = avg.Load1
	}

	return sample, nil
}
