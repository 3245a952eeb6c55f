package system

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// Usage is a point-in-time resource reading of this process.
type Usage struct {
	CPUPercent float64
	RSSBytes   uint64
	Threads    int32
}

// ProcessUsage reads CPU and memory of the current process.
func ProcessUsage() (Usage, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return Usage{}, err
	}
	var u Usage
	if u.CPUPercent, err = p.CPUPercent(); err != nil {
		return Usage{}, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return Usage{}, err
	}
	u.RSSBytes = mem.RSS
	if n, err := p.NumThreads(); err == nil {
		u.Threads = n
	}
	return u, nil
}
