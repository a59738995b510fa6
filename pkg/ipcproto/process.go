package ipcproto

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// processVitals reports the current process's resident set size and uptime,
// used to enrich the stats command's response. A failure to read either
// (e.g. on an unsupported platform) degrades to zero values rather than
// failing the whole stats response.
func processVitals() (rssBytes uint64, uptime time.Duration) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0
	}

	if info, err := proc.MemoryInfo(); err == nil && info != nil {
		rssBytes = info.RSS
	}

	if createdAtMillis, err := proc.CreateTime(); err == nil {
		startedAt := time.UnixMilli(createdAtMillis)
		uptime = time.Since(startedAt)
	}

	return rssBytes, uptime
}
