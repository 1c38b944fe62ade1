//go:build linux

package eventsource

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/processevent"
	"github.com/prometheus/procfs"
)

const defaultProcfsPath = "/proc"

// procResolver turns a PID from a connector notification into a raw record by reading /proc.
type procResolver struct {
	procfs procfs.FS
}

func newProcResolver(procfsPath string) (*procResolver, error) {
	fs, err := procfs.NewFS(procfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize procfs: %w", err)
	}
	return &procResolver{procfs: fs}, nil
}

// resolve reads whatever /proc still exposes for pid. Properties that cannot be read are
// left out of the record; a process that is already gone yields a record without a name.
func (r *procResolver) resolve(pid uint32) processevent.RawRecord {
	record := processevent.RawRecord{
		processevent.FieldProcessID: pid,
	}

	proc, err := r.procfs.Proc(int(pid))
	if err != nil {
		logger.L().Debug("procResolver - process vanished before resolution", helpers.Int("pid", int(pid)), helpers.Error(err))
		return record
	}

	if comm, err := proc.Comm(); err == nil && comm != "" {
		record[processevent.FieldName] = comm
	}

	if exe, err := proc.Executable(); err == nil && exe != "" {
		record[processevent.FieldExecutablePath] = exe
	}

	if cmdline, err := proc.CmdLine(); err == nil && len(cmdline) > 0 {
		if joined := strings.Join(cmdline, " "); joined != "" {
			record[processevent.FieldCommandLine] = joined
		}
	}

	stat, err := proc.Stat()
	if err != nil {
		return record
	}
	if stat.PPID >= 0 {
		record[processevent.FieldParentProcessID] = uint32(stat.PPID)
	}
	if _, ok := record[processevent.FieldName]; !ok && stat.Comm != "" {
		record[processevent.FieldName] = stat.Comm
	}
	if started, err := stat.StartTime(); err == nil {
		record[processevent.FieldCreationDate] = unixSecondsToTime(started)
	}

	return record
}

func unixSecondsToTime(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).Local()
}
