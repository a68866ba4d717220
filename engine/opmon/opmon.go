// Package opmon times named operations such as space phases, sends and replay writes.
package opmon

import (
	"sort"
	"sync"
	"time"

	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/gwlog"
)

var (
	operationAllocPool = sync.Pool{
		New: func() interface{} {
			return &Operation{}
		},
	}

	monitor = newMonitor()
)

func init() {
	if consts.OPMON_DUMP_INTERVAL > 0 {
		go func() {
			for {
				time.Sleep(consts.OPMON_DUMP_INTERVAL)
				Dump()
			}
		}()
	}
}

// OpStat is the record of one operation name since the last dump
type OpStat struct {
	Name  string
	Count uint64
	Total time.Duration
	Max   time.Duration
}

// Avg is the mean duration
func (s OpStat) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

type _Monitor struct {
	sync.Mutex
	opStats map[string]*OpStat
}

func newMonitor() *_Monitor {
	return &_Monitor{
		opStats: map[string]*OpStat{},
	}
}

func (monitor *_Monitor) record(opname string, duration time.Duration) {
	monitor.Lock()
	stat := monitor.opStats[opname]
	if stat == nil {
		stat = &OpStat{Name: opname}
		monitor.opStats[opname] = stat
	}
	stat.Count++
	stat.Total += duration
	if duration > stat.Max {
		stat.Max = duration
	}
	monitor.Unlock()
}

// Snapshot returns the recorded operations sorted by name and clears them
func Snapshot() []OpStat {
	monitor.Lock()
	opStats := monitor.opStats
	monitor.opStats = map[string]*OpStat{}
	monitor.Unlock()

	stats := make([]OpStat, 0, len(opStats))
	for _, stat := range opStats {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Name < stats[j].Name
	})
	return stats
}

// Dump logs and clears the recorded operations
func Dump() {
	for _, stat := range Snapshot() {
		gwlog.Infof("opmon: %-30s x%-10d AVG %-10s MAX %-10s", stat.Name, stat.Count, stat.Avg(), stat.Max)
	}
}

// Stats returns the count and total duration recorded for an operation since the last dump
func Stats(opname string) (count uint64, total time.Duration) {
	monitor.Lock()
	defer monitor.Unlock()
	if stat := monitor.opStats[opname]; stat != nil {
		return stat.Count, stat.Total
	}
	return 0, 0
}

// Operation is the type of operation to be monitored
type Operation struct {
	name      string
	startTime time.Time
}

// StartOperation creates a new operation
func StartOperation(operationName string) *Operation {
	op := operationAllocPool.Get().(*Operation)
	op.name = operationName
	op.startTime = time.Now()
	return op
}

// Finish records the duration of the operation and warns if it reached warnThreshold.
// The operation must not be used afterwards.
func (op *Operation) Finish(warnThreshold time.Duration) {
	takeTime := time.Since(op.startTime)
	monitor.record(op.name, takeTime)
	if warnThreshold > 0 && takeTime >= warnThreshold {
		gwlog.Warnf("opmon: operation %s takes %s > %s", op.name, takeTime, warnThreshold)
	}
	operationAllocPool.Put(op)
}
