// Package replay journals the frames a session consumed and checks that re-simulating
// them reproduces the recorded checksums.
package replay

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/opmon"
	"github.com/xiaonanln/gwphys/engine/post"
	"github.com/xiaonanln/gwphys/engine/replay/backend/filesystem"
	"github.com/xiaonanln/gwphys/engine/replay/backend/redis"
	"github.com/xiaonanln/gwphys/engine/replay/replay_common"
	"github.com/xiaonanln/gwphys/engine/uuid"
)

type (
	// Meta describes a recorded session
	Meta = replaycommon.Meta
	// Batch is one journal write
	Batch = replaycommon.Batch
	// Recording is a loaded session
	Recording = replaycommon.Recording
	// Backend stores recordings
	Backend = replaycommon.Backend
)

// ErrNotFound is returned when loading a session that was never created
var ErrNotFound = replaycommon.ErrNotFound

// Backend types accepted by Open
const (
	BackendFileSystem = "filesystem"
	BackendRedis      = "redis"
)

// Open opens a backend by type. directory is used by filesystem, url and db by redis.
func Open(kind, directory, url string, db int) (Backend, error) {
	switch kind {
	case BackendFileSystem:
		return replayfilesystem.OpenDirectory(directory)
	case BackendRedis:
		return replayredis.OpenRedis(url, db)
	}
	return nil, errors.Errorf("replay: unknown backend type %q", kind)
}

// NewSession returns a fresh session id
func NewSession() string {
	return uuid.GenUUID()
}

// FlushCallback is posted to the main routine once a flushed batch is stored
type FlushCallback func(err error)

type createRequest struct {
	meta Meta
}

type appendRequest struct {
	batch    Batch
	callback FlushCallback
}

// Recorder is a lockstep.Journal writing to a Backend on its own goroutine.
// RecordFrame, RecordChecksum, Flush and Close must be called from one goroutine.
type Recorder struct {
	backend    Backend
	session    string
	batch      Batch
	queue      *xnsyncutil.SyncQueue
	terminated *xnsyncutil.OneTimeCond
	closed     bool

	recentWarnedQueueLen int
}

// NewRecorder starts recording meta.Session, generating the session id if it is empty
func NewRecorder(backend Backend, meta Meta) *Recorder {
	if meta.Session == "" {
		meta.Session = NewSession()
	}
	if meta.Created == 0 {
		meta.Created = time.Now().Unix()
	}
	r := &Recorder{
		backend:    backend,
		session:    meta.Session,
		queue:      xnsyncutil.NewSyncQueue(),
		terminated: xnsyncutil.NewOneTimeCond(),
	}
	r.push(createRequest{meta: meta})
	go r.routine()
	return r
}

// Session returns the recorded session id
func (r *Recorder) Session() string {
	return r.session
}

// RecordFrame implements lockstep.Journal
func (r *Recorder) RecordFrame(f lockstep.FrameData) {
	r.batch.Frames = append(r.batch.Frames, f)
	if len(r.batch.Frames) >= consts.REPLAY_FLUSH_FRAMES {
		r.Flush(nil)
	}
}

// RecordChecksum implements lockstep.Journal
func (r *Recorder) RecordChecksum(c lockstep.Checksum) {
	r.batch.Checksums = append(r.batch.Checksums, c)
}

// Flush queues what was recorded so far. callback, if not nil, is posted once the write
// finishes.
func (r *Recorder) Flush(callback FlushCallback) {
	if r.closed {
		if callback != nil {
			post.Post(func() { callback(errors.New("replay: recorder closed")) })
		}
		return
	}
	batch := r.batch
	r.batch = Batch{}
	if batch.Empty() && callback == nil {
		return
	}
	r.push(appendRequest{batch: batch, callback: callback})
}

// Close flushes and waits until everything queued is written
func (r *Recorder) Close() {
	if r.closed {
		return
	}
	r.Flush(nil)
	r.closed = true
	r.queue.Close()
	r.terminated.Wait()
}

func (r *Recorder) push(op interface{}) {
	r.queue.Push(op)
	qlen := r.queue.Len()
	if qlen > consts.REPLAY_QUEUE_WARN_LEN && qlen%consts.REPLAY_QUEUE_WARN_LEN == 0 && r.recentWarnedQueueLen != qlen {
		gwlog.Warnf("replay %s: operation queue length = %d", r.session, qlen)
		r.recentWarnedQueueLen = qlen
	}
}

func (r *Recorder) routine() {
	defer func() {
		if err := recover(); err != nil {
			gwlog.TraceError("replay %s: routine paniced: %s, restarting ...", r.session, err)
			go r.routine()
		} else {
			r.terminated.Signal()
		}
	}()

	for {
		op := r.queue.Pop()
		if op == nil { // recorder closed
			break
		}
		switch req := op.(type) {
		case createRequest:
			monop := opmon.StartOperation("replay.create")
			err := r.retry(func() error { return r.backend.Create(req.meta) })
			monop.Finish(time.Millisecond * 100)
			if err != nil {
				gwlog.Errorf("replay %s: create failed: %v", r.session, err)
			}
		case appendRequest:
			var err error
			if !req.batch.Empty() {
				monop := opmon.StartOperation("replay.append")
				err = r.retry(func() error { return r.backend.Append(r.session, req.batch) })
				monop.Finish(time.Millisecond * 100)
				if err != nil {
					gwlog.Errorf("replay %s: dropped %d frames: %v", r.session, len(req.batch.Frames), err)
				} else if consts.DEBUG_REPLAY {
					gwlog.Debugf("replay %s: wrote %d frames, %d checksums", r.session, len(req.batch.Frames), len(req.batch.Checksums))
				}
			}
			if req.callback != nil {
				post.Post(func() {
					req.callback(err)
				})
			}
		default:
			gwlog.Panicf("replay: unknown operation: %v", op)
		}
	}
}

func (r *Recorder) retry(write func() error) (err error) {
	for i := 0; i <= consts.REPLAY_WRITE_RETRIES; i++ {
		if i > 0 {
			time.Sleep(consts.REPLAY_RETRY_INTERVAL)
		}
		if err = write(); err == nil {
			return nil
		}
		gwlog.Warnf("replay %s: write failed: %v", r.session, err)
		if r.backend.IsEOF(err) {
			break
		}
	}
	return err
}

// Divergence is the first recorded checksum that re-simulation did not reproduce
type Divergence struct {
	Tick     uint64
	Recorded uint64
	Replayed uint64
}

func (d Divergence) String() string {
	return fmt.Sprintf("Divergence<tick %d: recorded %016x, replayed %016x>", d.Tick, d.Recorded, d.Replayed)
}

// Report is the outcome of Verify
type Report struct {
	Frames     int
	Checked    int
	Divergence *Divergence
}

// Verify steps sim through the frames of rec and compares the space checksum with every
// recorded checksum. sim must be freshly built from the same scene as the recording.
// It stops at the first divergence.
func Verify(rec *Recording, sim *lockstep.Simulator) (Report, error) {
	var report Report
	sums := make(map[uint64]uint64, len(rec.Checksums))
	for _, c := range rec.Checksums {
		if _, ok := sums[c.Tick]; !ok {
			sums[c.Tick] = c.Sum
		}
	}
	next := sim.Space.TickCount() + 1
	for _, f := range rec.Frames {
		if f.Tick != next {
			return report, errors.Errorf("replay: frame %d follows tick %d", f.Tick, next-1)
		}
		if err := sim.Validate(f); err != nil {
			return report, errors.Wrapf(err, "replay: frame %d", f.Tick)
		}
		if err := sim.Step(f); err != nil {
			return report, errors.Wrapf(err, "replay: step %d", f.Tick)
		}
		report.Frames++
		next++
		if want, ok := sums[f.Tick]; ok {
			report.Checked++
			if got := sim.Space.Checksum(); got != want {
				report.Divergence = &Divergence{Tick: f.Tick, Recorded: want, Replayed: got}
				return report, nil
			}
		}
	}
	return report, nil
}
