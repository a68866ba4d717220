package lockstep

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/gwutils"
	"github.com/xiaonanln/gwphys/engine/opmon"
)

// Sampler reads the local input. It is called once per Update.
type Sampler interface {
	Sample() []PlayerInput
}

// SamplerFunc adapts a function to Sampler
type SamplerFunc func() []PlayerInput

// Sample calls f
func (f SamplerFunc) Sample() []PlayerInput {
	return f()
}

// FrameChannel is the outbound side of the frame transport
type FrameChannel interface {
	Send(ctx context.Context, sample InputSample) error
	SendChecksum(ctx context.Context, sum Checksum) error
}

// Message is one inbound item: a confirmed frame or a checksum the authority relays
type Message struct {
	Frame    *FrameData
	Checksum *Checksum
}

// FrameStream is the inbound side of the frame transport. Recv blocks until a message
// arrives and returns io.EOF once the stream is closed.
type FrameStream interface {
	Recv() (Message, error)
}

// DesyncKind classifies desync events
type DesyncKind int

const (
	// DesyncUnknownPlayer is raised when frames naming unknown players keep being dropped
	DesyncUnknownPlayer DesyncKind = iota
	// DesyncStaleFrame is raised when frames for consumed ticks keep arriving
	DesyncStaleFrame
	// DesyncChecksum is raised when a relayed checksum differs from the local one
	DesyncChecksum
	// DesyncSimulation is raised when the space failed to step
	DesyncSimulation
)

func (k DesyncKind) String() string {
	switch k {
	case DesyncUnknownPlayer:
		return "UnknownPlayer"
	case DesyncStaleFrame:
		return "StaleFrame"
	case DesyncChecksum:
		return "Checksum"
	case DesyncSimulation:
		return "Simulation"
	}
	return "Unknown"
}

// DesyncEvent describes a desync surfaced to the Observer
type DesyncEvent struct {
	Kind DesyncKind
	Tick uint64
	// Drops is the number of consecutive dropped frames
	Drops int
	// Local and Remote are the checksums of a DesyncChecksum event
	Local, Remote uint64
	Err           error
}

// Observer receives stall and desync notifications on the goroutine calling Update
type Observer interface {
	OnStall(tick uint64, stallTicks int)
	OnDesync(ev DesyncEvent)
}

// Journal records what the executor consumed
type Journal interface {
	RecordFrame(f FrameData)
	RecordChecksum(c Checksum)
}

// Config tunes an Executor
type Config struct {
	// MaxConsumedFrames is the number of consumed frames held before eviction starts
	MaxConsumedFrames int
	// EvictMargin is how many ticks below the watermark are kept on eviction
	EvictMargin uint64
	// MaxCatchUpTicks limits the frames consumed by one Update; 0 means no limit
	MaxCatchUpTicks int
	// DesyncTolerance is the number of consecutive dropped frames tolerated before OnDesync
	DesyncTolerance int
	// ChecksumInterval takes a checksum every that many ticks; 0 disables checksums
	ChecksumInterval uint64
	// SendQueueSize bounds the outbound queue; samples are dropped when it is full
	SendQueueSize int
}

// DefaultConfig is used by NewExecutor for zero fields
var DefaultConfig = Config{
	MaxConsumedFrames: 256,
	EvictMargin:       64,
	MaxCatchUpTicks:   8,
	DesyncTolerance:   3,
	ChecksumInterval:  60,
	SendQueueSize:     consts.SEND_QUEUE_SIZE,
}

const maxPendingChecksums = 1024

type outbound struct {
	sample   *InputSample
	checksum *Checksum
}

// Executor consumes confirmed frames in tick order, one space step per frame, and sends
// the local input once per tick duration.
//
// Update, Close and the accessors must be called from one goroutine. Receive runs in its
// own goroutine and only touches the frame buffer.
type Executor struct {
	Buffer    *FrameBuffer
	Simulator *Simulator
	Observer  Observer
	Journal   Journal

	config   Config
	sampler  Sampler
	channel  FrameChannel
	interval time.Duration

	accumulator time.Duration
	latest      []PlayerInput
	stallTime   time.Duration
	stallTicks  int
	stalled     bool

	// drops counts frames dropped since the last consumed one
	drops int
	// droppedTick is the cursor tick whose frame was dropped, 0 if none
	droppedTick     uint64
	droppedReported bool
	halted          bool

	// stale counts frames for consumed ticks seen by Receive
	stale         xnsyncutil.AtomicInt
	staleReported int

	checksumLock   sync.Mutex
	remoteSums     []Checksum
	localSums      map[uint64]uint64
	localSumsOrder []uint64

	ctx       context.Context
	cancel    context.CancelFunc
	outbox    chan outbound
	closed    xnsyncutil.AtomicBool
	waitGroup sync.WaitGroup
}

// NewExecutor creates an executor stepping sim. The tick duration is the space's.
func NewExecutor(sim *Simulator, sampler Sampler, channel FrameChannel, config Config) *Executor {
	if config.MaxConsumedFrames <= 0 {
		config.MaxConsumedFrames = DefaultConfig.MaxConsumedFrames
	}
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = DefaultConfig.SendQueueSize
	}
	if config.DesyncTolerance <= 0 {
		config.DesyncTolerance = DefaultConfig.DesyncTolerance
	}
	dt := sim.Space.Settings().TickDuration
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		Buffer:    NewFrameBuffer(config.MaxConsumedFrames, config.EvictMargin),
		Simulator: sim,
		config:    config,
		sampler:   sampler,
		channel:   channel,
		interval:  time.Duration(dt.MulInt(int64(time.Second)).Int()),
		localSums: map[uint64]uint64{},
		ctx:       ctx,
		cancel:    cancel,
		outbox:    make(chan outbound, config.SendQueueSize),
	}
	e.waitGroup.Add(1)
	go gwutils.RepeatUntilPanicless(e.sendRoutine)
	return e
}

// TickInterval is the wall-clock length of one tick
func (e *Executor) TickInterval() time.Duration {
	return e.interval
}

// Config returns the effective configuration
func (e *Executor) Config() Config {
	return e.config
}

func (e *Executor) sendRoutine() {
	for {
		select {
		case <-e.ctx.Done():
			e.waitGroup.Done()
			return
		case out := <-e.outbox:
			op := opmon.StartOperation("lockstep.send")
			var err error
			if out.sample != nil {
				err = e.channel.Send(e.ctx, *out.sample)
			} else {
				err = e.channel.SendChecksum(e.ctx, *out.checksum)
			}
			op.Finish(time.Millisecond * 100)
			if err != nil && e.ctx.Err() == nil {
				gwlog.Warnf("lockstep: send failed: %v", err)
			}
		}
	}
}

func (e *Executor) enqueue(out outbound) {
	select {
	case e.outbox <- out:
	default:
		gwlog.Warnf("lockstep: send queue full, dropping outbound message")
	}
}

// Receive reads s until it fails or ctx is done, inserting frames into the buffer.
// Relayed checksums are checked on the next Update.
func (e *Executor) Receive(ctx context.Context, s FrameStream) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.closed.Load() {
			return io.EOF
		}
		msg, err := s.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if msg.Frame != nil {
			switch e.Buffer.Insert(*msg.Frame) {
			case Stale:
				e.stale.Store(e.stale.Load() + 1)
				if consts.DEBUG_FRAMES {
					gwlog.Debugf("lockstep: ignored stale %s", *msg.Frame)
				}
			case Duplicate:
				if consts.DEBUG_FRAMES {
					gwlog.Debugf("lockstep: ignored duplicate %s", *msg.Frame)
				}
			}
		}
		if msg.Checksum != nil {
			e.checksumLock.Lock()
			if len(e.remoteSums) < maxPendingChecksums {
				e.remoteSums = append(e.remoteSums, *msg.Checksum)
			}
			e.checksumLock.Unlock()
		}
	}
}

// Update runs one local cycle: sample input, send it once a tick duration has accumulated,
// then consume every confirmed frame at the cursor.
func (e *Executor) Update(elapsed time.Duration) {
	if e.closed.Load() {
		return
	}
	e.accumulator += elapsed
	if e.sampler != nil {
		e.latest = e.sampler.Sample()
	}
	if e.accumulator >= e.interval {
		e.accumulator = 0
		e.enqueue(outbound{sample: &InputSample{
			Tick:   e.Buffer.Watermark(),
			Inputs: append([]PlayerInput(nil), e.latest...),
		}})
	}

	consumed := 0
	for !e.halted && (e.config.MaxCatchUpTicks <= 0 || consumed < e.config.MaxCatchUpTicks) {
		if !e.consumeNext() {
			break
		}
		consumed++
	}

	if consumed > 0 {
		e.stalled = false
		e.stallTime = 0
		e.stallTicks = 0
	} else if !e.halted {
		e.stall(elapsed)
	}
	e.checkStale()
	e.checkChecksums()
}

// consumeNext steps the frame at the cursor. It returns false when nothing was stepped.
func (e *Executor) consumeNext() bool {
	f, ok := e.Buffer.Peek()
	if !ok {
		return false
	}
	if err := e.Simulator.Validate(f); err != nil {
		e.Buffer.Drop(f.Tick)
		e.drops++
		if e.droppedTick != f.Tick {
			e.droppedTick, e.droppedReported = f.Tick, false
		}
		gwlog.Warnf("lockstep: dropped %s: %v", f, err)
		if e.drops > e.config.DesyncTolerance {
			e.reportDropped(err)
		}
		return false
	}

	if err := e.Simulator.Step(f); err != nil {
		e.halted = true
		gwlog.Errorf("lockstep: step of tick %d failed: %v", f.Tick, err)
		if e.Observer != nil {
			e.Observer.OnDesync(DesyncEvent{Kind: DesyncSimulation, Tick: f.Tick, Err: err})
		}
		return false
	}
	e.Buffer.Consume(f.Tick)
	e.drops = 0
	e.droppedTick, e.droppedReported = 0, false
	if consts.DEBUG_FRAMES {
		gwlog.Debugf("lockstep: consumed %s", f)
	}
	if e.Journal != nil {
		e.Journal.RecordFrame(f)
	}
	if e.config.ChecksumInterval > 0 && f.Tick%e.config.ChecksumInterval == 0 {
		c := Checksum{Tick: f.Tick, Sum: e.Simulator.Space.Checksum()}
		e.recordLocal(c)
		if e.Journal != nil {
			e.Journal.RecordChecksum(c)
		}
		e.enqueue(outbound{checksum: &c})
	}
	return true
}

func (e *Executor) stall(elapsed time.Duration) {
	if !e.stalled {
		e.stalled = true
		e.stallTime = 0
		e.stallTicks = 0
	}
	e.stallTime += elapsed
	ticks := int(e.stallTime / e.interval)
	if ticks > e.stallTicks {
		e.stallTicks = ticks
		if consts.DEBUG_FRAMES {
			gwlog.Debugf("lockstep: stalled at tick %d for %d ticks", e.Buffer.Cursor(), ticks)
		}
		if e.Observer != nil {
			e.Observer.OnStall(e.Buffer.Cursor(), ticks)
		}
	}
	// a dropped frame is never sent again, so waiting on it is a desync
	if e.droppedTick != 0 && e.droppedTick == e.Buffer.Cursor() && e.stallTicks > e.config.DesyncTolerance {
		e.reportDropped(ErrUnknownPlayer)
	}
}

// reportDropped raises DesyncUnknownPlayer once per dropped cursor tick
func (e *Executor) reportDropped(err error) {
	if e.droppedReported {
		return
	}
	e.droppedReported = true
	if e.Observer != nil {
		e.Observer.OnDesync(DesyncEvent{Kind: DesyncUnknownPlayer, Tick: e.droppedTick, Drops: e.drops, Err: err})
	}
}

func (e *Executor) checkStale() {
	stale := int(e.stale.Load())
	if stale == e.staleReported {
		return
	}
	if stale-e.staleReported > e.config.DesyncTolerance {
		gwlog.Warnf("lockstep: %d stale frames received", stale-e.staleReported)
		if e.Observer != nil {
			e.Observer.OnDesync(DesyncEvent{Kind: DesyncStaleFrame, Tick: e.Buffer.Watermark(), Drops: stale - e.staleReported})
		}
		e.staleReported = stale
	}
}

func (e *Executor) recordLocal(c Checksum) {
	e.localSums[c.Tick] = c.Sum
	e.localSumsOrder = append(e.localSumsOrder, c.Tick)
	if len(e.localSumsOrder) > maxPendingChecksums {
		delete(e.localSums, e.localSumsOrder[0])
		e.localSumsOrder = e.localSumsOrder[1:]
	}
}

func (e *Executor) checkChecksums() {
	e.checksumLock.Lock()
	remote := e.remoteSums
	e.remoteSums = nil
	e.checksumLock.Unlock()

	watermark := e.Buffer.Watermark()
	var later []Checksum
	for _, c := range remote {
		if c.Tick > watermark {
			later = append(later, c)
			continue
		}
		local, ok := e.localSums[c.Tick]
		if !ok {
			continue
		}
		if local != c.Sum {
			gwlog.Warnf("lockstep: checksum mismatch at tick %d: local %016x, remote %016x", c.Tick, local, c.Sum)
			if e.Observer != nil {
				e.Observer.OnDesync(DesyncEvent{Kind: DesyncChecksum, Tick: c.Tick, Local: local, Remote: c.Sum})
			}
		}
	}
	if len(later) > 0 {
		e.checksumLock.Lock()
		e.remoteSums = append(later, e.remoteSums...)
		e.checksumLock.Unlock()
	}
}

// Stalled reports whether the last Update found the next frame missing
func (e *Executor) Stalled() bool {
	return e.stalled
}

// StallTicks is the number of tick durations spent in the current stall
func (e *Executor) StallTicks() int {
	return e.stallTicks
}

// Halted reports whether a failed step stopped consumption for good
func (e *Executor) Halted() bool {
	return e.halted
}

// Close cancels in-flight sends, stops Receive at its next message and closes the space
func (e *Executor) Close() error {
	if e.closed.Load() {
		return errors.New("lockstep: executor already closed")
	}
	e.closed.Store(true)
	e.cancel()
	e.waitGroup.Wait()
	e.Simulator.Space.Close()
	return nil
}
