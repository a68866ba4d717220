package lockstep

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/shape"
	"github.com/xiaonanln/gwphys/engine/space"
)

type fakeChannel struct {
	sync.Mutex
	samples   []InputSample
	checksums []Checksum
}

func (c *fakeChannel) Send(ctx context.Context, sample InputSample) error {
	c.Lock()
	c.samples = append(c.samples, sample)
	c.Unlock()
	return nil
}

func (c *fakeChannel) SendChecksum(ctx context.Context, sum Checksum) error {
	c.Lock()
	c.checksums = append(c.checksums, sum)
	c.Unlock()
	return nil
}

func (c *fakeChannel) counts() (int, int) {
	c.Lock()
	defer c.Unlock()
	return len(c.samples), len(c.checksums)
}

type fakeStream struct {
	messages chan Message
}

func (s *fakeStream) Recv() (Message, error) {
	msg, ok := <-s.messages
	if !ok {
		return Message{}, io.EOF
	}
	return msg, nil
}

type recorder struct {
	stalls  []int
	desyncs []DesyncEvent
	frames  []uint64
	sums    []uint64
	exec    *Executor
}

func (r *recorder) OnStall(tick uint64, stallTicks int) {
	r.stalls = append(r.stalls, stallTicks)
}

func (r *recorder) OnDesync(ev DesyncEvent) {
	r.desyncs = append(r.desyncs, ev)
}

func (r *recorder) RecordFrame(f FrameData) {
	r.frames = append(r.frames, f.Tick)
	r.sums = append(r.sums, r.exec.Simulator.Space.Checksum())
}

func (r *recorder) RecordChecksum(c Checksum) {}

// newTestSimulator creates a space over flat terrain with players 1 and 2 on it
func newTestSimulator(t *testing.T) *Simulator {
	sp := space.New(space.DefaultSettings())
	ter, err := shape.NewTerrain([][]fixed.Fixed{{0, 0}, {0, 0}}, fixed.FromInt(100), fixed.FromInt(100),
		shape.Transform{Position: fixed.V3i(-50, 0, -30), Orientation: fixed.QuatIdentity})
	assert.T(t, err == nil)
	_, err = sp.AddTerrain(ter, space.StaticDesc{})
	assert.T(t, err == nil)

	sim := NewSimulator(sp, DefaultMovement)
	for i, x := range []int64{0, 2} {
		sph, err := shape.NewSphere(fixed.Half)
		assert.T(t, err == nil)
		id, err := sp.AddBody(body.Desc{Shape: sph, Position: fixed.V3(fixed.FromInt(x), fixed.Half, fixed.Zero), Mass: fixed.One})
		assert.T(t, err == nil)
		assert.T(t, sim.SetPlayer(PlayerID(i+1), id) == nil)
	}
	return sim
}

func newTestExecutor(t *testing.T, config Config) (*Executor, *fakeChannel, *recorder) {
	ch := &fakeChannel{}
	sampler := SamplerFunc(func() []PlayerInput {
		return []PlayerInput{{Player: 1, Forward: fixed.One}}
	})
	e := NewExecutor(newTestSimulator(t), sampler, ch, config)
	r := &recorder{exec: e}
	e.Observer = r
	e.Journal = r
	return e, ch, r
}

func botFrame(tick uint64) FrameData {
	rnd := rand.New(rand.NewSource(int64(tick)))
	return NewFrameData(tick, []PlayerInput{
		{Player: 1, Forward: fixed.FromRatio(int64(rnd.Intn(21)-10), 10), Strafe: fixed.FromRatio(int64(rnd.Intn(21)-10), 10)},
		{Player: 2, Forward: fixed.FromRatio(int64(rnd.Intn(21)-10), 10), Buttons: uint32(rnd.Intn(2))},
	})
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestExecutorArrivalOrder(t *testing.T) {
	e, ch, r := newTestExecutor(t, Config{})
	defer e.Close()
	dt := e.TickInterval()
	assert.T(t, dt > 16*time.Millisecond && dt < 17*time.Millisecond)

	e.Buffer.Insert(botFrame(3))
	e.Update(dt)
	assert.T(t, e.Stalled())
	assert.Equal(t, uint64(0), e.Simulator.Space.TickCount())
	assert.Equal(t, []int{1}, r.stalls)

	e.Buffer.Insert(botFrame(1))
	e.Update(dt)
	assert.T(t, !e.Stalled())
	assert.Equal(t, []uint64{1}, r.frames)

	e.Update(dt / 2)
	e.Update(dt / 2)
	assert.Equal(t, []int{1, 1}, r.stalls)

	e.Buffer.Insert(botFrame(2))
	e.Update(dt)
	assert.Equal(t, []uint64{1, 2, 3}, r.frames)
	assert.Equal(t, uint64(3), e.Simulator.Space.TickCount())
	assert.Equal(t, uint64(3), e.Buffer.Watermark())

	// one sample per accumulated tick duration, stamped with the watermark at send time
	waitFor(t, func() bool { n, _ := ch.counts(); return n == 4 })
	ch.Lock()
	assert.Equal(t, uint64(0), ch.samples[0].Tick)
	assert.Equal(t, uint64(0), ch.samples[1].Tick)
	assert.Equal(t, uint64(1), ch.samples[2].Tick)
	assert.Equal(t, uint64(1), ch.samples[3].Tick)
	assert.Equal(t, fixed.One, ch.samples[0].Inputs[0].Forward)
	ch.Unlock()
}

func TestExecutorCatchUpLimit(t *testing.T) {
	e, _, r := newTestExecutor(t, Config{MaxCatchUpTicks: 4})
	defer e.Close()
	for tick := uint64(10); tick >= 1; tick-- {
		e.Buffer.Insert(botFrame(tick))
	}
	e.Update(0)
	assert.Equal(t, []uint64{1, 2, 3, 4}, r.frames)
	e.Update(0)
	e.Update(0)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, r.frames)
	e.Update(0)
	assert.T(t, e.Stalled())
	assert.Equal(t, 0, len(r.stalls))
}

func TestExecutorUnknownPlayer(t *testing.T) {
	e, _, r := newTestExecutor(t, Config{DesyncTolerance: 1})
	defer e.Close()
	bad := NewFrameData(1, []PlayerInput{{Player: 9}})

	e.Buffer.Insert(bad)
	e.Update(0)
	assert.Equal(t, Pending, e.Buffer.State(1))
	assert.Equal(t, 0, len(r.desyncs))

	e.Buffer.Insert(bad)
	e.Update(0)
	assert.Equal(t, 1, len(r.desyncs))
	assert.Equal(t, DesyncUnknownPlayer, r.desyncs[0].Kind)
	assert.Equal(t, 2, r.desyncs[0].Drops)
	assert.Equal(t, uint64(0), e.Simulator.Space.TickCount())

	e.Buffer.Insert(botFrame(1))
	e.Update(0)
	assert.Equal(t, []uint64{1}, r.frames)
	assert.Equal(t, 0, e.drops)
}

// the authority never sends a tick twice, so a dropped frame must surface through the stall
func TestExecutorDroppedFrameNeverResent(t *testing.T) {
	e, _, r := newTestExecutor(t, Config{DesyncTolerance: 3})
	defer e.Close()
	dt := e.TickInterval()
	e.Buffer.Insert(NewFrameData(1, []PlayerInput{{Player: 9}}))
	for tick := uint64(2); tick <= 40; tick++ {
		e.Buffer.Insert(botFrame(tick))
	}

	for i := 0; i < 3; i++ {
		e.Update(dt)
	}
	assert.Equal(t, 0, len(r.desyncs))
	assert.T(t, e.Stalled())

	for i := 0; i < 30; i++ {
		e.Update(dt)
	}
	assert.Equal(t, 1, len(r.desyncs))
	assert.Equal(t, DesyncUnknownPlayer, r.desyncs[0].Kind)
	assert.Equal(t, uint64(1), r.desyncs[0].Tick)
	assert.Equal(t, 1, r.desyncs[0].Drops)
	assert.Equal(t, uint64(0), e.Simulator.Space.TickCount())
	assert.Equal(t, uint64(1), e.Buffer.Cursor())
}

func TestExecutorReceive(t *testing.T) {
	e, _, r := newTestExecutor(t, Config{DesyncTolerance: 2, ChecksumInterval: 2})
	stream := &fakeStream{messages: make(chan Message, 16)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Receive(ctx, stream) }()

	for _, tick := range []uint64{2, 1} {
		f := botFrame(tick)
		stream.messages <- Message{Frame: &f}
	}
	waitFor(t, func() bool { return e.Buffer.Len() == 2 })
	e.Update(0)
	assert.Equal(t, []uint64{1, 2}, r.frames)

	for i := 0; i < 3; i++ {
		f := botFrame(1)
		stream.messages <- Message{Frame: &f}
	}
	waitFor(t, func() bool { return e.stale.Load() == 3 })
	e.Update(0)
	assert.Equal(t, 1, len(r.desyncs))
	assert.Equal(t, DesyncStaleFrame, r.desyncs[0].Kind)

	good := Checksum{Tick: 2, Sum: r.sums[1]}
	bad := Checksum{Tick: 2, Sum: r.sums[1] + 1}
	stream.messages <- Message{Checksum: &good}
	stream.messages <- Message{Checksum: &bad}
	waitFor(t, func() bool {
		e.checksumLock.Lock()
		defer e.checksumLock.Unlock()
		return len(e.remoteSums) == 2
	})
	e.Update(0)
	assert.Equal(t, 2, len(r.desyncs))
	assert.Equal(t, DesyncChecksum, r.desyncs[1].Kind)
	assert.Equal(t, r.sums[1], r.desyncs[1].Local)

	cancel()
	close(stream.messages)
	assert.T(t, <-done != nil)
	assert.T(t, e.Close() == nil)
	assert.T(t, e.Close() != nil)
}

func TestExecutorSendsChecksums(t *testing.T) {
	e, ch, r := newTestExecutor(t, Config{ChecksumInterval: 5})
	for tick := uint64(1); tick <= 12; tick++ {
		e.Buffer.Insert(botFrame(tick))
	}
	e.Update(0)
	assert.Equal(t, 12, len(r.frames))
	waitFor(t, func() bool { _, n := ch.counts(); return n == 2 })
	ch.Lock()
	assert.Equal(t, Checksum{Tick: 5, Sum: r.sums[4]}, ch.checksums[0])
	assert.Equal(t, Checksum{Tick: 10, Sum: r.sums[9]}, ch.checksums[1])
	ch.Unlock()
	e.Close()
	assert.T(t, e.Simulator.Space.Step() != nil)
}

func TestExecutorDeterminism(t *testing.T) {
	const ticks = 240
	run := func(seed int64) []uint64 {
		e, _, r := newTestExecutor(t, Config{})
		defer e.Close()
		rnd := rand.New(rand.NewSource(seed))
		order := rnd.Perm(ticks)
		for len(order) > 0 {
			n := 1 + rnd.Intn(10)
			if n > len(order) {
				n = len(order)
			}
			for _, i := range order[:n] {
				e.Buffer.Insert(botFrame(uint64(i + 1)))
			}
			order = order[n:]
			e.Update(time.Duration(rnd.Intn(30)) * time.Millisecond)
		}
		for e.Buffer.Cursor() <= ticks {
			e.Update(0)
		}
		assert.Equal(t, ticks, len(r.frames))
		for i, tick := range r.frames {
			assert.Equal(t, uint64(i+1), tick)
		}
		return r.sums
	}
	a := run(1)
	b := run(2)
	assert.Equal(t, a, b)
}

func TestSimulatorApply(t *testing.T) {
	sim := newTestSimulator(t)
	id, ok := sim.PlayerBody(1)
	assert.T(t, ok)
	b, _ := sim.Space.Body(id)
	assert.Equal(t, []PlayerID{1, 2}, sim.Players())

	assert.T(t, sim.Apply(NewFrameData(1, []PlayerInput{{Player: 1, Forward: fixed.One, Strafe: fixed.Half}})) == nil)
	assert.Equal(t, fixed.FromInt(-5), b.LinearVelocity.Z)
	assert.Equal(t, fixed.FromRatio(5, 2), b.LinearVelocity.X)

	assert.T(t, sim.Apply(NewFrameData(2, []PlayerInput{{Player: 1, Forward: fixed.Two, Buttons: ButtonJump}})) == nil)
	assert.Equal(t, fixed.FromInt(-5), b.LinearVelocity.Z)
	assert.Equal(t, fixed.FromInt(5), b.LinearVelocity.Y)

	assert.T(t, sim.Apply(NewFrameData(3, []PlayerInput{{Player: 1, Forward: fixed.One, Buttons: ButtonBrake}})) == nil)
	assert.Equal(t, fixed.Zero, b.LinearVelocity.Z)

	err := sim.Apply(NewFrameData(4, []PlayerInput{{Player: 3}}))
	assert.T(t, err != nil)
	sim.RemovePlayer(2)
	assert.T(t, sim.Validate(NewFrameData(5, []PlayerInput{{Player: 2}})) != nil)
}
