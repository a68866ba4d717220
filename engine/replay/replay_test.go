package replay

import (
	"math/rand"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/post"
	"github.com/xiaonanln/gwphys/engine/scene"
)

func botFrame(rnd *rand.Rand, tick uint64) lockstep.FrameData {
	return lockstep.NewFrameData(tick, []lockstep.PlayerInput{
		{Player: 1, Forward: fixed.FromRatio(int64(rnd.Intn(21)-10), 10), Strafe: fixed.FromRatio(int64(rnd.Intn(21)-10), 10)},
		{Player: 2, Forward: fixed.FromRatio(int64(rnd.Intn(21)-10), 10), Buttons: uint32(rnd.Intn(4))},
	})
}

func buildScene(t *testing.T, seed int64) *scene.Scene {
	c := scene.DefaultConfig()
	c.Seed = seed
	sc, err := scene.Build(c)
	assert.T(t, err == nil)
	return sc
}

// record plays ticks frames on a fresh scene, journaling a checksum every 10 ticks
func record(t *testing.T, backend Backend, ticks uint64) string {
	sc := buildScene(t, 3)
	r := NewRecorder(backend, Meta{Players: sc.Players(), TickRate: 60, Seed: 3, Attrs: scene.DefaultConfig().Attrs()})
	rnd := rand.New(rand.NewSource(11))
	for tick := uint64(1); tick <= ticks; tick++ {
		f := botFrame(rnd, tick)
		assert.T(t, sc.Step(f) == nil)
		r.RecordFrame(f)
		if tick%10 == 0 {
			r.RecordChecksum(lockstep.Checksum{Tick: tick, Sum: sc.Space.Checksum()})
		}
	}
	r.Close()
	return r.Session()
}

func TestRecordAndVerify(t *testing.T) {
	backend, err := Open(BackendFileSystem, t.TempDir(), "", 0)
	assert.T(t, err == nil)
	defer backend.Close()

	session := record(t, backend, 200)
	assert.T(t, session != "")
	sessions, err := backend.List()
	assert.T(t, err == nil)
	assert.Equal(t, []string{session}, sessions)

	rec, err := backend.Load(session)
	assert.T(t, err == nil)
	assert.Equal(t, 200, len(rec.Frames))
	assert.Equal(t, 20, len(rec.Checksums))
	assert.T(t, rec.Meta.Created > 0)

	c, err := scene.FromAttrs(scene.DefaultConfig(), rec.Meta.Attrs)
	assert.T(t, err == nil)
	c.Players = rec.Meta.Players
	c.Seed = rec.Meta.Seed
	sc, err := scene.Build(c)
	assert.T(t, err == nil)
	report, err := Verify(rec, sc.Simulator)
	assert.T(t, err == nil)
	assert.Equal(t, Report{Frames: 200, Checked: 20}, report)

	// a different scene diverges at the first checksum
	c.Boxes++
	sc, err = scene.Build(c)
	assert.T(t, err == nil)
	report, err = Verify(rec, sc.Simulator)
	assert.T(t, err == nil)
	assert.T(t, report.Divergence != nil)
	assert.Equal(t, uint64(10), report.Divergence.Tick)
	assert.Equal(t, 1, report.Checked)

	rec.Checksums[5].Sum++
	report, err = Verify(rec, buildScene(t, 3).Simulator)
	assert.T(t, err == nil)
	assert.Equal(t, uint64(60), report.Divergence.Tick)
	assert.Equal(t, rec.Checksums[5].Sum, report.Divergence.Recorded)
	assert.Equal(t, 60, report.Frames)
}

func TestVerifyRejectsGaps(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	rec := &Recording{Frames: []lockstep.FrameData{botFrame(rnd, 1), botFrame(rnd, 3)}}
	report, err := Verify(rec, buildScene(t, 1).Simulator)
	assert.T(t, err != nil)
	assert.Equal(t, 1, report.Frames)

	rec = &Recording{Frames: []lockstep.FrameData{lockstep.NewFrameData(1, []lockstep.PlayerInput{{Player: 7}})}}
	_, err = Verify(rec, buildScene(t, 1).Simulator)
	assert.Equal(t, lockstep.ErrUnknownPlayer, errors.Cause(err))
}

func TestFlushCallback(t *testing.T) {
	backend, err := Open(BackendFileSystem, t.TempDir(), "", 0)
	assert.T(t, err == nil)
	r := NewRecorder(backend, Meta{Session: "flush"})
	r.RecordFrame(lockstep.NewFrameData(1, nil))

	var flushed, called bool
	r.Flush(func(err error) {
		flushed = err == nil
		called = true
	})
	deadline := time.Now().Add(5 * time.Second)
	for !called && time.Now().Before(deadline) {
		post.Tick()
		time.Sleep(time.Millisecond)
	}
	assert.T(t, flushed)
	rec, err := backend.Load("flush")
	assert.T(t, err == nil)
	assert.Equal(t, 1, len(rec.Frames))

	r.Close()
	r.Close()
	called = false
	r.Flush(func(err error) { called = err != nil })
	post.Tick()
	assert.T(t, called)
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("tape", "", "", 0)
	assert.T(t, err != nil)
}
