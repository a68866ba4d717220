package replayfilesystem

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/netutil"
	. "github.com/xiaonanln/gwphys/engine/replay/replay_common"
	"github.com/xiaonanln/typeconv"
)

func frames(from, to uint64) []lockstep.FrameData {
	var fs []lockstep.FrameData
	for tick := from; tick <= to; tick++ {
		fs = append(fs, lockstep.NewFrameData(tick, []lockstep.PlayerInput{
			{Player: 1, Forward: fixed.FromRatio(int64(tick), 10)},
			{Player: 2, Buttons: lockstep.ButtonJump},
		}))
	}
	return fs
}

func TestFileSystemReplayStorage(t *testing.T) {
	dir := t.TempDir()
	rs, err := OpenDirectory(filepath.Join(dir, "replays"))
	assert.T(t, err == nil)
	defer rs.Close()

	meta := Meta{Session: "s1", Created: 1500000000, Player: 2, Players: []lockstep.PlayerID{1, 2}, TickRate: 60, Seed: 9,
		Attrs: map[string]interface{}{"boxes": 4}}
	assert.T(t, rs.Create(meta) == nil)
	assert.T(t, rs.Create(meta) != nil)

	assert.T(t, rs.Append("s1", Batch{Frames: frames(1, 60), Checksums: []lockstep.Checksum{{Tick: 60, Sum: 1}}}) == nil)
	assert.T(t, rs.Append("s1", Batch{Frames: frames(61, 90)}) == nil)

	rec, err := rs.Load("s1")
	assert.T(t, err == nil)
	assert.Equal(t, "s1", rec.Meta.Session)
	assert.Equal(t, meta.Players, rec.Meta.Players)
	assert.Equal(t, int64(9), rec.Meta.Seed)
	assert.Equal(t, int64(4), typeconv.Int(rec.Meta.Attrs["boxes"]))
	assert.Equal(t, frames(1, 90), rec.Frames)
	assert.Equal(t, []lockstep.Checksum{{Tick: 60, Sum: 1}}, rec.Checksums)

	assert.T(t, rs.Create(Meta{Session: "s0"}) == nil)
	sessions, err := rs.List()
	assert.T(t, err == nil)
	assert.Equal(t, []string{"s0", "s1"}, sessions)

	rec, err = rs.Load("s0")
	assert.T(t, err == nil)
	assert.Equal(t, 0, len(rec.Frames))

	_, err = rs.Load("missing")
	assert.Equal(t, ErrNotFound, errors.Cause(err))

	for _, bad := range []string{"", "..", "a/b", `a\b`} {
		assert.T(t, rs.Create(Meta{Session: bad}) != nil, bad)
	}
}

func TestTruncatedJournal(t *testing.T) {
	dir := t.TempDir()
	rs, err := OpenDirectory(dir)
	assert.T(t, err == nil)
	assert.T(t, rs.Create(Meta{Session: "crash"}) == nil)
	assert.T(t, rs.Append("crash", Batch{Frames: frames(1, 10)}) == nil)

	// half of a second write made it to disk
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	assert.T(t, netutil.WriteMsg(w, Batch{Frames: frames(11, 20)}) == nil)
	assert.T(t, w.Close() == nil)
	f, err := os.OpenFile(filepath.Join(dir, "crash"+journalSuffix), os.O_WRONLY|os.O_APPEND, 0644)
	assert.T(t, err == nil)
	_, err = f.Write(buf.Bytes()[:buf.Len()/2])
	assert.T(t, err == nil)
	assert.T(t, f.Close() == nil)

	rec, err := rs.Load("crash")
	assert.T(t, err == nil)
	assert.Equal(t, frames(1, 10), rec.Frames)
}
