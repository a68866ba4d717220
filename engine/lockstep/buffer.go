package lockstep

import (
	"sync"

	"github.com/petar/GoLLRB/llrb"
)

// FrameState is the lifecycle of one tick in a FrameBuffer
type FrameState int

const (
	// Pending ticks are expected but not received yet
	Pending FrameState = iota
	// Confirmed ticks are received and waiting to be consumed
	Confirmed
	// Consumed ticks have been applied to the simulation
	Consumed
)

func (s FrameState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Confirmed:
		return "Confirmed"
	case Consumed:
		return "Consumed"
	}
	return "Unknown"
}

// InsertResult tells what Insert did with a frame
type InsertResult int

const (
	// Inserted frames are now confirmed
	Inserted InsertResult = iota
	// Duplicate frames hit a tick that is already confirmed
	Duplicate
	// Stale frames hit a tick that is already consumed
	Stale
)

type frameItem struct {
	frame FrameData
}

func (it *frameItem) Less(_other llrb.Item) bool {
	return it.frame.Tick < _other.(*frameItem).frame.Tick
}

func tickKey(tick uint64) *frameItem {
	return &frameItem{frame: FrameData{Tick: tick}}
}

// FrameBuffer is an ordered tick -> FrameData map with a consume cursor.
//
// Insert is safe to call from a receiving goroutine while a single consumer calls
// Peek, Consume, Drop and TakeNext.
type FrameBuffer struct {
	sync.Mutex
	tree        *llrb.LLRB
	cursor      uint64
	consumed    int // consumed entries still held
	maxConsumed int
	margin      uint64
}

// NewFrameBuffer creates a buffer whose cursor starts at tick 1. Once more than maxConsumed
// consumed entries are held, those older than watermark-margin are evicted.
func NewFrameBuffer(maxConsumed int, margin uint64) *FrameBuffer {
	return &FrameBuffer{
		tree:        llrb.New(),
		cursor:      1,
		maxConsumed: maxConsumed,
		margin:      margin,
	}
}

// Insert stores a copy of f. Existing and consumed ticks are left untouched.
func (fb *FrameBuffer) Insert(f FrameData) InsertResult {
	fb.Lock()
	defer fb.Unlock()
	if f.Tick < fb.cursor {
		return Stale
	}
	if fb.tree.Has(tickKey(f.Tick)) {
		return Duplicate
	}
	fb.tree.ReplaceOrInsert(&frameItem{frame: f.clone()})
	return Inserted
}

// Peek returns a copy of the frame at the cursor if it is confirmed
func (fb *FrameBuffer) Peek() (FrameData, bool) {
	fb.Lock()
	defer fb.Unlock()
	item := fb.tree.Get(tickKey(fb.cursor))
	if item == nil {
		return FrameData{}, false
	}
	return item.(*frameItem).frame.clone(), true
}

// Consume marks the frame at the cursor consumed and advances the cursor. It returns false
// when tick is not the confirmed frame at the cursor.
func (fb *FrameBuffer) Consume(tick uint64) bool {
	fb.Lock()
	defer fb.Unlock()
	if tick != fb.cursor || !fb.tree.Has(tickKey(tick)) {
		return false
	}
	fb.cursor++
	fb.consumed++
	fb.evict()
	return true
}

// TakeNext consumes and returns a copy of the frame at the cursor if it is confirmed
func (fb *FrameBuffer) TakeNext() (FrameData, bool) {
	fb.Lock()
	defer fb.Unlock()
	item := fb.tree.Get(tickKey(fb.cursor))
	if item == nil {
		return FrameData{}, false
	}
	fb.cursor++
	fb.consumed++
	fb.evict()
	return item.(*frameItem).frame.clone(), true
}

// Drop discards a confirmed frame that was not consumed, so the tick is pending again
func (fb *FrameBuffer) Drop(tick uint64) bool {
	fb.Lock()
	defer fb.Unlock()
	if tick < fb.cursor {
		return false
	}
	return fb.tree.Delete(tickKey(tick)) != nil
}

func (fb *FrameBuffer) evict() {
	if fb.consumed <= fb.maxConsumed {
		return
	}
	watermark := fb.cursor - 1
	if watermark <= fb.margin {
		return
	}
	threshold := watermark - fb.margin
	for fb.consumed > 0 {
		min := fb.tree.Min()
		if min == nil {
			break
		}
		tick := min.(*frameItem).frame.Tick
		// entries at or past the cursor are still pending consumption
		if tick >= threshold || tick >= fb.cursor {
			break
		}
		fb.tree.DeleteMin()
		fb.consumed--
	}
}

// State returns the lifecycle state of tick
func (fb *FrameBuffer) State(tick uint64) FrameState {
	fb.Lock()
	defer fb.Unlock()
	if tick < fb.cursor {
		return Consumed
	}
	if fb.tree.Has(tickKey(tick)) {
		return Confirmed
	}
	return Pending
}

// Cursor is the next tick to consume
func (fb *FrameBuffer) Cursor() uint64 {
	fb.Lock()
	defer fb.Unlock()
	return fb.cursor
}

// Watermark is the last consumed tick, 0 before the first
func (fb *FrameBuffer) Watermark() uint64 {
	fb.Lock()
	defer fb.Unlock()
	return fb.cursor - 1
}

// Len returns the number of held entries, consumed or not
func (fb *FrameBuffer) Len() int {
	fb.Lock()
	defer fb.Unlock()
	return fb.tree.Len()
}

// Held reports whether tick is still stored
func (fb *FrameBuffer) Held(tick uint64) bool {
	fb.Lock()
	defer fb.Unlock()
	return fb.tree.Has(tickKey(tick))
}

// Latest returns the highest confirmed tick, or the watermark when nothing newer is held
func (fb *FrameBuffer) Latest() uint64 {
	fb.Lock()
	defer fb.Unlock()
	if max := fb.tree.Max(); max != nil {
		if t := max.(*frameItem).frame.Tick; t >= fb.cursor {
			return t
		}
	}
	return fb.cursor - 1
}
