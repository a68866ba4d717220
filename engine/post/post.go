// Package post hands callbacks from other goroutines to a main routine
package post

import (
	"sync"

	"github.com/xiaonanln/gwphys/engine/gwutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

// Queue collects posted callbacks until its owner calls Tick
type Queue struct {
	lock      sync.Mutex
	callbacks []PostCallback
}

// NewQueue creates an empty Queue
func NewQueue() *Queue {
	return &Queue{}
}

// Post a callback which will be executed when other things are done in the main routine.
// Post might be called from any goroutine.
func (q *Queue) Post(f PostCallback) {
	q.lock.Lock()
	q.callbacks = append(q.callbacks, f)
	q.lock.Unlock()
}

// Len returns the number of callbacks waiting
func (q *Queue) Len() int {
	q.lock.Lock()
	n := len(q.callbacks)
	q.lock.Unlock()
	return n
}

// Tick runs posted callbacks, including those posted by the callbacks themselves, and
// returns how many ran. A panicking callback is logged and skipped.
func (q *Queue) Tick() int {
	n := 0
	for {
		q.lock.Lock()
		if len(q.callbacks) == 0 {
			q.lock.Unlock()
			return n
		}
		callbacks := q.callbacks
		q.callbacks = make([]PostCallback, 0, len(callbacks))
		q.lock.Unlock()

		for _, f := range callbacks {
			gwutils.RunPanicless(f)
		}
		n += len(callbacks)
	}
}

var defaultQueue = NewQueue()

// Post a callback to the process main routine
func Post(f PostCallback) {
	defaultQueue.Post(f)
}

// Tick is called by the process main routine to run all posted functions
func Tick() int {
	return defaultQueue.Tick()
}
