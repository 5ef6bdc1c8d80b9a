package lock

import (
	"runtime"
	"sync/atomic"
)

// SpinLock guards the few words shared between the scheduler loop and
// producers running outside it (serial reception, console goroutine).
// Critical sections must stay short and must never block.
type SpinLock uint32

const maxBackOff = 32

func (sl *SpinLock) Lock() {
	backoff := 1
	for !atomic.CompareAndSwapUint32((*uint32)(sl), 0, 1) {
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < maxBackOff {
			backoff <<= 1
		}
	}
}

func (sl *SpinLock) TryLock() bool {
	return atomic.CompareAndSwapUint32((*uint32)(sl), 0, 1)
}

func (sl *SpinLock) Unlock() {
	atomic.StoreUint32((*uint32)(sl), 0)
}

// Critical runs fn with the lock held.
func (sl *SpinLock) Critical(fn func()) {
	sl.Lock()
	defer sl.Unlock()
	fn()
}
