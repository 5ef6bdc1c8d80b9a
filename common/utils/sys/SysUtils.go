package sys

import (
	"fmt"
	"runtime/debug"

	"github.com/coolcm/zaphod-bot/common/logger"
	"github.com/petermattis/goid"
)

func GetGID() uint64 {
	id := goid.Get()
	return uint64(id)
}

// PanicError carries a recovered panic value together with the stack and
// the goroutine it happened on.
type PanicError struct {
	Where string
	GID   uint64
	Value interface{}
	Stack string
}

func (self *PanicError) Error() string {
	return fmt.Sprintf("panic in %s (goroutine %d): %v", self.Where, self.GID, self.Value)
}

// CatchPanic recovers a panic raised below it, logs it and stores it in
// *errp. It must be deferred directly:
//
//	defer sys.CatchPanic("motion", &err)
func CatchPanic(where string, errp *error) {
	if v := recover(); v != nil {
		perr := &PanicError{
			Where: where,
			GID:   GetGID(),
			Value: v,
			Stack: string(debug.Stack()),
		}
		logger.Error("panic:", perr.GID, " ", where, " ", v, "\n", perr.Stack)
		if errp != nil {
			*errp = perr
		}
	}
}
