package utils

import (
	"fmt"
	"sync/atomic"
	"time"
)

var idSeq uint64

// GenID returns a process-unique message identifier. The nanosecond
// timestamp plus an atomic counter keeps IDs distinct even when many
// messages are created within the same instant.
func GenID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("msg-%d-%d", n, s)
}
