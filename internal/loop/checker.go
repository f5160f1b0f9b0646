package loop

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Checker remembers the goroutine that created it. Check panics when
// called from any other goroutine.
type Checker struct {
	owner uint64
}

// NewChecker binds a checker to the calling goroutine.
func NewChecker() *Checker {
	return &Checker{owner: goroutineID()}
}

// Check panics unless the caller runs on the owner goroutine.
func (c *Checker) Check() {
	if c == nil {
		return
	}
	if id := goroutineID(); id != c.owner {
		panic(fmt.Sprintf("loop: owner goroutine is %d, called from %d", c.owner, id))
	}
}

// IsOwner reports whether the caller runs on the owner goroutine.
func (c *Checker) IsOwner() bool {
	return c == nil || goroutineID() == c.owner
}

// goroutineID parses the "goroutine N [...]" header of the current stack.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	if i := strings.IndexByte(s, ' '); i > 0 {
		if id, err := strconv.ParseUint(s[:i], 10, 64); err == nil {
			return id
		}
	}
	return 0
}
