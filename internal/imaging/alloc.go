package imaging

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
)

// DefaultMaxAlloc is the largest single pixel allocation BudgetAllocator
// admits when no limit is configured.
const DefaultMaxAlloc int64 = 256 << 20

// ErrAllocLimit is the cause attached to allocations rejected by a budget.
var ErrAllocLimit = errors.New("allocation exceeds budget")

// Allocator hands out pixel storage for decodes.
//
// Admit is asked before a decoder allocates memory it controls itself, and
// Alloc provides the storage of every RasterBuffer. Both are called while the
// decode throttle is held.
type Allocator interface {
	Admit(n int64) error
	Alloc(n int64) ([]byte, error)
}

// BudgetAllocator rejects any single allocation larger than Limit bytes.
// A zero Limit means DefaultMaxAlloc.
type BudgetAllocator struct {
	Limit int64
}

func (a BudgetAllocator) limit() int64 {
	if a.Limit > 0 {
		return a.Limit
	}
	return DefaultMaxAlloc
}

// Admit reports whether an n byte allocation fits the budget.
func (a BudgetAllocator) Admit(n int64) error {
	if n < 0 || n > a.limit() || n > math.MaxInt {
		return fmt.Errorf("%w: %d bytes requested, limit %d", ErrAllocLimit, n, a.limit())
	}
	return nil
}

// Alloc returns a zeroed slice of n bytes.
func (a BudgetAllocator) Alloc(n int64) (b []byte, err error) {
	if err := a.Admit(n); err != nil {
		return nil, err
	}
	err = guardAlloc(func() error {
		b = make([]byte, n)
		return nil
	})
	return b, err
}

// errAllocPanic wraps a recovered allocation panic.
type errAllocPanic struct {
	msg string
}

func (e errAllocPanic) Error() string { return "allocation failed: " + e.msg }

// guardAlloc runs fn and converts a runtime allocation panic (such as
// "makeslice: len out of range") into an error. Other panics propagate.
func guardAlloc(fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if re, ok := r.(runtime.Error); ok && isAllocPanic(re.Error()) {
			err = errAllocPanic{msg: re.Error()}
			return
		}
		panic(r)
	}()
	return fn()
}

func isAllocPanic(msg string) bool {
	return strings.Contains(msg, "makeslice") ||
		strings.Contains(msg, "out of memory") ||
		strings.Contains(msg, "growslice")
}

// isAllocFailure reports whether err came from an allocation budget or a
// recovered allocation panic.
func isAllocFailure(err error) bool {
	var ap errAllocPanic
	return errors.Is(err, ErrAllocLimit) || errors.As(err, &ap)
}

// rasterBytes is the footprint of a w x h buffer at bpp bytes per pixel,
// or -1 when it overflows int64.
func rasterBytes(w, h, bpp int) int64 {
	if w <= 0 || h <= 0 || bpp <= 0 {
		return 0
	}
	n := int64(w) * int64(h)
	if n/int64(h) != int64(w) || n > math.MaxInt64/int64(bpp) {
		return -1
	}
	return n * int64(bpp)
}
