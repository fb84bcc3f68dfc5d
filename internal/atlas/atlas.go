// Package atlas implements the render atlas: a packed bitmap with one bit
// per canonical framebuffer pixel.
//
// A set bit means the scaled colour buffer holds content for that pixel
// which the canonical framebuffer has to take on reconciliation. The same
// type also backs the coherency engine's residency map.
package atlas

import (
	"image"
	"math/bits"
	"sync/atomic"
)

// Atlas is a per-pixel bitmap over a width×height grid.
//
// Bits are packed into uint64 words, row by row, with every row starting
// on a word boundary so that span operations touch whole words. All
// methods are safe for concurrent use without external synchronization.
type Atlas struct {
	// words[y*stride + x/64] holds bit x%64 of row y.
	words []atomic.Uint64

	width  int
	height int
	stride int
}

// New creates an atlas for a width×height grid with every bit clear.
// Returns nil if dimensions are invalid (zero or negative).
func New(width, height int) *Atlas {
	if width <= 0 || height <= 0 {
		return nil
	}
	stride := (width + 63) / 64
	return &Atlas{
		words:  make([]atomic.Uint64, stride*height),
		width:  width,
		height: height,
		stride: stride,
	}
}

// Width returns the grid width.
func (a *Atlas) Width() int { return a.width }

// Height returns the grid height.
func (a *Atlas) Height() int { return a.height }

// Bounds returns the grid rectangle.
func (a *Atlas) Bounds() image.Rectangle {
	return image.Rect(0, 0, a.width, a.height)
}

// Mark sets the bit for (x, y). Out-of-bounds coordinates are ignored.
func (a *Atlas) Mark(x, y int) {
	if x < 0 || x >= a.width || y < 0 || y >= a.height {
		return
	}
	a.words[y*a.stride+x/64].Or(1 << (x & 63))
}

// IsMarked reports whether the bit for (x, y) is set. Returns false for
// out-of-bounds coordinates.
func (a *Atlas) IsMarked(x, y int) bool {
	if x < 0 || x >= a.width || y < 0 || y >= a.height {
		return false
	}
	return a.words[y*a.stride+x/64].Load()&(1<<(x&63)) != 0
}

// spanMask returns the bits of word w covered by [x0, x1).
func spanMask(w, x0, x1 int) uint64 {
	lo := max(x0-w*64, 0)
	hi := min(x1-w*64, 64)
	if lo >= hi {
		return 0
	}
	m := ^uint64(0) << lo
	if hi < 64 {
		m &= (uint64(1) << hi) - 1
	}
	return m
}

// clip reduces a span to the grid. ok is false if nothing remains.
func (a *Atlas) clip(y, x0, x1 int) (int, int, bool) {
	if y < 0 || y >= a.height {
		return 0, 0, false
	}
	x0, x1 = max(x0, 0), min(x1, a.width)
	return x0, x1, x0 < x1
}

// MarkSpan sets the bits of row y in [x0, x1).
func (a *Atlas) MarkSpan(y, x0, x1 int) {
	x0, x1, ok := a.clip(y, x0, x1)
	if !ok {
		return
	}
	row := y * a.stride
	for w := x0 / 64; w <= (x1-1)/64; w++ {
		a.words[row+w].Or(spanMask(w, x0, x1))
	}
}

// ClearSpan clears the bits of row y in [x0, x1).
func (a *Atlas) ClearSpan(y, x0, x1 int) {
	x0, x1, ok := a.clip(y, x0, x1)
	if !ok {
		return
	}
	row := y * a.stride
	for w := x0 / 64; w <= (x1-1)/64; w++ {
		a.words[row+w].And(^spanMask(w, x0, x1))
	}
}

// MarkRect sets every bit inside r.
func (a *Atlas) MarkRect(r image.Rectangle) {
	r = r.Intersect(a.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		a.MarkSpan(y, r.Min.X, r.Max.X)
	}
}

// ClearRect clears every bit inside r.
func (a *Atlas) ClearRect(r image.Rectangle) {
	r = r.Intersect(a.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		a.ClearSpan(y, r.Min.X, r.Max.X)
	}
}

// Any reports whether any bit inside r is set.
func (a *Atlas) Any(r image.Rectangle) bool {
	r = r.Intersect(a.Bounds())
	if r.Empty() {
		return false
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := y * a.stride
		for w := r.Min.X / 64; w <= (r.Max.X-1)/64; w++ {
			if a.words[row+w].Load()&spanMask(w, r.Min.X, r.Max.X) != 0 {
				return true
			}
		}
	}
	return false
}

// All reports whether every bit inside r is set. An empty r reports true.
func (a *Atlas) All(r image.Rectangle) bool {
	r = r.Intersect(a.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := y * a.stride
		for w := r.Min.X / 64; w <= (r.Max.X-1)/64; w++ {
			m := spanMask(w, r.Min.X, r.Max.X)
			if a.words[row+w].Load()&m != m {
				return false
			}
		}
	}
	return true
}

// CountRect returns the number of set bits inside r.
func (a *Atlas) CountRect(r image.Rectangle) int {
	r = r.Intersect(a.Bounds())
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := y * a.stride
		for w := r.Min.X / 64; w <= (r.Max.X-1)/64; w++ {
			n += bits.OnesCount64(a.words[row+w].Load() & spanMask(w, r.Min.X, r.Max.X))
		}
	}
	return n
}

// Count returns the number of set bits.
func (a *Atlas) Count() int {
	n := 0
	for i := range a.words {
		n += bits.OnesCount64(a.words[i].Load())
	}
	return n
}

// IsEmpty returns true if no bit is set.
func (a *Atlas) IsEmpty() bool {
	for i := range a.words {
		if a.words[i].Load() != 0 {
			return false
		}
	}
	return true
}

// Clear clears every bit.
func (a *Atlas) Clear() {
	for i := range a.words {
		a.words[i].Store(0)
	}
}

// Spans calls fn for each maximal run of set bits inside r, row by row
// from top to bottom and left to right. The bits are not modified.
func (a *Atlas) Spans(r image.Rectangle, fn func(y, x0, x1 int)) {
	a.runs(r, true, fn)
}

// Gaps calls fn for each maximal run of clear bits inside r.
func (a *Atlas) Gaps(r image.Rectangle, fn func(y, x0, x1 int)) {
	a.runs(r, false, fn)
}

func (a *Atlas) runs(r image.Rectangle, set bool, fn func(y, x0, x1 int)) {
	if fn == nil {
		return
	}
	r = r.Intersect(a.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := y * a.stride
		start := -1
		for w := r.Min.X / 64; w <= (r.Max.X-1)/64; w++ {
			m := spanMask(w, r.Min.X, r.Max.X)
			word := a.words[row+w].Load()
			if !set {
				word = ^word
			}
			word &= m
			// Fast paths for words that are entirely inside or outside a run.
			if word == m && start >= 0 {
				continue
			}
			if word == 0 && start < 0 {
				continue
			}
			for b := bits.TrailingZeros64(m); b < 64 && m&(1<<b) != 0; b++ {
				x := w*64 + b
				on := word&(1<<b) != 0
				switch {
				case on && start < 0:
					start = x
				case !on && start >= 0:
					fn(y, start, x)
					start = -1
				}
			}
		}
		if start >= 0 {
			fn(y, start, r.Max.X)
		}
	}
}

// CopyFrom replaces the contents of a with those of b. Both must have the
// same dimensions.
func (a *Atlas) CopyFrom(b *Atlas) {
	for i := range a.words {
		a.words[i].Store(b.words[i].Load())
	}
}
