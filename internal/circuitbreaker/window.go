package circuitbreaker

import "time"

// bucket holds error and request counts for a 1-second slot.
type bucket struct {
	errors float64 // weighted error sum
	total  int     // total calls
}

// slidingWindow is a fixed-size ring buffer of 1-second buckets.
// The array is stack-allocated to avoid heap allocs.
type slidingWindow struct {
	buckets  [60]bucket // fixed-size, no heap alloc
	size     int        // number of active buckets (== windowSeconds)
	head     int        // index of current bucket
	headTime int64      // unix seconds of head bucket
}

// newSlidingWindow creates a sliding window with the given bucket count (capped at 60).
func newSlidingWindow(windowSeconds int) slidingWindow {
	if windowSeconds <= 0 || windowSeconds > 60 {
		windowSeconds = 60
	}
	return slidingWindow{size: windowSeconds}
}

// advance moves the head forward to the current second, clearing stale buckets.
func (w *slidingWindow) advance(nowSec int64) {
	if w.headTime == 0 {
		w.headTime = nowSec
		return
	}
	gap := nowSec - w.headTime
	if gap <= 0 {
		return
	}
	// Clear buckets that have expired.
	clear := min(int(gap), w.size)
	for i := range clear {
		idx := (w.head + 1 + i) % w.size
		w.buckets[idx] = bucket{}
	}
	w.head = (w.head + int(gap)) % w.size
	w.headTime = nowSec
}

// record adds a call with the given error weight to the current bucket.
// Weight 0 means success.
func (w *slidingWindow) record(weight float64, now time.Time) {
	nowSec := now.Unix()
	w.advance(nowSec)
	w.buckets[w.head].total++
	w.buckets[w.head].errors += weight
}

// errorRate returns the weighted error rate and total sample count across the window.
func (w *slidingWindow) errorRate(now time.Time) (rate float64, samples int) {
	nowSec := now.Unix()
	w.advance(nowSec)
	var totalErrors float64
	var totalCalls int
	for i := range w.size {
		b := &w.buckets[i]
		totalErrors += b.errors
		totalCalls += b.total
	}
	if totalCalls == 0 {
		return 0, 0
	}
	return totalErrors / float64(totalCalls), totalCalls
}

// reset clears all buckets.
func (w *slidingWindow) reset() {
	for i := range w.size {
		w.buckets[i] = bucket{}
	}
	w.headTime = 0
	w.head = 0
}
