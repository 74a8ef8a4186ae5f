// Package timefmt converts floating-point second offsets into the timestamp
// strings used by transcripts and SRT subtitle files.
package timefmt

import (
	"fmt"
	"math"
)

// Clock renders seconds as HH:MM:SS.mmm for transcript display.
// Negative input is clamped to zero.
func Clock(seconds float64) string {
	h, m, s, ms := split(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// SRT renders seconds as HH:MM:SS,mmm per the SRT subtitle format.
// Negative input is clamped to zero.
func SRT(seconds float64) string {
	h, m, s, ms := split(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// split rounds to the nearest millisecond (half away from zero) and
// decomposes by successive integer division. Subtitle consumers expect this
// decomposition to be bit-exact, so all arithmetic stays integral after the
// single rounding step.
func split(seconds float64) (h, m, s, ms int64) {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000.0))
	h, total = total/3600000, total%3600000
	m, total = total/60000, total%60000
	s, ms = total/1000, total%1000
	return h, m, s, ms
}
