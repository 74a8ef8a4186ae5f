package audio

import (
	"math"
	"time"
)

// Buffer holds mono 16-bit PCM samples at a known sample rate. All pipeline
// audio is normalized into this shape before segmentation.
type Buffer struct {
	SampleRate int
	Samples    []int16
}

// Duration reports the buffer length as a time.Duration.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Millis reports the buffer length in whole milliseconds.
func (b *Buffer) Millis() int {
	if b.SampleRate <= 0 {
		return 0
	}
	return len(b.Samples) * 1000 / b.SampleRate
}

func (b *Buffer) sampleIndex(ms int) int {
	idx := ms * b.SampleRate / 1000
	if idx < 0 {
		return 0
	}
	if idx > len(b.Samples) {
		return len(b.Samples)
	}
	return idx
}

// Slice returns a copy of the buffer covering [startMs, endMs), clamped to
// the buffer bounds.
func (b *Buffer) Slice(startMs, endMs int) *Buffer {
	start := b.sampleIndex(startMs)
	end := b.sampleIndex(endMs)
	if end < start {
		end = start
	}
	samples := make([]int16, end-start)
	copy(samples, b.Samples[start:end])
	return &Buffer{SampleRate: b.SampleRate, Samples: samples}
}

// DBFS computes the RMS level of [startMs, endMs) relative to full scale.
// An empty or all-zero window reports math.Inf(-1).
func (b *Buffer) DBFS(startMs, endMs int) float64 {
	start := b.sampleIndex(startMs)
	end := b.sampleIndex(endMs)
	if end <= start {
		return math.Inf(-1)
	}

	var sum float64
	for _, sample := range b.Samples[start:end] {
		v := float64(sample)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(end-start))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/32768.0)
}

// Resample returns the buffer converted to the target sample rate using
// linear interpolation. The conversion stage already emits the pipeline rate,
// so this mostly defends against out-of-band inputs.
func (b *Buffer) Resample(rate int) *Buffer {
	if rate <= 0 || rate == b.SampleRate || len(b.Samples) == 0 {
		return &Buffer{SampleRate: rate, Samples: append([]int16(nil), b.Samples...)}
	}

	outLen := int(int64(len(b.Samples)) * int64(rate) / int64(b.SampleRate))
	if outLen == 0 {
		outLen = 1
	}
	out := make([]int16, outLen)
	ratio := float64(b.SampleRate) / float64(rate)
	for i := range out {
		pos := float64(i) * ratio
		left := int(pos)
		if left >= len(b.Samples)-1 {
			out[i] = b.Samples[len(b.Samples)-1]
			continue
		}
		frac := pos - float64(left)
		a := float64(b.Samples[left])
		c := float64(b.Samples[left+1])
		out[i] = int16(math.Round(a + (c-a)*frac))
	}
	return &Buffer{SampleRate: rate, Samples: out}
}
