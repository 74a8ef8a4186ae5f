package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
)

var testOptions = Options{
	MinSilenceMillis:   300,
	SilenceThresholdDB: -35.0,
	KeepSilenceMillis:  200,
	MaxSegmentMillis:   10000,
	TargetMillis:       5000,
	MinChunkMillis:     500,
}

// span describes a stretch of generated audio: loud square wave or silence.
type span struct {
	millis int
	loud   bool
}

func makeBuffer(t *testing.T, spans ...span) *Buffer {
	t.Helper()
	buf := &Buffer{SampleRate: PipelineSampleRate}
	for _, sp := range spans {
		n := sp.millis * PipelineSampleRate / 1000
		for i := 0; i < n; i++ {
			var sample int16
			if sp.loud {
				sample = 8000
				if i%16 < 8 {
					sample = -8000
				}
			}
			buf.Samples = append(buf.Samples, sample)
		}
	}
	return buf
}

func TestSplitOnSilenceGap(t *testing.T) {
	buf := makeBuffer(t,
		span{millis: 5000, loud: true},
		span{millis: 2000, loud: false},
		span{millis: 5000, loud: true},
	)

	chunks := NewSegmenter(testOptions, nil).Split(buf)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}

	first, second := chunks[0], chunks[1]
	if first.StartMillis != 0 {
		t.Errorf("first chunk starts at %dms, want 0", first.StartMillis)
	}
	if first.EndMillis < 5000 || first.EndMillis > 5000+2*testOptions.KeepSilenceMillis {
		t.Errorf("first chunk ends at %dms, want 5000ms plus retained padding", first.EndMillis)
	}
	if second.StartMillis < 7000-2*testOptions.KeepSilenceMillis || second.StartMillis > 7000 {
		t.Errorf("second chunk starts at %dms, want 7000ms minus retained padding", second.StartMillis)
	}
	if second.EndMillis != 12000 {
		t.Errorf("second chunk ends at %dms, want 12000", second.EndMillis)
	}

	for _, chunk := range chunks {
		wantSamples := (chunk.EndMillis - chunk.StartMillis) * PipelineSampleRate / 1000
		if len(chunk.Buffer.Samples) != wantSamples {
			t.Errorf("chunk [%d,%d) carries %d samples, want %d",
				chunk.StartMillis, chunk.EndMillis, len(chunk.Buffer.Samples), wantSamples)
		}
	}
}

func TestSplitNoSilenceFallsBackToFixedSlices(t *testing.T) {
	buf := makeBuffer(t, span{millis: 12000, loud: true})

	chunks := NewSegmenter(testOptions, nil).Split(buf)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	cursor := 0
	for _, chunk := range chunks {
		if chunk.StartMillis != cursor {
			t.Errorf("gap before chunk at %dms, previous ended at %dms", chunk.StartMillis, cursor)
		}
		if chunk.EndMillis-chunk.StartMillis > testOptions.MaxSegmentMillis {
			t.Errorf("chunk [%d,%d) exceeds max length", chunk.StartMillis, chunk.EndMillis)
		}
		cursor = chunk.EndMillis
	}
	if cursor != 12000 {
		t.Errorf("coverage ends at %dms, want 12000", cursor)
	}
}

func TestSplitDropsShortFragments(t *testing.T) {
	buf := makeBuffer(t,
		span{millis: 200, loud: true},
		span{millis: 1000, loud: false},
		span{millis: 3000, loud: true},
	)

	chunks := NewSegmenter(testOptions, nil).Split(buf)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 (short fragment dropped): %+v", len(chunks), chunks)
	}
	if chunks[0].EndMillis != 4200 {
		t.Errorf("surviving chunk ends at %dms, want 4200", chunks[0].EndMillis)
	}
	if length := chunks[0].EndMillis - chunks[0].StartMillis; length < testOptions.MinChunkMillis {
		t.Errorf("surviving chunk is %dms, below minimum", length)
	}
}

func TestSplitReslicesOversizedChunks(t *testing.T) {
	buf := makeBuffer(t,
		span{millis: 12000, loud: true},
		span{millis: 1000, loud: false},
		span{millis: 2000, loud: true},
	)

	chunks := NewSegmenter(testOptions, nil).Split(buf)
	if len(chunks) < 4 {
		t.Fatalf("got %d chunks, want at least 4 after re-slicing", len(chunks))
	}
	for _, chunk := range chunks {
		length := chunk.EndMillis - chunk.StartMillis
		if length > testOptions.MaxSegmentMillis {
			t.Errorf("chunk [%d,%d) is %dms, exceeds max", chunk.StartMillis, chunk.EndMillis, length)
		}
		if length < testOptions.MinChunkMillis {
			t.Errorf("chunk [%d,%d) is %dms, below minimum", chunk.StartMillis, chunk.EndMillis, length)
		}
	}
}

func TestSplitEmptyBuffer(t *testing.T) {
	chunks := NewSegmenter(testOptions, nil).Split(&Buffer{SampleRate: PipelineSampleRate})
	if chunks != nil {
		t.Errorf("expected no chunks for empty buffer, got %+v", chunks)
	}
}

func TestSegmentWritesNumberedFiles(t *testing.T) {
	dir := t.TempDir()
	buf := makeBuffer(t,
		span{millis: 3000, loud: true},
		span{millis: 1000, loud: false},
		span{millis: 3000, loud: true},
	)
	source := filepath.Join(dir, "input.wav")
	if err := buf.WriteWAV(source); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	files, err := NewSegmenter(testOptions, nil).Segment(source, "item42", dir)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}

	for i, file := range files {
		wantName := fmt.Sprintf("item42_segment_%d.wav", i+1)
		if filepath.Base(file.Path) != wantName {
			t.Errorf("file %d named %q, want %q", i, filepath.Base(file.Path), wantName)
		}
		decoded, err := LoadWAV(file.Path)
		if err != nil {
			t.Fatalf("LoadWAV(%s): %v", file.Path, err)
		}
		if decoded.SampleRate != PipelineSampleRate {
			t.Errorf("exported rate %d, want %d", decoded.SampleRate, PipelineSampleRate)
		}
	}
}

func TestSegmentRejectsMissingFile(t *testing.T) {
	_, err := NewSegmenter(testOptions, nil).Segment(filepath.Join(t.TempDir(), "nope.wav"), "x", t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing input")
	}
	if _, statErr := os.Stat(filepath.Join(t.TempDir(), "x_segment_1.wav")); statErr == nil {
		t.Error("no segment files should exist after failure")
	}
}

func TestDBFS(t *testing.T) {
	silent := makeBuffer(t, span{millis: 1000, loud: false})
	if got := silent.DBFS(0, 1000); !math.IsInf(got, -1) {
		t.Errorf("silent dBFS = %v, want -Inf", got)
	}

	loud := makeBuffer(t, span{millis: 1000, loud: true})
	got := loud.DBFS(0, 1000)
	want := 20 * math.Log10(8000.0/32768.0)
	if math.Abs(got-want) > 0.1 {
		t.Errorf("loud dBFS = %v, want %v", got, want)
	}
}

func TestResampleHalvesLength(t *testing.T) {
	buf := makeBuffer(t, span{millis: 1000, loud: true})
	down := buf.Resample(8000)
	if down.SampleRate != 8000 {
		t.Errorf("rate = %d, want 8000", down.SampleRate)
	}
	if got, want := len(down.Samples), len(buf.Samples)/2; got != want {
		t.Errorf("resampled length %d, want %d", got, want)
	}
	if down.Millis() != 1000 {
		t.Errorf("duration %dms, want 1000", down.Millis())
	}
}
