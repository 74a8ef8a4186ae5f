package audio

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"scribe/internal/logging"
	"scribe/internal/services"
)

// Options tunes the silence-based splitter.
type Options struct {
	// MinSilenceMillis is the shortest gap treated as a split point.
	MinSilenceMillis int
	// SilenceThresholdDB marks windows at or below this dBFS level as silent.
	SilenceThresholdDB float64
	// KeepSilenceMillis pads each chunk with surrounding silence so words at
	// the boundaries are not clipped.
	KeepSilenceMillis int
	// MaxSegmentMillis caps a chunk; longer chunks are re-sliced.
	MaxSegmentMillis int
	// TargetMillis is the slice length used when re-slicing oversized chunks
	// and when no silence is found at all.
	TargetMillis int
	// MinChunkMillis drops fragments too short to transcribe.
	MinChunkMillis int
}

// Chunk is one exported speech segment with its position in the source audio.
type Chunk struct {
	StartMillis int
	EndMillis   int
	Buffer      *Buffer
}

// SegmentFile is a chunk written to disk, ready for recognition.
type SegmentFile struct {
	Path        string
	StartMillis int
	EndMillis   int
}

// PipelineSampleRate is the rate every exported segment is normalized to.
const PipelineSampleRate = 16000

// silenceSeekStep is the window stride for silence scanning, in milliseconds.
const silenceSeekStep = 10

// Segmenter splits normalized audio into speech chunks on silence boundaries.
type Segmenter struct {
	opts   Options
	logger *slog.Logger
}

func NewSegmenter(opts Options, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Segmenter{opts: opts, logger: logger.With(logging.String(logging.FieldComponent, "segmenter"))}
}

// Segment loads the WAV at path, splits it, and writes each chunk to
// outputDir as {sourceID}_segment_{n}.wav (1-indexed, pipeline rate, mono).
func (s *Segmenter) Segment(path, sourceID, outputDir string) ([]SegmentFile, error) {
	buf, err := LoadWAV(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "segment", "load", path, err)
	}
	if buf.SampleRate != PipelineSampleRate {
		buf = buf.Resample(PipelineSampleRate)
	}

	chunks := s.Split(buf)
	if len(chunks) == 0 {
		return nil, services.Wrap(services.ErrValidation, "segment", "split", "no usable audio in "+path, nil)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, services.Wrap(nil, "segment", "mkdir", outputDir, err)
	}

	files := make([]SegmentFile, 0, len(chunks))
	for i, chunk := range chunks {
		name := fmt.Sprintf("%s_segment_%d.wav", sourceID, i+1)
		out := filepath.Join(outputDir, name)
		if err := chunk.Buffer.WriteWAV(out); err != nil {
			return nil, services.Wrap(nil, "segment", "export", name, err)
		}
		files = append(files, SegmentFile{Path: out, StartMillis: chunk.StartMillis, EndMillis: chunk.EndMillis})
	}

	s.logger.Info("audio segmented",
		logging.String("source", filepath.Base(path)),
		logging.Int("chunks", len(files)),
		logging.Int("duration_ms", buf.Millis()))
	return files, nil
}

// Split divides the buffer into chunks. Silence gaps of at least
// MinSilenceMillis become split points, with KeepSilenceMillis retained on
// each side. When no silence is found the buffer is sliced into fixed
// TargetMillis pieces so the whole input stays covered. Chunks longer than
// MaxSegmentMillis are re-sliced and chunks shorter than MinChunkMillis are
// dropped.
func (s *Segmenter) Split(buf *Buffer) []Chunk {
	total := buf.Millis()
	if total == 0 {
		return nil
	}

	ranges := nonsilentRanges(buf, s.opts.MinSilenceMillis, s.opts.SilenceThresholdDB)

	var chunks []Chunk
	if len(ranges) <= 1 {
		chunks = s.fixedSlices(buf, 0, total)
	} else {
		for _, r := range ranges {
			start := r[0] - s.opts.KeepSilenceMillis
			if start < 0 {
				start = 0
			}
			end := r[1] + s.opts.KeepSilenceMillis
			if end > total {
				end = total
			}
			chunks = append(chunks, Chunk{StartMillis: start, EndMillis: end, Buffer: buf.Slice(start, end)})
		}
	}

	var out []Chunk
	for _, chunk := range chunks {
		length := chunk.EndMillis - chunk.StartMillis
		if length > s.opts.MaxSegmentMillis {
			out = append(out, s.fixedSlices(buf, chunk.StartMillis, chunk.EndMillis)...)
			continue
		}
		out = append(out, chunk)
	}

	kept := out[:0]
	for _, chunk := range out {
		if chunk.EndMillis-chunk.StartMillis < s.opts.MinChunkMillis {
			continue
		}
		kept = append(kept, chunk)
	}
	return kept
}

// fixedSlices covers [startMs, endMs) with TargetMillis pieces. The final
// piece absorbs the remainder and may be shorter.
func (s *Segmenter) fixedSlices(buf *Buffer, startMs, endMs int) []Chunk {
	target := s.opts.TargetMillis
	if target <= 0 {
		target = endMs - startMs
	}

	var chunks []Chunk
	for pos := startMs; pos < endMs; pos += target {
		end := pos + target
		if end > endMs {
			end = endMs
		}
		chunks = append(chunks, Chunk{StartMillis: pos, EndMillis: end, Buffer: buf.Slice(pos, end)})
	}
	return chunks
}

// nonsilentRanges returns the spans of audio louder than the threshold, as
// [start, end) millisecond pairs. Adjacent silent windows are merged before
// the complement is taken.
func nonsilentRanges(buf *Buffer, minSilenceMs int, thresholdDB float64) [][2]int {
	total := buf.Millis()
	if minSilenceMs <= 0 || minSilenceMs > total {
		return [][2]int{{0, total}}
	}

	var silent [][2]int
	for pos := 0; pos+minSilenceMs <= total; pos += silenceSeekStep {
		if buf.DBFS(pos, pos+minSilenceMs) > thresholdDB {
			continue
		}
		end := pos + minSilenceMs
		if n := len(silent); n > 0 && pos <= silent[n-1][1] {
			silent[n-1][1] = end
			continue
		}
		silent = append(silent, [2]int{pos, end})
	}

	if len(silent) == 0 {
		return [][2]int{{0, total}}
	}

	var ranges [][2]int
	cursor := 0
	for _, gap := range silent {
		if gap[0] > cursor {
			ranges = append(ranges, [2]int{cursor, gap[0]})
		}
		cursor = gap[1]
	}
	if cursor < total {
		ranges = append(ranges, [2]int{cursor, total})
	}
	return ranges
}
