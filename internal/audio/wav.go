package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// LoadWAV reads a RIFF/WAVE file into a mono Buffer. Multi-channel input is
// downmixed by averaging. Only 16-bit PCM data is supported; the conversion
// stage always produces it, so anything else is a pipeline bug.
func LoadWAV(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	return DecodeWAV(data)
}

// DecodeWAV parses WAV bytes into a mono Buffer.
func DecodeWAV(data []byte) (*Buffer, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("decode wav: not a RIFF/WAVE file")
	}

	var (
		sampleRate    uint32
		channels      uint16
		bitsPerSample uint16
		haveFmt       bool
		pcm           []byte
	)

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, errors.New("decode wav: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("decode wav: unsupported audio format %d (want PCM)", format)
			}
			channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			pcm = data[body : body+chunkSize]
		}

		// Chunks are word-aligned.
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if !haveFmt {
		return nil, errors.New("decode wav: missing fmt chunk")
	}
	if pcm == nil {
		return nil, errors.New("decode wav: missing data chunk")
	}
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("decode wav: unsupported bit depth %d (want 16)", bitsPerSample)
	}
	if channels == 0 {
		return nil, errors.New("decode wav: zero channels")
	}
	if sampleRate == 0 {
		return nil, errors.New("decode wav: zero sample rate")
	}

	frames := len(pcm) / (2 * int(channels))
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		base := i * 2 * int(channels)
		for ch := 0; ch < int(channels); ch++ {
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[base+ch*2 : base+ch*2+2])))
		}
		samples[i] = int16(sum / int32(channels))
	}

	return &Buffer{SampleRate: int(sampleRate), Samples: samples}, nil
}

// WAV encodes the buffer as a mono 16-bit PCM WAV file.
func (b *Buffer) WAV() []byte {
	var buf bytes.Buffer

	const channels = 1
	const bitsPerSample = 16
	byteRate := b.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(b.Samples) * 2

	buf.Grow(44 + dataSize)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(b.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	for _, sample := range b.Samples {
		binary.Write(&buf, binary.LittleEndian, sample)
	}

	return buf.Bytes()
}

// WriteWAV writes the buffer to path as a mono 16-bit PCM WAV file.
func (b *Buffer) WriteWAV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	if _, err := io.Copy(file, bytes.NewReader(b.WAV())); err != nil {
		_ = file.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	return file.Close()
}
