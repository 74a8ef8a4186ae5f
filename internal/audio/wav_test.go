package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	original := &Buffer{
		SampleRate: PipelineSampleRate,
		Samples:    []int16{0, 100, -100, 32767, -32768, 5},
	}

	decoded, err := DecodeWAV(original.WAV())
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if decoded.SampleRate != original.SampleRate {
		t.Errorf("rate = %d, want %d", decoded.SampleRate, original.SampleRate)
	}
	if len(decoded.Samples) != len(original.Samples) {
		t.Fatalf("got %d samples, want %d", len(decoded.Samples), len(original.Samples))
	}
	for i := range original.Samples {
		if decoded.Samples[i] != original.Samples[i] {
			t.Errorf("sample %d = %d, want %d", i, decoded.Samples[i], original.Samples[i])
		}
	}
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+8))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint32(44100))
	binary.Write(&buf, binary.LittleEndian, uint32(44100*4))
	binary.Write(&buf, binary.LittleEndian, uint16(4))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(8))
	// Two frames: (100, 300) and (-200, -400).
	for _, sample := range []int16{100, 300, -200, -400} {
		binary.Write(&buf, binary.LittleEndian, sample)
	}

	decoded, err := DecodeWAV(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if decoded.SampleRate != 44100 {
		t.Errorf("rate = %d, want 44100", decoded.SampleRate)
	}
	if len(decoded.Samples) != 2 || decoded.Samples[0] != 200 || decoded.Samples[1] != -300 {
		t.Errorf("downmix = %v, want [200 -300]", decoded.Samples)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":     nil,
		"not riff":  []byte("JUNKDATAJUNKDATA"),
		"no chunks": []byte("RIFF\x04\x00\x00\x00WAVE"),
	}
	for name, data := range cases {
		if _, err := DecodeWAV(data); err == nil {
			t.Errorf("%s: expected decode error", name)
		}
	}
}
