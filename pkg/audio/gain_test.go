package audio

import (
	"encoding/binary"
	"testing"
)

func sample16(values ...int16) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func TestApplyGain_Unity(t *testing.T) {
	t.Parallel()

	in := sample16(100, -200, 300)
	out := ApplyGain(in, 1)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("byte %d changed under unity gain", i)
		}
	}
	// Must be a copy, not the same backing array.
	out[0] ^= 0xFF
	if in[0] == out[0] {
		t.Error("ApplyGain returned the input slice")
	}
}

func TestApplyGain_Doubles(t *testing.T) {
	t.Parallel()

	out := ApplyGain(sample16(100, -100), 2)
	if got := int16(binary.LittleEndian.Uint16(out)); got != 200 {
		t.Errorf("sample 0 = %d, want 200", got)
	}
	if got := int16(binary.LittleEndian.Uint16(out[2:])); got != -200 {
		t.Errorf("sample 1 = %d, want -200", got)
	}
}

func TestApplyGain_Saturates(t *testing.T) {
	t.Parallel()

	out := ApplyGain(sample16(30000, -30000), 2)
	if got := int16(binary.LittleEndian.Uint16(out)); got != 32767 {
		t.Errorf("sample 0 = %d, want saturation at 32767", got)
	}
	if got := int16(binary.LittleEndian.Uint16(out[2:])); got != -32768 {
		t.Errorf("sample 1 = %d, want saturation at -32768", got)
	}
}

func TestApplyGain_DropsOddTrailingByte(t *testing.T) {
	t.Parallel()

	if got := ApplyGain([]byte{1, 2, 3}, 2); len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}
