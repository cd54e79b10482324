package audio

import "encoding/binary"

// ApplyGain returns a copy of pcm with every little-endian int16 sample
// multiplied by gain, saturating at the int16 range. A gain of 1 returns an
// unmodified copy. An odd trailing byte is dropped.
func ApplyGain(pcm []byte, gain float64) []byte {
	n := len(pcm) &^ 1
	out := make([]byte, n)
	if gain == 1 {
		copy(out, pcm[:n])
		return out
	}
	for i := 0; i+1 < n; i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		s *= gain
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(s)))
	}
	return out
}
