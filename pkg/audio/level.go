package audio

import "math"

// RMS returns the normalized root-mean-square level of a little-endian int16
// PCM chunk in [0, 1]. Empty, too-short, or odd-length input yields 0. RMS
// never fails; the pipeline worker calls it on every chunk to drive the
// volume meter.
func RMS(chunk []byte) float64 {
	if len(chunk) < 2 {
		return 0
	}
	samples := len(chunk) / 2

	var sum float64
	for i := 0; i < samples; i++ {
		s := int16(chunk[i*2]) | int16(chunk[i*2+1])<<8
		f := float64(s)
		sum += f * f
	}

	level := math.Sqrt(sum/float64(samples)) / 32767.0
	if math.IsNaN(level) || level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}
