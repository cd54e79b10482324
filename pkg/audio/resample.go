package audio

// ResampleMono16 resamples little-endian 16-bit mono PCM from srcRate to
// dstRate using linear interpolation. When srcRate equals dstRate or the
// input is shorter than one sample, the input is returned unchanged.
//
// The output length is len(pcm) * dstRate / srcRate rounded down to whole
// samples, so downsampling by 2 halves the byte length (±2 bytes).
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}

	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(pcm[idx*2]) | int16(pcm[idx*2+1])<<8
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(pcm[(idx+1)*2]) | int16(pcm[(idx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
