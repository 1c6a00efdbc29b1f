package audio

import "encoding/binary"

// int16Norm is the magnitude of the most negative int16 sample.
const int16Norm = 32768

// FloatToInt16 scales normalised samples to int16, truncating toward zero
// and clamping to the int16 range. It writes into dst when it has enough
// capacity.
func FloatToInt16(dst []int16, src []float32) []int16 {
	if cap(dst) < len(src) {
		dst = make([]int16, len(src))
	}
	dst = dst[:len(src)]
	for i, s := range src {
		v := s * int16Norm
		switch {
		case v >= 32767:
			dst[i] = 32767
		case v <= -32768:
			dst[i] = -32768
		default:
			dst[i] = int16(v)
		}
	}
	return dst
}

// Int16ToFloat normalises int16 samples to [-1, 1).
func Int16ToFloat(src []int16) []float32 {
	out := make([]float32, len(src))
	for i, s := range src {
		out[i] = float32(s) / int16Norm
	}
	return out
}

// Int16ToBytes encodes samples as little-endian PCM.
func Int16ToBytes(src []int16) []byte {
	out := make([]byte, len(src)*2)
	for i, s := range src {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16 decodes little-endian PCM. A trailing odd byte is ignored.
func BytesToInt16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// IntsToFloat normalises integer PCM of the given bit depth (as produced by
// go-audio decoders) to [-1, 1).
func IntsToFloat(src []int, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	norm := float32(int64(1) << (bitDepth - 1))
	out := make([]float32, len(src))
	for i, s := range src {
		out[i] = float32(s) / norm
	}
	return out
}

// Downmix averages interleaved multi-channel samples to mono.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. The input is returned unchanged when the rates match or
// either rate is not positive.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	out := make([]float32, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
