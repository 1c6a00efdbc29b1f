package audio_test

import (
	"testing"
	"time"

	"github.com/MrWong99/kupo/pkg/audio"
)

func TestFloatToInt16(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"full scale positive clamps", 1.0, 32767},
		{"full scale negative", -1.0, -32768},
		{"over range clamps", 1.7, 32767},
		{"under range clamps", -3, -32768},
		{"truncates toward zero", 0.00002, 0},
		{"negative truncates toward zero", -0.00002, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := audio.FloatToInt16(nil, []float32{tc.in})
			if got[0] != tc.want {
				t.Errorf("FloatToInt16(%v) = %d, want %d", tc.in, got[0], tc.want)
			}
		})
	}
}

func TestFloatToInt16_ReusesBuffer(t *testing.T) {
	t.Parallel()
	buf := make([]int16, 0, 8)
	out := audio.FloatToInt16(buf, []float32{0.1, 0.2})
	if &out[0] != &buf[:1][0] {
		t.Error("FloatToInt16 allocated despite sufficient capacity")
	}
}

func TestInt16RoundTrip(t *testing.T) {
	t.Parallel()
	in := []int16{0, 1, -1, 12345, -32768, 32767}
	back := audio.FloatToInt16(nil, audio.Int16ToFloat(in))
	for i := range in {
		if back[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, back[i], in[i])
		}
	}
}

func TestBytesRoundTrip(t *testing.T) {
	t.Parallel()
	in := []int16{0, 256, -2, 32767, -32768}
	pcm := audio.Int16ToBytes(in)
	if len(pcm) != 10 {
		t.Fatalf("len = %d, want 10", len(pcm))
	}
	if pcm[2] != 0x00 || pcm[3] != 0x01 {
		t.Errorf("256 encoded as %x %x, want little-endian 00 01", pcm[2], pcm[3])
	}
	out := audio.BytesToInt16(append(pcm, 0xFF))
	if len(out) != len(in) {
		t.Fatalf("decoded %d samples, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], in[i])
		}
	}
}

func TestIntsToFloat(t *testing.T) {
	t.Parallel()
	got := audio.IntsToFloat([]int{16384, -128}, 16)
	if got[0] != 0.5 {
		t.Errorf("16-bit 16384 = %v, want 0.5", got[0])
	}
	got = audio.IntsToFloat([]int{-128}, 8)
	if got[0] != -1 {
		t.Errorf("8-bit -128 = %v, want -1", got[0])
	}
}

func TestDownmix(t *testing.T) {
	t.Parallel()
	got := audio.Downmix([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
	mono := []float32{0.1, 0.2}
	if out := audio.Downmix(mono, 1); &out[0] != &mono[0] {
		t.Error("Downmix of mono input should return the input")
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	in := []float32{0, 1, 0, -1}
	if out := audio.Resample(in, 16000, 16000); &out[0] != &in[0] {
		t.Error("same-rate Resample should return the input")
	}

	up := audio.Resample(in, 8000, 16000)
	if len(up) != 8 {
		t.Fatalf("upsampled len = %d, want 8", len(up))
	}
	if up[1] != 0.5 {
		t.Errorf("interpolated sample = %v, want 0.5", up[1])
	}

	down := audio.Resample(make([]float32, 48000), 48000, 16000)
	if len(down) != 16000 {
		t.Errorf("downsampled len = %d, want 16000", len(down))
	}

	if out := audio.Resample(in, 0, 16000); len(out) != len(in) {
		t.Error("Resample with zero source rate should return the input")
	}
}

func TestFrame_Duration(t *testing.T) {
	t.Parallel()
	f := audio.Frame{Samples: make([]float32, 1024), SampleRate: 16000}
	if got, want := f.Duration(), 64*time.Millisecond; got != want {
		t.Errorf("Duration = %v, want %v", got, want)
	}
	if got := (audio.Frame{Samples: make([]float32, 10)}).Duration(); got != 0 {
		t.Errorf("Duration with zero rate = %v, want 0", got)
	}
}
