package whisper_test

import (
	"context"
	"os"
	"testing"

	"github.com/MrWong99/kupo/pkg/provider/stt"
	"github.com/MrWong99/kupo/pkg/provider/stt/whisper"
)

// testModelPath reads WHISPER_MODEL_PATH or skips the test.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath(t *testing.T) {
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func TestNewNative_InvalidPath(t *testing.T) {
	if _, err := whisper.NewNative("/nonexistent/path/to/model.bin"); err == nil {
		t.Fatal("expected error for invalid model path")
	}
}

func TestNative_SilenceTranscribes(t *testing.T) {
	e, err := whisper.NewNative(testModelPath(t), whisper.WithNativeLanguage("en"))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer e.Close()

	ctx := context.Background()
	s, err := e.OpenStream(ctx, stt.Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	_ = s.Feed(ctx, make([]int16, 16000))
	if _, err := s.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}
