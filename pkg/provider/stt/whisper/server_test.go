package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/kupo/pkg/provider/stt"
	"github.com/MrWong99/kupo/pkg/provider/stt/whisper"
)

// newMockServer returns a whisper-server stand-in that answers every
// /inference call with responseText and counts the calls.
func newMockServer(t *testing.T, responseText string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		head, _ := io.ReadAll(io.LimitReader(f, 4))
		if string(head) != "RIFF" {
			http.Error(w, "not a wav", http.StatusBadRequest)
			return
		}
		if r.FormValue("language") != "en" {
			http.Error(w, "bad language", http.StatusBadRequest)
			return
		}
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewServer_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := whisper.NewServer(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}

func TestServer_FinishUploadsUtterance(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newMockServer(t, "this is a test", &calls)

	e, err := whisper.NewServer(srv.URL)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx := context.Background()
	s, err := e.OpenStream(ctx, stt.Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	for range 4 {
		if err := s.Feed(ctx, make([]int16, 512)); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	if calls.Load() != 0 {
		t.Error("Feed should not contact the server")
	}
	text, err := s.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if text != "this is a test" {
		t.Errorf("text = %q", text)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestServer_HTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	e, _ := whisper.NewServer(srv.URL)
	s, _ := e.OpenStream(context.Background(), stt.Config{SampleRate: 16000})
	_ = s.Feed(context.Background(), []int16{1, 2, 3})
	_, err := s.Finish(context.Background())
	if err == nil || !strings.Contains(err.Error(), "HTTP 500") {
		t.Errorf("Finish = %v, want HTTP 500 error", err)
	}
}

func TestServer_OpenStreamCancelled(t *testing.T) {
	t.Parallel()
	e, _ := whisper.NewServer("http://127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.OpenStream(ctx, stt.Config{}); err == nil {
		t.Error("OpenStream on cancelled context = nil, want error")
	}
}
