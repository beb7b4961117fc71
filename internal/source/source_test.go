package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSourceFetch(t *testing.T) {
	dir := t.TempDir()
	want := []byte("pcm bytes")
	if err := os.WriteFile(filepath.Join(dir, "kick.wav"), want, 0o644); err != nil {
		t.Fatal(err)
	}

	src := &FileSource{Root: dir}
	got, err := src.Fetch(context.Background(), "kick.wav")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Fetch = %q, want %q", got, want)
	}
}

func TestFileSourceAbsolutePathBypassesRoot(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "snare.wav")
	if err := os.WriteFile(abs, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &FileSource{Root: "/nonexistent"}
	if _, err := src.Fetch(context.Background(), abs); err != nil {
		t.Errorf("Fetch(%q) failed: %v", abs, err)
	}
}

func TestFileSourceNotFound(t *testing.T) {
	src := &FileSource{Root: t.TempDir()}
	_, err := src.Fetch(context.Background(), "missing.wav")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRemoteSourceFetch(t *testing.T) {
	want := []byte{1, 2, 3, 4, 5}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("path"); got != "loops/break.wav" {
			t.Errorf("path query = %q, want %q", got, "loops/break.wav")
		}
		json.NewEncoder(w).Encode(fileEnvelope{
			Path: "loops/break.wav",
			Data: base64.StdEncoding.EncodeToString(want),
		})
	}))
	defer server.Close()

	src := NewRemoteSource(server.URL)
	got, err := src.Fetch(context.Background(), "loops/break.wav")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Fetch = %v, want %v", got, want)
	}
}

func TestRemoteSourceErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			"not found",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			ErrNotFound,
		},
		{
			"server error",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			ErrBadResponse,
		},
		{
			"invalid json",
			func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("not json")) },
			ErrBadResponse,
		},
		{
			"invalid base64",
			func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(fileEnvelope{Data: "!!not base64!!"})
			},
			ErrBadResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			src := NewRemoteSource(server.URL)
			_, err := src.Fetch(context.Background(), "x.wav")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// stubSource returns canned bytes or an error.
type stubSource struct {
	data  []byte
	err   error
	calls int
}

func (s *stubSource) Fetch(context.Context, string) ([]byte, error) {
	s.calls++
	return s.data, s.err
}

func TestChainPrefersPrimary(t *testing.T) {
	primary := &stubSource{data: []byte("local")}
	fallback := &stubSource{data: []byte("remote")}
	chain := &Chain{Primary: primary, Fallback: fallback}

	got, err := chain.Fetch(context.Background(), "a.wav")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(got) != "local" {
		t.Errorf("Fetch = %q, want %q", got, "local")
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times, want 0", fallback.calls)
	}
}

func TestChainFallsBack(t *testing.T) {
	primary := &stubSource{err: ErrNotFound}
	fallback := &stubSource{data: []byte("remote")}
	chain := &Chain{Primary: primary, Fallback: fallback}

	got, err := chain.Fetch(context.Background(), "a.wav")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(got) != "remote" {
		t.Errorf("Fetch = %q, want %q", got, "remote")
	}
}

func TestChainNoFallbackPropagatesError(t *testing.T) {
	chain := &Chain{Primary: &stubSource{err: ErrNotFound}}
	if _, err := chain.Fetch(context.Background(), "a.wav"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
