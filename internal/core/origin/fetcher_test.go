package origin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Prism/internal/storage"
	"Prism/internal/storage/memory"
)

func newTestFetcher(t *testing.T, serverURL string, cfg HTTPConfig) *HTTPFetcher {
	t.Helper()
	cfg.BaseURL = serverURL
	f, err := NewHTTPFetcher(cfg)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	return f
}

func TestHTTPFetcher_Fetch_Success(t *testing.T) {
	expected := []byte("test image data")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assets/photos/cat.jpg" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "Prism-Origin/1.0" {
			t.Errorf("unexpected user agent: %s", ua)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(expected)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL+"/assets/", HTTPConfig{})
	src, err := f.Fetch(context.Background(), "photos/cat.jpg")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if string(src.Data) != string(expected) {
		t.Errorf("expected data %q, got %q", expected, src.Data)
	}
	if src.ContentType != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", src.ContentType)
	}
}

func TestHTTPFetcher_Fetch_NotFound(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		f := newTestFetcher(t, server.URL, HTTPConfig{})
		_, err := f.Fetch(context.Background(), "missing.jpg")
		if !errors.Is(err, ErrOriginNotFound) {
			t.Errorf("status %d: expected ErrOriginNotFound, got: %v", status, err)
		}
		server.Close()
	}
}

func TestHTTPFetcher_Fetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, HTTPConfig{Timeout: 50 * time.Millisecond})
	_, err := f.Fetch(context.Background(), "slow.jpg")
	if !errors.Is(err, ErrOriginTimeout) {
		t.Errorf("expected ErrOriginTimeout, got: %v", err)
	}
}

func TestHTTPFetcher_Fetch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, HTTPConfig{BreakerThreshold: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, "slow.jpg")
	if !errors.Is(err, ErrOriginTimeout) {
		t.Fatalf("expected ErrOriginTimeout, got: %v", err)
	}
	// A caller-side cancellation must not trip the breaker.
	if err := f.breaker.canAttempt(f.Host()); err != nil {
		t.Errorf("expected circuit closed, got: %v", err)
	}
}

func TestHTTPFetcher_Fetch_TooLarge(t *testing.T) {
	t.Run("content length", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		}))
		defer server.Close()

		f := newTestFetcher(t, server.URL, HTTPConfig{MaxSizeBytes: 16})
		_, err := f.Fetch(context.Background(), "big.jpg")
		if !errors.Is(err, ErrSourceTooLarge) {
			t.Errorf("expected ErrSourceTooLarge, got: %v", err)
		}
	})

	t.Run("chunked", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.(http.Flusher).Flush()
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		}))
		defer server.Close()

		f := newTestFetcher(t, server.URL, HTTPConfig{MaxSizeBytes: 16})
		_, err := f.Fetch(context.Background(), "big.jpg")
		if !errors.Is(err, ErrSourceTooLarge) {
			t.Errorf("expected ErrSourceTooLarge, got: %v", err)
		}
	})
}

func TestHTTPFetcher_Fetch_ServerErrorOpensCircuit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, HTTPConfig{BreakerThreshold: 2, BreakerCooldown: time.Hour})
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), "a.jpg")
		if !errors.Is(err, ErrOriginFetchFailed) {
			t.Fatalf("attempt %d: expected ErrOriginFetchFailed, got: %v", i, err)
		}
	}
	_, err := f.Fetch(context.Background(), "a.jpg")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 origin calls, got %d", calls)
	}
}

func TestHTTPFetcher_Fetch_NetworkError(t *testing.T) {
	f := newTestFetcher(t, "http://127.0.0.1:1", HTTPConfig{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), "a.jpg")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrOriginFetchFailed) && !errors.Is(err, ErrOriginTimeout) {
		t.Errorf("expected ErrOriginFetchFailed or ErrOriginTimeout, got: %v", err)
	}
}

func TestNewHTTPFetcher_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "://bad", "http://"} {
		if _, err := NewHTTPFetcher(HTTPConfig{BaseURL: raw}); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestStoreFetcher_Fetch(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	if err := store.Put(ctx, "photos/cat.jpg", []byte("jpeg"), storage.PutOptions{ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	f := NewStoreFetcher(store, 0)
	src, err := f.Fetch(ctx, "photos/cat.jpg")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if string(src.Data) != "jpeg" || src.ContentType != "image/jpeg" {
		t.Errorf("unexpected source: %+v", src)
	}

	if _, err := f.Fetch(ctx, "photos/dog.jpg"); !errors.Is(err, ErrOriginNotFound) {
		t.Errorf("expected ErrOriginNotFound, got: %v", err)
	}
	if _, err := NewStoreFetcher(store, 2).Fetch(ctx, "photos/cat.jpg"); !errors.Is(err, ErrSourceTooLarge) {
		t.Errorf("expected ErrSourceTooLarge, got: %v", err)
	}
}

func TestHostFromURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://images.example.com/assets", want: "images.example.com"},
		{in: "http://localhost:8080", want: "localhost:8080"},
		{in: "  https://cdn.example.com  ", want: "cdn.example.com"},
		{in: "", wantErr: true},
		{in: "not a url", wantErr: true},
	}
	for _, tt := range tests {
		got, err := HostFromURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("HostFromURL(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("HostFromURL(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
