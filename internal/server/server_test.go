package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":               "",
		"8080":           ":8080",
		":9090":          ":9090",
		"127.0.0.1:7000": "127.0.0.1:7000",
	}
	for in, want := range cases {
		if got := normalizeAddr(in); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStartServeShutdown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	s := New("127.0.0.1:0", mux)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err, ok := <-s.Err():
		if ok {
			t.Fatalf("unexpected serve error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Err channel not closed after Shutdown")
	}
}

func TestStartPortInUse(t *testing.T) {
	first := New("127.0.0.1:0", http.NewServeMux())
	if err := first.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = first.Shutdown(context.Background()) }()

	if err := New(first.Addr(), http.NewServeMux()).Start(); err == nil {
		t.Fatalf("expected listen error on a bound port")
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	if err := New("8080", nil).Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown before Start: %v", err)
	}
}
