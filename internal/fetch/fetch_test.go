package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/openxiino/dataserver/internal/config"
)

func testClient(t *testing.T, mutate func(*config.Config)) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Security.AttemptHTTPSUpgrade = false
	if mutate != nil {
		mutate(cfg)
	}
	c, err := New(cfg, hclog.NewNullLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestFetchBasic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); !strings.HasPrefix(got, "OpenXiino/") {
			t.Errorf("user agent not replaced: %q", got)
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>hi</html>"))
	}))
	defer srv.Close()

	c := testClient(t, nil)
	resp, err := c.Fetch(context.Background(), Request{URL: srv.URL, MaxBytes: 1024})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Status != 200 {
		t.Errorf("status = %d", resp.Status)
	}
	if string(resp.Body) != "<html>hi</html>" {
		t.Errorf("body = %q", resp.Body)
	}
	if resp.ContentType != "text/html" {
		t.Errorf("content type = %q", resp.ContentType)
	}
}

func TestFetchSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Declare no length and stream far past the cap: only the
		// streamed count can stop the read.
		w.WriteHeader(200)
		big := strings.Repeat("x", 64*1024)
		w.Write([]byte(big))
	}))
	defer srv.Close()

	c := testClient(t, nil)
	resp, err := c.Fetch(context.Background(), Request{URL: srv.URL, MaxBytes: 1024})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if resp == nil || len(resp.Body) != 1024 {
		t.Fatalf("capped prefix should be returned, got %d bytes", len(resp.Body))
	}
}

func TestFetchUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, nil)
	resp, err := c.Fetch(context.Background(), Request{URL: srv.URL, MaxBytes: 1024})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != 404 {
		t.Errorf("code = %d", se.Code)
	}
	if resp == nil || resp.Status != 404 {
		t.Error("response should still carry the upstream status")
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	c := testClient(t, func(cfg *config.Config) {
		cfg.HTTP.TimeoutSeconds = 1
	})
	start := time.Now()
	_, err := c.Fetch(context.Background(), Request{URL: srv.URL, MaxBytes: 1024})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 1800*time.Millisecond {
		t.Error("timeout took too long to fire")
	}
}

func TestRedirectsFollowed(t *testing.T) {
	hops := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/final" {
			w.Write([]byte("done"))
			return
		}
		hops++
		http.Redirect(w, r, "/final", http.StatusFound)
	}))
	defer srv.Close()

	c := testClient(t, nil)
	resp, err := c.Fetch(context.Background(), Request{URL: srv.URL, MaxBytes: 1024})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(resp.Body) != "done" {
		t.Errorf("body = %q", resp.Body)
	}
	if !strings.HasSuffix(resp.FinalURL.Path, "/final") {
		t.Errorf("final url = %v", resp.FinalURL)
	}
}

func TestRedirectsDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	c := testClient(t, func(cfg *config.Config) {
		cfg.Security.AllowRedirects = false
	})
	resp, err := c.Fetch(context.Background(), Request{URL: srv.URL, MaxBytes: 1024})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Status != http.StatusFound {
		t.Errorf("status = %d, want 302", resp.Status)
	}
}

func TestRedirectLoopCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer srv.Close()

	c := testClient(t, func(cfg *config.Config) {
		cfg.Security.MaxRedirects = 3
	})
	_, err := c.Fetch(context.Background(), Request{URL: srv.URL, MaxBytes: 1024})
	if err == nil {
		t.Fatal("expected redirect cap error")
	}
}

func TestAuthorizationDroppedCrossOrigin(t *testing.T) {
	var other *httptest.Server
	other = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("Authorization leaked across origins")
		}
		w.Write([]byte("ok"))
	}))
	defer other.Close()

	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, other.URL, http.StatusFound)
	}))
	defer first.Close()

	c := testClient(t, nil)
	hdr := http.Header{}
	hdr.Set("Authorization", "Basic c2VjcmV0")
	resp, err := c.Fetch(context.Background(), Request{URL: first.URL, Header: hdr, MaxBytes: 1024})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestSocks4Rejected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTP.SocksProxy = "socks4://127.0.0.1:1080"
	if _, err := New(cfg, hclog.NewNullLogger()); err == nil {
		t.Fatal("SOCKS4 should be rejected at startup")
	}
}
