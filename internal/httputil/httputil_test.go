package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestReadBodyStrict(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		limit   int64
		wantErr error
	}{
		{name: "ok", body: `{"id":"evt_1"}`, limit: 1024},
		{name: "empty", body: "", limit: 1024, wantErr: ErrEmptyBody},
		{name: "too large", body: strings.Repeat("a", 2048), limit: 1024, wantErr: ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			body, err := ReadBodyStrict(w, r, tt.limit)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(body) != tt.body {
				t.Errorf("body = %q, want %q", body, tt.body)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusConflict, "conflict", "already exists")

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"error":"conflict"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRateLimiter_PerClientBurst(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.1.1.1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow("1.1.1.1") {
		t.Error("4th request should be limited")
	}
	if !rl.Allow("2.2.2.2") {
		t.Error("other clients have their own bucket")
	}

	// One token refills every 20 seconds at 3 per minute
	now = now.Add(21 * time.Second)
	if !rl.Allow("1.1.1.1") {
		t.Error("request after refill should be allowed")
	}
}

func TestRateLimiter_CleanupIdle(t *testing.T) {
	rl := NewRateLimiter(10, time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("1.1.1.1")
	rl.Allow("2.2.2.2")
	if rl.Size() != 2 {
		t.Fatalf("Size = %d, want 2", rl.Size())
	}

	now = now.Add(3 * time.Second)
	rl.Cleanup()
	if rl.Size() != 0 {
		t.Errorf("Size after cleanup = %d, want 0", rl.Size())
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != want {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"forwarded", "203.0.113.7, 10.0.0.1", "10.0.0.1:1234", "203.0.113.7"},
		{"remote with port", "", "192.0.2.1:4321", "192.0.2.1"},
		{"remote without port", "", "192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
