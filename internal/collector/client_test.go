package collector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"collector-simulator/internal/route"
)

type call struct {
	method, path, auth string
	body               map[string]any
}

type fakeAPI struct {
	mu      sync.Mutex
	calls   []call
	handler func(w http.ResponseWriter, r *http.Request, body map[string]any)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(b, &body)
	f.mu.Lock()
	f.calls = append(f.calls, call{r.Method, r.URL.Path, r.Header.Get("Authorization"), body})
	f.mu.Unlock()
	f.handler(w, r, body)
}

func newTestClient(t *testing.T, h func(w http.ResponseWriter, r *http.Request, body map[string]any)) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{handler: h}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/", time.Second)
	c.now = func() time.Time { return time.Date(2025, 3, 8, 9, 30, 0, 0, time.UTC) }
	return c, api
}

func TestLogin(t *testing.T) {
	c, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		_, _ = w.Write([]byte(`{"token":"abc123"}`))
	})

	tok, err := c.Login(context.Background(), "collector1", "password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "abc123" || c.Token() != "abc123" {
		t.Errorf("token = %q / %q", tok, c.Token())
	}
	got := api.calls[0]
	if got.method != http.MethodPost || got.path != "/api/collector/login" {
		t.Errorf("call = %s %s", got.method, got.path)
	}
	if got.body["username"] != "collector1" || got.body["password"] != "password" {
		t.Errorf("body = %v", got.body)
	}
	if got.auth != "" {
		t.Errorf("login should not send a bearer token, got %q", got.auth)
	}
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name string
		h    func(w http.ResponseWriter, r *http.Request, body map[string]any)
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
		}},
		{"empty token", func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
			_, _ = w.Write([]byte(`{}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.h)
			if _, err := c.Login(context.Background(), "u", "p"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestReportPosition(t *testing.T) {
	c, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		_, _ = w.Write([]byte(`{"message":"Location updated"}`))
	})
	c.SetToken("tok")

	ack, err := c.ReportPosition(context.Background(), route.C(-73.957618, 40.776143))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.Message != "Location updated" {
		t.Errorf("ack = %+v", ack)
	}
	got := api.calls[0]
	if got.path != "/api/collector/location" || got.auth != "Bearer tok" {
		t.Errorf("call = %+v", got)
	}
	if got.body["longitude"] != -73.957618 || got.body["latitude"] != 40.776143 {
		t.Errorf("body = %v", got.body)
	}
}

func TestReportPosition_NoMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		w.WriteHeader(http.StatusNoContent)
	})
	ack, err := c.ReportPosition(context.Background(), route.C(0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.Message != "updated" {
		t.Errorf("ack = %+v", ack)
	}
}

func TestReportPosition_ServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.ReportPosition(context.Background(), route.C(0, 0))
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Status != http.StatusInternalServerError || !strings.Contains(se.Body, "boom") {
		t.Errorf("status error = %+v", se)
	}
}

func TestReportPosition_CancelledContext(t *testing.T) {
	c, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.ReportPosition(ctx, route.C(0, 0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(api.calls) != 0 {
		t.Errorf("expected no request, got %d", len(api.calls))
	}
}

func TestResetBinFillLevels(t *testing.T) {
	c, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		switch {
		case r.URL.Path == "/api/bins/direct-update":
			if body["binId"] == "bin-c" {
				http.Error(w, "nope", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/api/bins/bin-b/"), strings.HasPrefix(r.URL.Path, "/api/bins/bin-c/"):
			http.Error(w, "not found", http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	c.SetToken("tok")

	err := c.ResetBinFillLevels(context.Background(), map[string]int{"bin-a": 75, "bin-b": 95, "bin-c": 10})
	if err == nil || !strings.Contains(err.Error(), "bin bin-c") {
		t.Fatalf("expected error for bin-c, got %v", err)
	}
	if strings.Contains(err.Error(), "bin bin-b") {
		t.Errorf("bin-b should have been rescued by the direct update: %v", err)
	}

	want := []string{
		"PUT /api/bins/bin-a/update-fill-level",
		"PUT /api/bins/bin-b/update-fill-level",
		"POST /api/bins/direct-update",
		"PUT /api/bins/bin-c/update-fill-level",
		"POST /api/bins/direct-update",
	}
	if len(api.calls) != len(want) {
		t.Fatalf("expected %d calls, got %d: %+v", len(want), len(api.calls), api.calls)
	}
	for i, w := range want {
		if got := api.calls[i].method + " " + api.calls[i].path; got != w {
			t.Errorf("call %d = %q, want %q", i, got, w)
		}
	}

	first := api.calls[0].body
	if first["fillLevel"] != float64(75) || first["lastCollected"] != "2025-03-08T09:30:00Z" {
		t.Errorf("fill level body = %v", first)
	}
	direct := api.calls[2].body
	updates, _ := direct["updates"].(map[string]any)
	if direct["binId"] != "bin-b" || updates["fillLevel"] != float64(95) {
		t.Errorf("direct update body = %v", direct)
	}
}
