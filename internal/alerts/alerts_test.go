package alerts

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/n0needt0/synthlog/internal/config"
)

func newServer(t *testing.T, status int, got *atomic.Int32, last *AlertPayload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Add(1)
		body, _ := io.ReadAll(r.Body)
		if last != nil {
			_ = sonic.Unmarshal(body, last)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSendAlert(t *testing.T) {
	var calls atomic.Int32
	var payload AlertPayload
	srv := newServer(t, http.StatusOK, &calls, &payload)

	c := NewClient(config.Alerts{Enabled: true, Endpoint: srv.URL}, config.App{Name: "synthlog", Version: "v1"}, false)
	if err := c.SendWarningAlert(context.Background(), "t", "m", map[string]interface{}{"k": "v"}); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("Expected 1 request, got %d", calls.Load())
	}
	if payload.Service != "synthlog" || payload.Severity != "warning" || payload.Details["k"] != "v" {
		t.Errorf("Expected warning payload, got %+v", payload)
	}
}

func TestSendAlertDisabled(t *testing.T) {
	c := NewClient(config.Alerts{}, config.App{}, true)
	if err := c.SendCriticalAlert(context.Background(), "t", "m", nil); err != nil {
		t.Errorf("Expected disabled alerts to be a no-op, got %v", err)
	}
}

func TestSendAlertErrors(t *testing.T) {
	c := NewClient(config.Alerts{Enabled: true}, config.App{}, false)
	if err := c.SendCriticalAlert(context.Background(), "t", "m", nil); err == nil {
		t.Error("Expected error without endpoint")
	}

	var calls atomic.Int32
	srv := newServer(t, http.StatusInternalServerError, &calls, nil)
	c = NewClient(config.Alerts{Enabled: true, Endpoint: srv.URL}, config.App{}, false)
	if err := c.SendCriticalAlert(context.Background(), "t", "m", nil); err == nil {
		t.Error("Expected error on 500")
	}
}

func TestFailureTracker(t *testing.T) {
	var calls atomic.Int32
	var payload AlertPayload
	srv := newServer(t, http.StatusOK, &calls, &payload)
	c := NewClient(config.Alerts{Enabled: true, Endpoint: srv.URL}, config.App{Name: "synthlog"}, false)

	tr := NewFailureTracker(c, "fortigate", 3)
	boom := errors.New("connection refused")

	tr.Failure(boom)
	tr.Failure(boom)
	tr.Success()
	tr.Failure(boom)
	tr.Failure(boom)
	if calls.Load() != 0 {
		t.Fatalf("Expected no alert before threshold, got %d", calls.Load())
	}

	tr.Failure(boom)
	tr.Failure(boom)
	tr.Failure(boom)
	if calls.Load() != 1 {
		t.Errorf("Expected one alert per streak, got %d", calls.Load())
	}
	if tr.Consecutive() != 5 {
		t.Errorf("Expected 5 consecutive failures, got %d", tr.Consecutive())
	}
	if payload.Details["format"] != "fortigate" || payload.Details["error"] != "connection refused" {
		t.Errorf("Expected failure details, got %+v", payload.Details)
	}

	tr.Success()
	if tr.Consecutive() != 0 {
		t.Errorf("Expected reset after success, got %d", tr.Consecutive())
	}
}
