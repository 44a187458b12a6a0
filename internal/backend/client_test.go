package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallpanel"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, nil), srv
}

func TestClient_CheckUpdates(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		body       string
		want       wallpanel.UpdateStatus
		wantErr    error
	}{
		{
			name:       "running",
			statusCode: http.StatusOK,
			body:       `{"status":"running","changed":false}`,
			want:       wallpanel.UpdateStatus{Status: wallpanel.TaskRunning},
		},
		{
			name:       "complete with changes",
			statusCode: http.StatusOK,
			body:       `{"status":"complete","changed":true}`,
			want:       wallpanel.UpdateStatus{Status: wallpanel.TaskComplete, Changed: true},
		},
		{
			name:       "error status",
			statusCode: http.StatusOK,
			body:       `{"status":"error","changed":false}`,
			want:       wallpanel.UpdateStatus{Status: wallpanel.TaskError},
		},
		{
			name:       "unknown status value",
			statusCode: http.StatusOK,
			body:       `{"status":"exploded"}`,
			wantErr:    ErrBadResponse,
		},
		{
			name:       "server error",
			statusCode: http.StatusInternalServerError,
			body:       `oops`,
			wantErr:    ErrBadResponse,
		},
		{
			name:       "malformed body",
			statusCode: http.StatusOK,
			body:       `{"status":`,
			wantErr:    ErrBadResponse,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotPath string
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.WriteHeader(tc.statusCode)
				w.Write([]byte(tc.body))
			}))

			got, err := client.CheckUpdates(context.Background(), "calendar-2026-08")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("status: want %+v, got %+v", tc.want, got)
			}
			if gotPath != "/feed/check-updates/calendar-2026-08" {
				t.Errorf("request path: got %q", gotPath)
			}
		})
	}
}

func TestClient_CheckUpdatesUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, time.Second, nil)
	_, err := client.CheckUpdates(context.Background(), "tasks")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("want %v, got %v", ErrUnreachable, err)
	}
}

func TestClient_ForceRefresh(t *testing.T) {
	var gotMethod, gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte(`{"status":"accepted"}`))
	}))

	if err := client.ForceRefresh(context.Background(), "tasks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/feed/force-refresh/tasks" {
		t.Errorf("request: got %s %s", gotMethod, gotPath)
	}
}

func TestClient_RandomAsset(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		body       string
		want       string
		wantErr    error
	}{
		{
			name:       "asset available",
			statusCode: http.StatusOK,
			body:       `{"url":"/photos/beach.jpg"}`,
			want:       "/photos/beach.jpg",
		},
		{
			name:       "empty library answers 404 with a reason",
			statusCode: http.StatusNotFound,
			body:       `{"error":"no photos synced yet"}`,
			wantErr:    ErrNoAsset,
		},
		{
			name:       "empty url without a reason",
			statusCode: http.StatusOK,
			body:       `{}`,
			wantErr:    ErrNoAsset,
		},
		{
			name:       "server error is not a missing asset",
			statusCode: http.StatusInternalServerError,
			body:       `{"error":"boom"}`,
			wantErr:    ErrBadResponse,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				w.Write([]byte(tc.body))
			}))

			got, err := client.RandomAsset(context.Background())
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("url: want %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClient_RemoteConfig(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/config" {
			t.Errorf("request path: got %q", r.URL.Path)
		}
		w.Write([]byte(`{"sync_interval_minutes":10,"night_start_hour":22}`))
	}))

	remote, err := client.RemoteConfig(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.SyncIntervalMinutes == nil || *remote.SyncIntervalMinutes != 10 {
		t.Errorf("sync_interval_minutes: got %v", remote.SyncIntervalMinutes)
	}
	if remote.NightStartHour == nil || *remote.NightStartHour != 22 {
		t.Errorf("night_start_hour: got %v", remote.NightStartHour)
	}
	if remote.DayBrightness != nil {
		t.Errorf("absent field must stay nil, got %v", *remote.DayBrightness)
	}
}

func TestClient_RemoteConfigWithRetry(t *testing.T) {
	// The backend comes up after two failed attempts.
	attempts := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"sync_interval_minutes":5}`))
	}))

	remote, err := client.RemoteConfigWithRetry(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error after backend recovery: %v", err)
	}
	if remote.SyncIntervalMinutes == nil || *remote.SyncIntervalMinutes != 5 {
		t.Errorf("sync_interval_minutes: got %v", remote.SyncIntervalMinutes)
	}
	if attempts != 3 {
		t.Errorf("attempts: want 3, got %d", attempts)
	}
}

func TestClient_TrimsTrailingSlash(t *testing.T) {
	_, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/config" {
			t.Errorf("request path: got %q", r.URL.Path)
		}
		w.Write([]byte(`{}`))
	}))

	slashed := NewClient(srv.URL+"/", time.Second, nil)
	if _, err := slashed.RemoteConfig(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
