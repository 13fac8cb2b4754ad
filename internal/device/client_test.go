package device

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second, zap.NewNop().Sugar())
}

func TestFetchSamples(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    []float64
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK, body: `[1, 2.5, 0]`, want: []float64{1, 2.5, 0}},
		{name: "empty array", status: http.StatusOK, body: `[]`, want: []float64{}},
		{name: "server error", status: http.StatusInternalServerError, body: `[1]`, wantErr: true},
		{name: "not found", status: http.StatusNotFound, body: ``, wantErr: true},
		{name: "malformed", status: http.StatusOK, body: `[1, "two"]`, wantErr: true},
		{name: "object instead of array", status: http.StatusOK, body: `{"data": [1]}`, wantErr: true},
		{name: "truncated", status: http.StatusOK, body: `[1, 2`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/data" {
					t.Errorf("requested %s, want /data", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			got, err := c.FetchSamples(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("FetchSamples() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("FetchSamples() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("FetchSamples()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFetchSamplesUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, zap.NewNop().Sugar())
	if _, err := c.FetchSamples(context.Background()); err == nil {
		t.Error("FetchSamples() against a closed server should fail")
	}
}

func TestActions(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		status  int
		wantErr bool
	}{
		{name: "start ok", action: ActionStart, status: http.StatusOK},
		{name: "stop ok", action: ActionStop, status: http.StatusNoContent},
		{name: "start fails", action: ActionStart, status: http.StatusServiceUnavailable, wantErr: true},
		{name: "stop fails", action: ActionStop, status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				w.WriteHeader(tt.status)
			})

			err := c.Do(context.Background(), tt.action)
			if path != "/"+string(tt.action) {
				t.Errorf("requested %s, want /%s", path, tt.action)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrActionFailed) {
					t.Errorf("Do() error = %v, want ErrActionFailed", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Do() error = %v", err)
			}
		})
	}
}
