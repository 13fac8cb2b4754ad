package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "device:\n  base_url: " + baseURL + "\nchart:\n  location: UTC\nsession:\n  weight: 70\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func sensorServer(t *testing.T, value float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data":
			data := make([]float64, 672)
			for i := range data {
				data[i] = value
			}
			json.NewEncoder(w).Encode(data)
		case "/H", "/L":
			w.Write([]byte("OK"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "fluidwatch ") {
		t.Errorf("output = %q", out)
	}
}

func TestViewCommand(t *testing.T) {
	srv := sensorServer(t, 10)
	cfg := writeConfig(t, srv.URL)

	tests := []struct {
		name     string
		args     []string
		wantRows int
		wantErr  bool
	}{
		{"default range", []string{"view"}, 24, false},
		{"daily", []string{"view", "--range", "168"}, 7, false},
		{"weight override", []string{"view", "--range", "24", "--weight", "40"}, 24, false},
		{"unsupported range", []string{"view", "--range", "5"}, 0, true},
		{"bad weight", []string{"view", "--weight", "-3"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"--config", cfg}, tt.args...)...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !strings.Contains(out, "Showing: ") {
				t.Errorf("missing label in %q", out)
			}
			if rows := strings.Count(out, "good"); rows != tt.wantRows {
				t.Errorf("%d good rows, want %d", rows, tt.wantRows)
			}
		})
	}
}

func TestDeviceCommands(t *testing.T) {
	srv := sensorServer(t, 0)
	cfg := writeConfig(t, srv.URL)

	out, err := run(t, "--config", cfg, "device", "start", "--weight", "72.5")
	if err != nil {
		t.Fatalf("device start error = %v", err)
	}
	if !strings.Contains(out, "started, weight 72.5 kg") {
		t.Errorf("output = %q", out)
	}

	if _, err := run(t, "--config", cfg, "device", "start", "--weight", "0"); err == nil {
		t.Error("device start with zero weight succeeded")
	}

	out, err = run(t, "--config", cfg, "device", "stop")
	if err != nil {
		t.Fatalf("device stop error = %v", err)
	}
	if !strings.Contains(out, "stopped") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigShowAndConvert(t *testing.T) {
	cfg := writeConfig(t, "http://192.168.4.1")

	out, err := run(t, "--config", cfg, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.Contains(out, "interval_minutes: 15") || !strings.Contains(out, "base_url: http://192.168.4.1") {
		t.Errorf("config show output = %q", out)
	}

	db := filepath.Join(t.TempDir(), "config.db")
	if _, err := run(t, "--config", cfg, "config", "convert", "--sqlite", db); err != nil {
		t.Fatalf("config convert error = %v", err)
	}
	if _, err := run(t, "--config", cfg, "config", "convert", "--sqlite", db); err == nil {
		t.Error("second convert without --force succeeded")
	}

	out, err = run(t, "--config", db, "--config-backend", "sqlite", "config", "show")
	if err != nil {
		t.Fatalf("config show from sqlite error = %v", err)
	}
	if !strings.Contains(out, "base_url: http://192.168.4.1") {
		t.Errorf("sqlite config show output = %q", out)
	}
}
