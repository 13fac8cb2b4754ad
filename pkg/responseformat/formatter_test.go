package responseformat

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

type payload struct {
	RangeHours int     `json:"range_hours"`
	Total      float64 `json:"total"`
}

func TestWriteResponse(t *testing.T) {
	f := NewFormatter()
	data := payload{RangeHours: 24, Total: 12.5}

	tests := []struct {
		name        string
		target      string
		accept      string
		contentType string
	}{
		{"default json", "/api/view", "", "application/json"},
		{"msgpack query", "/api/view?format=msgpack", "", "application/x-msgpack"},
		{"msgpack accept", "/api/view", "application/x-msgpack", "application/x-msgpack"},
		{"unknown format falls back to json", "/api/view?format=xml", "", "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()

			if err := f.WriteResponse(rec, req, data, map[string]string{"Cache-Control": "no-store"}); err != nil {
				t.Fatalf("WriteResponse() error = %v", err)
			}

			if got := rec.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Error("custom header not set")
			}

			var got payload
			var err error
			if tt.contentType == "application/json" {
				err = json.Unmarshal(rec.Body.Bytes(), &got)
			} else {
				dec := msgpack.NewDecoder(rec.Body)
				dec.SetCustomStructTag("json")
				err = dec.Decode(&got)
			}
			if err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if got != data {
				t.Errorf("decoded %+v, want %+v", got, data)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/view?range=5", nil)

	NewFormatter().WriteError(rec, req, http.StatusBadRequest, errors.New("unsupported display range: 5h"), "")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if body.Error != "unsupported display range: 5h" {
		t.Errorf("error = %q", body.Error)
	}
}
