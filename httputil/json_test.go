package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBindJSON(t *testing.T) {
	type payload struct {
		Type  string `json:"type"`
		Field string `json:"field"`
	}

	tests := []struct {
		name    string
		body    string
		limit   int64
		wantErr string
	}{
		{"ok", `{"type":"blur","field":"email"}`, 0, ""},
		{"empty", ``, 0, "request body is empty"},
		{"syntax", `{"type":`, 0, "malformed JSON"},
		{"unknown field", `{"type":"blur","colour":"red"}`, 0, `unknown field "colour"`},
		{"wrong type", `{"type":5}`, 0, `invalid value for field "type"`},
		{"two values", `{"type":"a"} {"type":"b"}`, 0, "multiple JSON values"},
		{"too large", `{"type":"blur","field":"email"}`, 8, "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.limit > 0 {
				req.Body = http.MaxBytesReader(httptest.NewRecorder(), req.Body, tt.limit)
			}
			var p payload
			err := BindJSON(req, &p)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Field != "email" {
					t.Errorf("decoded %+v", p)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONError(rec, http.StatusConflict, "conflict", "submission in progress")

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "conflict" || body.Error.Message != "submission in progress" {
		t.Errorf("body = %+v", body)
	}
}

func TestWriteJSON_ClampsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, 42, map[string]int{"a": 1})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestWantsJSON(t *testing.T) {
	tests := []struct {
		ct, accept string
		want       bool
	}{
		{"application/json; charset=utf-8", "", true},
		{"application/problem+json", "", true},
		{"application/x-www-form-urlencoded", "", false},
		{"", "application/json, text/plain", true},
		{"", "text/html", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Content-Type", tt.ct)
		req.Header.Set("Accept", tt.accept)
		if got := WantsJSON(req); got != tt.want {
			t.Errorf("WantsJSON(ct=%q, accept=%q) = %v", tt.ct, tt.accept, got)
		}
	}
}
